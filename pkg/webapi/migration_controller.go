package webapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/migration"
)

type MigrationController struct {
	tracker *migration.Tracker

	// ctx outlives single requests so a started migration keeps running
	// after the response is sent.
	ctx context.Context
}

func NewMigrationController(ctx context.Context, tracker *migration.Tracker) *MigrationController {
	return &MigrationController{tracker: tracker, ctx: ctx}
}

func (c *MigrationController) ShowMigrationState(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.tracker.State())
}

func (c *MigrationController) PrepareMigration(ctx echo.Context) error {
	var req struct {
		LegacyRoot string `json:"legacy_root"`
		NewRoot    string `json:"new_root"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	if req.LegacyRoot == "" || req.NewRoot == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "legacy_root and new_root are required")
	}

	state, err := c.tracker.Prepare(req.LegacyRoot, req.NewRoot)
	if err != nil {
		return migrationError(err)
	}

	return ctx.JSON(http.StatusOK, state)
}

func (c *MigrationController) StartMigration(ctx echo.Context) error {
	state, err := c.tracker.Start(c.ctx)
	if err != nil {
		return migrationError(err)
	}

	return ctx.JSON(http.StatusAccepted, state)
}

func (c *MigrationController) AcknowledgeMigration(ctx echo.Context) error {
	state, err := c.tracker.Acknowledge()
	if err != nil {
		return migrationError(err)
	}

	return ctx.JSON(http.StatusOK, state)
}

func (c *MigrationController) RestartMigration(ctx echo.Context) error {
	state, err := c.tracker.Restart()
	if err != nil {
		return migrationError(err)
	}

	return ctx.JSON(http.StatusOK, state)
}

func migrationError(err error) error {
	switch {
	case errors.Is(err, migration.ErrInvalidStateTransition),
		errors.Is(err, migration.ErrNotPrepared),
		errors.Is(err, migration.ErrMigrationRunning):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, migration.ErrSameRoot):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
