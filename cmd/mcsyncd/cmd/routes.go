package cmd

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/materials-commons/mcsync/pkg/migration"
	"github.com/materials-commons/mcsync/pkg/storagepath"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/webapi"
)

type RouteDependencies struct {
	e        *echo.Echo
	ctx      context.Context
	stors    *stor.Stors
	orch     webapi.TransferService
	resolver *storagepath.Resolver
	accounts webapi.AccountLister
	tracker  *migration.Tracker
}

func setupRoutes(deps RouteDependencies) {
	deps.e.Use(middleware.Recover())
	g := deps.e.Group("/api")

	logController := webapi.NewLogController(settings.LogLevel, settings.LogFile)
	g.POST("/set-logging-level", logController.SetLogLevel)
	g.POST("/set-logging-output", logController.SetLogOutput)
	g.POST("/set-logging", logController.SetLogging)
	g.GET("/show-logging", logController.ShowCurrentLogging)

	transfersController := webapi.NewTransfersController(deps.stors.TransferStor, deps.orch)
	g.GET("/transfers", transfersController.IndexTransfers)
	g.GET("/transfers/pending", transfersController.IndexPendingTransfers)
	g.GET("/transfers/failed", transfersController.IndexFailedTransfers)
	g.GET("/transfers/finished", transfersController.IndexFinishedTransfers)
	g.GET("/transfers/:id", transfersController.ShowTransfer)
	g.POST("/transfers/upload", transfersController.RequestUpload)
	g.POST("/transfers/:id/cancel", transfersController.CancelTransfer)
	g.POST("/transfers/:id/retry", transfersController.RetryTransfer)
	g.DELETE("/transfers/:id", transfersController.DeleteTransfer)
	g.POST("/transfers/clear-failed", transfersController.ClearFailedTransfers)
	g.POST("/transfers/clear-successful", transfersController.ClearSuccessfulTransfers)

	filesController := webapi.NewFilesController(deps.stors.FileStor, deps.orch)
	g.GET("/accounts/:account/files", filesController.IndexFilesForAccount)
	g.POST("/files/:id/download", filesController.RequestDownload)
	g.POST("/files/:id/cancel-download", filesController.CancelDownload)
	g.GET("/files/:id/observe", filesController.ObserveFile)

	migrationController := webapi.NewMigrationController(deps.ctx, deps.tracker)
	g.GET("/migration", migrationController.ShowMigrationState)
	g.POST("/migration/prepare", migrationController.PrepareMigration)
	g.POST("/migration/start", migrationController.StartMigration)
	g.POST("/migration/acknowledge", migrationController.AcknowledgeMigration)
	g.POST("/migration/restart", migrationController.RestartMigration)

	cleanupController := webapi.NewCleanupController(deps.resolver, deps.accounts)
	g.POST("/cleanup", cleanupController.DeleteUnusedUserDirs)
}
