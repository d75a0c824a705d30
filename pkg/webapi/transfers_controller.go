package webapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/transfer"
)

type TransfersController struct {
	transferStor stor.TransferStor
	transfers    TransferService
}

func NewTransfersController(transferStor stor.TransferStor, transfers TransferService) *TransfersController {
	return &TransfersController{transferStor: transferStor, transfers: transfers}
}

func (c *TransfersController) IndexTransfers(ctx echo.Context) error {
	return c.list(ctx, c.transferStor.GetAllTransfers)
}

func (c *TransfersController) IndexPendingTransfers(ctx echo.Context) error {
	return c.list(ctx, c.transferStor.GetCurrentAndPendingTransfers)
}

func (c *TransfersController) IndexFailedTransfers(ctx echo.Context) error {
	return c.list(ctx, c.transferStor.GetFailedTransfers)
}

func (c *TransfersController) IndexFinishedTransfers(ctx echo.Context) error {
	return c.list(ctx, c.transferStor.GetFinishedTransfers)
}

func (c *TransfersController) list(ctx echo.Context, query func() ([]model.Transfer, error)) error {
	transfers, err := query()
	if err != nil {
		return err
	}

	if transfers == nil {
		transfers = []model.Transfer{}
	}

	return ctx.JSON(http.StatusOK, transfers)
}

func (c *TransfersController) ShowTransfer(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	t, err := c.transferStor.GetTransferByID(id)
	if err != nil {
		return storError(err)
	}

	return ctx.JSON(http.StatusOK, t)
}

func (c *TransfersController) RequestUpload(ctx echo.Context) error {
	var req struct {
		AccountName    string               `json:"account_name"`
		LocalPath      string               `json:"local_path"`
		RemotePath     string               `json:"remote_path"`
		SpaceID        string               `json:"space_id"`
		Behaviour      model.LocalBehaviour `json:"behaviour"`
		ForceOverwrite bool                 `json:"force_overwrite"`
		WifiOnly       bool                 `json:"wifi_only"`
		FileID         int                  `json:"file_id"`
	}

	if err := ctx.Bind(&req); err != nil {
		return err
	}

	if req.AccountName == "" || req.LocalPath == "" || req.RemotePath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "account_name, local_path and remote_path are required")
	}

	handle, ok := c.transfers.RequestUpload(transfer.UploadRequest{
		AccountName:    req.AccountName,
		LocalPath:      req.LocalPath,
		RemotePath:     req.RemotePath,
		SpaceID:        req.SpaceID,
		Behaviour:      req.Behaviour,
		ForceOverwrite: req.ForceOverwrite,
		WifiOnly:       req.WifiOnly,
		CreatedBy:      model.CreatedByUser,
		FileID:         req.FileID,
	})

	if !ok {
		return notAccepted("upload")
	}

	return ctx.JSON(http.StatusAccepted, HandleResponse{Handle: handle})
}

func (c *TransfersController) CancelTransfer(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	if err := c.transfers.CancelTransfer(id); err != nil {
		return storError(err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

// DeleteTransfer stops the transfer's job, if any, and removes its record.
func (c *TransfersController) DeleteTransfer(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	if err := c.transfers.CancelTransfer(id); err != nil {
		return storError(err)
	}

	if err := c.transferStor.DeleteTransferByID(id); err != nil {
		return storError(err)
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *TransfersController) RetryTransfer(ctx echo.Context) error {
	id, err := idParam(ctx)
	if err != nil {
		return err
	}

	handle, ok := c.transfers.RetryTransfer(id)
	if !ok {
		return notAccepted("retry")
	}

	return ctx.JSON(http.StatusAccepted, HandleResponse{Handle: handle})
}

func (c *TransfersController) ClearFailedTransfers(ctx echo.Context) error {
	if err := c.transferStor.ClearFailedTransfers(); err != nil {
		return err
	}

	return ctx.NoContent(http.StatusNoContent)
}

func (c *TransfersController) ClearSuccessfulTransfers(ctx echo.Context) error {
	if err := c.transferStor.ClearSuccessfulTransfers(); err != nil {
		return err
	}

	return ctx.NoContent(http.StatusNoContent)
}
