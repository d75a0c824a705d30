package webapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/transfer"
)

type FilesController struct {
	fileStor  stor.FileStor
	transfers TransferService
	upgrader  websocket.Upgrader
}

func NewFilesController(fileStor stor.FileStor, transfers TransferService) *FilesController {
	return &FilesController{
		fileStor:  fileStor,
		transfers: transfers,
		upgrader:  websocket.Upgrader{},
	}
}

func (c *FilesController) IndexFilesForAccount(ctx echo.Context) error {
	files, err := c.fileStor.ListFilesForAccount(ctx.Param("account"))
	if err != nil {
		return err
	}

	if files == nil {
		files = []model.File{}
	}

	return ctx.JSON(http.StatusOK, files)
}

func (c *FilesController) file(ctx echo.Context) (*model.File, error) {
	id, err := idParam(ctx)
	if err != nil {
		return nil, err
	}

	f, err := c.fileStor.GetFileByID(id)
	if err != nil {
		return nil, storError(err)
	}

	return f, nil
}

func (c *FilesController) RequestDownload(ctx echo.Context) error {
	f, err := c.file(ctx)
	if err != nil {
		return err
	}

	handle, ok := c.transfers.RequestDownload(f.AccountName, f)
	if !ok {
		return notAccepted("download")
	}

	return ctx.JSON(http.StatusAccepted, HandleResponse{Handle: handle})
}

func (c *FilesController) CancelDownload(ctx echo.Context) error {
	f, err := c.file(ctx)
	if err != nil {
		return err
	}

	c.transfers.CancelDownload(f)
	return ctx.NoContent(http.StatusNoContent)
}

// ObserveFile streams the status of the current job for a file over a
// websocket until the client goes away. The direction query parameter picks
// uploads or downloads and defaults to download.
func (c *FilesController) ObserveFile(ctx echo.Context) error {
	f, err := c.file(ctx)
	if err != nil {
		return err
	}

	direction := transfer.DirectionDownload
	if d := ctx.QueryParam("direction"); d != "" {
		var ok bool
		if direction, ok = transfer.ParseDirection(d); !ok {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid direction "+d)
		}
	}

	ws, err := c.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return err
	}

	defer ws.Close()

	observeCtx, cancel := c.closeOnDisconnect(ctx, ws)
	defer cancel()

	for status := range c.transfers.ObserveCurrentJob(observeCtx, f.AccountName, f.ID, direction) {
		if err := writeJSON(ws, status); err != nil {
			clog.UsingCtx(clog.APICtx).Debugf("Observer for file %d went away: %s", f.ID, err)
			return nil
		}
	}

	return nil
}

func writeJSON(ws *websocket.Conn, v any) error {
	_ = ws.SetWriteDeadline(time.Now().Add(30 * time.Second))
	return ws.WriteJSON(v)
}
