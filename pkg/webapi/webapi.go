// Package webapi is the local control surface of mcsyncd.
package webapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/transfer"
)

// TransferService is the part of *transfer.Orchestrator the API drives.
type TransferService interface {
	RequestDownload(accountName string, file *model.File) (string, bool)
	RequestUpload(req transfer.UploadRequest) (string, bool)
	CancelDownload(file *model.File)
	CancelTransfer(id int) error
	RetryTransfer(id int) (string, bool)
	ObserveCurrentJob(ctx context.Context, accountName string, fileID int, d transfer.Direction) <-chan jobrunner.JobStatus
}

type HandleResponse struct {
	Handle string `json:"handle"`
}

func idParam(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id "+ctx.Param("id"))
	}

	return id, nil
}

// storError turns a store error into an HTTP error.
func storError(err error) error {
	switch {
	case err == nil:
		return nil
	case stor.IsRecordNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, stor.ErrAlreadyFinished), errors.Is(err, stor.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return err
	}
}

// notAccepted is returned when the orchestrator declines a request. The
// caller should try again later.
func notAccepted(what string) error {
	return echo.NewHTTPError(http.StatusConflict, what+" not accepted, try again later")
}
