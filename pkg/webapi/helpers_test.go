package webapi

import (
	"bytes"
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/transfer"
)

// setupEchoContext creates a test echo context for a JSON request with the
// given path parameters.
func setupEchoContext(t *testing.T, method, target string, body []byte, params map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var names, values []string
	for name, value := range params {
		names = append(names, name)
		values = append(values, value)
	}

	if len(names) != 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}

	return c, rec
}

type fakeTransfers struct {
	mu        sync.Mutex
	accept    bool
	uploads   []transfer.UploadRequest
	downloads []int
	cancelled []int
	retried   []int
	cancelErr error
	statuses  []jobrunner.JobStatus
}

func (f *fakeTransfers) RequestDownload(accountName string, file *model.File) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.accept {
		return "", false
	}

	f.downloads = append(f.downloads, file.ID)
	return "download-job", true
}

func (f *fakeTransfers) RequestUpload(req transfer.UploadRequest) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.accept {
		return "", false
	}

	f.uploads = append(f.uploads, req)
	return "upload-job", true
}

func (f *fakeTransfers) CancelDownload(file *model.File) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, file.ID)
}

func (f *fakeTransfers) CancelTransfer(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancelErr != nil {
		return f.cancelErr
	}

	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeTransfers) RetryTransfer(id int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.accept {
		return "", false
	}

	f.retried = append(f.retried, id)
	return "retry-job", true
}

func (f *fakeTransfers) ObserveCurrentJob(ctx context.Context, accountName string, fileID int, d transfer.Direction) <-chan jobrunner.JobStatus {
	out := make(chan jobrunner.JobStatus)

	go func() {
		defer close(out)
		for _, status := range f.statuses {
			select {
			case out <- status:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()

	return out
}
