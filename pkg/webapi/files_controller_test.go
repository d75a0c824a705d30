package webapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/syncdb/synctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestAndCancelDownload(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	f := synctest.AddFile(t, stors, "alice", "/data/a.txt", 10)
	transfers := &fakeTransfers{accept: true}
	c := NewFilesController(stors.FileStor, transfers)
	params := map[string]string{"id": strconv.Itoa(f.ID)}

	ctx, rec := setupEchoContext(t, http.MethodPost, "/", nil, params)
	require.NoError(t, c.RequestDownload(ctx))
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"handle":"download-job"}`, rec.Body.String())
	assert.Equal(t, []int{f.ID}, transfers.downloads)

	ctx, rec = setupEchoContext(t, http.MethodPost, "/", nil, params)
	require.NoError(t, c.CancelDownload(ctx))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int{f.ID}, transfers.cancelled)

	transfers.accept = false
	ctx, _ = setupEchoContext(t, http.MethodPost, "/", nil, params)
	assert.Equal(t, http.StatusConflict, httpCode(t, c.RequestDownload(ctx)))

	ctx, _ = setupEchoContext(t, http.MethodPost, "/", nil, map[string]string{"id": "4242"})
	assert.Equal(t, http.StatusNotFound, httpCode(t, c.RequestDownload(ctx)))
}

func TestIndexFilesForAccount(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	synctest.AddFile(t, stors, "alice", "/a.txt", 1)
	synctest.AddFile(t, stors, "bob", "/b.txt", 1)
	c := NewFilesController(stors.FileStor, &fakeTransfers{})

	ctx, rec := setupEchoContext(t, http.MethodGet, "/", nil, map[string]string{"account": "alice"})
	require.NoError(t, c.IndexFilesForAccount(ctx))
	assert.Contains(t, rec.Body.String(), `"remote_path":"/a.txt"`)
	assert.NotContains(t, rec.Body.String(), "/b.txt")
}

func TestObserveFileOverWebsocket(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	f := synctest.AddFile(t, stors, "alice", "/a.txt", 1)
	transfers := &fakeTransfers{
		statuses: []jobrunner.JobStatus{
			{ID: "job-1", State: jobrunner.JobStateRunning, Progress: 50},
			{ID: "job-1", State: jobrunner.JobStateSucceeded, Progress: 100},
		},
	}

	c := NewFilesController(stors.FileStor, transfers)
	e := echo.New()
	e.GET("/api/files/:id/observe", c.ObserveFile)
	server := httptest.NewServer(e)
	defer server.Close()

	url := fmt.Sprintf("ws%s/api/files/%d/observe?direction=upload", strings.TrimPrefix(server.URL, "http"), f.ID)
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	var got []map[string]any
	for i := 0; i < 2; i++ {
		var status map[string]any
		require.NoError(t, ws.ReadJSON(&status))
		got = append(got, status)
	}

	assert.Equal(t, "job-1", got[0]["id"])
	assert.EqualValues(t, 50, got[0]["progress"])
	assert.EqualValues(t, 100, got[1]["progress"])

	_, resp, err := websocket.DefaultDialer.Dial(strings.Replace(url, "upload", "sideways", 1), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
