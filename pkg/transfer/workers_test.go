package transfer

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/storagepath"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/syncdb/synctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerTestCase struct {
	runner   *jobrunner.LocalRunner
	stors    *stor.Stors
	resolver *storagepath.Resolver
	remote   *fakeRemote
	o        *Orchestrator
}

func newWorkerTestCase(t *testing.T, network NetworkPolicy) *workerTestCase {
	_, stors := synctest.NewTestStors(t)
	tc := &workerTestCase{
		runner:   jobrunner.NewLocalRunner(jobrunner.WithMaxAttempts(3), jobrunner.WithBackoff(time.Millisecond, time.Millisecond)),
		stors:    stors,
		resolver: storagepath.NewResolver(t.TempDir()),
		remote:   newFakeRemote(),
	}

	tc.o = NewOrchestrator(tc.runner, stors)
	RegisterWorkers(tc.runner, tc.o, tc.resolver, tc.remote, network)
	t.Cleanup(func() { _ = tc.runner.Close() })

	return tc
}

// waitForJob waits until the runner is done and the listener has run.
func (tc *workerTestCase) waitForJob(t *testing.T, handle string) jobrunner.JobStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := tc.runner.Wait(ctx, handle)
	require.NoError(t, err)

	return status
}

func TestDownloadWorker(t *testing.T) {
	tc := newWorkerTestCase(t, nil)
	tc.remote.files["/docs/a.txt"] = []byte("remote content")
	tc.remote.failures = []error{io.ErrUnexpectedEOF}
	file := synctest.AddFile(t, tc.stors, "alice@host", "/docs/a.txt", int64(len("remote content")))

	handle, ok := tc.o.RequestDownload("alice@host", file)
	require.True(t, ok)

	status := tc.waitForJob(t, handle)
	assert.Equal(t, jobrunner.JobStateSucceeded, status.State)
	assert.Equal(t, 2, status.RunAttemptCount, "interrupted download is retried")
	assert.Equal(t, 100, status.Progress)

	dest := tc.resolver.DefaultSavePathFor("alice@host", "/docs/a.txt", "")
	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(content))

	require.Eventually(t, func() bool {
		fileSync, err := tc.stors.FileSyncStor.GetFileSyncByFileID(file.ID)
		return err == nil && !fileSync.IsSynchronizing
	}, 2*time.Second, 10*time.Millisecond)

	got, err := tc.stors.FileStor.GetFileByID(file.ID)
	require.NoError(t, err)
	assert.Equal(t, dest, got.LocalPath)

	entries, err := os.ReadDir(tc.resolver.TemporalPath("alice@host", ""))
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary file is gone")
}

func TestDownloadWorkerMissingRemote(t *testing.T) {
	tc := newWorkerTestCase(t, nil)
	file := synctest.AddFile(t, tc.stors, "alice", "/missing.txt", 4)

	handle, ok := tc.o.RequestDownload("alice", file)
	require.True(t, ok)

	status := tc.waitForJob(t, handle)
	assert.Equal(t, jobrunner.JobStateFailed, status.State)
	assert.Equal(t, 1, status.RunAttemptCount)
	assert.NoFileExists(t, tc.resolver.DefaultSavePathFor("alice", "/missing.txt", ""))
}

func waitForTransfer(t *testing.T, stors *stor.Stors, remotePath, account string) *model.Transfer {
	t.Helper()

	var transfer *model.Transfer
	require.Eventually(t, func() bool {
		var err error
		transfer, err = stors.TransferStor.GetLastTransferFor(remotePath, account)
		return err == nil && transfer.IsFinished()
	}, 5*time.Second, 10*time.Millisecond)

	return transfer
}

func TestUploadWorkerMovesLocalCopy(t *testing.T) {
	tc := newWorkerTestCase(t, nil)
	local := writeLocalFile(t, "upload me")

	_, ok := tc.o.RequestUpload(UploadRequest{
		AccountName: "alice",
		LocalPath:   local,
		RemotePath:  "/docs/up.txt",
		Behaviour:   model.LocalBehaviourMove,
	})
	require.True(t, ok)

	transfer := waitForTransfer(t, tc.stors, "/docs/up.txt", "alice")
	assert.Equal(t, model.TransferResultUploaded, *transfer.LastResult)

	data, ok := tc.remote.get("/docs/up.txt")
	require.True(t, ok)
	assert.Equal(t, "upload me", string(data))

	dest := tc.resolver.DefaultSavePathFor("alice", "/docs/up.txt", "")
	assert.Equal(t, dest, transfer.LocalPath)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, local)

	file, err := tc.stors.FileStor.GetFileByRemotePath("alice", "/docs/up.txt", "")
	require.NoError(t, err)
	assert.Equal(t, dest, file.LocalPath)
}

func TestUploadWorkerKeepsCatalogEntry(t *testing.T) {
	tc := newWorkerTestCase(t, nil)
	local := writeLocalFile(t, "offline copy")

	file := synctest.AddFile(t, tc.stors, "alice", "/docs/a.txt", 3)
	require.NoError(t, tc.stors.FileStor.UpdateFileLocalPath(file.ID, local))
	require.NoError(t, tc.stors.FileStor.SetAvailableOffline(file.ID, true))

	_, ok := tc.o.RequestUpload(UploadRequest{
		AccountName: "alice",
		LocalPath:   local,
		RemotePath:  "/docs/a.txt",
		Behaviour:   model.LocalBehaviourKeep,
		FileID:      file.ID,
	})
	require.True(t, ok)

	transfer := waitForTransfer(t, tc.stors, "/docs/a.txt", "alice")
	assert.Equal(t, model.TransferResultUploaded, *transfer.LastResult)

	got, err := tc.stors.FileStor.GetFileByID(file.ID)
	require.NoError(t, err)
	assert.Equal(t, local, got.LocalPath)
	assert.True(t, got.AvailableOffline)
	assert.Equal(t, "application/octet-stream", got.MimeType)
	assert.Equal(t, int64(len("offline copy")), got.Size)
}

func TestUploadWorkerConflict(t *testing.T) {
	tc := newWorkerTestCase(t, nil)
	tc.remote.files["/exists.txt"] = []byte("theirs")
	local := writeLocalFile(t, "mine")

	_, ok := tc.o.RequestUpload(UploadRequest{AccountName: "alice", LocalPath: local, RemotePath: "/exists.txt"})
	require.True(t, ok)

	transfer := waitForTransfer(t, tc.stors, "/exists.txt", "alice")
	assert.Equal(t, model.TransferResultConflictError, *transfer.LastResult)
	data, _ := tc.remote.get("/exists.txt")
	assert.Equal(t, "theirs", string(data))
	assert.FileExists(t, local, "KEEP leaves the local file alone")

	_, ok = tc.o.RequestUpload(UploadRequest{AccountName: "alice", LocalPath: local, RemotePath: "/exists.txt", ForceOverwrite: true})
	require.True(t, ok)
	require.Eventually(t, func() bool {
		data, _ := tc.remote.get("/exists.txt")
		return string(data) == "mine"
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUploadWorkerFailures(t *testing.T) {
	tests := []struct {
		name     string
		account  string
		network  NetworkPolicy
		failures []error
		wifiOnly bool
		expected model.TransferResult
	}{
		{name: "quota", account: "alice", failures: []error{NewStatusError(http.StatusInsufficientStorage, "")}, expected: model.TransferResultQuotaExceeded},
		{name: "service down on every attempt", account: "alice", failures: []error{
			NewStatusError(http.StatusBadGateway, ""), NewStatusError(http.StatusBadGateway, ""), NewStatusError(http.StatusBadGateway, ""),
		}, expected: model.TransferResultServiceUnavailable},
		{name: "no credentials", account: "nobody", expected: model.TransferResultCredentialError},
		{name: "metered network", account: "alice", network: meteredNetwork{}, wifiOnly: true, expected: model.TransferResultDelayedForWifi},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			tc := newWorkerTestCase(t, test.network)
			tc.remote.failures = test.failures

			_, ok := tc.o.RequestUpload(UploadRequest{
				AccountName: test.account,
				LocalPath:   writeLocalFile(t, "data"),
				RemotePath:  "/f.txt",
				WifiOnly:    test.wifiOnly,
			})
			require.True(t, ok)

			transfer := waitForTransfer(t, tc.stors, "/f.txt", test.account)
			assert.Equal(t, test.expected, *transfer.LastResult)
		})
	}
}

func TestUploadWorkerMissingLocalFile(t *testing.T) {
	tc := newWorkerTestCase(t, nil)
	missing := filepath.Join(t.TempDir(), "gone.txt")

	_, ok := tc.o.RequestUpload(UploadRequest{AccountName: "alice", LocalPath: missing, RemotePath: "/gone.txt"})
	require.True(t, ok)

	transfer := waitForTransfer(t, tc.stors, "/gone.txt", "alice")
	assert.Equal(t, model.TransferResultFileNotFound, *transfer.LastResult)
}

func TestObserveCurrentJob(t *testing.T) {
	tc := newWorkerTestCase(t, nil)
	tc.o.pollInterval = 5 * time.Millisecond
	tc.remote.files["/a.txt"] = []byte("abc")
	file := synctest.AddFile(t, tc.stors, "alice", "/a.txt", 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	statuses := tc.o.ObserveCurrentJob(ctx, "alice", file.ID, DirectionDownload)

	handle, ok := tc.o.RequestDownload("alice", file)
	require.True(t, ok)

	for status := range statuses {
		assert.Equal(t, handle, status.ID)
		if status.IsFinished() {
			assert.Equal(t, jobrunner.JobStateSucceeded, status.State)
			cancel()
		}
	}
}
