package stor_test

import (
	"testing"

	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/syncdb/synctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransfer(t *testing.T, s stor.TransferStor, account, remotePath string) *model.Transfer {
	t.Helper()

	tr, err := model.NewTransfer(account, "/local"+remotePath, remotePath, 42)
	require.NoError(t, err)

	tr, err = s.SaveTransfer(tr)
	require.NoError(t, err)
	require.NotZero(t, tr.ID)

	return tr
}

func requireTerminalInvariant(t *testing.T, tr *model.Transfer) {
	t.Helper()
	finished := tr.Status == model.TransferStatusFinished
	require.Equal(t, finished, tr.TransferEndTimestamp != nil, "end timestamp for %s", tr.Status)
	require.Equal(t, finished, tr.LastResult != nil, "last result for %s", tr.Status)
}

func TestTransferLifecycle(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	s := stors.TransferStor

	tr := newTransfer(t, s, "alice", "/docs/a.txt")
	requireTerminalInvariant(t, tr)

	require.NoError(t, s.SetTransferInProgress(tr.ID))
	got, err := s.GetTransferByID(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferStatusInProgress, got.Status)
	requireTerminalInvariant(t, got)

	// transient failure, job resubmitted
	require.NoError(t, s.SetTransferEnqueued(tr.ID))
	got, _ = s.GetTransferByID(tr.ID)
	assert.Equal(t, model.TransferStatusEnqueued, got.Status)

	require.NoError(t, s.SetTransferInProgress(tr.ID))
	require.NoError(t, s.FinishTransfer(tr.ID, model.TransferResultUploaded, 1000))

	got, _ = s.GetTransferByID(tr.ID)
	assert.Equal(t, model.TransferStatusFinished, got.Status)
	requireTerminalInvariant(t, got)
	assert.Equal(t, model.TransferResultUploaded, *got.LastResult)
	assert.Equal(t, int64(1000), *got.TransferEndTimestamp)

	// finished is terminal
	require.ErrorIs(t, s.SetTransferEnqueued(tr.ID), stor.ErrInvalidTransition)
	require.ErrorIs(t, s.SetTransferInProgress(tr.ID), stor.ErrInvalidTransition)
}

func TestFinishTransferTwiceIsRejected(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	s := stors.TransferStor

	tr := newTransfer(t, s, "alice", "/a.txt")
	require.NoError(t, s.FinishTransfer(tr.ID, model.TransferResultCancelled, 10))
	require.ErrorIs(t, s.FinishTransfer(tr.ID, model.TransferResultUploaded, 20), stor.ErrAlreadyFinished)

	got, err := s.GetTransferByID(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransferResultCancelled, *got.LastResult)
	assert.Equal(t, int64(10), *got.TransferEndTimestamp)

	require.True(t, stor.IsRecordNotFound(s.FinishTransfer(9999, model.TransferResultUploaded, 1)))
}

func TestSaveTransferRejectsBrokenTerminalFields(t *testing.T) {
	_, stors := synctest.NewTestStors(t)

	tr, err := model.NewTransfer("alice", "/l/a", "/a", 1)
	require.NoError(t, err)

	result := model.TransferResultUploaded
	tr.LastResult = &result
	_, err = stors.TransferStor.SaveTransfer(tr)
	require.ErrorIs(t, err, model.ErrInvalidTransfer)

	tr.LastResult = nil
	tr.Status = model.TransferStatusFinished
	_, err = stors.TransferStor.SaveTransfer(tr)
	require.ErrorIs(t, err, model.ErrInvalidTransfer)
}

func TestTransferQueriesAndBulkDeletes(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	s := stors.TransferStor

	pending := newTransfer(t, s, "alice", "/pending.txt")
	running := newTransfer(t, s, "alice", "/running.txt")
	ok := newTransfer(t, s, "alice", "/ok.txt")
	failed := newTransfer(t, s, "bob", "/failed.txt")

	require.NoError(t, s.SetTransferInProgress(running.ID))
	require.NoError(t, s.FinishTransfer(ok.ID, model.TransferResultUploaded, 100))
	require.NoError(t, s.FinishTransfer(failed.ID, model.TransferResultQuotaExceeded, 200))

	current, err := s.GetCurrentAndPendingTransfers()
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, pending.ID, current[0].ID)
	assert.Equal(t, running.ID, current[1].ID)

	failedTransfers, err := s.GetFailedTransfers()
	require.NoError(t, err)
	require.Len(t, failedTransfers, 1)
	assert.Equal(t, failed.ID, failedTransfers[0].ID)

	finished, err := s.GetFinishedTransfers()
	require.NoError(t, err)
	require.Len(t, finished, 2)

	require.NoError(t, s.ClearFailedTransfers())
	all, _ := s.GetAllTransfers()
	require.Len(t, all, 3)

	require.NoError(t, s.ClearSuccessfulTransfers())
	all, _ = s.GetAllTransfers()
	require.Len(t, all, 2)

	require.NoError(t, s.DeleteTransfersForAccount("alice"))
	all, _ = s.GetAllTransfers()
	require.Len(t, all, 0)
}

func TestGetLastTransferFor(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	s := stors.TransferStor

	first := newTransfer(t, s, "alice", "/photo.jpg")
	second := newTransfer(t, s, "alice", "/photo.jpg")
	third := newTransfer(t, s, "alice", "/photo.jpg")
	_ = newTransfer(t, s, "bob", "/photo.jpg")

	require.NoError(t, s.FinishTransfer(first.ID, model.TransferResultUploaded, 500))
	require.NoError(t, s.FinishTransfer(second.ID, model.TransferResultNetworkConnection, 300))
	require.NoError(t, s.FinishTransfer(third.ID, model.TransferResultFileError, 500))

	last, err := s.GetLastTransferFor("/photo.jpg", "alice")
	require.NoError(t, err)
	assert.Equal(t, third.ID, last.ID, "tie on end timestamp goes to higher id")

	_, err = s.GetLastTransferFor("/nope.jpg", "alice")
	require.True(t, stor.IsRecordNotFound(err))
}

func TestTransferPathUpdates(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	s := stors.TransferStor

	tr, err := model.NewTransfer("alice", "/old/root/alice/a.txt", "/a.txt", 1)
	require.NoError(t, err)
	tr, err = s.SaveTransfer(tr)
	require.NoError(t, err)

	outside, err := model.NewTransfer("alice", "/other/a.txt", "/b.txt", 1)
	require.NoError(t, err)
	outside, err = s.SaveTransfer(outside)
	require.NoError(t, err)

	require.NoError(t, s.UpdateTransfersStorageDirectory("/old/root", "/new/root"))

	got, _ := s.GetTransferByID(tr.ID)
	assert.Equal(t, "/new/root/alice/a.txt", got.LocalPath)
	got, _ = s.GetTransferByID(outside.ID)
	assert.Equal(t, "/other/a.txt", got.LocalPath)

	require.NoError(t, s.UpdateTransferSourcePath(tr.ID, "/camera/b.txt"))
	require.NoError(t, s.SetTransferID(tr.ID, "job-1"))
	got, err = s.GetTransferByTransferID("job-1")
	require.NoError(t, err)
	assert.Equal(t, "/camera/b.txt", got.LocalPath)

	require.NoError(t, s.FinishTransfer(tr.ID, model.TransferResultUploaded, 1))
	require.ErrorIs(t, s.UpdateTransferSourcePath(tr.ID, "/x"), stor.ErrInvalidTransition)
	require.NoError(t, s.UpdateTransferLocalPath(tr.ID, "/new/root/alice/a.txt"))
	require.True(t, stor.IsRecordNotFound(s.UpdateTransferLocalPath(4242, "/x")))
}
