package transfer

import (
	"errors"

	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
)

// The Orchestrator is the runner's Listener: job lifecycle events are the
// only way transfer records and file sync handles change after submission.
var _ jobrunner.Listener = (*Orchestrator)(nil)

func (o *Orchestrator) JobStarted(status jobrunner.JobStatus) {
	transferID, ok := intParam(status.Spec, paramTransferID)
	if !ok {
		return
	}

	if err := o.stors.TransferStor.SetTransferInProgress(transferID); err != nil {
		o.logRecordError(transferID, "start", err)
	}
}

func (o *Orchestrator) JobRetrying(status jobrunner.JobStatus, err error) {
	transferID, ok := intParam(status.Spec, paramTransferID)
	if !ok {
		return
	}

	if err := o.stors.TransferStor.SetTransferEnqueued(transferID); err != nil {
		o.logRecordError(transferID, "requeue", err)
	}
}

func (o *Orchestrator) JobFinished(status jobrunner.JobStatus, err error) {
	result := FromError(err)
	fileID, hasFile := intParam(status.Spec, paramFileID)

	switch status.Spec.Kind {
	case KindDownload:
		if hasFile {
			// The request that submitted the job records its handle under this
			// lock, wait for it so the handle is not set after being cleared.
			key := lockKey(status.Spec.Param(paramAccount), fileTag(fileID), DirectionDownload)
			_ = o.locker.WithLock(key, func() error {
				if err := o.stors.FileSyncStor.ClearDownloadJobHandle(fileID, status.ID); err != nil {
					o.log.Errorf("Unable to clear download job %s of file %d: %s", status.ID, fileID, err)
				}
				return nil
			})
		}

		o.log.Infof("Download job %s for file %d finished: %s", status.ID, fileID, status.State)

	case KindUpload:
		if transferID, ok := intParam(status.Spec, paramTransferID); ok {
			if err := o.stors.TransferStor.FinishTransfer(transferID, result, o.now().UnixMilli()); err != nil {
				o.logRecordError(transferID, "finish", err)
			}
		}

		if hasFile {
			key := uploadLockKey(status.Spec.Param(paramAccount), status.Spec.Param(paramRemotePath), status.Spec.Param(paramSpaceID))
			_ = o.locker.WithLock(key, func() error {
				if err := o.stors.FileSyncStor.ClearUploadJobHandle(fileID, status.ID); err != nil {
					o.log.Errorf("Unable to clear upload job %s of file %d: %s", status.ID, fileID, err)
				}
				return nil
			})
		}

		o.log.Infof("Upload job %s finished: %s", status.ID, result)
	}
}

func (o *Orchestrator) logRecordError(transferID int, op string, err error) {
	switch {
	case errors.Is(err, stor.ErrAlreadyFinished):
		o.log.Debugf("Transfer %d already finished, ignoring %s", transferID, op)
	case stor.IsRecordNotFound(err):
		o.log.Debugf("Transfer %d no longer exists, ignoring %s", transferID, op)
	default:
		o.log.Errorf("Unable to %s transfer %d: %s", op, transferID, err)
	}
}
