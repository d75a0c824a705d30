// Package transfer turns upload and download requests into runner jobs. It
// makes sure a file never has more than one active job per direction,
// replaces jobs that keep failing, and keeps the transfer records and file
// sync metadata in step with what the runner reports.
package transfer

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/lock"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
)

const DefaultRetryCeiling = 3

type OrchestratorOptionFN func(*Orchestrator)

type Orchestrator struct {
	runner       jobrunner.Runner
	stors        *stor.Stors
	locker       *lock.KeyLocker
	lease        *lock.Lease
	retryCeiling int
	pollInterval time.Duration
	now          func() time.Time
	log          *log.Entry
}

func NewOrchestrator(runner jobrunner.Runner, stors *stor.Stors, optFNs ...OrchestratorOptionFN) *Orchestrator {
	o := &Orchestrator{
		runner:       runner,
		stors:        stors,
		locker:       lock.NewKeyLocker(),
		lease:        lock.NewLease(),
		retryCeiling: DefaultRetryCeiling,
		pollInterval: time.Second,
		now:          time.Now,
		log:          clog.UsingCtx(clog.TransfersCtx),
	}

	for _, optFN := range optFNs {
		optFN(o)
	}

	return o
}

// WithLease shares the exclusive-mode lease with the storage migrator. No
// transfer is accepted while it is held.
func WithLease(lease *lock.Lease) OrchestratorOptionFN {
	return func(o *Orchestrator) {
		o.lease = lease
	}
}

// WithRetryCeiling sets how many attempts a job may use before the next
// request for the same file replaces it.
func WithRetryCeiling(ceiling int) OrchestratorOptionFN {
	return func(o *Orchestrator) {
		if ceiling > 0 {
			o.retryCeiling = ceiling
		}
	}
}

func WithPollInterval(d time.Duration) OrchestratorOptionFN {
	return func(o *Orchestrator) {
		o.pollInterval = d
	}
}

func WithClock(now func() time.Time) OrchestratorOptionFN {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func (o *Orchestrator) Lease() *lock.Lease {
	return o.lease
}

// RequestDownload submits a download job for file. It returns false when the
// file has no catalog identity, when a download for it is already active,
// while the storage is being migrated, or when the runner refuses the job.
// A false return means try again later.
func (o *Orchestrator) RequestDownload(accountName string, file *model.File) (string, bool) {
	if file == nil || !file.IsPersisted() {
		o.log.Debugf("Download request for %s rejected, file is not in the catalog", accountName)
		return "", false
	}

	release, ok := o.admit()
	if !ok {
		return "", false
	}
	defer release()

	tags := []string{fileTag(file.ID), accountTag(accountName), directionTag(DirectionDownload)}
	spec := jobrunner.JobSpec{
		Kind: KindDownload,
		Params: map[string]string{
			paramAccount: accountName,
			paramFileID:  strconv.Itoa(file.ID),
		},
	}

	var handle string
	_ = o.locker.WithLock(lockKey(accountName, fileTag(file.ID), DirectionDownload), func() error {
		if o.hasActiveJob(tags) {
			return nil
		}

		id, err := o.runner.Submit(spec, tags...)
		if err != nil {
			o.log.Warnf("Unable to submit download of %s for %s: %s", file.RemotePath, accountName, err)
			return nil
		}

		if err := o.stors.FileSyncStor.SetDownloadJobHandle(file.ID, id); err != nil {
			o.log.Errorf("Unable to record download job %s for file %d: %s", id, file.ID, err)
		}

		handle = id
		return nil
	})

	return handle, handle != ""
}

type UploadRequest struct {
	AccountName    string
	LocalPath      string
	RemotePath     string
	SpaceID        string
	Behaviour      model.LocalBehaviour
	ForceOverwrite bool
	WifiOnly       bool
	CreatedBy      model.CreatedBy

	// FolderBackupName names the folder backup configuration an automatic
	// upload comes from. Its behaviour, network policy and space apply.
	FolderBackupName string

	// FileID is the catalog identity of the file, when it already has one.
	FileID int
}

// RequestUpload records an ENQUEUED transfer and submits the job that
// carries it out. Uploads are deduplicated by account, space and remote
// path. The returned handle is also stored as the transfer's TransferID.
func (o *Orchestrator) RequestUpload(req UploadRequest) (string, bool) {
	release, ok := o.admit()
	if !ok {
		return "", false
	}
	defer release()

	if req.CreatedBy == model.CreatedByFolderBackup {
		if !o.applyFolderBackup(&req) {
			return "", false
		}
	}

	var size int64
	if fi, err := os.Stat(req.LocalPath); err == nil {
		size = fi.Size()
	}

	transfer, err := model.NewTransfer(req.AccountName, req.LocalPath, req.RemotePath, size)
	if err != nil {
		o.log.Warnf("Upload request rejected: %s", err)
		return "", false
	}

	transfer.LocalBehaviour = req.Behaviour
	transfer.ForceOverwrite = req.ForceOverwrite
	transfer.CreatedBy = req.CreatedBy
	transfer.SpaceID = model.StringPtr(req.SpaceID)

	tags := uploadTags(req.AccountName, req.RemotePath, req.SpaceID)
	if req.FileID != 0 {
		tags = append(tags, fileTag(req.FileID))
	}

	var handle string
	_ = o.locker.WithLock(uploadLockKey(req.AccountName, req.RemotePath, req.SpaceID), func() error {
		if o.hasActiveJob(tags[:3]) {
			return nil
		}

		if transfer, err = o.stors.TransferStor.SaveTransfer(transfer); err != nil {
			o.log.Errorf("Unable to save upload of %s: %s", req.LocalPath, err)
			return nil
		}

		handle = o.submitUpload(transfer, req.WifiOnly, req.FileID, tags)
		return nil
	})

	return handle, handle != ""
}

// submitUpload submits the job for a saved transfer. On failure the record
// is removed again so no ENQUEUED transfer is left without a job.
func (o *Orchestrator) submitUpload(transfer *model.Transfer, wifiOnly bool, fileID int, tags []string) string {
	spec := jobrunner.JobSpec{
		Kind: KindUpload,
		Params: map[string]string{
			paramAccount:    transfer.AccountName,
			paramTransferID: strconv.Itoa(transfer.ID),
			paramRemotePath: transfer.RemotePath,
			paramWifiOnly:   strconv.FormatBool(wifiOnly),
		},
	}

	if spaceID := model.StringValue(transfer.SpaceID); spaceID != "" {
		spec.Params[paramSpaceID] = spaceID
	}

	if fileID != 0 {
		spec.Params[paramFileID] = strconv.Itoa(fileID)
	}

	tags = append(tags, transferTag(transfer.ID))
	id, err := o.runner.Submit(spec, tags...)
	if err != nil {
		o.log.Warnf("Unable to submit upload of %s for %s: %s", transfer.LocalPath, transfer.AccountName, err)
		if err := o.stors.TransferStor.DeleteTransferByID(transfer.ID); err != nil {
			o.log.Errorf("Unable to remove unsubmitted transfer %d: %s", transfer.ID, err)
		}
		return ""
	}

	if err := o.stors.TransferStor.SetTransferID(transfer.ID, id); err != nil {
		o.log.Errorf("Unable to link transfer %d to job %s: %s", transfer.ID, id, err)
	}

	if fileID != 0 {
		if err := o.stors.FileSyncStor.SetUploadJobHandle(fileID, id); err != nil {
			o.log.Errorf("Unable to record upload job %s for file %d: %s", id, fileID, err)
		}
	}

	return id
}

func (o *Orchestrator) applyFolderBackup(req *UploadRequest) bool {
	backup, err := o.stors.FolderBackupStor.GetFolderBackup(req.AccountName, req.FolderBackupName)
	if err != nil {
		o.log.Warnf("Automatic upload of %s rejected, no folder backup %q for %s: %s",
			req.LocalPath, req.FolderBackupName, req.AccountName, err)
		return false
	}

	req.Behaviour = backup.Behaviour
	req.WifiOnly = backup.WifiOnly
	if req.SpaceID == "" {
		req.SpaceID = backup.SpaceID
	}

	return true
}

// hasActiveJob reports whether a non-finished job carries all of tags. Jobs
// that already used more attempts than the retry ceiling are cancelled and
// do not count, so the caller submits a fresh one.
func (o *Orchestrator) hasActiveJob(tags []string) bool {
	active := false
	for _, status := range o.runner.QueryByTags(tags...) {
		if status.IsFinished() {
			continue
		}

		if status.RunAttemptCount > o.retryCeiling {
			o.log.Infof("Job %s used %d attempts, replacing it", status.ID, status.RunAttemptCount)
			if err := o.runner.Cancel(status.ID); err != nil {
				o.log.Warnf("Unable to cancel job %s: %s", status.ID, err)
			}
			continue
		}

		active = true
	}

	return active
}

// admit takes a shared hold on the storage lease for the duration of one
// request, so a migration cannot start between the check and the submit.
// It fails while the storage is being migrated.
func (o *Orchestrator) admit() (func(), bool) {
	if release, ok := o.lease.Share(); ok {
		return release, true
	}

	holder, since := o.lease.Holder()
	o.log.Infof("Transfer request rejected, storage held by %s since %s", holder, since.Format(time.RFC3339))
	return nil, false
}

// CancelDownload cancels every unfinished download job for file. Calling it
// again, or for a file without jobs, does nothing. The jobs stop some time
// after it returns.
func (o *Orchestrator) CancelDownload(file *model.File) {
	if file == nil || !file.IsPersisted() {
		return
	}

	n := o.runner.CancelByTags(fileTag(file.ID), directionTag(DirectionDownload))
	o.log.Debugf("Cancelled %d download jobs for file %d", n, file.ID)
}

func (o *Orchestrator) CancelUpload(accountName, remotePath, spaceID string) {
	n := o.runner.CancelByTags(uploadTags(accountName, remotePath, spaceID)...)
	o.log.Debugf("Cancelled %d upload jobs for %s:%s", n, accountName, remotePath)
}

// CancelTransfer stops the job behind a transfer record. A record whose job
// is gone is finished as CANCELLED straight away.
func (o *Orchestrator) CancelTransfer(id int) error {
	transfer, err := o.stors.TransferStor.GetTransferByID(id)
	if err != nil {
		return err
	}

	if transfer.IsFinished() {
		return nil
	}

	if o.runner.CancelByTags(transferTag(id)) == 0 {
		err := o.stors.TransferStor.FinishTransfer(id, model.TransferResultCancelled, o.now().UnixMilli())
		if err != nil && !errors.Is(err, stor.ErrAlreadyFinished) {
			return err
		}
	}

	return nil
}

// CancelTransfersForAccount stops all jobs of a removed account and drops its
// transfer records.
func (o *Orchestrator) CancelTransfersForAccount(accountName string) error {
	n := o.runner.CancelByTags(accountTag(accountName))
	o.log.Infof("Cancelled %d jobs for account %s", n, accountName)

	return o.stors.TransferStor.DeleteTransfersForAccount(accountName)
}

// RetryTransfer submits a failed upload again as a new transfer and removes
// the failed record.
func (o *Orchestrator) RetryTransfer(id int) (string, bool) {
	transfer, err := o.stors.TransferStor.GetTransferByID(id)
	if err != nil {
		o.log.Warnf("Unable to retry transfer %d: %s", id, err)
		return "", false
	}

	if !transfer.IsFailed() {
		o.log.Infof("Transfer %d is %s, nothing to retry", id, transfer.Status)
		return "", false
	}

	handle, ok := o.RequestUpload(UploadRequest{
		AccountName:    transfer.AccountName,
		LocalPath:      transfer.LocalPath,
		RemotePath:     transfer.RemotePath,
		SpaceID:        model.StringValue(transfer.SpaceID),
		Behaviour:      transfer.LocalBehaviour,
		ForceOverwrite: transfer.ForceOverwrite,
		CreatedBy:      model.CreatedByUser,
	})

	if !ok {
		return "", false
	}

	if err := o.stors.TransferStor.DeleteTransferByID(id); err != nil {
		o.log.Errorf("Unable to remove retried transfer %d: %s", id, err)
	}

	return handle, true
}

// HasActiveTransfers reports whether any upload or download job is unfinished.
func (o *Orchestrator) HasActiveTransfers() bool {
	for _, d := range []Direction{DirectionDownload, DirectionUpload} {
		for _, status := range o.runner.QueryByTags(directionTag(d)) {
			if !status.IsFinished() {
				return true
			}
		}
	}

	return false
}

// ResumePendingTransfers resubmits jobs for ENQUEUED and IN_PROGRESS records
// whose job no longer exists, which is the state a restart leaves behind.
// Stale file sync handles are cleared. A record whose path already has an
// active upload is finished as CANCELLED. It returns the number of
// resubmitted transfers.
func (o *Orchestrator) ResumePendingTransfers() int {
	release, ok := o.admit()
	if !ok {
		return 0
	}
	defer release()

	o.clearStaleFileSyncs()

	transfers, err := o.stors.TransferStor.GetCurrentAndPendingTransfers()
	if err != nil {
		o.log.Errorf("Unable to load pending transfers: %s", err)
		return 0
	}

	resumed := 0
	for i := range transfers {
		if o.resumeTransfer(&transfers[i]) {
			resumed++
		}
	}

	if resumed != 0 {
		o.log.Infof("Resumed %d pending transfers", resumed)
	}

	return resumed
}

// resumeTransfer resubmits one pending record under the same path lock and
// duplicate check as RequestUpload.
func (o *Orchestrator) resumeTransfer(transfer *model.Transfer) bool {
	if o.hasActiveJob([]string{transferTag(transfer.ID)}) {
		return false
	}

	spaceID := model.StringValue(transfer.SpaceID)
	tags := uploadTags(transfer.AccountName, transfer.RemotePath, spaceID)

	fileID := 0
	if file, err := o.stors.FileStor.GetFileByRemotePath(transfer.AccountName, transfer.RemotePath, spaceID); err == nil {
		fileID = file.ID
	}

	wifiOnly := false
	if transfer.CreatedBy == model.CreatedByFolderBackup {
		wifiOnly = o.wifiOnlyFor(transfer.AccountName)
	}

	resumed := false
	_ = o.locker.WithLock(uploadLockKey(transfer.AccountName, transfer.RemotePath, spaceID), func() error {
		if o.hasActiveJob(tags) {
			o.log.Infof("Transfer %d duplicates an active upload of %s, cancelling it", transfer.ID, transfer.RemotePath)
			err := o.stors.TransferStor.FinishTransfer(transfer.ID, model.TransferResultCancelled, o.now().UnixMilli())
			if err != nil {
				o.logRecordError(transfer.ID, "finish", err)
			}
			return nil
		}

		if transfer.Status == model.TransferStatusInProgress {
			if err := o.stors.TransferStor.SetTransferEnqueued(transfer.ID); err != nil {
				o.log.Errorf("Unable to reset transfer %d: %s", transfer.ID, err)
				return nil
			}
		}

		if fileID != 0 {
			tags = append(tags, fileTag(fileID))
		}

		resumed = o.submitUpload(transfer, wifiOnly, fileID, tags) != ""
		return nil
	})

	return resumed
}

func (o *Orchestrator) wifiOnlyFor(accountName string) bool {
	backups, err := o.stors.FolderBackupStor.ListFolderBackups()
	if err != nil {
		return false
	}

	for _, backup := range backups {
		if backup.AccountName == accountName && backup.WifiOnly {
			return true
		}
	}

	return false
}

func (o *Orchestrator) clearStaleFileSyncs() {
	fileSyncs, err := o.stors.FileSyncStor.ListSynchronizing()
	if err != nil {
		o.log.Errorf("Unable to load file sync state: %s", err)
		return
	}

	for _, fileSync := range fileSyncs {
		if handle := model.StringValue(fileSync.DownloadJobHandle); handle != "" && !o.jobActive(handle) {
			if err := o.stors.FileSyncStor.ClearDownloadJobHandle(fileSync.FileID, handle); err != nil {
				o.log.Errorf("Unable to clear stale download job %s of file %d: %s", handle, fileSync.FileID, err)
			}
		}

		if handle := model.StringValue(fileSync.UploadJobHandle); handle != "" && !o.jobActive(handle) {
			if err := o.stors.FileSyncStor.ClearUploadJobHandle(fileSync.FileID, handle); err != nil {
				o.log.Errorf("Unable to clear stale upload job %s of file %d: %s", handle, fileSync.FileID, err)
			}
		}
	}
}

func (o *Orchestrator) jobActive(id string) bool {
	status, err := o.runner.Get(id)
	return err == nil && !status.IsFinished()
}

// ObserveCurrentJob streams the status of the newest job for the file in the
// given direction. When that job finishes the stream moves on to the next job
// submitted for the file. The channel closes when ctx is done.
func (o *Orchestrator) ObserveCurrentJob(ctx context.Context, accountName string, fileID int, d Direction) <-chan jobrunner.JobStatus {
	out := make(chan jobrunner.JobStatus)
	tags := []string{accountTag(accountName), fileTag(fileID), directionTag(d)}

	go func() {
		defer close(out)

		lastID := ""
		for {
			if id := o.newestJob(tags); id != "" && id != lastID {
				lastID = id
				if !o.forward(ctx, id, out) {
					return
				}
				continue
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(o.pollInterval):
			}
		}
	}()

	return out
}

func (o *Orchestrator) newestJob(tags []string) string {
	statuses := o.runner.QueryByTags(tags...)
	if len(statuses) == 0 {
		return ""
	}

	newest := statuses[0]
	for _, status := range statuses[1:] {
		if status.SubmittedAt.After(newest.SubmittedAt) {
			newest = status
		}
	}

	return newest.ID
}

// forward copies one job's status stream to out. It returns false once ctx
// is done.
func (o *Orchestrator) forward(ctx context.Context, id string, out chan<- jobrunner.JobStatus) bool {
	statuses, err := o.runner.Observe(ctx, id)
	if err != nil {
		return ctx.Err() == nil
	}

	for status := range statuses {
		select {
		case out <- status:
		case <-ctx.Done():
			return false
		}
	}

	return ctx.Err() == nil
}
