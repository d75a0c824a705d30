package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/materials-commons/mcsync/pkg/fsmove"
	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/storagepath"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/pkg/errors"
)

// Registrar is the part of a runner that accepts workers and listeners.
type Registrar interface {
	RegisterWorker(kind string, w jobrunner.Worker)
	AddListener(l jobrunner.Listener)
}

// RegisterWorkers hooks the transfer workers and o up to the runner.
func RegisterWorkers(r Registrar, o *Orchestrator, resolver *storagepath.Resolver, clients ClientProvider, network NetworkPolicy) {
	r.RegisterWorker(KindDownload, NewDownloadWorker(o.stors, resolver, clients))
	r.RegisterWorker(KindUpload, NewUploadWorker(o.stors, resolver, clients, network))
	r.AddListener(o)
}

type DownloadWorker struct {
	stors    *stor.Stors
	resolver *storagepath.Resolver
	clients  ClientProvider
	log      *log.Entry
}

func NewDownloadWorker(stors *stor.Stors, resolver *storagepath.Resolver, clients ClientProvider) *DownloadWorker {
	return &DownloadWorker{
		stors:    stors,
		resolver: resolver,
		clients:  clients,
		log:      clog.UsingCtx(clog.TransfersCtx),
	}
}

// Run downloads into the account's temporary directory and renames the
// result into place once its length checks out.
func (w *DownloadWorker) Run(ctx context.Context, job *jobrunner.Job) error {
	fileID, ok := intParam(job.Spec(), paramFileID)
	if !ok {
		return fmt.Errorf("download job %s has no file id", job.ID())
	}

	file, err := w.stors.FileStor.GetFileByID(fileID)
	if err != nil {
		if stor.IsRecordNotFound(err) {
			return fmt.Errorf("file %d left the catalog: %w", fileID, os.ErrNotExist)
		}
		return jobrunner.Retryable(err)
	}

	accountName := job.Spec().Param(paramAccount)
	client, err := w.clients.ClientFor(accountName)
	if err != nil {
		return err
	}

	tmpDir := w.resolver.TemporalPath(accountName, file.SpaceID)
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return errors.Wrapf(err, "unable to create %s", tmpDir)
	}

	tmp, err := os.CreateTemp(tmpDir, "download-*")
	if err != nil {
		return errors.Wrapf(err, "unable to create temporary file in %s", tmpDir)
	}
	tmpPath := tmp.Name()

	pw := &progressWriter{w: tmp, progressCounter: progressCounter{job: job, total: file.Size}}
	n, err := client.Download(ctx, file.RemotePath, pw)
	closeErr := tmp.Close()

	switch {
	case err != nil:
		_ = os.Remove(tmpPath)
		return retryIfTransient(err)
	case closeErr != nil:
		_ = os.Remove(tmpPath)
		return errors.Wrapf(closeErr, "unable to write %s", tmpPath)
	case file.Size > 0 && n != file.Size:
		_ = os.Remove(tmpPath)
		return jobrunner.Retryable(fmt.Errorf("downloaded %d of %d bytes of %s: %w", n, file.Size, file.RemotePath, io.ErrUnexpectedEOF))
	}

	dest := w.resolver.DefaultSavePathFor(accountName, file.RemotePath, file.SpaceID)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "unable to create directory for %s", dest)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "unable to move download into %s", dest)
	}

	if err := w.stors.FileStor.UpdateFileLocalPath(file.ID, dest); err != nil {
		w.log.Errorf("Downloaded %s to %s but could not update the catalog: %s", file.RemotePath, dest, err)
	}

	job.SetProgress(100)
	w.log.Infof("Downloaded %s for %s to %s (%d bytes)", file.RemotePath, accountName, dest, n)

	return nil
}

type UploadWorker struct {
	stors    *stor.Stors
	resolver *storagepath.Resolver
	clients  ClientProvider
	network  NetworkPolicy
	log      *log.Entry
}

func NewUploadWorker(stors *stor.Stors, resolver *storagepath.Resolver, clients ClientProvider, network NetworkPolicy) *UploadWorker {
	if network == nil {
		network = AlwaysUnmetered
	}

	return &UploadWorker{
		stors:    stors,
		resolver: resolver,
		clients:  clients,
		network:  network,
		log:      clog.UsingCtx(clog.TransfersCtx),
	}
}

func (w *UploadWorker) Run(ctx context.Context, job *jobrunner.Job) error {
	transferID, ok := intParam(job.Spec(), paramTransferID)
	if !ok {
		return fmt.Errorf("upload job %s has no transfer id", job.ID())
	}

	transfer, err := w.stors.TransferStor.GetTransferByID(transferID)
	if err != nil {
		if stor.IsRecordNotFound(err) {
			return fmt.Errorf("transfer %d was removed: %w", transferID, context.Canceled)
		}
		return jobrunner.Retryable(err)
	}

	if wifiOnly, _ := strconv.ParseBool(job.Spec().Param(paramWifiOnly)); wifiOnly && !w.network.OnUnmeteredNetwork() {
		return jobrunner.Retryable(ErrDelayedForWifi)
	}

	client, err := w.clients.ClientFor(transfer.AccountName)
	if err != nil {
		return err
	}

	f, err := os.Open(transfer.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	if !transfer.ForceOverwrite {
		_, err := client.Stat(ctx, transfer.RemotePath)
		switch {
		case err == nil:
			return fmt.Errorf("%s: %w", transfer.RemotePath, ErrRemoteConflict)
		case FromError(err) != model.TransferResultFileNotFound:
			return retryIfTransient(err)
		}
	}

	if dir := path.Dir(transfer.RemotePath); dir != "/" {
		if err := client.MkdirAll(ctx, dir); err != nil {
			return retryIfTransient(err)
		}
	}

	pr := &progressReader{r: f, progressCounter: progressCounter{job: job, total: fi.Size()}}
	if err := client.Upload(ctx, transfer.RemotePath, pr, fi.Size()); err != nil {
		return retryIfTransient(err)
	}

	job.SetProgress(100)
	w.log.Infof("Uploaded %s to %s for %s", transfer.LocalPath, transfer.RemotePath, transfer.AccountName)

	f.Close()
	w.applyLocalBehaviour(transfer, fi.Size())

	return nil
}

// applyLocalBehaviour decides what happens to the local copy after a
// successful upload. The catalog entry keeps its local path unless the copy
// was placed in the store. Failures here do not fail the upload.
func (w *UploadWorker) applyLocalBehaviour(transfer *model.Transfer, size int64) {
	spaceID := model.StringValue(transfer.SpaceID)
	file := &model.File{
		AccountName: transfer.AccountName,
		RemotePath:  transfer.RemotePath,
		SpaceID:     spaceID,
		Size:        size,
	}

	switch transfer.LocalBehaviour {
	case model.LocalBehaviourMove, model.LocalBehaviourCopy:
		dest := w.resolver.DefaultSavePathFor(transfer.AccountName, transfer.RemotePath, spaceID)
		if err := placeLocalCopy(transfer.LocalPath, dest, transfer.LocalBehaviour == model.LocalBehaviourMove); err != nil {
			w.log.Errorf("Unable to %s %s into %s: %s", transfer.LocalBehaviour, transfer.LocalPath, dest, err)
			return
		}

		if err := w.stors.TransferStor.UpdateTransferLocalPath(transfer.ID, dest); err != nil {
			w.log.Errorf("Unable to update local path of transfer %d: %s", transfer.ID, err)
		}

		file.LocalPath = dest
	}

	if _, err := w.stors.FileStor.RecordUploadedFile(file); err != nil {
		w.log.Errorf("Unable to catalog uploaded file %s: %s", transfer.RemotePath, err)
	}
}

func placeLocalCopy(src, dest string, move bool) error {
	if src == dest {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.Wrapf(err, "unable to create directory for %s", dest)
	}

	if move {
		if err := os.Rename(src, dest); err == nil {
			return nil
		}
	}

	// Rename fails across filesystems, fall back to copying.
	if _, err := fsmove.CopyFile(src, dest); err != nil {
		return err
	}

	if move {
		return os.Remove(src)
	}

	return nil
}
