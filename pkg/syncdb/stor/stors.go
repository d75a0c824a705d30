package stor

import (
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"gorm.io/gorm"
)

type TransferStor interface {
	SaveTransfer(transfer *model.Transfer) (*model.Transfer, error)
	UpdateTransfer(transfer *model.Transfer) (*model.Transfer, error)
	GetTransferByID(id int) (*model.Transfer, error)
	GetTransferByTransferID(transferID string) (*model.Transfer, error)
	SetTransferID(id int, transferID string) error
	SetTransferInProgress(id int) error
	SetTransferEnqueued(id int) error
	UpdateTransferLocalPath(id int, localPath string) error
	UpdateTransferSourcePath(id int, sourcePath string) error
	UpdateTransfersStorageDirectory(oldDirectory, newDirectory string) error
	FinishTransfer(id int, result model.TransferResult, endTimestamp int64) error
	DeleteTransferByID(id int) error
	DeleteTransfersForAccount(accountName string) error
	ClearFailedTransfers() error
	ClearSuccessfulTransfers() error
	GetAllTransfers() ([]model.Transfer, error)
	GetCurrentAndPendingTransfers() ([]model.Transfer, error)
	GetFailedTransfers() ([]model.Transfer, error)
	GetFinishedTransfers() ([]model.Transfer, error)
	GetLastTransferFor(remotePath, accountName string) (*model.Transfer, error)
}

type FileSyncStor interface {
	GetFileSyncByFileID(fileID int) (*model.FileSync, error)
	SetDownloadJobHandle(fileID int, handle string) error
	SetUploadJobHandle(fileID int, handle string) error
	ClearDownloadJobHandle(fileID int, handle string) error
	ClearUploadJobHandle(fileID int, handle string) error
	DeleteFileSync(fileID int) error
	ListSynchronizing() ([]model.FileSync, error)
}

type FileStor interface {
	CreateOrUpdateFile(file *model.File) (*model.File, error)
	RecordUploadedFile(file *model.File) (*model.File, error)
	GetFileByID(fileID int) (*model.File, error)
	GetFileByRemotePath(accountName, remotePath, spaceID string) (*model.File, error)
	ListFilesForAccount(accountName string) ([]model.File, error)
	UpdateFileLocalPath(fileID int, localPath string) error
	SetAvailableOffline(fileID int, availableOffline bool) error
	UpdateFilesStorageDirectory(oldDirectory, newDirectory string) error
	DeleteFile(fileID int) error
	DeleteFilesForAccount(accountName string) error
}

type FolderBackupStor interface {
	SaveFolderBackup(backup *model.FolderBackup) (*model.FolderBackup, error)
	GetFolderBackup(accountName, name string) (*model.FolderBackup, error)
	ListFolderBackups() ([]model.FolderBackup, error)
	UpdateLastSyncTimestamp(id int, timestamp int64) error
	DeleteFolderBackup(accountName, name string) error
}

type Stors struct {
	TransferStor     TransferStor
	FileSyncStor     FileSyncStor
	FileStor         FileStor
	FolderBackupStor FolderBackupStor
}

func NewGormStors(db *gorm.DB) *Stors {
	return &Stors{
		TransferStor:     NewGormTransferStor(db),
		FileSyncStor:     NewGormFileSyncStor(db),
		FileStor:         NewGormFileStor(db),
		FolderBackupStor: NewGormFolderBackupStor(db),
	}
}
