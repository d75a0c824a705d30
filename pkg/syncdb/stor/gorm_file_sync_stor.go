package stor

import (
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormFileSyncStor struct {
	db *gorm.DB
}

func NewGormFileSyncStor(db *gorm.DB) *GormFileSyncStor {
	return &GormFileSyncStor{db: db}
}

func (s *GormFileSyncStor) GetFileSyncByFileID(fileID int) (*model.FileSync, error) {
	var fileSync model.FileSync
	if err := s.db.Where("file_id = ?", fileID).First(&fileSync).Error; err != nil {
		return nil, err
	}

	return &fileSync, nil
}

func (s *GormFileSyncStor) SetDownloadJobHandle(fileID int, handle string) error {
	return s.setHandle(fileID, "download_job_handle", handle)
}

func (s *GormFileSyncStor) SetUploadJobHandle(fileID int, handle string) error {
	return s.setHandle(fileID, "upload_job_handle", handle)
}

// setHandle upserts the row for fileID, replacing whatever handle was in column.
func (s *GormFileSyncStor) setHandle(fileID int, column, handle string) error {
	fileSync := &model.FileSync{FileID: fileID, IsSynchronizing: true}
	if column == "download_job_handle" {
		fileSync.DownloadJobHandle = &handle
	} else {
		fileSync.UploadJobHandle = &handle
	}

	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}},
			DoUpdates: clause.AssignmentColumns([]string{column, "is_synchronizing"}),
		}).Create(fileSync).Error
	})
}

func (s *GormFileSyncStor) ClearDownloadJobHandle(fileID int, handle string) error {
	return s.clearHandle(fileID, handle, func(fs *model.FileSync) **string { return &fs.DownloadJobHandle })
}

func (s *GormFileSyncStor) ClearUploadJobHandle(fileID int, handle string) error {
	return s.clearHandle(fileID, handle, func(fs *model.FileSync) **string { return &fs.UploadJobHandle })
}

// clearHandle drops the handle only if it is still the one recorded, so a
// late completion of a replaced job cannot erase its successor.
func (s *GormFileSyncStor) clearHandle(fileID int, handle string, field func(fs *model.FileSync) **string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		var fileSync model.FileSync
		err := tx.Where("file_id = ?", fileID).First(&fileSync).Error
		switch {
		case IsRecordNotFound(err):
			return nil
		case err != nil:
			return err
		}

		current := field(&fileSync)
		if *current == nil || **current != handle {
			return nil
		}

		*current = nil
		fileSync.IsSynchronizing = fileSync.UploadJobHandle != nil || fileSync.DownloadJobHandle != nil

		return tx.Model(&model.FileSync{}).
			Where("file_id = ?", fileID).
			Updates(map[string]interface{}{
				"upload_job_handle":   fileSync.UploadJobHandle,
				"download_job_handle": fileSync.DownloadJobHandle,
				"is_synchronizing":    fileSync.IsSynchronizing,
			}).Error
	})
}

func (s *GormFileSyncStor) DeleteFileSync(fileID int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Where("file_id = ?", fileID).Delete(&model.FileSync{}).Error
	})
}

func (s *GormFileSyncStor) ListSynchronizing() ([]model.FileSync, error) {
	var fileSyncs []model.FileSync
	err := s.db.Where("is_synchronizing = ?", true).Order("file_id").Find(&fileSyncs).Error
	return fileSyncs, err
}
