package stor

import (
	"time"

	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"gorm.io/gorm"
)

// GormFileStor is the file catalog. Deleting a file also deletes its
// file_syncs row in the same transaction, whether or not the database
// enforces the foreign key.
type GormFileStor struct {
	db *gorm.DB
}

func NewGormFileStor(db *gorm.DB) *GormFileStor {
	return &GormFileStor{db: db}
}

// CreateOrUpdateFile inserts file, or refreshes the entry already catalogued
// for the same (account, remote path, space). file.ID is filled in.
func (s *GormFileStor) CreateOrUpdateFile(file *model.File) (*model.File, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		var existing model.File
		err := tx.Where("account_name = ?", file.AccountName).
			Where("remote_path = ?", file.RemotePath).
			Where("space_id = ?", file.SpaceID).
			First(&existing).Error

		switch {
		case IsRecordNotFound(err):
			file.ID = 0
			return tx.Create(file).Error
		case err != nil:
			return err
		}

		file.ID = existing.ID
		file.CreatedAt = existing.CreatedAt
		return tx.Save(file).Error
	})

	if err != nil {
		return nil, err
	}

	return file, nil
}

// RecordUploadedFile catalogs a file after it was uploaded. An existing
// entry keeps its local path, offline mark, mime type and etag. Only its
// size changes, and its local path when file.LocalPath is set.
func (s *GormFileStor) RecordUploadedFile(file *model.File) (*model.File, error) {
	var recorded model.File
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		err := tx.Where("account_name = ?", file.AccountName).
			Where("remote_path = ?", file.RemotePath).
			Where("space_id = ?", file.SpaceID).
			First(&recorded).Error

		switch {
		case IsRecordNotFound(err):
			recorded = *file
			recorded.ID = 0
			return tx.Create(&recorded).Error
		case err != nil:
			return err
		}

		updates := map[string]interface{}{"size": file.Size, "updated_at": time.Now()}
		if file.LocalPath != "" {
			updates["local_path"] = file.LocalPath
		}

		if err := tx.Model(&model.File{}).Where("id = ?", recorded.ID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.First(&recorded, recorded.ID).Error
	})

	if err != nil {
		return nil, err
	}

	return &recorded, nil
}

func (s *GormFileStor) GetFileByID(fileID int) (*model.File, error) {
	var file model.File
	if err := s.db.First(&file, fileID).Error; err != nil {
		return nil, err
	}

	return &file, nil
}

func (s *GormFileStor) GetFileByRemotePath(accountName, remotePath, spaceID string) (*model.File, error) {
	var file model.File
	err := s.db.Where("account_name = ?", accountName).
		Where("remote_path = ?", remotePath).
		Where("space_id = ?", spaceID).
		First(&file).Error
	if err != nil {
		return nil, err
	}

	return &file, nil
}

func (s *GormFileStor) ListFilesForAccount(accountName string) ([]model.File, error) {
	var files []model.File
	err := s.db.Where("account_name = ?", accountName).Order("remote_path").Find(&files).Error
	return files, err
}

func (s *GormFileStor) UpdateFileLocalPath(fileID int, localPath string) error {
	return s.updateColumn(fileID, "local_path", localPath)
}

func (s *GormFileStor) SetAvailableOffline(fileID int, availableOffline bool) error {
	return s.updateColumn(fileID, "available_offline", availableOffline)
}

func (s *GormFileStor) updateColumn(fileID int, column string, value interface{}) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		result := tx.Model(&model.File{}).
			Where("id = ?", fileID).
			Updates(map[string]interface{}{column: value, "updated_at": time.Now()})
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}

func (s *GormFileStor) UpdateFilesStorageDirectory(oldDirectory, newDirectory string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		var files []model.File
		if err := tx.Where("local_path <> ?", "").Find(&files).Error; err != nil {
			return err
		}

		for _, file := range files {
			newPath, ok := replaceDirPrefix(file.LocalPath, oldDirectory, newDirectory)
			if !ok {
				continue
			}

			if err := tx.Model(&model.File{}).Where("id = ?", file.ID).Update("local_path", newPath).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (s *GormFileStor) DeleteFile(fileID int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", fileID).Delete(&model.FileSync{}).Error; err != nil {
			return err
		}

		return tx.Delete(&model.File{}, fileID).Error
	})
}

func (s *GormFileStor) DeleteFilesForAccount(accountName string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		fileIDs := tx.Model(&model.File{}).Select("id").Where("account_name = ?", accountName)
		if err := tx.Where("file_id IN (?)", fileIDs).Delete(&model.FileSync{}).Error; err != nil {
			return err
		}

		return tx.Where("account_name = ?", accountName).Delete(&model.File{}).Error
	})
}
