package stor

import (
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"gorm.io/gorm"
)

type GormFolderBackupStor struct {
	db *gorm.DB
}

func NewGormFolderBackupStor(db *gorm.DB) *GormFolderBackupStor {
	return &GormFolderBackupStor{db: db}
}

// SaveFolderBackup creates or replaces the configuration with the same
// account and name. The last sync timestamp of an existing entry is kept.
func (s *GormFolderBackupStor) SaveFolderBackup(backup *model.FolderBackup) (*model.FolderBackup, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		var existing model.FolderBackup
		err := tx.Where("account_name = ?", backup.AccountName).
			Where("name = ?", backup.Name).
			First(&existing).Error

		switch {
		case IsRecordNotFound(err):
			backup.ID = 0
			return tx.Create(backup).Error
		case err != nil:
			return err
		}

		backup.ID = existing.ID
		backup.CreatedAt = existing.CreatedAt
		if backup.LastSyncTimestamp == 0 {
			backup.LastSyncTimestamp = existing.LastSyncTimestamp
		}

		return tx.Save(backup).Error
	})

	if err != nil {
		return nil, err
	}

	return backup, nil
}

func (s *GormFolderBackupStor) GetFolderBackup(accountName, name string) (*model.FolderBackup, error) {
	var backup model.FolderBackup
	err := s.db.Where("account_name = ?", accountName).Where("name = ?", name).First(&backup).Error
	if err != nil {
		return nil, err
	}

	return &backup, nil
}

func (s *GormFolderBackupStor) ListFolderBackups() ([]model.FolderBackup, error) {
	var backups []model.FolderBackup
	err := s.db.Order("account_name, name").Find(&backups).Error
	return backups, err
}

func (s *GormFolderBackupStor) UpdateLastSyncTimestamp(id int, timestamp int64) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		result := tx.Model(&model.FolderBackup{}).Where("id = ?", id).Update("last_sync_timestamp", timestamp)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}

func (s *GormFolderBackupStor) DeleteFolderBackup(accountName, name string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Where("account_name = ?", accountName).Where("name = ?", name).Delete(&model.FolderBackup{}).Error
	})
}
