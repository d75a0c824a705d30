package model

import "time"

const (
	PictureUploadsName = "Picture uploads"
	VideoUploadsName   = "Video uploads"
)

// FolderBackup describes an automatic upload source/destination pair.
type FolderBackup struct {
	ID                int            `json:"id"`
	Name              string         `json:"name" gorm:"uniqueIndex:idx_backup_name"`
	AccountName       string         `json:"account_name" gorm:"uniqueIndex:idx_backup_name"`
	Behaviour         LocalBehaviour `json:"behaviour"`
	SourcePath        string         `json:"source_path"`
	UploadPath        string         `json:"upload_path"`
	WifiOnly          bool           `json:"wifi_only"`
	ChargingOnly      bool           `json:"charging_only"`
	LastSyncTimestamp int64          `json:"last_sync_timestamp"`
	SpaceID           string         `json:"space_id"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (FolderBackup) TableName() string {
	return "folder_backups"
}
