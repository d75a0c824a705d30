package model

import "time"

const DirectoryMimeType = "DIR"

// File is the local catalog entry for a remote file, keyed by a stable ID
// that survives renames.
type File struct {
	ID               int       `json:"id"`
	AccountName      string    `json:"account_name" gorm:"uniqueIndex:idx_file_remote"`
	RemotePath       string    `json:"remote_path" gorm:"uniqueIndex:idx_file_remote"`
	SpaceID          string    `json:"space_id" gorm:"uniqueIndex:idx_file_remote"`
	LocalPath        string    `json:"local_path"`
	Size             int64     `json:"size"`
	MimeType         string    `json:"mime_type"`
	ETag             string    `json:"etag"`
	AvailableOffline bool      `json:"available_offline"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (File) TableName() string {
	return "files"
}

func (f File) IsDir() bool {
	return f.MimeType == DirectoryMimeType
}

func (f File) IsPersisted() bool {
	return f.ID != 0
}

func (f File) SpaceIDPtr() *string {
	return StringPtr(f.SpaceID)
}
