package model

// FileSync links a catalog file to the jobs currently moving it. A row goes
// away with its file.
type FileSync struct {
	FileID            int     `json:"file_id" gorm:"primaryKey;autoIncrement:false"`
	File              *File   `json:"-" gorm:"foreignKey:FileID;references:ID;constraint:OnDelete:CASCADE"`
	UploadJobHandle   *string `json:"upload_job_handle"`
	DownloadJobHandle *string `json:"download_job_handle"`
	IsSynchronizing   bool    `json:"is_synchronizing"`
}

func (FileSync) TableName() string {
	return "file_syncs"
}
