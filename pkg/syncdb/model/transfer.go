package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidTransfer = errors.New("invalid transfer")

// Transfer is one upload tracked end to end. TransferEndTimestamp and
// LastResult are nil until Status is FINISHED and both set afterwards.
type Transfer struct {
	ID                   int             `json:"id"`
	LocalPath            string          `json:"local_path"`
	RemotePath           string          `json:"remote_path"`
	AccountName          string          `json:"account_name" gorm:"index"`
	FileSize             int64           `json:"file_size"`
	Status               TransferStatus  `json:"status" gorm:"index"`
	LocalBehaviour       LocalBehaviour  `json:"local_behaviour"`
	ForceOverwrite       bool            `json:"force_overwrite"`
	TransferEndTimestamp *int64          `json:"transfer_end_timestamp"`
	LastResult           *TransferResult `json:"last_result"`
	CreatedBy            CreatedBy       `json:"created_by"`
	TransferID           *string         `json:"transfer_id" gorm:"index"`
	SpaceID              *string         `json:"space_id"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

func (Transfer) TableName() string {
	return "transfers"
}

// NewTransfer builds an ENQUEUED transfer, rejecting relative paths and an
// empty account name.
func NewTransfer(accountName, localPath, remotePath string, fileSize int64) (*Transfer, error) {
	if accountName == "" {
		return nil, fmt.Errorf("%w: account name is empty", ErrInvalidTransfer)
	}

	if !strings.HasPrefix(localPath, string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: local path %q is not absolute", ErrInvalidTransfer, localPath)
	}

	if !strings.HasPrefix(remotePath, "/") {
		return nil, fmt.Errorf("%w: remote path %q is not absolute", ErrInvalidTransfer, remotePath)
	}

	return &Transfer{
		AccountName: accountName,
		LocalPath:   localPath,
		RemotePath:  remotePath,
		FileSize:    fileSize,
		Status:      TransferStatusEnqueued,
	}, nil
}

func (t Transfer) IsFinished() bool {
	return t.Status == TransferStatusFinished
}

// IsFailed is true for finished transfers whose result is anything but UPLOADED.
func (t Transfer) IsFailed() bool {
	return t.IsFinished() && t.LastResult != nil && !t.LastResult.IsSuccess()
}

func (t Transfer) TransferHandle() string {
	if t.TransferID == nil {
		return ""
	}

	return *t.TransferID
}

func StringPtr(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}

func StringValue(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
