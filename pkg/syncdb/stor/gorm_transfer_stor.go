package stor

import (
	"errors"
	"fmt"
	"time"

	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"gorm.io/gorm"
)

type GormTransferStor struct {
	db *gorm.DB
}

func NewGormTransferStor(db *gorm.DB) *GormTransferStor {
	return &GormTransferStor{db: db}
}

// SaveTransfer inserts a new transfer (or overwrites an existing one when ID is set).
func (s *GormTransferStor) SaveTransfer(transfer *model.Transfer) (*model.Transfer, error) {
	if err := checkTerminalFields(transfer); err != nil {
		return nil, err
	}

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Save(transfer).Error
	})

	if err != nil {
		return nil, err
	}

	return transfer, nil
}

func (s *GormTransferStor) UpdateTransfer(transfer *model.Transfer) (*model.Transfer, error) {
	if transfer.ID == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	if err := checkTerminalFields(transfer); err != nil {
		return nil, err
	}

	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		var existing model.Transfer
		if err := tx.First(&existing, transfer.ID).Error; err != nil {
			return err
		}

		transfer.CreatedAt = existing.CreatedAt
		return tx.Save(transfer).Error
	})

	if err != nil {
		return nil, err
	}

	return transfer, nil
}

// checkTerminalFields enforces that end timestamp and result are set exactly
// when the transfer is finished.
func checkTerminalFields(transfer *model.Transfer) error {
	finished := transfer.Status == model.TransferStatusFinished
	hasTerminal := transfer.TransferEndTimestamp != nil && transfer.LastResult != nil
	hasAnyTerminal := transfer.TransferEndTimestamp != nil || transfer.LastResult != nil

	switch {
	case finished && !hasTerminal:
		return fmt.Errorf("%w: finished transfer without end timestamp and result", model.ErrInvalidTransfer)
	case !finished && hasAnyTerminal:
		return fmt.Errorf("%w: %s transfer carries a result", model.ErrInvalidTransfer, transfer.Status)
	}

	return nil
}

func (s *GormTransferStor) GetTransferByID(id int) (*model.Transfer, error) {
	var transfer model.Transfer
	if err := s.db.First(&transfer, id).Error; err != nil {
		return nil, err
	}

	return &transfer, nil
}

func (s *GormTransferStor) GetTransferByTransferID(transferID string) (*model.Transfer, error) {
	var transfer model.Transfer
	if err := s.db.Where("transfer_id = ?", transferID).First(&transfer).Error; err != nil {
		return nil, err
	}

	return &transfer, nil
}

func (s *GormTransferStor) SetTransferID(id int, transferID string) error {
	return s.updateColumns(id, map[string]interface{}{"transfer_id": transferID})
}

func (s *GormTransferStor) SetTransferInProgress(id int) error {
	return s.transition(id, model.TransferStatusInProgress,
		model.TransferStatusEnqueued, model.TransferStatusInProgress)
}

// SetTransferEnqueued is the explicit reset used when a job is resubmitted
// after a transient failure. Finished transfers stay finished.
func (s *GormTransferStor) SetTransferEnqueued(id int) error {
	return s.transition(id, model.TransferStatusEnqueued,
		model.TransferStatusEnqueued, model.TransferStatusInProgress)
}

func (s *GormTransferStor) transition(id int, to model.TransferStatus, from ...model.TransferStatus) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfer model.Transfer
		if err := tx.First(&transfer, id).Error; err != nil {
			return err
		}

		if !statusIn(transfer.Status, from) {
			return fmt.Errorf("%w: %s -> %s for transfer %d", ErrInvalidTransition, transfer.Status, to, id)
		}

		if transfer.Status == to {
			return nil
		}

		return tx.Model(&model.Transfer{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{"status": to, "updated_at": time.Now()}).Error
	})
}

func statusIn(status model.TransferStatus, statuses []model.TransferStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

func (s *GormTransferStor) UpdateTransferLocalPath(id int, localPath string) error {
	return s.updateColumns(id, map[string]interface{}{"local_path": localPath})
}

// UpdateTransferSourcePath points a pending upload at a different source file.
func (s *GormTransferStor) UpdateTransferSourcePath(id int, sourcePath string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfer model.Transfer
		if err := tx.First(&transfer, id).Error; err != nil {
			return err
		}

		if transfer.IsFinished() {
			return fmt.Errorf("%w: cannot change source of finished transfer %d", ErrInvalidTransition, id)
		}

		return tx.Model(&transfer).Updates(map[string]interface{}{"local_path": sourcePath, "updated_at": time.Now()}).Error
	})
}

func (s *GormTransferStor) UpdateTransfersStorageDirectory(oldDirectory, newDirectory string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfers []model.Transfer
		if err := tx.Find(&transfers).Error; err != nil {
			return err
		}

		for _, transfer := range transfers {
			newPath, ok := replaceDirPrefix(transfer.LocalPath, oldDirectory, newDirectory)
			if !ok {
				continue
			}

			err := tx.Model(&model.Transfer{}).
				Where("id = ?", transfer.ID).
				Update("local_path", newPath).Error
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// FinishTransfer records the terminal result. A transfer can only be finished
// once, later calls get ErrAlreadyFinished and change nothing.
func (s *GormTransferStor) FinishTransfer(id int, result model.TransferResult, endTimestamp int64) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		var transfer model.Transfer
		if err := tx.First(&transfer, id).Error; err != nil {
			return err
		}

		if transfer.IsFinished() {
			return fmt.Errorf("%w: transfer %d", ErrAlreadyFinished, id)
		}

		return tx.Model(&model.Transfer{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":                 model.TransferStatusFinished,
				"last_result":            result,
				"transfer_end_timestamp": endTimestamp,
				"updated_at":             time.Now(),
			}).Error
	})
}

func (s *GormTransferStor) updateColumns(id int, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		result := tx.Model(&model.Transfer{}).Where("id = ?", id).Updates(updates)
		if result.Error != nil {
			return result.Error
		}

		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return nil
	})
}

func (s *GormTransferStor) DeleteTransferByID(id int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Delete(&model.Transfer{}, id).Error
	})
}

func (s *GormTransferStor) DeleteTransfersForAccount(accountName string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Where("account_name = ?", accountName).Delete(&model.Transfer{}).Error
	})
}

func (s *GormTransferStor) ClearFailedTransfers() error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Where("status = ?", model.TransferStatusFinished).
			Where("last_result <> ?", model.TransferResultUploaded).
			Delete(&model.Transfer{}).Error
	})
}

func (s *GormTransferStor) ClearSuccessfulTransfers() error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Where("status = ?", model.TransferStatusFinished).
			Where("last_result = ?", model.TransferResultUploaded).
			Delete(&model.Transfer{}).Error
	})
}

func (s *GormTransferStor) GetAllTransfers() ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := s.db.Order("id").Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) GetCurrentAndPendingTransfers() ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := s.db.Where("status IN ?", []model.TransferStatus{model.TransferStatusEnqueued, model.TransferStatusInProgress}).
		Order("id").
		Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) GetFailedTransfers() ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := s.db.Where("status = ?", model.TransferStatusFinished).
		Where("last_result <> ?", model.TransferResultUploaded).
		Order("transfer_end_timestamp DESC, id DESC").
		Find(&transfers).Error
	return transfers, err
}

func (s *GormTransferStor) GetFinishedTransfers() ([]model.Transfer, error) {
	var transfers []model.Transfer
	err := s.db.Where("status = ?", model.TransferStatusFinished).
		Order("transfer_end_timestamp DESC, id DESC").
		Find(&transfers).Error
	return transfers, err
}

// GetLastTransferFor returns the most recently finished transfer for the
// remote path, falling back to the newest unfinished one. Ties on the end
// timestamp go to the higher id.
func (s *GormTransferStor) GetLastTransferFor(remotePath, accountName string) (*model.Transfer, error) {
	var transfer model.Transfer
	err := s.db.Where("remote_path = ?", remotePath).
		Where("account_name = ?", accountName).
		Order("CASE WHEN transfer_end_timestamp IS NULL THEN 1 ELSE 0 END").
		Order("transfer_end_timestamp DESC").
		Order("id DESC").
		First(&transfer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("last transfer for %s (%s): %w", remotePath, accountName, err)
	}

	return &transfer, nil
}
