package stor

import (
	"errors"

	"github.com/materials-commons/mcsync/pkg/syncdb/config"
	"gorm.io/gorm"
)

// WithTxRetry runs fn in a transaction, retrying failed attempts. Errors that
// retrying cannot fix (missing records, rejected transitions) are returned
// straight away.
func WithTxRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error

	for i := 0; i < config.GetTxRetry(); i++ {
		err = db.Transaction(fn)
		if err == nil || isPermanent(err) {
			break
		}
	}

	return err
}

func isPermanent(err error) bool {
	return IsRecordNotFound(err) ||
		errors.Is(err, ErrAlreadyFinished) ||
		errors.Is(err, ErrInvalidTransition)
}
