package stor

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotImplemented    = errors.New("not implemented")
	ErrAlreadyFinished   = errors.New("transfer already finished")
	ErrInvalidTransition = errors.New("invalid transfer status transition")
)

func IsRecordNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
