package transfer

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoCredentials means no remote client could be built for the account.
	ErrNoCredentials = errors.New("no credentials for account")

	// ErrRemoteConflict means the remote file exists and overwrite was not forced.
	ErrRemoteConflict = errors.New("remote file already exists")

	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrDelayedForWifi = errors.New("waiting for an unmetered network")
)

// StatusError is a failed remote call that came back with an HTTP status.
// Message holds a server supplied explanation when there was one.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func NewStatusError(code int, message string) *StatusError {
	return &StatusError{Code: code, Message: message}
}

func (e *StatusError) Error() string {
	text := fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	if e.Message != "" {
		text += ": " + e.Message
	}

	if e.Err != nil {
		text += ": " + e.Err.Error()
	}

	return text
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
