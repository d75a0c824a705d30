package transfer

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"testing"

	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/stretchr/testify/assert"
)

type panickyError struct{}

func (panickyError) Error() string { return "panicky" }

func (panickyError) Is(target error) bool { panic("boom") }

func TestFromError(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "cloud.example.com"}

	tests := []struct {
		name     string
		err      error
		expected model.TransferResult
	}{
		{name: "success", err: nil, expected: model.TransferResultUploaded},
		{name: "cancelled", err: context.Canceled, expected: model.TransferResultCancelled},
		{name: "wrapped cancel", err: fmt.Errorf("stopped: %w", context.Canceled), expected: model.TransferResultCancelled},
		{name: "wifi", err: jobrunner.Retryable(ErrDelayedForWifi), expected: model.TransferResultDelayedForWifi},
		{name: "no credentials", err: ErrNoCredentials, expected: model.TransferResultCredentialError},
		{name: "remote conflict", err: fmt.Errorf("/a: %w", ErrRemoteConflict), expected: model.TransferResultConflictError},
		{name: "quota sentinel", err: ErrQuotaExceeded, expected: model.TransferResultQuotaExceeded},
		{name: "401", err: NewStatusError(http.StatusUnauthorized, ""), expected: model.TransferResultCredentialError},
		{name: "403", err: NewStatusError(http.StatusForbidden, ""), expected: model.TransferResultPrivilegesError},
		{name: "403 with message", err: NewStatusError(http.StatusForbidden, "read only share"), expected: model.TransferResultSpecificForbidden},
		{name: "404", err: NewStatusError(http.StatusNotFound, ""), expected: model.TransferResultFileNotFound},
		{name: "409", err: NewStatusError(http.StatusConflict, ""), expected: model.TransferResultFolderError},
		{name: "412", err: NewStatusError(http.StatusPreconditionFailed, ""), expected: model.TransferResultConflictError},
		{name: "415", err: NewStatusError(http.StatusUnsupportedMediaType, "no exe"), expected: model.TransferResultSpecificUnsupportedMediaType},
		{name: "507", err: NewStatusError(http.StatusInsufficientStorage, ""), expected: model.TransferResultQuotaExceeded},
		{name: "503", err: NewStatusError(http.StatusServiceUnavailable, ""), expected: model.TransferResultServiceUnavailable},
		{name: "503 with message", err: NewStatusError(http.StatusServiceUnavailable, "maintenance"), expected: model.TransferResultSpecificServiceUnavailable},
		{name: "500", err: NewStatusError(http.StatusInternalServerError, ""), expected: model.TransferResultServiceUnavailable},
		{name: "418", err: NewStatusError(http.StatusTeapot, ""), expected: model.TransferResultUnknown},
		{name: "unknown authority", err: &url.Error{Op: "Get", URL: "https://x", Err: x509.UnknownAuthorityError{}}, expected: model.TransferResultSSLRecoverablePeerUnverified},
		{name: "hostname", err: x509.HostnameError{Host: "x"}, expected: model.TransferResultSSLRecoverablePeerUnverified},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, expected: model.TransferResultServiceInterrupted},
		{name: "connection reset", err: &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, expected: model.TransferResultServiceInterrupted},
		{name: "dns", err: dnsErr, expected: model.TransferResultNetworkConnection},
		{name: "deadline", err: context.DeadlineExceeded, expected: model.TransferResultNetworkConnection},
		{name: "missing local file", err: &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrNotExist}, expected: model.TransferResultFileNotFound},
		{name: "permission", err: &fs.PathError{Op: "open", Path: "/x", Err: fs.ErrPermission}, expected: model.TransferResultFileError},
		{name: "unrecognized", err: errors.New("something else"), expected: model.TransferResultUnknown},
		{name: "panicking error", err: panickyError{}, expected: model.TransferResultUnknown},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, FromError(test.err))
		})
	}
}

func TestFromErrorCoversTaxonomy(t *testing.T) {
	seen := map[model.TransferResult]bool{}
	for _, err := range []error{
		nil, context.Canceled, ErrDelayedForWifi, ErrNoCredentials, ErrRemoteConflict, ErrQuotaExceeded,
		NewStatusError(401, ""), NewStatusError(403, ""), NewStatusError(403, "m"), NewStatusError(404, ""),
		NewStatusError(409, ""), NewStatusError(415, "m"), NewStatusError(503, ""), NewStatusError(503, "m"),
		x509.UnknownAuthorityError{}, io.ErrUnexpectedEOF, &net.DNSError{}, fs.ErrPermission, errors.New("x"),
	} {
		seen[FromError(err)] = true
	}

	for _, result := range model.AllTransferResults() {
		assert.True(t, seen[result], "no error maps to %s", result)
	}
}

func TestRetryIfTransient(t *testing.T) {
	assert.True(t, jobrunner.IsRetryable(retryIfTransient(io.ErrUnexpectedEOF)))
	assert.True(t, jobrunner.IsRetryable(retryIfTransient(NewStatusError(502, ""))))
	assert.False(t, jobrunner.IsRetryable(retryIfTransient(NewStatusError(401, ""))))
	assert.Nil(t, retryIfTransient(nil))
}
