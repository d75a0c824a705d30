package transfer

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"syscall"

	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
)

// FromError classifies the error a transfer ended with. nil is a success.
// Every error maps to exactly one result, anything unrecognized to UNKNOWN,
// and a panic raised while inspecting err is turned into UNKNOWN as well.
func FromError(err error) (result model.TransferResult) {
	defer func() {
		if r := recover(); r != nil {
			result = model.TransferResultUnknown
		}
	}()

	if err == nil {
		return model.TransferResultUploaded
	}

	switch {
	case errors.Is(err, context.Canceled):
		return model.TransferResultCancelled
	case errors.Is(err, ErrDelayedForWifi):
		return model.TransferResultDelayedForWifi
	case errors.Is(err, ErrNoCredentials):
		return model.TransferResultCredentialError
	case errors.Is(err, ErrRemoteConflict):
		return model.TransferResultConflictError
	case errors.Is(err, ErrQuotaExceeded):
		return model.TransferResultQuotaExceeded
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return fromStatus(statusErr)
	}

	if isCertificateError(err) {
		return model.TransferResultSSLRecoverablePeerUnverified
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return model.TransferResultServiceInterrupted
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return model.TransferResultNetworkConnection
	}

	if errors.Is(err, fs.ErrNotExist) {
		return model.TransferResultFileNotFound
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) || errors.Is(err, fs.ErrPermission) {
		return model.TransferResultFileError
	}

	return model.TransferResultUnknown
}

func fromStatus(e *StatusError) model.TransferResult {
	switch {
	case e.Code == http.StatusUnauthorized:
		return model.TransferResultCredentialError
	case e.Code == http.StatusForbidden && e.Message != "":
		return model.TransferResultSpecificForbidden
	case e.Code == http.StatusForbidden:
		return model.TransferResultPrivilegesError
	case e.Code == http.StatusNotFound:
		return model.TransferResultFileNotFound
	case e.Code == http.StatusConflict:
		// WebDAV answers 409 when a parent collection is missing.
		return model.TransferResultFolderError
	case e.Code == http.StatusPreconditionFailed:
		return model.TransferResultConflictError
	case e.Code == http.StatusUnsupportedMediaType:
		return model.TransferResultSpecificUnsupportedMediaType
	case e.Code == http.StatusInsufficientStorage:
		return model.TransferResultQuotaExceeded
	case e.Code == http.StatusServiceUnavailable && e.Message != "":
		return model.TransferResultSpecificServiceUnavailable
	case e.Code >= 500 && e.Code <= 599:
		return model.TransferResultServiceUnavailable
	default:
		return model.TransferResultUnknown
	}
}

func isCertificateError(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostnameErr      x509.HostnameError
		verifyErr        *tls.CertificateVerificationError
	)

	return errors.As(err, &unknownAuthority) ||
		errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &verifyErr)
}

// retryIfTransient marks errors the runner should try again.
func retryIfTransient(err error) error {
	if err == nil {
		return nil
	}

	if FromError(err).IsTransient() {
		return jobrunner.Retryable(err)
	}

	return err
}
