package model

import (
	"encoding/json"
	"fmt"
)

// TransferResult is the closed set of outcomes a finished transfer carries.
type TransferResult int

const (
	TransferResultUnknown TransferResult = iota
	TransferResultUploaded
	TransferResultNetworkConnection
	TransferResultCredentialError
	TransferResultFolderError
	TransferResultConflictError
	TransferResultFileError
	TransferResultPrivilegesError
	TransferResultCancelled
	TransferResultFileNotFound
	TransferResultDelayedForWifi
	TransferResultServiceInterrupted
	TransferResultServiceUnavailable
	TransferResultQuotaExceeded
	TransferResultSSLRecoverablePeerUnverified
	TransferResultSpecificForbidden
	TransferResultSpecificServiceUnavailable
	TransferResultSpecificUnsupportedMediaType
)

var transferResultNames = [...]string{
	TransferResultUnknown:                      "UNKNOWN",
	TransferResultUploaded:                     "UPLOADED",
	TransferResultNetworkConnection:            "NETWORK_CONNECTION",
	TransferResultCredentialError:              "CREDENTIAL_ERROR",
	TransferResultFolderError:                  "FOLDER_ERROR",
	TransferResultConflictError:                "CONFLICT_ERROR",
	TransferResultFileError:                    "FILE_ERROR",
	TransferResultPrivilegesError:              "PRIVILEGES_ERROR",
	TransferResultCancelled:                    "CANCELLED",
	TransferResultFileNotFound:                 "FILE_NOT_FOUND",
	TransferResultDelayedForWifi:               "DELAYED_FOR_WIFI",
	TransferResultServiceInterrupted:           "SERVICE_INTERRUPTED",
	TransferResultServiceUnavailable:           "SERVICE_UNAVAILABLE",
	TransferResultQuotaExceeded:                "QUOTA_EXCEEDED",
	TransferResultSSLRecoverablePeerUnverified: "SSL_RECOVERABLE_PEER_UNVERIFIED",
	TransferResultSpecificForbidden:            "SPECIFIC_FORBIDDEN",
	TransferResultSpecificServiceUnavailable:   "SPECIFIC_SERVICE_UNAVAILABLE",
	TransferResultSpecificUnsupportedMediaType: "SPECIFIC_UNSUPPORTED_MEDIA_TYPE",
}

// AllTransferResults lists every member of the taxonomy in declaration order.
func AllTransferResults() []TransferResult {
	results := make([]TransferResult, len(transferResultNames))
	for i := range transferResultNames {
		results[i] = TransferResult(i)
	}

	return results
}

func (r TransferResult) String() string {
	if r >= 0 && int(r) < len(transferResultNames) {
		return transferResultNames[r]
	}

	return fmt.Sprintf("TransferResult(%d)", int(r))
}

func (r TransferResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r TransferResult) IsSuccess() bool {
	return r == TransferResultUploaded
}

// IsTransient reports whether the failure is worth retrying without the
// user doing anything first.
func (r TransferResult) IsTransient() bool {
	switch r {
	case TransferResultNetworkConnection,
		TransferResultServiceUnavailable,
		TransferResultServiceInterrupted:
		return true
	default:
		return false
	}
}
