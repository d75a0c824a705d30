package transfer

import (
	"strconv"
	"strings"

	"github.com/materials-commons/mcsync/pkg/jobrunner"
)

type Direction string

const (
	DirectionDownload Direction = "download"
	DirectionUpload   Direction = "upload"
)

func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(s)) {
	case DirectionDownload:
		return DirectionDownload, true
	case DirectionUpload:
		return DirectionUpload, true
	default:
		return "", false
	}
}

// Job kinds, registered with the runner by RegisterWorkers.
const (
	KindDownload = "download-file"
	KindUpload   = "upload-file"
)

// Job parameters.
const (
	paramAccount    = "account"
	paramFileID     = "file_id"
	paramTransferID = "transfer_id"
	paramRemotePath = "remote_path"
	paramSpaceID    = "space_id"
	paramWifiOnly   = "wifi_only"
)

func accountTag(accountName string) string {
	return "account:" + accountName
}

func fileTag(fileID int) string {
	return "file:" + strconv.Itoa(fileID)
}

// pathTag identifies a remote path within a space. The default space has
// no prefix.
func pathTag(remotePath, spaceID string) string {
	if spaceID == "" {
		return "path:" + remotePath
	}

	return "path:" + spaceID + ":" + remotePath
}

func transferTag(transferID int) string {
	return "transfer:" + strconv.Itoa(transferID)
}

func directionTag(d Direction) string {
	return string(d)
}

func lockKey(accountName, key string, d Direction) string {
	return strings.Join([]string{accountName, key, string(d)}, "|")
}

func uploadTags(accountName, remotePath, spaceID string) []string {
	return []string{accountTag(accountName), pathTag(remotePath, spaceID), directionTag(DirectionUpload)}
}

func uploadLockKey(accountName, remotePath, spaceID string) string {
	return lockKey(accountName, pathTag(remotePath, spaceID), DirectionUpload)
}

func intParam(spec jobrunner.JobSpec, key string) (int, bool) {
	value, ok := spec.Params[key]
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}

	return n, true
}
