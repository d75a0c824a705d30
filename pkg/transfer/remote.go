package transfer

import (
	"context"
	"io"
	"time"
)

type RemoteFileInfo struct {
	Path    string
	Size    int64
	IsDir   bool
	ETag    string
	ModTime time.Time
}

// RemoteClient moves bytes to and from the server for one account. Failed
// calls with an HTTP status come back as *StatusError.
type RemoteClient interface {
	Stat(ctx context.Context, remotePath string) (*RemoteFileInfo, error)
	Download(ctx context.Context, remotePath string, w io.Writer) (int64, error)
	Upload(ctx context.Context, remotePath string, r io.Reader, size int64) error
	MkdirAll(ctx context.Context, remoteDir string) error
}

type ClientProvider interface {
	ClientFor(accountName string) (RemoteClient, error)
}

// NetworkPolicy tells upload workers whether Wi-Fi only transfers may run.
type NetworkPolicy interface {
	OnUnmeteredNetwork() bool
}

type unmeteredNetwork struct{}

func (unmeteredNetwork) OnUnmeteredNetwork() bool { return true }

// AlwaysUnmetered is the policy for hosts without metered links.
var AlwaysUnmetered NetworkPolicy = unmeteredNetwork{}
