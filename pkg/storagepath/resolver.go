// Package storagepath maps accounts and remote paths onto the local storage
// tree and answers size questions about it.
//
// The layout under the root is:
//
//	<root>/<encoded account>/<remote path>
//	<root>/<encoded account>/<space id>/<remote path>
//	<root>/tmp/<encoded account>[/<space id>]   partial downloads
//	<root>/logs                                 daemon logs
package storagepath

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

const (
	TemporalDirName = "tmp"
	LogsDirName     = "logs"
)

// Resolver is safe for concurrent use. Its root changes only when the store
// is migrated.
type Resolver struct {
	mu   sync.RWMutex
	root string
}

func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

func (r *Resolver) RootFolder() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.root
}

// SetRoot points the resolver at a new root, as after a migration.
func (r *Resolver) SetRoot(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = filepath.Clean(root)
}

// WithRoot returns a resolver for the same layout under a different root.
func (r *Resolver) WithRoot(root string) *Resolver {
	return NewResolver(root)
}

func (r *Resolver) AccountDirectoryPath(accountName string) string {
	return filepath.Join(r.RootFolder(), EncodeAccountName(accountName))
}

// DefaultSavePathFor is where a downloaded remote file lives locally.
func (r *Resolver) DefaultSavePathFor(accountName, remotePath, spaceID string) string {
	parts := []string{r.AccountDirectoryPath(accountName)}
	if spaceID != "" {
		parts = append(parts, spaceID)
	}

	parts = append(parts, filepath.FromSlash(path.Clean("/"+remotePath)))
	return filepath.Join(parts...)
}

func (r *Resolver) TemporalPath(accountName, spaceID string) string {
	p := filepath.Join(r.RootFolder(), TemporalDirName, EncodeAccountName(accountName))
	if spaceID != "" {
		p = filepath.Join(p, spaceID)
	}

	return p
}

func (r *Resolver) LogsPath() string {
	return filepath.Join(r.RootFolder(), LogsDirName)
}

// EncodeAccountName turns an account name (usually user@host) into a single
// path element. Unreserved characters pass through, everything else is
// percent encoded, so the name decodes back exactly.
func EncodeAccountName(accountName string) string {
	var sb strings.Builder
	for i := 0; i < len(accountName); i++ {
		c := accountName[i]
		if isUnreserved(c) {
			sb.WriteByte(c)
			continue
		}

		sb.WriteByte('%')
		sb.WriteByte("0123456789ABCDEF"[c>>4])
		sb.WriteByte("0123456789ABCDEF"[c&15])
	}

	return sb.String()
}

func DecodeAccountName(dirName string) (string, error) {
	return url.PathUnescape(dirName)
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}

	return strings.IndexByte("_-!.~'()*@", c) != -1
}
