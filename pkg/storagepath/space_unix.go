//go:build unix

package storagepath

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// UsableSpace returns the bytes available to an unprivileged user on the
// filesystem holding dir.
func UsableSpace(dir string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(existingAncestor(dir), &stat); err != nil {
		return 0, errors.Wrapf(err, "unable to determine free space for %s", dir)
	}

	return int64(stat.Bavail) * int64(stat.Bsize), nil
}
