package storagepath

import (
	"os"
	"sync/atomic"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/saracen/walker"
)

// DirSize sums the length of every regular file below dir. Entries that
// vanish or cannot be read during the walk are skipped. A missing dir has
// size 0.
func DirSize(dir string) (int64, error) {
	if _, err := os.Lstat(dir); err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, errors.Wrapf(err, "unable to stat %s", dir)
	}

	var total atomic.Int64

	walkFn := func(pathname string, fi os.FileInfo) error {
		if fi.Mode().IsRegular() {
			total.Add(fi.Size())
		}

		return nil
	}

	errorCallback := walker.WithErrorCallback(func(pathname string, err error) error {
		log.Debugf("Skipping %s while sizing %s: %s", pathname, dir, err)
		return nil
	})

	if err := walker.Walk(dir, walkFn, errorCallback); err != nil {
		return total.Load(), errors.Wrapf(err, "unable to size %s", dir)
	}

	return total.Load(), nil
}
