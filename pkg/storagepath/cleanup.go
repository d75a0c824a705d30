package storagepath

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
)

// existingAncestor walks up from dir until it finds something that exists,
// so space can be measured for a root that has not been created yet.
func existingAncestor(dir string) string {
	dir = filepath.Clean(dir)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// DeleteUnusedUserDirs removes every account directory under the root that
// does not belong to one of remainingAccounts. The tmp and logs directories
// are kept. Failures are logged and the scan goes on; directories created
// while it runs may or may not be seen. It returns the removed paths.
func (r *Resolver) DeleteUnusedUserDirs(remainingAccounts []string) []string {
	keep := make(map[string]bool, len(remainingAccounts))
	for _, account := range remainingAccounts {
		keep[account] = true
	}

	root := r.RootFolder()
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Errorf("Unable to read storage root %s: %s", root, err)
		}
		return nil
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		name := entry.Name()
		if name == TemporalDirName || name == LogsDirName {
			continue
		}

		if accountName, err := DecodeAccountName(name); err == nil && keep[accountName] {
			continue
		}

		dir := filepath.Join(root, name)
		if err := os.RemoveAll(dir); err != nil {
			log.Errorf("Unable to remove unused account directory %s: %s", dir, err)
			continue
		}

		log.Infof("Removed unused account directory %s", dir)
		removed = append(removed, dir)
	}

	return removed
}
