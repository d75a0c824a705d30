package stor

import (
	"path/filepath"
	"strings"
)

// replaceDirPrefix rewrites path when it lives under oldDir. The second
// return is false when path is outside oldDir.
func replaceDirPrefix(path, oldDir, newDir string) (string, bool) {
	oldDir = filepath.Clean(oldDir)
	newDir = filepath.Clean(newDir)

	if path == oldDir {
		return newDir, true
	}

	prefix := oldDir + string(filepath.Separator)
	if !strings.HasPrefix(path, prefix) {
		return path, false
	}

	return filepath.Join(newDir, strings.TrimPrefix(path, prefix)), true
}
