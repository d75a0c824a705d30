// Package backup originates automatic uploads from folder backup
// configurations.
package backup

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/transfer"
	"github.com/pkg/errors"
	"github.com/saracen/walker"
)

// Uploader accepts upload requests. *transfer.Orchestrator implements it.
type Uploader interface {
	RequestUpload(req transfer.UploadRequest) (string, bool)
}

type candidate struct {
	localPath string
	rel       string
	mtime     int64
}

type ScanResult struct {
	Found     int
	Requested int
	Rejected  int
}

type Scanner struct {
	backups  stor.FolderBackupStor
	uploader Uploader
	log      *log.Entry
}

func NewScanner(backups stor.FolderBackupStor, uploader Uploader) *Scanner {
	return &Scanner{
		backups:  backups,
		uploader: uploader,
		log:      clog.UsingCtx(clog.BackupCtx),
	}
}

// Scan requests an upload for every file under the backup's source path
// modified after its last sync timestamp. Hidden files and directories are
// ignored. The last sync timestamp only advances past mtimes whose requests
// were all accepted, oldest first, so a rejected file is picked up again by
// the next scan. Accepted files sharing its mtime are requested again too.
func (s *Scanner) Scan(backup model.FolderBackup) (ScanResult, error) {
	var result ScanResult

	candidates, err := s.findCandidates(backup)
	if err != nil {
		return result, err
	}

	result.Found = len(candidates)
	lastSync := backup.LastSyncTimestamp
	advancing := true

	// settled is the newest mtime whose files were all accepted. Files sharing
	// the mtime of a rejected one must stay newer than the last sync.
	settled := lastSync

	for _, c := range candidates {
		if advancing && c.mtime != lastSync {
			settled = lastSync
		}

		_, ok := s.uploader.RequestUpload(transfer.UploadRequest{
			AccountName:      backup.AccountName,
			LocalPath:        c.localPath,
			RemotePath:       path.Join("/", backup.UploadPath, c.rel),
			SpaceID:          backup.SpaceID,
			CreatedBy:        model.CreatedByFolderBackup,
			FolderBackupName: backup.Name,
		})

		if !ok {
			result.Rejected++
			if advancing {
				lastSync = settled
			}
			advancing = false
			continue
		}

		result.Requested++
		if advancing {
			lastSync = c.mtime
		}
	}

	if lastSync != backup.LastSyncTimestamp {
		if err := s.backups.UpdateLastSyncTimestamp(backup.ID, lastSync); err != nil {
			return result, errors.Wrapf(err, "unable to update last sync of %s", backup.Name)
		}
	}

	if result.Found != 0 {
		s.log.Infof("Folder backup %s/%s: %d found, %d requested, %d rejected",
			backup.AccountName, backup.Name, result.Found, result.Requested, result.Rejected)
	}

	return result, nil
}

// ScanAll scans every configured folder backup. A failing backup is logged
// and does not stop the others.
func (s *Scanner) ScanAll() {
	backups, err := s.backups.ListFolderBackups()
	if err != nil {
		s.log.Errorf("Unable to list folder backups: %s", err)
		return
	}

	for _, backup := range backups {
		if _, err := s.Scan(backup); err != nil {
			s.log.Errorf("Scan of folder backup %s/%s failed: %s", backup.AccountName, backup.Name, err)
		}
	}
}

func (s *Scanner) findCandidates(backup model.FolderBackup) ([]candidate, error) {
	root := filepath.Clean(backup.SourcePath)
	if _, err := os.Stat(root); err != nil {
		return nil, errors.Wrapf(err, "unable to scan %s", root)
	}

	var (
		mu         sync.Mutex
		candidates []candidate
	)

	walkFn := func(pathname string, fi os.FileInfo) error {
		if !fi.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, pathname)
		if err != nil || isHidden(rel) {
			return nil
		}

		mtime := fi.ModTime().UnixMilli()
		if mtime <= backup.LastSyncTimestamp {
			return nil
		}

		mu.Lock()
		candidates = append(candidates, candidate{localPath: pathname, rel: filepath.ToSlash(rel), mtime: mtime})
		mu.Unlock()
		return nil
	}

	errorCallback := walker.WithErrorCallback(func(pathname string, err error) error {
		s.log.Debugf("Skipping %s: %s", pathname, err)
		return nil
	})

	if err := walker.Walk(root, walkFn, errorCallback); err != nil {
		return nil, errors.Wrapf(err, "unable to scan %s", root)
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].mtime != candidates[j].mtime {
			return candidates[i].mtime < candidates[j].mtime
		}
		return candidates[i].rel < candidates[j].rel
	})

	return candidates, nil
}

func isHidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}

	return false
}
