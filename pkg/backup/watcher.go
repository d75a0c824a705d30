package backup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/pkg/errors"
	"github.com/saracen/walker"
)

type WatcherOptionFN func(*Watcher)

// Watcher rescans folder backups when their source directories change.
// fsnotify only watches single directories so every directory of a source
// tree is added, including ones created later.
type Watcher struct {
	scanner         *Scanner
	backups         stor.FolderBackupStor
	debounce        time.Duration
	refreshInterval time.Duration
	watcher         *fsnotify.Watcher

	mu      sync.Mutex
	watched map[string]bool

	log *log.Entry
}

func NewWatcher(scanner *Scanner, backups stor.FolderBackupStor, optFNs ...WatcherOptionFN) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	w := &Watcher{
		scanner:         scanner,
		backups:         backups,
		debounce:        2 * time.Second,
		refreshInterval: 5 * time.Minute,
		watcher:         fw,
		watched:         make(map[string]bool),
		log:             clog.UsingCtx(clog.BackupCtx),
	}

	for _, optFN := range optFNs {
		optFN(w)
	}

	return w, nil
}

func WithDebounce(d time.Duration) WatcherOptionFN {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithRefreshInterval sets how often configurations are reloaded and every
// backup rescanned regardless of events.
func WithRefreshInterval(d time.Duration) WatcherOptionFN {
	return func(w *Watcher) {
		w.refreshInterval = d
	}
}

// Run scans all backups once, then rescans whenever their trees change,
// until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	backups := w.refresh()
	w.scanner.ScanAll()

	refresh := time.NewTicker(w.refreshInterval)
	defer refresh.Stop()

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}

			if !w.relevant(event) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					w.addTree(event.Name)
				}
			}

			pending = true
			debounce.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warnf("Watcher error: %s", err)

		case <-debounce.C:
			if pending {
				pending = false
				w.scanChanged(backups)
			}

		case <-refresh.C:
			backups = w.refresh()
			w.scanner.ScanAll()
		}
	}
}

// relevant drops chmod-only events and anything under hidden entries.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}

	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}

func (w *Watcher) scanChanged(backups []model.FolderBackup) {
	for _, backup := range backups {
		if _, err := w.scanner.Scan(w.reload(backup)); err != nil {
			w.log.Errorf("Scan of folder backup %s/%s failed: %s", backup.AccountName, backup.Name, err)
		}
	}
}

// reload fetches the latest copy of backup so its last sync timestamp is
// current.
func (w *Watcher) reload(backup model.FolderBackup) model.FolderBackup {
	latest, err := w.backups.GetFolderBackup(backup.AccountName, backup.Name)
	if err != nil {
		return backup
	}

	return *latest
}

func (w *Watcher) refresh() []model.FolderBackup {
	backups, err := w.backups.ListFolderBackups()
	if err != nil {
		w.log.Errorf("Unable to list folder backups: %s", err)
		return nil
	}

	for _, backup := range backups {
		w.addTree(backup.SourcePath)
	}

	return backups
}

func (w *Watcher) addTree(root string) {
	dirs := []string{root}
	var mu sync.Mutex

	walkFn := func(pathname string, fi os.FileInfo) error {
		if fi.IsDir() && pathname != root {
			mu.Lock()
			dirs = append(dirs, pathname)
			mu.Unlock()
		}
		return nil
	}

	errorCallback := walker.WithErrorCallback(func(pathname string, err error) error {
		return nil
	})

	if err := walker.Walk(root, walkFn, errorCallback); err != nil {
		w.log.Warnf("Unable to walk %s: %s", root, err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, dir := range dirs {
		if w.watched[dir] {
			continue
		}

		if err := w.watcher.Add(dir); err != nil {
			w.log.Warnf("Unable to watch %s: %s", dir, err)
			continue
		}

		w.watched[dir] = true
	}
}
