package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/materials-commons/mcsync/pkg/syncdb/synctest"
	"github.com/stretchr/testify/require"
)

func TestWatcherRescansOnChange(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	source := t.TempDir()
	writeAt(t, filepath.Join(source, "existing.jpg"), time.Now().Add(-time.Minute))
	newBackup(t, stors, source, 0)

	uploader := &fakeUploader{}
	scanner := NewScanner(stors.FolderBackupStor, uploader)
	w, err := NewWatcher(scanner, stors.FolderBackupStor, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool {
		return len(uploader.remotePaths()) == 1
	}, 5*time.Second, 10*time.Millisecond, "initial scan")

	require.NoError(t, os.MkdirAll(filepath.Join(source, "later"), 0755))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(source, "later", "fresh.jpg"), []byte("fresh"), 0644))

	require.Eventually(t, func() bool {
		return len(uploader.remotePaths()) == 2
	}, 5*time.Second, 10*time.Millisecond, "rescan after change")
	require.Equal(t, []string{"/Pictures/existing.jpg", "/Pictures/later/fresh.jpg"}, uploader.remotePaths())
}
