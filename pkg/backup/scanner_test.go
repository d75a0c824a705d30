package backup

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/syncdb/synctest"
	"github.com/materials-commons/mcsync/pkg/transfer"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	mu       sync.Mutex
	requests []transfer.UploadRequest
	reject   map[string]bool
}

func (u *fakeUploader) RequestUpload(req transfer.UploadRequest) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.reject[req.RemotePath] {
		return "", false
	}

	u.requests = append(u.requests, req)
	return "job-" + req.RemotePath, true
}

func (u *fakeUploader) remotePaths() []string {
	u.mu.Lock()
	defer u.mu.Unlock()

	var paths []string
	for _, req := range u.requests {
		paths = append(paths, req.RemotePath)
	}

	sort.Strings(paths)
	return paths
}

func writeAt(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(filepath.Base(path)), 0644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func newBackup(t *testing.T, stors *stor.Stors, source string, lastSync int64) model.FolderBackup {
	backup, err := stors.FolderBackupStor.SaveFolderBackup(&model.FolderBackup{
		Name:              model.PictureUploadsName,
		AccountName:       "alice",
		SourcePath:        source,
		UploadPath:        "/Pictures",
		LastSyncTimestamp: lastSync,
	})
	require.NoError(t, err)
	return *backup
}

func TestScanRequestsNewFiles(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	source := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeAt(t, filepath.Join(source, "old.jpg"), base)
	writeAt(t, filepath.Join(source, "new.jpg"), base.Add(time.Minute))
	writeAt(t, filepath.Join(source, "2024", "trip.jpg"), base.Add(2*time.Minute))
	writeAt(t, filepath.Join(source, ".thumbnails", "t.jpg"), base.Add(3*time.Minute))
	writeAt(t, filepath.Join(source, ".DS_Store"), base.Add(3*time.Minute))

	backup := newBackup(t, stors, source, base.UnixMilli())
	uploader := &fakeUploader{}
	scanner := NewScanner(stors.FolderBackupStor, uploader)

	result, err := scanner.Scan(backup)
	require.NoError(t, err)
	require.Equal(t, ScanResult{Found: 2, Requested: 2}, result)
	require.Equal(t, []string{"/Pictures/2024/trip.jpg", "/Pictures/new.jpg"}, uploader.remotePaths())

	for _, req := range uploader.requests {
		require.Equal(t, model.CreatedByFolderBackup, req.CreatedBy)
		require.Equal(t, model.PictureUploadsName, req.FolderBackupName)
		require.Equal(t, "alice", req.AccountName)
	}

	stored, err := stors.FolderBackupStor.GetFolderBackup("alice", model.PictureUploadsName)
	require.NoError(t, err)
	require.Equal(t, base.Add(2*time.Minute).UnixMilli(), stored.LastSyncTimestamp)

	result, err = scanner.Scan(*stored)
	require.NoError(t, err)
	require.Equal(t, 0, result.Found, "nothing is newer than the last sync")
}

func TestScanStopsAdvancingAtRejection(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	source := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeAt(t, filepath.Join(source, "a.jpg"), base.Add(time.Minute))
	writeAt(t, filepath.Join(source, "b.jpg"), base.Add(2*time.Minute))
	writeAt(t, filepath.Join(source, "c.jpg"), base.Add(3*time.Minute))

	backup := newBackup(t, stors, source, base.UnixMilli())
	uploader := &fakeUploader{reject: map[string]bool{"/Pictures/b.jpg": true}}

	result, err := NewScanner(stors.FolderBackupStor, uploader).Scan(backup)
	require.NoError(t, err)
	require.Equal(t, ScanResult{Found: 3, Requested: 2, Rejected: 1}, result)

	stored, err := stors.FolderBackupStor.GetFolderBackup("alice", model.PictureUploadsName)
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Minute).UnixMilli(), stored.LastSyncTimestamp)
}

func TestScanRetriesRejectionWithSharedMtime(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	source := t.TempDir()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	writeAt(t, filepath.Join(source, "early.jpg"), base.Add(time.Minute))
	writeAt(t, filepath.Join(source, "a.jpg"), base.Add(2*time.Minute))
	writeAt(t, filepath.Join(source, "b.jpg"), base.Add(2*time.Minute))

	backup := newBackup(t, stors, source, base.UnixMilli())
	uploader := &fakeUploader{reject: map[string]bool{"/Pictures/b.jpg": true}}
	scanner := NewScanner(stors.FolderBackupStor, uploader)

	result, err := scanner.Scan(backup)
	require.NoError(t, err)
	require.Equal(t, ScanResult{Found: 3, Requested: 2, Rejected: 1}, result)

	stored, err := stors.FolderBackupStor.GetFolderBackup("alice", model.PictureUploadsName)
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Minute).UnixMilli(), stored.LastSyncTimestamp)

	uploader.reject = nil
	result, err = scanner.Scan(*stored)
	require.NoError(t, err)
	require.Equal(t, ScanResult{Found: 2, Requested: 2}, result)
	require.Contains(t, uploader.remotePaths(), "/Pictures/b.jpg")

	stored, err = stors.FolderBackupStor.GetFolderBackup("alice", model.PictureUploadsName)
	require.NoError(t, err)
	require.Equal(t, base.Add(2*time.Minute).UnixMilli(), stored.LastSyncTimestamp)
}

func TestScanMissingSource(t *testing.T) {
	_, stors := synctest.NewTestStors(t)
	backup := newBackup(t, stors, filepath.Join(t.TempDir(), "gone"), 0)

	_, err := NewScanner(stors.FolderBackupStor, &fakeUploader{}).Scan(backup)
	require.Error(t, err)
}

func TestIsHidden(t *testing.T) {
	require.True(t, isHidden(".git/config"))
	require.True(t, isHidden("a/.b/c"))
	require.False(t, isHidden("a/b.c/d"))
	require.False(t, isHidden("photo.jpg"))
}
