// Package synctest creates throwaway databases for tests.
package synctest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/materials-commons/mcsync/pkg/syncdb"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var dbCounter atomic.Int64

// OpenTestDB opens a private in-memory sqlite database with the schema
// migrated. Each call gets its own database so tests never see each other's
// rows. The database is closed when the test ends.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbCounter.Add(1))

	db, err := syncdb.Open(syncdb.DriverSqlite, dsn)
	require.NoErrorf(t, err, "syncdb.Open failed: %s", err)

	t.Cleanup(func() {
		time.Sleep(time.Millisecond * 5)
		if sqlDB, err := db.DB(); err == nil && sqlDB != nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

// NewTestStors returns gorm stors over a fresh test database.
func NewTestStors(t *testing.T) (*gorm.DB, *stor.Stors) {
	db := OpenTestDB(t)
	return db, stor.NewGormStors(db)
}

// AddFile catalogs a file for accountName at remotePath and returns it.
func AddFile(t *testing.T, stors *stor.Stors, accountName, remotePath string, size int64) *model.File {
	t.Helper()

	f, err := stors.FileStor.CreateOrUpdateFile(&model.File{
		AccountName: accountName,
		RemotePath:  remotePath,
		Size:        size,
		MimeType:    "application/octet-stream",
	})
	require.NoErrorf(t, err, "Failed creating file %s: %s", remotePath, err)

	return f
}
