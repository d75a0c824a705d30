package syncdb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/syncdb/model"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const SqliteInMemoryDSN = "file::memory:?cache=shared"

const (
	DriverSqlite = "sqlite"
	DriverMysql  = "mysql"
)

// Open connects to driver/dsn and brings the schema up to date. Sqlite
// databases are limited to a single connection to avoid table lock errors
// from concurrent writers.
func Open(driver, dsn string) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSqlite, "":
		if dsn != SqliteInMemoryDSN && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, err
			}
		}
		dialector = sqlite.Open(withForeignKeys(dsn))
	case DriverMysql:
		dialector = mysql.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, err
	}

	if driver != DriverMysql {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := RunMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "_foreign_keys") {
		return dsn
	}

	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=1"
	}

	return dsn + "?_foreign_keys=1"
}

const maxDBRetries = 5

// MustConnectToDB will attempt to connect to the database maxDBRetries times. If it isn't successful
// after that number of retries then it will call log.Fatalf(). Between retry attempts it sleeps
// for 3 seconds.
func MustConnectToDB(driver, dsn string) *gorm.DB {
	retryCount := 1
	for {
		db, err := Open(driver, dsn)
		switch {
		case err == nil:
			return db
		case retryCount >= maxDBRetries:
			log.Fatalf("Failed to open db (%s): %s", driver, err)
		default:
			retryCount++
			time.Sleep(3 * time.Second)
		}
	}
}

func RunMigrations(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.File{},
		&model.FileSync{},
		&model.Transfer{},
		&model.FolderBackup{},
	)
}
