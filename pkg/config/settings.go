package config

import (
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/mitchellh/go-homedir"
)

const (
	KeyRoot              = "MCSYNC_ROOT"
	KeyDBDriver          = "MCSYNC_DB_DRIVER"
	KeyDBDSN             = "MCSYNC_DB_DSN"
	KeyWorkers           = "MCSYNC_WORKERS"
	KeyRunnerMaxAttempts = "MCSYNC_RUNNER_MAX_ATTEMPTS"
	KeyRunnerBackoff     = "MCSYNC_RUNNER_BACKOFF"
	KeyRetryCeiling      = "MCSYNC_RETRY_CEILING"
	KeyAPIAddress        = "MCSYNC_API_ADDRESS"
	KeyAccount           = "MCSYNC_ACCOUNT"
	KeyServerURL         = "MCSYNC_SERVER_URL"
	KeyUsername          = "MCSYNC_USERNAME"
	KeyPassword          = "MCSYNC_PASSWORD"
	KeyLogFile           = "MCSYNC_LOG_FILE"
	KeyLogLevel          = "MCSYNC_LOG_LEVEL"
	KeyBackupRescan      = "MCSYNC_BACKUP_RESCAN"
)

const (
	DefaultRootDirName   = ".mcsync"
	DefaultDBDriver      = "sqlite"
	DefaultDBFileName    = "mcsync.db"
	DefaultWorkers       = 4
	DefaultMaxAttempts   = 5
	DefaultRunnerBackoff = 10 * time.Second
	DefaultRetryCeiling  = 3
	DefaultAPIAddress    = "localhost:1352"
	DefaultBackupRescan  = 15 * time.Minute
)

// Settings is the typed view of the keys above with defaults applied.
type Settings struct {
	Root              string
	DBDriver          string
	DBDSN             string
	Workers           int
	RunnerMaxAttempts int
	RunnerBackoff     time.Duration
	RetryCeiling      int
	APIAddress        string
	Account           string
	ServerURL         string
	Username          string
	Password          string
	LogFile           string
	LogLevel          string
	BackupRescan      time.Duration
}

func LoadSettings(c Configer) Settings {
	s := Settings{
		Root:              c.GetKey(KeyRoot),
		DBDriver:          c.GetKeyWithDefault(KeyDBDriver, DefaultDBDriver),
		DBDSN:             c.GetKey(KeyDBDSN),
		Workers:           c.GetIntKeyWithDefault(KeyWorkers, DefaultWorkers),
		RunnerMaxAttempts: c.GetIntKeyWithDefault(KeyRunnerMaxAttempts, DefaultMaxAttempts),
		RunnerBackoff:     c.GetDurationKeyWithDefault(KeyRunnerBackoff, DefaultRunnerBackoff),
		RetryCeiling:      c.GetIntKeyWithDefault(KeyRetryCeiling, DefaultRetryCeiling),
		APIAddress:        c.GetKeyWithDefault(KeyAPIAddress, DefaultAPIAddress),
		Account:           c.GetKey(KeyAccount),
		ServerURL:         c.GetKey(KeyServerURL),
		Username:          c.GetKey(KeyUsername),
		Password:          c.GetKey(KeyPassword),
		LogFile:           c.GetKey(KeyLogFile),
		LogLevel:          c.GetKeyWithDefault(KeyLogLevel, "info"),
		BackupRescan:      c.GetDurationKeyWithDefault(KeyBackupRescan, DefaultBackupRescan),
	}

	if s.Root == "" {
		home, err := homedir.Dir()
		if err != nil {
			log.Warnf("Unable to determine home directory, using current directory: %s", err)
			home = "."
		}
		s.Root = filepath.Join(home, DefaultRootDirName)
	}

	if s.DBDSN == "" && s.DBDriver == DefaultDBDriver {
		s.DBDSN = filepath.Join(s.Root, DefaultDBFileName)
	}

	if s.Workers < 1 {
		s.Workers = 1
	}

	if s.RetryCeiling < 1 {
		s.RetryCeiling = DefaultRetryCeiling
	}

	return s
}
