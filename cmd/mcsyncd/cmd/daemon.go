package cmd

import (
	"github.com/materials-commons/mcsync/pkg/config"
	"github.com/materials-commons/mcsync/pkg/jobrunner"
	"github.com/materials-commons/mcsync/pkg/lock"
	"github.com/materials-commons/mcsync/pkg/migration"
	"github.com/materials-commons/mcsync/pkg/storagepath"
	"github.com/materials-commons/mcsync/pkg/syncdb"
	"github.com/materials-commons/mcsync/pkg/syncdb/stor"
	"github.com/materials-commons/mcsync/pkg/transfer"
	"github.com/materials-commons/mcsync/pkg/webdavclient"
)

// daemon holds the long lived components shared by the serve command and
// the API.
type daemon struct {
	stors    *stor.Stors
	resolver *storagepath.Resolver
	lease    *lock.Lease
	runner   *jobrunner.LocalRunner
	orch     *transfer.Orchestrator
	provider *webdavclient.Provider
	tracker  *migration.Tracker
}

func newStors(s config.Settings) *stor.Stors {
	return stor.NewGormStors(syncdb.MustConnectToDB(s.DBDriver, s.DBDSN))
}

func accountsFromSettings(s config.Settings) []webdavclient.Account {
	if s.Account == "" || s.ServerURL == "" {
		return nil
	}

	return []webdavclient.Account{
		{Name: s.Account, URL: s.ServerURL, Username: s.Username, Password: s.Password},
	}
}

func newDaemon(s config.Settings) *daemon {
	d := &daemon{
		stors:    newStors(s),
		resolver: storagepath.NewResolver(s.Root),
		lease:    lock.NewLease(),
		provider: webdavclient.NewProvider(accountsFromSettings(s)),
	}

	d.runner = jobrunner.NewLocalRunner(
		jobrunner.WithConcurrency(s.Workers),
		jobrunner.WithMaxAttempts(s.RunnerMaxAttempts),
		jobrunner.WithBackoff(s.RunnerBackoff, 0),
	)

	d.orch = transfer.NewOrchestrator(d.runner, d.stors,
		transfer.WithLease(d.lease),
		transfer.WithRetryCeiling(s.RetryCeiling),
	)

	transfer.RegisterWorkers(d.runner, d.orch, d.resolver, d.provider, transfer.AlwaysUnmetered)

	migrator := migration.NewMigrator(d.stors, d.lease, d.orch, migration.WithRootChanged(d.rootChanged))
	d.tracker = migration.NewTracker(migrator)

	return d
}

// rootChanged moves the running daemon to the migrated root. The new root
// must also be configured for the next start.
func (d *daemon) rootChanged(newRoot string) {
	d.resolver.SetRoot(newRoot)
	warnRootChanged(newRoot)
}
