package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/labstack/echo/v4"
	"github.com/materials-commons/mcsync/pkg/backup"
	"github.com/materials-commons/mcsync/pkg/config"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transfer daemon and its control API",
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(cmd.Context(), cmd); err != nil {
			log.Fatalf("mcsyncd serve: %s", err)
		}
	},
}

func init() {
	serveCmd.Flags().String("api-address", "", "address of the control API (default "+config.DefaultAPIAddress+")")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cmd *cobra.Command) error {
	if addr, _ := cmd.Flags().GetString("api-address"); addr != "" {
		settings.APIAddress = addr
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("Storage root: %s", settings.Root)
	d := newDaemon(settings)

	if n := d.orch.ResumePendingTransfers(); n != 0 {
		log.Infof("Resumed %d pending transfers", n)
	}

	scanner := backup.NewScanner(d.stors.FolderBackupStor, d.orch)
	watcher, err := backup.NewWatcher(scanner, d.stors.FolderBackupStor, backup.WithRefreshInterval(settings.BackupRescan))
	if err != nil {
		return err
	}

	go func() {
		if err := watcher.Run(ctx); err != nil {
			log.Errorf("Folder backup watcher stopped: %s", err)
		}
	}()

	go pruneFinishedJobs(ctx, d)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupRoutes(RouteDependencies{
		e:        e,
		ctx:      ctx,
		stors:    d.stors,
		orch:     d.orch,
		resolver: d.resolver,
		accounts: d.provider,
		tracker:  d.tracker,
	})

	go func() {
		log.Infof("Control API listening on %s", settings.APIAddress)
		if err := e.Start(settings.APIAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Unable to start web server: %s", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warnf("API shutdown: %s", err)
	}

	return d.runner.Close()
}

// pruneFinishedJobs drops finished job statuses from memory. The transfer
// records keep the outcome.
func pruneFinishedJobs(ctx context.Context, d *daemon) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.runner.PruneFinished(time.Hour); n != 0 {
				log.Debugf("Pruned %d finished jobs", n)
			}
		}
	}
}
