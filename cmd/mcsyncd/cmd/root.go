package cmd

import (
	"os"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/clog"
	"github.com/materials-commons/mcsync/pkg/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile     string
	viperConfig = config.NewViperConfig()
	settings    config.Settings
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcsyncd",
	Short: "Synchronize files between this machine and a WebDAV server",
	Long: `mcsyncd runs uploads and downloads in the background, keeps a durable
record of every transfer, and serves a local control API. Without a
subcommand it runs the daemon.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadSettings()
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := serve(cmd.Context(), serveCmd); err != nil {
			log.Fatalf("mcsyncd: %s", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.String("root", "", "local storage root (default $HOME/.mcsync)")
	flags.String("db-driver", "", "database driver, sqlite or mysql")
	flags.String("db-dsn", "", "database DSN (default <root>/mcsync.db)")
	flags.String("log-file", "", "write logs to a rotating file instead of stdout")
	flags.String("log-level", "", "log level (debug, info, warn, error)")

	bindings := map[string]string{
		config.KeyRoot:     "root",
		config.KeyDBDriver: "db-driver",
		config.KeyDBDSN:    "db-dsn",
		config.KeyLogFile:  "log-file",
		config.KeyLogLevel: "log-level",
	}

	for key, flag := range bindings {
		if err := viperConfig.BindFlag(key, flags.Lookup(flag)); err != nil {
			log.Fatalf("Unable to bind flag %s: %s", flag, err)
		}
	}
}

func loadSettings() error {
	if cfgFile != "" {
		if err := viperConfig.LoadFromPath(cfgFile); err != nil {
			return err
		}
	}

	config.SetConfig(viperConfig)
	settings = config.LoadSettings(viperConfig)

	return setupLogging(settings)
}

func setupLogging(s config.Settings) error {
	clog.UseForPackageLogger()

	if err := clog.SetGlobalLoggerLevelFromString(s.LogLevel); err != nil {
		return err
	}

	w, err := clog.OpenOutput(s.LogFile)
	if err != nil {
		return err
	}

	return clog.SetGlobalOutput(w)
}
