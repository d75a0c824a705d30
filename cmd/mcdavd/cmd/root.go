package cmd

import (
	"net/http"
	"os"

	"github.com/apex/log"
	"github.com/materials-commons/mcsync/pkg/davserver"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcdavd",
	Short: "Run a WebDAV server to sync against",
	Long: `mcdavd serves a directory (or memory when no directory is given) over
WebDAV with optional basic authentication. It is meant for local testing of
mcsyncd.`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		address, _ := flags.GetString("address")
		opts := davserver.Options{}
		opts.Prefix, _ = flags.GetString("prefix")
		opts.Root, _ = flags.GetString("root")
		opts.Username, _ = flags.GetString("username")
		opts.Password, _ = flags.GetString("password")

		if opts.Username == "" {
			opts.Username = os.Getenv("MCDAVD_USERNAME")
		}

		if opts.Password == "" {
			opts.Password = os.Getenv("MCDAVD_PASSWORD")
		}

		mux := http.NewServeMux()
		mux.Handle("/", davserver.NewHandler(opts))

		log.Infof("Serving WebDAV on %s (root %q, prefix %q)", address, opts.Root, opts.Prefix)
		if err := http.ListenAndServe(address, mux); err != nil {
			log.Fatalf("mcdavd: %s", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("address", "localhost:8555", "listen address")
	rootCmd.Flags().String("prefix", "", "URL prefix to strip, for example /webdav")
	rootCmd.Flags().String("root", "", "directory to serve (default in memory)")
	rootCmd.Flags().String("username", "", "basic auth user, also MCDAVD_USERNAME")
	rootCmd.Flags().String("password", "", "basic auth password, also MCDAVD_PASSWORD")
}
