// NotionRelay mirrors Notion databases into Supermemory: a full backfill
// when a database is first seen, webhook-driven updates afterwards, and a
// periodic pass that picks up newly shared databases.
//
// Usage:
//
//	notionrelay setup                       # interactive first-run wizard
//	notionrelay serve [--config <path>]     # HTTP server + periodic discovery
//	notionrelay sync <database-id>          # one backfill, then exit
//	notionrelay discover                    # one discovery pass, then exit
//	notionrelay status                      # credential and database state
//	notionrelay uninstall [--purge]         # stop the service and remove files
//	notionrelay version                     # print version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/njoerd114/notionrelay/internal/config"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	defaultCfg, _ := config.DefaultPath()

	root := &cobra.Command{
		Use:           "notionrelay",
		Short:         "Mirror Notion databases into Supermemory",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(flags.configPath); err != nil {
				cmd.PrintErrln("No config file found. Run 'notionrelay setup' to get started.")
				cmd.PrintErrln()
			}
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultCfg, "path to config.yaml")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(flags),
		newSyncCmd(flags),
		newDiscoverCmd(flags),
		newStatusCmd(flags),
		newSetupCmd(flags),
		newUninstallCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("notionrelay", version)
		},
	}
}

// humanSize returns a human-readable file size string.
func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
