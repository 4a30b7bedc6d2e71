package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/njoerd114/notionrelay/internal/config"
	"github.com/njoerd114/notionrelay/internal/model"
	"github.com/njoerd114/notionrelay/internal/setup"
	"github.com/njoerd114/notionrelay/internal/state"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	syncingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8")).Bold(true)
)

func statusStyle(s model.CollectionStatus) lipgloss.Style {
	switch s {
	case model.StatusIdle:
		return idleStyle
	case model.StatusSyncing:
		return syncingStyle
	default:
		return errorStyle
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service, workspace and database sync state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), flags.configPath)
		},
	}
}

func runStatus(ctx context.Context, w io.Writer, cfgPath string) error {
	homeDir, _ := os.UserHomeDir()

	fmt.Fprintln(w, headerStyle.Render("NotionRelay Status"))
	fmt.Fprintln(w, "──────────────────")

	if setup.IsServiceActive() {
		fmt.Fprintln(w, "  Service:   running (systemd --user)")
	} else {
		fmt.Fprintln(w, "  Service:   not running")
	}

	cfg, err := config.Load(cfgPath)
	switch {
	case err == nil:
		fmt.Fprintf(w, "  Config:    %s ✓\n", cfgPath)
		fmt.Fprintf(w, "  Listen:    %s\n", cfg.ListenAddr)
		fmt.Fprintf(w, "  Discovery: every %s\n", cfg.DiscoveryInterval)
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(w, "  Config:    not found (%s)\n", cfgPath)
	default:
		fmt.Fprintf(w, "  Config:    %s (invalid: %v)\n", cfgPath, err)
	}
	fmt.Fprintf(w, "  Logs:      %s\n", setup.LogDir(homeDir))

	if cfg == nil {
		return nil
	}

	storeCfg := state.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}
	if storeCfg.Driver == config.DriverSQLite && storeCfg.DSN == "" {
		storeCfg.DSN, _ = state.DefaultDBPath()
		info, err := os.Stat(storeCfg.DSN)
		if err != nil {
			fmt.Fprintln(w, "  State DB:  not found")
			return nil
		}
		fmt.Fprintf(w, "  State DB:  %s (%s)\n", storeCfg.DSN, humanSize(info.Size()))
	} else {
		fmt.Fprintf(w, "  State DB:  %s\n", storeCfg.Driver)
	}

	store, err := state.Open(ctx, storeCfg)
	if err != nil {
		return fmt.Errorf("opening state store: %w", err)
	}
	defer store.Close()

	creds, err := store.ListCredentials(ctx)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		fmt.Fprintln(w, "  Workspace: none authorized")
		return nil
	}
	for _, cred := range creds {
		colls, err := store.ListCollections(ctx, cred.ID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Workspace: %s\n", headerStyle.Render(cred.OwnerLabel()))
		fmt.Fprint(w, renderCollections(colls))
	}
	return nil
}

// renderCollections formats one row per database with a colored status.
func renderCollections(colls []*model.Collection) string {
	if len(colls) == 0 {
		return mutedStyle.Render("    no databases tracked yet") + "\n"
	}

	nameWidth := len("Database")
	for _, c := range colls {
		nameWidth = max(nameWidth, lipgloss.Width(c.Name))
	}

	var b strings.Builder
	row := func(name, status, pages, synced string) {
		fmt.Fprintf(&b, "    %s  %s  %s  %s\n",
			lipgloss.NewStyle().Width(nameWidth).Render(name),
			lipgloss.NewStyle().Width(8).Render(status),
			lipgloss.NewStyle().Width(6).Align(lipgloss.Right).Render(pages),
			synced,
		)
	}
	row(headerStyle.Render("Database"), headerStyle.Render("Status"), headerStyle.Render("Pages"), headerStyle.Render("Last sync"))
	for _, c := range colls {
		status := statusStyle(c.Status).Render(string(c.Status))
		if !c.Enabled {
			status = mutedStyle.Render("paused")
		}
		synced := mutedStyle.Render("never")
		if !c.LastSyncedAt.IsZero() {
			synced = c.LastSyncedAt.Local().Format(time.DateTime)
		}
		row(c.Name, status, fmt.Sprint(c.PagesSynced), synced)
	}
	return b.String()
}
