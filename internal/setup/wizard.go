package setup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/njoerd114/notionrelay/internal/config"
	"github.com/njoerd114/notionrelay/internal/supermemory"
)

// Wizard guides the user through first-run configuration and installation.
type Wizard struct {
	prompt  *Prompter
	logger  *slog.Logger
	w       io.Writer
	cfgPath string
	homeDir string

	// Swappable for tests.
	checkSupermemory func(ctx context.Context, apiKey string) error
	installService   func(homeDir, cfgPath string) error
}

// NewWizard creates a Wizard that writes its config to cfgPath.
func NewWizard(r io.Reader, w io.Writer, cfgPath, homeDir string, logger *slog.Logger) *Wizard {
	return &Wizard{
		prompt:  NewPrompter(r, w),
		logger:  logger,
		w:       w,
		cfgPath: cfgPath,
		homeDir: homeDir,
		checkSupermemory: func(ctx context.Context, apiKey string) error {
			return supermemory.NewClient(supermemory.DefaultBaseURL, apiKey, logger).Ping(ctx)
		},
		installService: installService,
	}
}

// Run executes the interactive setup wizard.
func (wiz *Wizard) Run(ctx context.Context) error {
	fmt.Fprintf(wiz.w, "\nWelcome to NotionRelay Setup!\n")
	fmt.Fprintf(wiz.w, "This wizard writes your configuration and can install NotionRelay as a service.\n\n")

	if _, statErr := os.Stat(wiz.cfgPath); statErr == nil {
		fmt.Fprintf(wiz.w, "  Existing config found at %s\n", wiz.cfgPath)
		if !wiz.prompt.Confirm("Overwrite existing configuration?", false) {
			fmt.Fprintf(wiz.w, "\n  Keeping existing config.\n")
			return wiz.offerServiceInstall()
		}
		fmt.Fprintf(wiz.w, "\n")
	}

	cfg := &config.Config{}

	fmt.Fprintf(wiz.w, "Step 1/5: Notion Integration\n")
	fmt.Fprintf(wiz.w, "  Create a public integration at https://www.notion.so/my-integrations\n")
	cfg.Notion.ClientID = wiz.prompt.String("OAuth client ID", "")
	cfg.Notion.ClientSecret = wiz.prompt.Secret("OAuth client secret")
	cfg.PublicURL = strings.TrimRight(wiz.prompt.String("Public URL of this server", "http://localhost:3000"), "/")
	cfg.Webhook.VerificationToken = wiz.prompt.Optional("Webhook verification token")
	fmt.Fprintf(wiz.w, "  Redirect URI to register: %s/auth/notion/callback\n\n", cfg.PublicURL)

	fmt.Fprintf(wiz.w, "Step 2/5: Supermemory\n")
	cfg.Supermemory.APIKey = wiz.prompt.Secret("API key")
	fmt.Fprintf(wiz.w, "  Connecting to Supermemory...")
	if err := wiz.checkSupermemory(ctx, cfg.Supermemory.APIKey); err != nil {
		fmt.Fprintf(wiz.w, " ✗\n")
		return fmt.Errorf("cannot reach Supermemory: %w\n\n  Check the API key, then try again", err)
	}
	fmt.Fprintf(wiz.w, " ✓\n\n")

	fmt.Fprintf(wiz.w, "Step 3/5: State Storage\n")
	idx, err := wiz.prompt.Select("Where should sync state live", []string{
		"SQLite file (single host)",
		"PostgreSQL",
	})
	if err != nil {
		return fmt.Errorf("selecting storage: %w", err)
	}
	if idx == 0 {
		cfg.Database.Driver = config.DriverSQLite
	} else {
		cfg.Database.Driver = config.DriverPostgres
		cfg.Database.DSN = wiz.prompt.String("Connection URL (postgres://...)", "")
	}
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 4/5: Discovery\n")
	cfg.DiscoveryInterval = wiz.prompt.Duration("How often to look for newly shared databases?", 15*time.Minute, time.Minute)
	fmt.Fprintf(wiz.w, "\n")

	fmt.Fprintf(wiz.w, "Step 5/5: Save Configuration\n")
	cfg.Log.File = LogFile(wiz.homeDir)
	if err := cfg.Write(wiz.cfgPath); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(wiz.w, "  ✓ Config written to %s\n\n", wiz.cfgPath)

	return wiz.offerServiceInstall()
}

// offerServiceInstall asks whether to install the systemd user service.
func (wiz *Wizard) offerServiceInstall() error {
	if !wiz.prompt.Confirm("Install as a systemd user service (starts on login)?", true) {
		fmt.Fprintf(wiz.w, "\n  Skipping service install.\n")
		fmt.Fprintf(wiz.w, "  You can run manually with: notionrelay serve\n")
		fmt.Fprintf(wiz.w, "  Or install later with:     notionrelay setup\n\n")
		return nil
	}

	fmt.Fprintf(wiz.w, "\n")
	if err := wiz.installService(wiz.homeDir, wiz.cfgPath); err != nil {
		return err
	}
	fmt.Fprintf(wiz.w, "  ✓ Service installed and running\n")

	fmt.Fprintf(wiz.w, "\nSetup complete! NotionRelay is running in the background.\n")
	fmt.Fprintf(wiz.w, "  Config:  %s\n", wiz.cfgPath)
	fmt.Fprintf(wiz.w, "  Logs:    %s\n", LogDir(wiz.homeDir))
	fmt.Fprintf(wiz.w, "  Status:  notionrelay status\n")
	fmt.Fprintf(wiz.w, "  Remove:  notionrelay uninstall\n\n")
	return nil
}

func installService(homeDir, cfgPath string) error {
	if err := InstallBinary(homeDir); err != nil {
		return fmt.Errorf("installing binary: %w", err)
	}
	if err := WriteUnit(homeDir, cfgPath); err != nil {
		return fmt.Errorf("writing unit: %w", err)
	}
	if err := CreateLogDir(homeDir); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	if err := EnableService(); err != nil {
		return fmt.Errorf("enabling service: %w", err)
	}
	return nil
}
