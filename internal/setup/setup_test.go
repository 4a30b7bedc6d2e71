package setup

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/notionrelay/internal/config"
)

func TestPrompter_String(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader("\n\nvalue\n"), &out)

	if got := p.String("With default", "dflt"); got != "dflt" {
		t.Errorf("String with default = %q, want dflt", got)
	}
	if got := p.String("Required", ""); got != "value" {
		t.Errorf("String required = %q, want value", got)
	}
	if !strings.Contains(out.String(), "required") {
		t.Error("expected a re-prompt for the empty required value")
	}
}

func TestPrompter_Select(t *testing.T) {
	p := NewPrompter(strings.NewReader("0\nabc\n2\n"), &bytes.Buffer{})
	idx, err := p.Select("Pick", []string{"a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Errorf("idx = %d, want 1", idx)
	}

	if _, err := NewPrompter(strings.NewReader(""), &bytes.Buffer{}).Select("Pick", []string{"a"}); err == nil {
		t.Error("expected error at end of input")
	}
	if _, err := NewPrompter(strings.NewReader("1\n"), &bytes.Buffer{}).Select("Pick", nil); err == nil {
		t.Error("expected error for empty options")
	}
}

func TestPrompter_Confirm(t *testing.T) {
	p := NewPrompter(strings.NewReader("\nyes\nN\n"), &bytes.Buffer{})
	if !p.Confirm("q", true) {
		t.Error("empty answer should take the default")
	}
	if !p.Confirm("q", false) {
		t.Error("yes should confirm")
	}
	if p.Confirm("q", true) {
		t.Error("N should decline")
	}
}

func TestPrompter_Duration(t *testing.T) {
	p := NewPrompter(strings.NewReader("30s\nsoon\n20m\n\n"), &bytes.Buffer{})
	if got := p.Duration("Every", 15*time.Minute, time.Minute); got != 20*time.Minute {
		t.Errorf("Duration = %v, want 20m after two rejected inputs", got)
	}
	if got := p.Duration("Every", 15*time.Minute, time.Minute); got != 15*time.Minute {
		t.Errorf("Duration default = %v, want 15m", got)
	}
}

func TestWriteUnit(t *testing.T) {
	home := t.TempDir()
	if err := WriteUnit(home, "/etc/relay.yaml"); err != nil {
		t.Fatalf("WriteUnit: %v", err)
	}

	data, err := os.ReadFile(UnitPath(home))
	if err != nil {
		t.Fatal(err)
	}
	unit := string(data)
	wantExec := "ExecStart=" + BinaryInstallPath(home) + " serve --config /etc/relay.yaml"
	if !strings.Contains(unit, wantExec) {
		t.Errorf("unit missing %q:\n%s", wantExec, unit)
	}
	if !strings.Contains(unit, "WantedBy=default.target") {
		t.Error("unit is not enabled for the user session")
	}
}

func TestRemoveHelpers_Idempotent(t *testing.T) {
	home := t.TempDir()
	if err := RemoveUnit(home); err != nil {
		t.Errorf("RemoveUnit on missing unit: %v", err)
	}
	if err := RemoveBinary(home); err != nil {
		t.Errorf("RemoveBinary on missing binary: %v", err)
	}
	if err := DisableService(home); err != nil {
		t.Errorf("DisableService without unit: %v", err)
	}
	if err := CreateLogDir(home); err != nil {
		t.Fatal(err)
	}
	if err := PurgeUserData(home); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(LogDir(home)); !os.IsNotExist(err) {
		t.Error("log directory should be purged")
	}
}

func newTestWizard(t *testing.T, input string) (*Wizard, *bytes.Buffer, string) {
	t.Helper()
	home := t.TempDir()
	cfgPath := filepath.Join(home, ".config", "notionrelay", "config.yaml")
	var out bytes.Buffer
	wiz := NewWizard(strings.NewReader(input), &out, cfgPath, home, slog.Default())
	wiz.checkSupermemory = func(context.Context, string) error { return nil }
	wiz.installService = func(string, string) error {
		t.Error("service install should not run")
		return nil
	}
	return wiz, &out, cfgPath
}

func TestWizard_WritesConfig(t *testing.T) {
	for _, k := range []string{"NOTION_CLIENT_ID", "NOTION_CLIENT_SECRET", "NOTION_REDIRECT_URI", "SUPERMEMORY_API_KEY", "DATABASE_URL", "PORT"} {
		t.Setenv(k, "")
	}
	input := strings.Join([]string{
		"cid",
		"csecret",
		"https://relay.example.com/",
		"", // no verification token
		"sm-key",
		"2", // postgres
		"postgres://db/relay",
		"30m",
		"n", // skip service install
	}, "\n") + "\n"

	wiz, out, cfgPath := newTestWizard(t, input)
	if err := wiz.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v\n%s", err, out.String())
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Notion.ClientID != "cid" || cfg.Notion.ClientSecret != "csecret" {
		t.Errorf("notion = %+v", cfg.Notion)
	}
	if cfg.Notion.RedirectURI != "https://relay.example.com/auth/notion/callback" {
		t.Errorf("RedirectURI = %q", cfg.Notion.RedirectURI)
	}
	if cfg.Database.Driver != config.DriverPostgres || cfg.Database.DSN != "postgres://db/relay" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.DiscoveryInterval != 30*time.Minute {
		t.Errorf("DiscoveryInterval = %v", cfg.DiscoveryInterval)
	}
	if !strings.Contains(out.String(), "Skipping service install") {
		t.Error("expected the install step to be skipped")
	}
}

func TestWizard_SupermemoryUnreachable(t *testing.T) {
	input := "cid\ncsecret\n\n\nsm-key\n"
	wiz, _, cfgPath := newTestWizard(t, input)
	wiz.checkSupermemory = func(context.Context, string) error { return errors.New("401 unauthorized") }

	if err := wiz.Run(context.Background()); err == nil {
		t.Fatal("expected error when Supermemory is unreachable")
	}
	if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
		t.Error("config must not be written after a failed check")
	}
}

func TestWizard_KeepExistingConfigAndInstall(t *testing.T) {
	wiz, _, cfgPath := newTestWizard(t, "n\ny\n")
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, []byte("existing: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var installed bool
	wiz.installService = func(home, path string) error {
		installed = path == cfgPath
		return nil
	}
	if err := wiz.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !installed {
		t.Error("expected service install with the existing config path")
	}
	data, _ := os.ReadFile(cfgPath)
	if string(data) != "existing: true\n" {
		t.Error("existing config was modified")
	}
}
