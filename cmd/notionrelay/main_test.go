package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/njoerd114/notionrelay/internal/config"
	"github.com/njoerd114/notionrelay/internal/model"
)

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.in); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderCollections(t *testing.T) {
	out := renderCollections([]*model.Collection{
		{ID: "a", Name: "Tasks", Enabled: true, Status: model.StatusIdle, PagesSynced: 12, LastSyncedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{ID: "b", Name: "Reading list", Enabled: true, Status: model.StatusError},
		{ID: "c", Name: "Archive", Enabled: false, Status: model.StatusIdle},
	})

	for _, want := range []string{"Tasks", "idle", "12", "Reading list", "error", "never", "Archive", "paused"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 4 {
		t.Errorf("got %d lines, want header + 3 rows", lines)
	}
}

func TestRenderCollections_Empty(t *testing.T) {
	if out := renderCollections(nil); !strings.Contains(out, "no databases tracked") {
		t.Errorf("output = %q", out)
	}
}

func TestStatusStyle(t *testing.T) {
	if statusStyle(model.StatusIdle).GetForeground() == statusStyle(model.StatusError).GetForeground() {
		t.Error("idle and error should render in different colors")
	}
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relay.log")
	var stderr bytes.Buffer

	logger, closeFn := newLogger(config.LogConfig{Level: "warn", File: path}, false, &stderr)
	logger.Info("dropped")
	logger.Warn("kept", "collection_id", "db-1")
	closeFn()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "kept") || strings.Contains(string(data), "dropped") {
		t.Errorf("log file = %q", data)
	}
	if !strings.Contains(stderr.String(), "collection_id=db-1") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestNewLogger_VerboseOverridesLevel(t *testing.T) {
	var stderr bytes.Buffer
	logger, closeFn := newLogger(config.LogConfig{Level: "error"}, true, &stderr)
	defer closeFn()
	logger.Debug("debugging")
	if !strings.Contains(stderr.String(), "debugging") {
		t.Error("verbose should enable debug output")
	}
}

func TestRootCmd_Version(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "notionrelay dev" {
		t.Errorf("version output = %q", out.String())
	}
}

func TestRootCmd_SyncRequiresArgument(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sync"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an argument error")
	}
}
