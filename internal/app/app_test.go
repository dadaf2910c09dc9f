package app_test

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"pv-go/internal/app"
	"pv-go/internal/config"
	"pv-go/internal/pv"
)

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		HostID:   "test-host",
		BaseDir:  dir,
		LogDir:   filepath.Join(dir, "log"),
		Database: config.DatabaseConfig{Type: "memory"},
		Archive: config.ArchiveConfig{
			Vault: config.VaultConfig{Type: "memory", Name: "test"},
			Encryption: config.EncryptionConfig{
				Type:           "age",
				PublicKeyPath:  filepath.Join(dir, "keys", "pv.pub"),
				PrivateKeyPath: filepath.Join(dir, "keys", "pv.key"),
			},
		},
	}
}

func newTestApp(t *testing.T) *app.PVApp {
	t.Helper()
	a, err := app.NewPVApp(newTestConfig(t), "Test")
	if err != nil {
		t.Fatalf("NewPVApp() unexpected error: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestNewPVApp(t *testing.T) {
	t.Run("wires the engine end to end", func(t *testing.T) {
		a := newTestApp(t)

		result := a.FilterContent("/home/tanasi/mail.txt", "email: tanasi@example.com")
		if result.AppliedLevel != int(pv.LevelPrivate) {
			t.Errorf("FilterContent() applied = %d, want private", result.AppliedLevel)
		}
		if !strings.Contains(result.Content, "[EMAIL_REDACTED]") {
			t.Errorf("FilterContent() content = %q", result.Content)
		}
	})

	t.Run("rejects an unmigrated sqlite database", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: t.TempDir()}

		if _, err := app.NewPVApp(cfg, "Test"); err == nil {
			t.Error("NewPVApp() expected error for unmigrated schema, got nil")
		}
	})

	t.Run("configured owner groups win over defaults", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Owners = []config.OwnerGroupConfig{
			{Name: "team", Patterns: []string{"/shared/projects/"}},
		}
		a, err := app.NewPVApp(cfg, "Test")
		if err != nil {
			t.Fatalf("NewPVApp() unexpected error: %v", err)
		}
		defer a.Close()

		result := a.FilterContent("/shared/projects/plan.txt", "hello")
		if result.Owner != "team" {
			t.Errorf("FilterContent() owner = %q, want team", result.Owner)
		}
	})
}

func TestPVAppRules(t *testing.T) {
	a := newTestApp(t)

	t.Run("upsert with a level name", func(t *testing.T) {
		id, err := a.UpsertRule("finance", "**/finance/**", "restricted", "")
		if err != nil {
			t.Fatalf("UpsertRule() unexpected error: %v", err)
		}
		if id == "" {
			t.Error("UpsertRule() returned an empty ID")
		}

		rules, err := a.ListRules()
		if err != nil {
			t.Fatalf("ListRules() unexpected error: %v", err)
		}
		if len(rules) != 1 || rules[0].TargetLevel != int(pv.LevelRestricted) {
			t.Errorf("ListRules() = %+v", rules)
		}
	})

	t.Run("rejects an unknown level name", func(t *testing.T) {
		if _, err := a.UpsertRule("bad", "*", "topsecret", ""); err == nil {
			t.Error("UpsertRule() expected error for unknown level, got nil")
		}
	})
}

func TestPVAppOverridesAndPreferences(t *testing.T) {
	a := newTestApp(t)

	if err := a.SetFileOverride("/home/ada/x.txt", "ada", "blocked", "hold"); err != nil {
		t.Fatalf("SetFileOverride() unexpected error: %v", err)
	}
	override, err := a.GetFileOverride("/home/ada/x.txt")
	if err != nil {
		t.Fatalf("GetFileOverride() unexpected error: %v", err)
	}
	if override == nil || override.Level != int(pv.LevelBlocked) {
		t.Errorf("GetFileOverride() = %+v", override)
	}

	if err := a.SetUserPreference("ada", "restricted", false, true); err != nil {
		t.Fatalf("SetUserPreference() unexpected error: %v", err)
	}
	pref, err := a.GetUserPreference("ada")
	if err != nil {
		t.Fatalf("GetUserPreference() unexpected error: %v", err)
	}
	if pref.DefaultLevel != int(pv.LevelRestricted) {
		t.Errorf("GetUserPreference() = %+v", pref)
	}

	if err := a.SetFileOverride("/x", "ada", "nope", ""); err == nil {
		t.Error("SetFileOverride() expected error for unknown level, got nil")
	}
}

func TestPVAppArchiveFlow(t *testing.T) {
	a := newTestApp(t)

	if err := a.SetupArchiveKeys("correct horse"); err != nil {
		t.Fatalf("SetupArchiveKeys() unexpected error: %v", err)
	}

	a.FilterContent("/home/ada/notes.txt", "email a@example.com")

	archiveID, count, err := a.ArchiveAudit(0)
	if err != nil {
		t.Fatalf("ArchiveAudit() unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("ArchiveAudit() count = %d, want 1", count)
	}

	ids, err := a.ListArchives()
	if err != nil {
		t.Fatalf("ListArchives() unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != archiveID {
		t.Errorf("ListArchives() = %v, want [%s]", ids, archiveID)
	}

	var restored bytes.Buffer
	if err := a.RestoreArchive(archiveID, "correct horse", &restored); err != nil {
		t.Fatalf("RestoreArchive() unexpected error: %v", err)
	}
	if !strings.Contains(restored.String(), "/home/ada/notes.txt") {
		t.Errorf("RestoreArchive() output missing the audited path: %q", restored.String())
	}

	stats, err := a.GetAuditWindowStats(24)
	if err != nil {
		t.Fatalf("GetAuditWindowStats() unexpected error: %v", err)
	}
	if stats.TotalFiles != 0 {
		t.Errorf("TotalFiles = %d after archiving, want 0", stats.TotalFiles)
	}
}
