package pv_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"pv-go/internal/encryption"
	"pv-go/internal/model"
	"pv-go/internal/pv"
	"pv-go/internal/testutil"
	"pv-go/internal/vault"
)

func newArchiveEngine(t *testing.T, store pv.Store, clock pv.Clock) (*pv.Engine, *vault.MemoryVault) {
	t.Helper()

	v := vault.NewMemoryVault("test")
	enc := encryption.NewTestEncryptor()
	if err := enc.Setup("correct horse"); err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}

	engine := pv.NewEngine(
		store, v, enc,
		pv.NewOwnershipResolver(pv.DefaultOwnerGroups()),
		pv.NewRedactor(0),
		pv.NewDecisionCache(0, 0),
		pv.NewNopLogger(),
		clock,
		testutil.NewStubIDGenerator(),
	)
	return engine, v
}

func TestEngineArchiveAudit(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		clock := testutil.FixedClock()
		engine, _ := newArchiveEngine(t, store, clock)

		engine.FilterContent("/home/ada/a.txt", "email a@example.com")
		engine.FilterContent("/home/ada/b.txt", "plain")

		clock.Advance(48 * time.Hour)

		archiveID, count, err := engine.ArchiveAudit("host-1", 24*time.Hour)
		if err != nil {
			t.Fatalf("ArchiveAudit() unexpected error: %v", err)
		}
		if count != 2 {
			t.Errorf("ArchiveAudit() count = %d, want 2", count)
		}
		if archiveID == "" {
			t.Fatal("ArchiveAudit() returned an empty archive ID")
		}
		if !strings.Contains(archiveID, "Z-") {
			t.Errorf("ArchiveAudit() id = %q, want a timestamped ID", archiveID)
		}

		// Exported records are pruned locally.
		if got := len(store.AuditRecords()); got != 0 {
			t.Errorf("got %d local audit records after archiving, want 0", got)
		}

		ids, err := engine.ListArchives("host-1")
		if err != nil {
			t.Fatalf("ListArchives() unexpected error: %v", err)
		}
		if len(ids) != 1 || ids[0] != archiveID {
			t.Errorf("ListArchives() = %v, want [%s]", ids, archiveID)
		}

		var restored bytes.Buffer
		if err := engine.RestoreArchive("host-1", archiveID, "correct horse", &restored); err != nil {
			t.Fatalf("RestoreArchive() unexpected error: %v", err)
		}

		var records []model.AuditRecord
		scanner := bufio.NewScanner(&restored)
		for scanner.Scan() {
			var r model.AuditRecord
			if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
				t.Fatalf("restored line is not valid JSON: %v", err)
			}
			records = append(records, r)
		}
		if len(records) != 2 {
			t.Fatalf("restored %d records, want 2", len(records))
		}
		if records[0].FilePath != "/home/ada/a.txt" {
			t.Errorf("restored record path = %q", records[0].FilePath)
		}
	})

	t.Run("empty window touches nothing", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		clock := testutil.FixedClock()
		engine, v := newArchiveEngine(t, store, clock)

		engine.FilterContent("/home/ada/a.txt", "plain")

		// The record is newer than the cutoff.
		archiveID, count, err := engine.ArchiveAudit("host-1", 24*time.Hour)
		if err != nil {
			t.Fatalf("ArchiveAudit() unexpected error: %v", err)
		}
		if archiveID != "" || count != 0 {
			t.Errorf("ArchiveAudit() = (%q, %d), want empty", archiveID, count)
		}
		if got := len(store.AuditRecords()); got != 1 {
			t.Errorf("got %d local audit records, want 1", got)
		}
		if ids, _ := v.ListArchives("host-1"); len(ids) != 0 {
			t.Errorf("vault has %d archives, want 0", len(ids))
		}
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		clock := testutil.FixedClock()
		engine, _ := newArchiveEngine(t, store, clock)

		engine.FilterContent("/home/ada/a.txt", "plain")
		clock.Advance(48 * time.Hour)

		archiveID, _, err := engine.ArchiveAudit("host-1", 24*time.Hour)
		if err != nil {
			t.Fatalf("ArchiveAudit() unexpected error: %v", err)
		}

		var out bytes.Buffer
		if err := engine.RestoreArchive("host-1", archiveID, "wrong", &out); err == nil {
			t.Error("RestoreArchive() expected error for wrong passphrase, got nil")
		}
	})

	t.Run("not configured", func(t *testing.T) {
		engine := newTestEngine(testutil.NewMemoryStore())

		if _, _, err := engine.ArchiveAudit("host-1", 24*time.Hour); err == nil {
			t.Error("ArchiveAudit() expected error without a vault, got nil")
		}
		if err := engine.RestoreArchive("host-1", "x", "pw", &bytes.Buffer{}); err == nil {
			t.Error("RestoreArchive() expected error without a vault, got nil")
		}
		if _, err := engine.ListArchives("host-1"); err == nil {
			t.Error("ListArchives() expected error without a vault, got nil")
		}
	})

	t.Run("unconfigured encryptor", func(t *testing.T) {
		store := testutil.NewMemoryStore()
		engine := pv.NewEngine(
			store, vault.NewMemoryVault("test"), encryption.NewTestEncryptor(),
			pv.NewOwnershipResolver(pv.DefaultOwnerGroups()),
			pv.NewRedactor(0),
			pv.NewDecisionCache(0, 0),
			pv.NewNopLogger(),
			testutil.FixedClock(),
			testutil.NewStubIDGenerator(),
		)

		if _, _, err := engine.ArchiveAudit("host-1", 24*time.Hour); err == nil {
			t.Error("ArchiveAudit() expected error before key setup, got nil")
		}
	})
}
