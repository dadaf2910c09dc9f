package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemVaultPutGet(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() unexpected error: %v", err)
	}

	data := []byte("encrypted archive bytes")
	if err := v.PutArchive("host-1", "20240115T103000Z-a", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("PutArchive() unexpected error: %v", err)
	}

	var out bytes.Buffer
	if err := v.GetArchive("host-1", "20240115T103000Z-a", &out); err != nil {
		t.Fatalf("GetArchive() unexpected error: %v", err)
	}
	if !bytes.Equal(out.Bytes(), data) {
		t.Errorf("GetArchive() = %q, want %q", out.Bytes(), data)
	}
}

func TestFileSystemVaultWriteOnce(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() unexpected error: %v", err)
	}

	data := []byte("v1")
	if err := v.PutArchive("host-1", "arch-1", bytes.NewReader(data), int64(len(data))); err != nil {
		t.Fatalf("PutArchive() unexpected error: %v", err)
	}

	err = v.PutArchive("host-1", "arch-1", bytes.NewReader([]byte("v2")), 2)
	if err == nil {
		t.Error("PutArchive() expected error for duplicate archive, got nil")
	}

	// The original content survives.
	var out bytes.Buffer
	if err := v.GetArchive("host-1", "arch-1", &out); err != nil {
		t.Fatalf("GetArchive() unexpected error: %v", err)
	}
	if out.String() != "v1" {
		t.Errorf("GetArchive() = %q, want the original content", out.String())
	}
}

func TestFileSystemVaultSizeMismatch(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() unexpected error: %v", err)
	}

	err = v.PutArchive("host-1", "arch-1", strings.NewReader("short"), 999)
	if err == nil {
		t.Fatal("PutArchive() expected error for size mismatch, got nil")
	}

	// Nothing is left behind, not even a temp file.
	entries, err := os.ReadDir(filepath.Join(root, "host-1"))
	if err != nil {
		t.Fatalf("ReadDir() unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("host directory has %d entries after a failed put, want 0", len(entries))
	}
}

func TestFileSystemVaultGetMissing(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() unexpected error: %v", err)
	}

	var out bytes.Buffer
	if err := v.GetArchive("host-1", "absent", &out); err == nil {
		t.Error("GetArchive() expected error for missing archive, got nil")
	}
}

func TestFileSystemVaultListArchives(t *testing.T) {
	v, err := NewFileSystemVault("test", t.TempDir())
	if err != nil {
		t.Fatalf("NewFileSystemVault() unexpected error: %v", err)
	}

	t.Run("empty host", func(t *testing.T) {
		ids, err := v.ListArchives("host-1")
		if err != nil {
			t.Fatalf("ListArchives() unexpected error: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("ListArchives() = %v, want empty", ids)
		}
	})

	t.Run("sorted and per host", func(t *testing.T) {
		for _, id := range []string{"20240116T000000Z-b", "20240115T000000Z-a"} {
			if err := v.PutArchive("host-1", id, strings.NewReader("x"), 1); err != nil {
				t.Fatalf("PutArchive() unexpected error: %v", err)
			}
		}
		if err := v.PutArchive("host-2", "20240117T000000Z-c", strings.NewReader("x"), 1); err != nil {
			t.Fatalf("PutArchive() unexpected error: %v", err)
		}

		ids, err := v.ListArchives("host-1")
		if err != nil {
			t.Fatalf("ListArchives() unexpected error: %v", err)
		}
		want := []string{"20240115T000000Z-a", "20240116T000000Z-b"}
		if len(ids) != 2 || ids[0] != want[0] || ids[1] != want[1] {
			t.Errorf("ListArchives() = %v, want %v", ids, want)
		}
	})
}

func TestFileSystemVaultValidateSetup(t *testing.T) {
	root := t.TempDir()
	v, err := NewFileSystemVault("test", root)
	if err != nil {
		t.Fatalf("NewFileSystemVault() unexpected error: %v", err)
	}

	if err := v.ValidateSetup(); err != nil {
		t.Errorf("ValidateSetup() unexpected error: %v", err)
	}

	os.RemoveAll(root)
	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error for missing root, got nil")
	}
}
