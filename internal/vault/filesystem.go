package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pv-go/internal/pv"
)

// FileSystemVault stores audit archives as files:
//
//	<root>/
//	  <hostID>/
//	    <archiveID>    (encrypted JSONL archives)
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}
	return &FileSystemVault{name: name, root: root}, nil
}

// PutArchive stores an archive under hostID/archiveID.
// Archives are write-once; an existing ID is an error.
func (v *FileSystemVault) PutArchive(hostID, archiveID string, r io.Reader, size int64) error {
	hostDir := filepath.Join(v.root, hostID)
	if err := os.MkdirAll(hostDir, 0700); err != nil {
		return fmt.Errorf("failed to create host directory: %w", err)
	}

	destPath := filepath.Join(hostDir, archiveID)
	if _, err := os.Stat(destPath); err == nil {
		return fmt.Errorf("archive already exists: %s", archiveID)
	}

	return v.writeFile(destPath, r, size)
}

// GetArchive retrieves an archive and writes it to w.
func (v *FileSystemVault) GetArchive(hostID, archiveID string, w io.Writer) error {
	srcPath := filepath.Join(v.root, hostID, archiveID)

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("archive not found: %s", archiveID)
		}
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read archive: %w", err)
	}
	return nil
}

// ListArchives returns the archive IDs stored for a host, sorted lexically.
// Archive IDs start with a UTC timestamp, so this is chronological order.
func (v *FileSystemVault) ListArchives(hostID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(v.root, hostID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing archives: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup verifies that the vault root is accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements pv.ArchiveVault interface
var _ pv.ArchiveVault = (*FileSystemVault)(nil)
