package vault

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"sync"

	"pv-go/internal/pv"
)

// MemoryVault is an in-memory implementation of the ArchiveVault interface.
// Use for tests and for configurations that do not keep archives.
type MemoryVault struct {
	name string

	mu       sync.Mutex
	archives map[string][]byte // "hostID/archiveID" -> encrypted bytes
}

// NewMemoryVault creates a new in-memory vault.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:     name,
		archives: make(map[string][]byte),
	}
}

func archiveKey(hostID, archiveID string) string {
	return hostID + "/" + archiveID
}

// PutArchive stores an archive under hostID/archiveID.
// Archives are write-once; an existing ID is an error.
func (v *MemoryVault) PutArchive(hostID, archiveID string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read archive data: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	key := archiveKey(hostID, archiveID)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.archives[key]; exists {
		return fmt.Errorf("archive already exists: %s", archiveID)
	}
	v.archives[key] = data
	return nil
}

// GetArchive retrieves an archive and writes it to w.
func (v *MemoryVault) GetArchive(hostID, archiveID string, w io.Writer) error {
	v.mu.Lock()
	data, ok := v.archives[archiveKey(hostID, archiveID)]
	v.mu.Unlock()

	if !ok {
		return fmt.Errorf("archive not found: %s", archiveID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write archive data: %w", err)
	}
	return nil
}

// ListArchives returns the archive IDs stored for a host, sorted lexically.
func (v *MemoryVault) ListArchives(hostID string) ([]string, error) {
	prefix := hostID + "/"

	v.mu.Lock()
	defer v.mu.Unlock()

	var ids []string
	for key := range v.archives {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			ids = append(ids, key[len(prefix):])
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ValidateSetup always succeeds for the in-memory vault.
func (v *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements pv.ArchiveVault interface
var _ pv.ArchiveVault = (*MemoryVault)(nil)
