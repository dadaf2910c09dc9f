package pv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ArchiveAudit exports audit records older than olderThan as encrypted
// JSONL, uploads the archive to the vault under hostID, and prunes the
// exported records locally.
//
// Strategy: upload first, prune after. If the prune fails the worst outcome
// is records present both locally and in the archive, which is harmless for
// an append-only trail; a failed upload leaves the local records untouched.
//
// Returns the archive ID and the number of records exported. An empty
// window returns ("", 0, nil) without touching the vault.
func (e *Engine) ArchiveAudit(hostID string, olderThan time.Duration) (string, int, error) {
	if e.vault == nil || e.encryptor == nil {
		return "", 0, fmt.Errorf("audit archiving is not configured")
	}
	if !e.encryptor.IsConfigured() {
		return "", 0, fmt.Errorf("archive encryption keys are not set up")
	}

	cutoff := e.clock.Now().Add(-olderThan)
	records, err := e.store.ListAuditBefore(cutoff)
	if err != nil {
		return "", 0, fmt.Errorf("listing audit records: %w", err)
	}
	if len(records) == 0 {
		return "", 0, nil
	}

	// One JSON record per line, oldest first.
	var plain bytes.Buffer
	enc := json.NewEncoder(&plain)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return "", 0, fmt.Errorf("encoding audit record: %w", err)
		}
	}

	var sealed bytes.Buffer
	if err := e.encryptor.Encrypt(&plain, &sealed); err != nil {
		return "", 0, fmt.Errorf("encrypting archive: %w", err)
	}

	archiveID := e.clock.Now().UTC().Format("20060102T150405Z") + "-" + e.idgen.New()
	if err := e.vault.PutArchive(hostID, archiveID, bytes.NewReader(sealed.Bytes()), int64(sealed.Len())); err != nil {
		return "", 0, fmt.Errorf("uploading archive: %w", err)
	}

	deleted, err := e.store.DeleteAuditBefore(cutoff)
	if err != nil {
		return archiveID, len(records), fmt.Errorf("pruning archived records: %w", err)
	}

	e.logger.Info("audit archived",
		"archive_id", archiveID,
		"records", len(records),
		"pruned", deleted,
	)
	return archiveID, len(records), nil
}

// RestoreArchive decrypts a stored archive and writes the plaintext JSONL
// to w. The passphrase unlocks the archive private key.
func (e *Engine) RestoreArchive(hostID, archiveID, passphrase string, w io.Writer) error {
	if e.vault == nil || e.encryptor == nil {
		return fmt.Errorf("audit archiving is not configured")
	}

	dctx, err := e.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking archive key: %w", err)
	}

	var sealed bytes.Buffer
	if err := e.vault.GetArchive(hostID, archiveID, &sealed); err != nil {
		return fmt.Errorf("fetching archive: %w", err)
	}

	if err := dctx.Decrypt(&sealed, w); err != nil {
		return fmt.Errorf("decrypting archive: %w", err)
	}
	return nil
}

// ListArchives returns the archive IDs stored for a host.
func (e *Engine) ListArchives(hostID string) ([]string, error) {
	if e.vault == nil {
		return nil, fmt.Errorf("audit archiving is not configured")
	}
	return e.vault.ListArchives(hostID)
}
