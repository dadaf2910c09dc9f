package encryption

import (
	"fmt"
	"io"
	"strings"

	"pv-go/internal/pv"
)

// TestEncryptor is a pv.Encryptor for tests and throwaway configurations.
// It "encrypts" by prefixing a marker so round-trips are observable without
// real key material. Never use outside tests.
type TestEncryptor struct {
	passphrase string
	configured bool
}

var _ pv.Encryptor = (*TestEncryptor)(nil)

const testMarker = "TESTENC:"

// NewTestEncryptor creates an unconfigured TestEncryptor.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup records the passphrase and marks the encryptor configured.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.configured = true
	return nil
}

// Encrypt prefixes the marker and copies the data through.
func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.WriteString(w, testMarker); err != nil {
		return fmt.Errorf("writing marker: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// Unlock checks the passphrase against the one given to Setup.
func (e *TestEncryptor) Unlock(passphrase string) (pv.DecryptionContext, error) {
	if !e.configured {
		return nil, fmt.Errorf("test encryptor is not set up")
	}
	if passphrase != e.passphrase {
		return nil, fmt.Errorf("incorrect passphrase")
	}
	return &testDecryptionContext{}, nil
}

// IsConfigured reports whether Setup has been called.
func (e *TestEncryptor) IsConfigured() bool {
	return e.configured
}

type testDecryptionContext struct{}

// Decrypt strips the marker and copies the data through.
func (*testDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading data: %w", err)
	}
	text := string(data)
	if !strings.HasPrefix(text, testMarker) {
		return fmt.Errorf("data is not test-encrypted")
	}
	if _, err := io.WriteString(w, strings.TrimPrefix(text, testMarker)); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}
	return nil
}
