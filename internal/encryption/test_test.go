package encryption

import (
	"bytes"
	"strings"
	"testing"

	"pv-go/internal/config"
)

func TestTestEncryptorRoundTrip(t *testing.T) {
	enc := NewTestEncryptor()
	if err := enc.Setup("pw"); err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}

	var sealed bytes.Buffer
	if err := enc.Encrypt(strings.NewReader("payload"), &sealed); err != nil {
		t.Fatalf("Encrypt() unexpected error: %v", err)
	}
	if !strings.HasPrefix(sealed.String(), "TESTENC:") {
		t.Errorf("Encrypt() = %q, want the test marker prefix", sealed.String())
	}

	dctx, err := enc.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() unexpected error: %v", err)
	}

	var out bytes.Buffer
	if err := dctx.Decrypt(&sealed, &out); err != nil {
		t.Fatalf("Decrypt() unexpected error: %v", err)
	}
	if out.String() != "payload" {
		t.Errorf("Decrypt() = %q, want payload", out.String())
	}
}

func TestTestEncryptorUnlock(t *testing.T) {
	enc := NewTestEncryptor()

	if _, err := enc.Unlock("pw"); err == nil {
		t.Error("Unlock() expected error before Setup(), got nil")
	}

	if err := enc.Setup("pw"); err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	if _, err := enc.Unlock("wrong"); err == nil {
		t.Error("Unlock() expected error for wrong passphrase, got nil")
	}
}

func TestTestEncryptorDecryptRejectsForeignData(t *testing.T) {
	enc := NewTestEncryptor()
	if err := enc.Setup("pw"); err != nil {
		t.Fatalf("Setup() unexpected error: %v", err)
	}
	dctx, err := enc.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock() unexpected error: %v", err)
	}

	var out bytes.Buffer
	if err := dctx.Decrypt(strings.NewReader("not encrypted"), &out); err == nil {
		t.Error("Decrypt() expected error for unmarked data, got nil")
	}
}

func TestNewEncryptorFromConfig(t *testing.T) {
	t.Run("defaults to age", func(t *testing.T) {
		enc, err := NewEncryptorFromConfig(config.EncryptionConfig{})
		if err != nil {
			t.Fatalf("NewEncryptorFromConfig() unexpected error: %v", err)
		}
		if _, ok := enc.(*AgeEncryptor); !ok {
			t.Errorf("NewEncryptorFromConfig() = %T, want *AgeEncryptor", enc)
		}
	})

	t.Run("test encryptor", func(t *testing.T) {
		enc, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "test"})
		if err != nil {
			t.Fatalf("NewEncryptorFromConfig() unexpected error: %v", err)
		}
		if _, ok := enc.(*TestEncryptor); !ok {
			t.Errorf("NewEncryptorFromConfig() = %T, want *TestEncryptor", enc)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := NewEncryptorFromConfig(config.EncryptionConfig{Type: "rot13"}); err == nil {
			t.Error("NewEncryptorFromConfig() expected error for unknown type, got nil")
		}
	})
}
