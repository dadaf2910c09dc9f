package encryption

import (
	"fmt"

	"pv-go/internal/config"
	"pv-go/internal/pv"
)

// NewEncryptorFromConfig creates an Encryptor based on the encryption config type.
// An empty type defaults to age.
func NewEncryptorFromConfig(cfg config.EncryptionConfig) (pv.Encryptor, error) {
	switch cfg.Type {
	case "", "age":
		return NewAgeEncryptor(cfg), nil
	case "test":
		return NewTestEncryptor(), nil
	default:
		return nil, fmt.Errorf("unknown encryption type: %s", cfg.Type)
	}
}
