// Package vault encrypts account secrets at rest with AES-256-GCM. The key
// is derived via PBKDF2 from a deployment passphrase and a random salt kept
// next to the data directory.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFile    = "vault.key"
	iterations = 100000
	keyLen     = 32
)

// Vault seals and opens stored secrets. Safe for concurrent use.
type Vault struct {
	key []byte
}

// Open loads the salt from dir, creating new key material on first use, and
// derives the encryption key. The passphrase comes from
// FLEETDECK_VAULT_PASSPHRASE when set, otherwise from stable machine
// identity.
func Open(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}

	path := filepath.Join(dir, keyFile)
	salt, err := loadSalt(path)
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(passphrase()), salt, iterations, keyLen, sha256.New)
	return &Vault{key: key}, nil
}

func loadSalt(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		salt := make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("generate salt: %w", err)
		}
		if err := os.WriteFile(path, []byte(hex.EncodeToString(salt)), 0o600); err != nil {
			return nil, fmt.Errorf("write key material: %w", err)
		}
		return salt, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read key material: %w", err)
	}

	salt, err := hex.DecodeString(string(data))
	if err != nil {
		return nil, fmt.Errorf("decode key material: %w", err)
	}
	return salt, nil
}

func passphrase() string {
	if p := os.Getenv("FLEETDECK_VAULT_PASSPHRASE"); p != "" {
		return p
	}
	hostname, _ := os.Hostname()
	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
	}
	return fmt.Sprintf("fleetdeck-vault-%s-%s", hostname, user)
}

// Encrypt seals plaintext and returns base64 output suitable for a TEXT
// column. Empty input stays empty so optional secrets round-trip.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := v.gcm()
	if err != nil {
		return "", err
	}
	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}
