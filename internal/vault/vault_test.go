package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	t.Setenv("FLEETDECK_VAULT_PASSPHRASE", "test-passphrase")
	v, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return v
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	v := newTestVault(t)

	tests := []struct {
		name      string
		plaintext string
	}{
		{name: "password", plaintext: "hunter2"},
		{name: "long token", plaintext: strings.Repeat("a", 4096)},
		{name: "unicode", plaintext: "pässwörd-密码"},
		{name: "empty stays empty", plaintext: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := v.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if tt.plaintext != "" && sealed == tt.plaintext {
				t.Fatal("ciphertext equals plaintext")
			}
			if tt.plaintext == "" && sealed != "" {
				t.Fatalf("empty plaintext produced %q", sealed)
			}

			got, err := v.Decrypt(sealed)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if got != tt.plaintext {
				t.Fatalf("expected %q, got %q", tt.plaintext, got)
			}
		})
	}
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	v := newTestVault(t)

	a, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Fatal("two encryptions of the same plaintext produced identical output")
	}
}

func TestOpenReusesKeyMaterial(t *testing.T) {
	t.Setenv("FLEETDECK_VAULT_PASSPHRASE", "test-passphrase")
	dir := t.TempDir()

	v1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sealed, err := v1.Encrypt("persist-me")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	v2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := v2.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt after reopen: %v", err)
	}
	if got != "persist-me" {
		t.Fatalf("expected persist-me, got %q", got)
	}
}

func TestKeyFilePermissions(t *testing.T) {
	t.Setenv("FLEETDECK_VAULT_PASSPHRASE", "test-passphrase")
	dir := t.TempDir()

	if _, err := Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, keyFile))
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	v := newTestVault(t)

	tests := []struct {
		name       string
		ciphertext string
	}{
		{name: "not base64", ciphertext: "%%%"},
		{name: "too short", ciphertext: "AAAA"},
		{name: "tampered", ciphertext: func() string {
			sealed, _ := v.Encrypt("secret")
			return sealed[:len(sealed)-4] + "AAA="
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Decrypt(tt.ciphertext); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestWrongPassphraseFailsDecrypt(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("FLEETDECK_VAULT_PASSPHRASE", "first")
	v1, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sealed, err := v1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	t.Setenv("FLEETDECK_VAULT_PASSPHRASE", "second")
	v2, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := v2.Decrypt(sealed); err == nil {
		t.Fatal("expected decrypt failure with different passphrase")
	}
}
