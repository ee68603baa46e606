package crypto

import (
	"bytes"
	"testing"
)

func TestVaultRoundTrip(t *testing.T) {
	v, err := NewVault("test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	plaintext := []byte("the quick brown fox")
	ciphertext, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if bytes.Contains(ciphertext, plaintext) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := v.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("round trip mismatch: got %q", got)
	}
}

func TestVaultNoncesDiffer(t *testing.T) {
	v, err := NewVault("test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a, _ := v.Encrypt([]byte("same input"))
	b, _ := v.Encrypt([]byte("same input"))
	if bytes.Equal(a, b) {
		t.Error("two encryptions of the same input produced identical ciphertexts")
	}
}

func TestVaultRejectsTamperedCiphertext(t *testing.T) {
	v, err := NewVault("test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ciphertext, _ := v.Encrypt([]byte("payload"))
	ciphertext[len(ciphertext)-1] ^= 0xff

	if _, err := v.Decrypt(ciphertext); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestVaultRejectsShortCiphertext(t *testing.T) {
	v, err := NewVault("test-key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := v.Decrypt([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestVaultKeyNormalization(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"short key", "abc"},
		{"exact 32 bytes", "0123456789abcdef0123456789abcdef"},
		{"long key", "0123456789abcdef0123456789abcdef-and-then-some"},
		{"empty key", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVault(tt.key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ct, err := v.Encrypt([]byte("x"))
			if err != nil {
				t.Fatalf("encrypt failed: %v", err)
			}
			if _, err := v.Decrypt(ct); err != nil {
				t.Fatalf("decrypt failed: %v", err)
			}
		})
	}
}

func TestVaultKeysAreIndependent(t *testing.T) {
	a, _ := NewVault("key-a")
	b, _ := NewVault("key-b")

	ct, _ := a.Encrypt([]byte("secret"))
	if _, err := b.Decrypt(ct); err == nil {
		t.Error("ciphertext decrypted under a different key")
	}
}
