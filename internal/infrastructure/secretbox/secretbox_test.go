package secretbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "secret.key"), "TEST_SECRETBOX_KEY")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box := newTestBox(t)

	ciphered, err := box.Encrypt("sessionid=abc123; ttwid=xyz")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if !strings.HasPrefix(ciphered, EncryptedPrefix) {
		t.Errorf("ciphertext missing prefix: %s", ciphered)
	}
	if strings.Contains(ciphered, "sessionid") {
		t.Error("plaintext leaked into ciphertext")
	}

	plain, err := box.Decrypt(ciphered)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plain != "sessionid=abc123; ttwid=xyz" {
		t.Errorf("round trip mismatch: %s", plain)
	}
}

func TestEmptyStringPassthrough(t *testing.T) {
	box := newTestBox(t)

	if out, err := box.Encrypt(""); err != nil || out != "" {
		t.Errorf("Encrypt(\"\") = (%q, %v)", out, err)
	}
	if out, err := box.Decrypt(""); err != nil || out != "" {
		t.Errorf("Decrypt(\"\") = (%q, %v)", out, err)
	}
}

func TestEncryptIdempotent(t *testing.T) {
	box := newTestBox(t)

	once, err := box.Encrypt("cookie-value")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := box.Encrypt(once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Error("re-encrypting ciphertext must be a no-op")
	}
}

func TestDecryptLegacyPlaintext(t *testing.T) {
	box := newTestBox(t)

	// 未加密的历史数据原样透传
	plain, err := box.Decrypt("legacy-plain-cookie")
	if err != nil {
		t.Fatal(err)
	}
	if plain != "legacy-plain-cookie" {
		t.Errorf("legacy plaintext mangled: %s", plain)
	}
}

func TestDecryptCorruptCiphertext(t *testing.T) {
	box := newTestBox(t)

	if _, err := box.Decrypt(EncryptedPrefix + "not-valid-base64!!!"); err == nil {
		t.Error("expected error for corrupt ciphertext")
	}
	if _, err := box.Decrypt(EncryptedPrefix + "AAAA"); err == nil {
		t.Error("expected error for truncated ciphertext")
	}
}

func TestKeyFilePersistedAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "secret.key")

	first := New(keyFile, "TEST_SECRETBOX_KEY")
	ciphered, err := first.Encrypt("persist-me")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(keyFile); err != nil {
		t.Fatalf("key file not created: %v", err)
	}

	second := New(keyFile, "TEST_SECRETBOX_KEY")
	plain, err := second.Decrypt(ciphered)
	if err != nil {
		t.Fatalf("Decrypt with reloaded key failed: %v", err)
	}
	if plain != "persist-me" {
		t.Errorf("round trip across instances mismatch: %s", plain)
	}
}

func TestWrongKeyFailsDecrypt(t *testing.T) {
	dir := t.TempDir()

	first := New(filepath.Join(dir, "a.key"), "TEST_SECRETBOX_KEY")
	ciphered, err := first.Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}

	second := New(filepath.Join(dir, "b.key"), "TEST_SECRETBOX_KEY")
	if _, err := second.Decrypt(ciphered); err == nil {
		t.Error("expected decryption failure with different key")
	}
}
