package cipher

import (
	"bytes"
	"testing"
)

func testKey(b byte) [KeySize]byte {
	var k [KeySize]byte
	for i := range k {
		k[i] = b
	}
	return k
}

func TestRoundTrip(t *testing.T) {
	key := testKey(0x42)
	plaintext := []byte("john.doe@example.com")

	ciphertext, nonce, err := Seal(key, plaintext)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := Open(key, ciphertext, nonce)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
	}
}

func TestNonceUniqueness(t *testing.T) {
	key := testKey(0x01)
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		_, nonce, err := Seal(key, []byte("same plaintext"))
		if err != nil {
			t.Fatalf("seal: %v", err)
		}
		k := string(nonce)
		if _, ok := seen[k]; ok {
			t.Fatalf("nonce reused at iteration %d", i)
		}
		seen[k] = struct{}{}
	}
}

func TestWrongKeyRejected(t *testing.T) {
	k1, k2 := testKey(0x01), testKey(0x02)
	ciphertext, nonce, err := Seal(k1, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(k2, ciphertext, nonce); err == nil {
		t.Fatal("expected decryption failure with wrong key")
	}
}

func TestTamperedCiphertextRejected(t *testing.T) {
	key := testKey(0x03)
	ciphertext, nonce, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	ciphertext[0] ^= 0xFF
	if _, err := Open(key, ciphertext, nonce); err == nil {
		t.Fatal("expected decryption failure on tampered ciphertext")
	}
}

func TestTamperedNonceRejected(t *testing.T) {
	key := testKey(0x04)
	ciphertext, nonce, err := Seal(key, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	nonce[0] ^= 0xFF
	if _, err := Open(key, ciphertext, nonce); err == nil {
		t.Fatal("expected decryption failure on tampered nonce")
	}
}

func TestEncryptedStringRoundTrip(t *testing.T) {
	key := testKey(0x09)
	SetActiveKey(&key)
	defer SetActiveKey(nil)

	original := EncryptedString("super secret value")
	stored, err := original.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var restored EncryptedString
	if err := restored.Scan(stored); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if restored != original {
		t.Fatalf("round trip mismatch: got %q want %q", restored, original)
	}
}

func TestEncryptedStringEmptyBypassesEncryption(t *testing.T) {
	key := testKey(0x0A)
	SetActiveKey(&key)
	defer SetActiveKey(nil)

	var e EncryptedString
	v, err := e.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "" {
		t.Fatalf("expected empty value to bypass encryption, got %v", v)
	}
}

func TestEncryptedStringNoActiveKey(t *testing.T) {
	SetActiveKey(nil)
	e := EncryptedString("value")
	if _, err := e.Value(); err == nil {
		t.Fatal("expected error with no active key")
	}
}
