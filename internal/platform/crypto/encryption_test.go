package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := hex.EncodeToString(bytes.Repeat([]byte{0xAB}, 32))
	svc, err := New(key)
	if err != nil {
		t.Fatalf("service error: %v", err)
	}
	if !svc.Configured() {
		t.Fatal("expected configured service")
	}

	plain := "SN08 BK01 0152 0000 1234 5678"
	sealed, err := svc.EncryptString(plain)
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if bytes.Contains(sealed, []byte(plain)) {
		t.Fatal("ciphertext must not contain the plaintext")
	}

	opened, err := svc.DecryptString(sealed)
	if err != nil {
		t.Fatalf("decrypt error: %v", err)
	}
	if opened != plain {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestUnconfiguredPassThrough(t *testing.T) {
	svc, err := New("")
	if err != nil {
		t.Fatalf("service error: %v", err)
	}
	if svc.Configured() {
		t.Fatal("empty key must leave service unconfigured")
	}
	sealed, err := svc.EncryptString("raw value")
	if err != nil {
		t.Fatalf("encrypt error: %v", err)
	}
	if string(sealed) != "raw value" {
		t.Fatalf("expected pass-through, got %q", sealed)
	}
}

func TestBadKeyLength(t *testing.T) {
	if _, err := New(hex.EncodeToString([]byte("short"))); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestDecryptShortCiphertext(t *testing.T) {
	key := hex.EncodeToString(bytes.Repeat([]byte{0x01}, 32))
	svc, err := New(key)
	if err != nil {
		t.Fatalf("service error: %v", err)
	}
	if _, err := svc.Decrypt([]byte{0x01, 0x02}); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}
