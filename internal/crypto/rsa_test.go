package crypto

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateAndParseKeyPair(t *testing.T) {
	privPEM, pubPEM, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatal(err)
	}

	priv, err := ParsePrivateKey(privPEM)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := ParsePublicKey(pubPEM)
	if err != nil {
		t.Fatal(err)
	}
	if priv.PublicKey.N.Cmp(pub.N) != 0 {
		t.Fatal("public key does not match private key")
	}
}

func TestLoadPublicKey(t *testing.T) {
	_, pubPEM, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "public-key.pem")
	if err := os.WriteFile(path, pubPEM, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPublicKey("", path); err != nil {
		t.Fatalf("load from path: %v", err)
	}
	if _, err := LoadPublicKey(string(pubPEM), "/does/not/exist"); err != nil {
		t.Fatalf("inline PEM should win over path: %v", err)
	}
	if _, err := LoadPublicKey("", ""); !errors.Is(err, ErrKeyNotConfigured) {
		t.Fatalf("expected ErrKeyNotConfigured, got %v", err)
	}
	if _, err := LoadPublicKey("not a pem", ""); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestNewConnIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewConnID()
		if seen[id] {
			t.Fatalf("duplicate connection id %s", id)
		}
		seen[id] = true
	}
	if NewUUIDv7().Version() != 7 {
		t.Fatal("expected version 7 uuid")
	}
}
