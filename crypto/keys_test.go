package crypto

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, string(PlanPrefix)+"1") {
		t.Fatalf("unexpected prefix on %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("round trip mismatch: %x != %x", decoded.Bytes(), addr.Bytes())
	}
	if decoded.Prefix() != PlanPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	if _, err := DecodeAddress("not-an-address"); err == nil {
		t.Fatal("expected error for malformed address")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "owner.json")
	if err := SaveToKeystore(path, key, "passphrase"); err != nil {
		t.Fatalf("save keystore: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "passphrase")
	if err != nil {
		t.Fatalf("load keystore: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatal("loaded key differs from saved key")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatal("expected error for wrong passphrase")
	}
}
