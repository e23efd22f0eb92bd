package crypto

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseAddressAcceptsHexAndBech32(t *testing.T) {
	want := common.HexToAddress("0x00000000000000000000000000000000000000aa")

	fromHex, err := ParseAddress(want.Hex())
	if err != nil {
		t.Fatalf("parse hex: %v", err)
	}
	if fromHex != want {
		t.Fatalf("hex mismatch: got %s", fromHex.Hex())
	}

	encoded := FromCommon(want).String()
	if !strings.HasPrefix(encoded, string(MarketPrefix)+"1") {
		t.Fatalf("unexpected bech32 encoding %s", encoded)
	}
	fromBech, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse bech32: %v", err)
	}
	if fromBech != want {
		t.Fatalf("bech32 mismatch: got %s", fromBech.Hex())
	}
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	foreign := MustNewAddress("nhb", make([]byte, 20)).String()
	if _, err := ParseAddress(foreign); err == nil {
		t.Fatalf("expected prefix error")
	}
	if _, err := ParseAddress("0x1234"); err == nil {
		t.Fatalf("expected short hex to fail")
	}
	if _, err := ParseAddress("  "); err == nil {
		t.Fatalf("expected empty address to fail")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "keys", "market.keystore")
	if err := SaveToKeystore(path, key, "correct horse", WithLightScrypt()); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "correct horse")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("address mismatch after reload")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
