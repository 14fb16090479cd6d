package chain

import (
	"encoding/hex"
	"testing"
)

func TestEncodeCallSelectorOnly(t *testing.T) {
	data, err := EncodeCall(nil, "deposit()", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if hex.EncodeToString(data) != "d0e30db0" {
		t.Fatalf("Expected d0e30db0, got: %x", data)
	}

	if _, err := EncodeCall(nil, "transferOwnership(address)", []interface{}{"0x01"}); err == nil {
		t.Fatal("Expected error for arguments without an ABI, got nil")
	}
	if _, err := EncodeCall(nil, "broken(", nil); err == nil {
		t.Fatal("Expected error for malformed signature, got nil")
	}
}

func TestEncodeCallWithABI(t *testing.T) {
	store := NewArtifactStore(setupArtifacts(t))
	artifact, err := store.Load("Paymaster")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	byName, err := EncodeCall(artifact, "deposit", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if hex.EncodeToString(byName) != "d0e30db0" {
		t.Fatalf("Expected d0e30db0, got: %x", byName)
	}

	data, err := EncodeCall(artifact, "transferOwnership(address)",
		[]interface{}{"0x46897603e2A82755E9c416eF828Bd1515536b3D5"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(data) != 4+32 {
		t.Fatalf("Expected selector plus one word, got: %d bytes", len(data))
	}
	if hex.EncodeToString(data[:4]) != "f2fde38b" {
		t.Fatalf("Expected transferOwnership selector f2fde38b, got: %x", data[:4])
	}

	if _, err := EncodeCall(artifact, "transferOwnership(address)", []interface{}{"bogus"}); err == nil {
		t.Fatal("Expected coercion error, got nil")
	}
}
