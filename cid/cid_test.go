package cid

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

func TestEncodeDecodeRoundtrip(t *testing.T) {
	c, err := Encode(CidTypeFileNode, sha256.Sum256([]byte("test")))
	if err != nil {
		t.Fatal(err)
	}

	c2, err := FromString(c.String())
	if err != nil {
		t.Fatal(err)
	}

	if !c.Equal(c2) {
		t.Fatalf("CIDs do not match: %s != %s", c.String(), c2.String())
	}
	if c2.Type() != CidTypeFileNode {
		t.Fatalf("Type mismatch: %d", c2.Type())
	}
}

func TestSumIsDeterministic(t *testing.T) {
	a, err := Sum(CidTypeChunkNode, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Sum(CidTypeChunkNode, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if !a.Equal(b) {
		t.Fatalf("CIDs do not match: %s != %s", a.String(), b.String())
	}

	c, err := Sum(CidTypeFileNode, []byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if a.Equal(c) {
		t.Fatalf("CIDs of different types must differ: %s", a.String())
	}
}

func TestCborRoundtrip(t *testing.T) {
	c, err := Sum(CidTypeFolderNode, []byte("folder"))
	if err != nil {
		t.Fatal(err)
	}

	enc, err := cbor.Marshal(c)
	if err != nil {
		t.Fatal(err)
	}

	c2 := &Cid{}
	if err := cbor.Unmarshal(enc, c2); err != nil {
		t.Fatal(err)
	}

	if !c.Equal(c2) {
		t.Fatalf("CIDs do not match after CBOR roundtrip: %s != %s", c.String(), c2.String())
	}
}

func TestFromStringRejectsGarbage(t *testing.T) {
	if _, err := FromString("not-base32!"); err == nil {
		t.Fatal("expected an error for a non-base32 string")
	}

	// Valid base32, wrong length
	if _, err := FromString("MZXW6==="); !errors.Is(err, ErrorInvalidCidFormat) && !errors.Is(err, ErrorInvalidCidString) {
		t.Fatalf("expected an invalid CID error, got %v", err)
	}
}
