package cid

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"
)

type CidType int

const (
	CidVersionV01 = 0x01

	CidTypeChunkNode  = 0x00 // Leaf node carrying a slice of raw file bytes
	CidTypeFileNode   = 0x01 // File node. Carries inline data or links to chunk nodes.
	CidTypeFolderNode = 0x02 // Folder node. Links to file and folder nodes.

	CidPaddingByte = 0xAA
)

var ErrorHashNot32Bytes = errors.New("hash must be 32 bytes")
var ErrorInvalidCidString = errors.New("invalid CID string")
var ErrorInvalidCidFormat = errors.New("invalid CID format")

// Byte structure of a CID is as follows <version:1><padding:1><type:1><hash:32>
// Raw bytes are encoded by Base32

// Cid structure holds the string representation of the CID as well as cached type and binary representation.
// Cid implements the MarshalBinary and UnmarshalBinary interfaces to assist CBOR encoding and avoid redundancy
type Cid struct {
	b [35]byte
	t CidType
	s string
}

func (c *Cid) String() string {
	return c.s
}

func (c *Cid) Type() CidType {
	return c.t
}

func (c *Cid) IsZero() bool {
	return c.b == [35]byte{}
}

func (c *Cid) MarshalBinary() ([]byte, error) {
	return c.b[:], nil
}

func (c *Cid) UnmarshalBinary(data []byte) error {
	if len(data) == 0 {
		return ErrorInvalidCidFormat
	}

	switch data[0] {
	case CidVersionV01:
		if len(data) != 35 {
			return ErrorInvalidCidString
		}
		if data[1] != CidPaddingByte {
			return ErrorInvalidCidString
		}
		c.t = CidType(data[2])
		c.s = base32.StdEncoding.EncodeToString(data)
		copy(c.b[:], data)
	default:
		return ErrorInvalidCidFormat
	}

	return nil
}

func (c *Cid) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Cid) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	cid, err := FromString(s)
	if err != nil {
		return err
	}
	*c = *cid
	return nil
}

func Encode(t CidType, hash [32]byte) (*Cid, error) {
	cidbytes := []byte{}

	// Add version and type
	cidbytes = append(cidbytes, byte(CidVersionV01))
	cidbytes = append(cidbytes, CidPaddingByte)
	cidbytes = append(cidbytes, byte(t))
	cidbytes = append(cidbytes, hash[:]...)

	c := &Cid{
		t: t,
		s: base32.StdEncoding.EncodeToString(cidbytes),
	}
	copy(c.b[:], cidbytes)
	return c, nil
}

// Sum computes the CID of an encoded node payload. Identical payloads always
// yield identical CIDs.
func Sum(t CidType, payload []byte) (*Cid, error) {
	return Encode(t, sha256.Sum256(payload))
}

func FromString(s string) (*Cid, error) {
	cidBytes, err := base32.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	c := &Cid{}
	if err := c.UnmarshalBinary(cidBytes); err != nil {
		return nil, err
	}
	return c, nil
}

func FromStringMustParse(s string) *Cid {
	c, err := FromString(s)
	if err != nil {
		log.Fatalf("Failed to parse CID: %v", err)
	}
	return c
}

// Equal helper
func (c *Cid) Equal(other *Cid) bool {
	if c == nil && other == nil {
		return true
	}
	if c == nil || other == nil {
		return false
	}
	return c.b == other.b
}
