package dag

import (
	"chaindrive/cid"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// The node payload encoding is the single fixed point of the whole content
// addressing scheme: two implementations encoding the same logical content
// must produce byte-identical payloads, and therefore identical CIDs.
//
// The encoding is CBOR Core Deterministic Encoding (RFC 8949 §4.2.1) of the
// Payload struct below, with integer keys in ascending order and empty
// fields omitted. Link order is significant and preserved as given.

// Link references a child node by CID. Size is the logical size of the
// subtree below the child.
type Link struct {
	_    struct{} `cbor:",toarray"`
	Cid  cid.Cid
	Size uint64
}

// Payload is the serializable form of a DAG node.
// A chunk node carries Data only. A file node carries either inline Data
// (single-node files) or Links to its chunk nodes, never both. A folder node
// carries Links to its children in snapshot order.
type Payload struct {
	Type  uint8  `cbor:"1,keyasint"`
	Name  string `cbor:"2,keyasint,omitempty"`
	Size  uint64 `cbor:"3,keyasint,omitempty"`
	Links []Link `cbor:"4,keyasint,omitempty"`
	Data  []byte `cbor:"5,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dag: failed to build deterministic CBOR mode: %v", err))
	}
}

// EncodePayload serializes a node payload using the deterministic encoding.
func EncodePayload(p *Payload) ([]byte, error) {
	raw, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return raw, nil
}

// DecodePayload parses an encoded node payload.
func DecodePayload(raw []byte) (*Payload, error) {
	p := &Payload{}
	if err := cbor.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return p, nil
}

func cidTypeFor(t NodeType) cid.CidType {
	switch t {
	case NodeTypeChunk:
		return cid.CidTypeChunkNode
	case NodeTypeFile:
		return cid.CidTypeFileNode
	default:
		return cid.CidTypeFolderNode
	}
}
