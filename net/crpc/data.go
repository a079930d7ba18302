// Package crpc is a minimal CBOR-over-TCP RPC layer. A request is a header
// frame followed by an argument frame; a response is a header frame followed
// by a reply frame unless the header carries an error string.
package crpc

type RequestHeader struct {
	Seq    uint64 `cbor:"1,keyasint,omitempty"`
	Method string `cbor:"2,keyasint,omitempty"`
}

type ResponseHeader struct {
	Seq uint64 `cbor:"1,keyasint,omitempty"`
	Err string `cbor:"2,keyasint,omitempty"`
}
