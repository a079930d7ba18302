// Package protocol defines the wire messages of the upload RPC surface.
package protocol

import (
	"chaindrive/datamodel/upload"
	"chaindrive/status"
)

type CreateFileRequest struct {
	Owner        string          `cbor:"1,keyasint,omitempty"`
	Name         string          `cbor:"2,keyasint,omitempty"`
	MimeType     string          `cbor:"3,keyasint,omitempty"`
	DeclaredSize uint64          `cbor:"4,keyasint,omitempty"`
	Options      *upload.Options `cbor:"5,keyasint,omitempty"`
}

type CreateFileResponse struct {
	Session *upload.Session `cbor:"1,keyasint,omitempty"`
}

type CreateFolderRequest struct {
	Owner    string           `cbor:"1,keyasint,omitempty"`
	Snapshot *upload.Snapshot `cbor:"2,keyasint,omitempty"`
	Options  *upload.Options  `cbor:"3,keyasint,omitempty"`
}

type CreateFolderResponse struct {
	Session  *upload.Session   `cbor:"1,keyasint,omitempty"`
	Children []*upload.Session `cbor:"2,keyasint,omitempty"`
}

type PutChunkRequest struct {
	Owner     string `cbor:"1,keyasint,omitempty"`
	UploadID  string `cbor:"2,keyasint,omitempty"`
	PartIndex uint32 `cbor:"3,keyasint"`
	Data      []byte `cbor:"4,keyasint,omitempty"`
}

type PutChunkResponse struct{}

type CompleteRequest struct {
	Owner    string `cbor:"1,keyasint,omitempty"`
	UploadID string `cbor:"2,keyasint,omitempty"`
}

type CompleteResponse struct {
	Session *upload.Session `cbor:"1,keyasint,omitempty"`
}

type CancelRequest struct {
	Owner    string `cbor:"1,keyasint,omitempty"`
	UploadID string `cbor:"2,keyasint,omitempty"`
}

type CancelResponse struct{}

type SummaryRequest struct {
	Owner    string `cbor:"1,keyasint,omitempty"`
	UploadID string `cbor:"2,keyasint,omitempty"`
}

type SummaryResponse struct {
	Summary *status.ObjectSummary `cbor:"1,keyasint,omitempty"`
}
