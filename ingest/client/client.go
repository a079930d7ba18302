// Package client is the Go client of the upload RPC surface.
package client

import (
	"context"

	"chaindrive/datamodel/upload"
	"chaindrive/ingest/protocol"
	"chaindrive/net/crpc"
	"chaindrive/status"
)

type Client struct {
	rpc *crpc.Client
}

func Dial(address string) (*Client, error) {
	rpc, err := crpc.Dial(address)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc}, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

func (c *Client) CreateFile(ctx context.Context, owner, name, mimeType string, declaredSize uint64, opts *upload.Options) (*upload.Session, error) {
	res := &protocol.CreateFileResponse{}
	err := c.rpc.Call(ctx, "Upload.CreateFile", &protocol.CreateFileRequest{
		Owner:        owner,
		Name:         name,
		MimeType:     mimeType,
		DeclaredSize: declaredSize,
		Options:      opts,
	}, res)
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (c *Client) CreateFolder(ctx context.Context, owner string, snapshot *upload.Snapshot, opts *upload.Options) (*upload.Session, []*upload.Session, error) {
	res := &protocol.CreateFolderResponse{}
	err := c.rpc.Call(ctx, "Upload.CreateFolder", &protocol.CreateFolderRequest{
		Owner:    owner,
		Snapshot: snapshot,
		Options:  opts,
	}, res)
	if err != nil {
		return nil, nil, err
	}
	return res.Session, res.Children, nil
}

func (c *Client) PutChunk(ctx context.Context, owner, uploadID string, partIndex uint32, data []byte) error {
	return c.rpc.Call(ctx, "Upload.PutChunk", &protocol.PutChunkRequest{
		Owner:     owner,
		UploadID:  uploadID,
		PartIndex: partIndex,
		Data:      data,
	}, &protocol.PutChunkResponse{})
}

func (c *Client) Complete(ctx context.Context, owner, uploadID string) (*upload.Session, error) {
	res := &protocol.CompleteResponse{}
	err := c.rpc.Call(ctx, "Upload.Complete", &protocol.CompleteRequest{
		Owner:    owner,
		UploadID: uploadID,
	}, res)
	if err != nil {
		return nil, err
	}
	return res.Session, nil
}

func (c *Client) Cancel(ctx context.Context, owner, uploadID string) error {
	return c.rpc.Call(ctx, "Upload.Cancel", &protocol.CancelRequest{
		Owner:    owner,
		UploadID: uploadID,
	}, &protocol.CancelResponse{})
}

func (c *Client) Summary(ctx context.Context, owner, uploadID string) (*status.ObjectSummary, error) {
	res := &protocol.SummaryResponse{}
	err := c.rpc.Call(ctx, "Upload.Summary", &protocol.SummaryRequest{
		Owner:    owner,
		UploadID: uploadID,
	}, res)
	if err != nil {
		return nil, err
	}
	return res.Summary, nil
}
