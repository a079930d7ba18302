// Package server exposes the upload pipeline over the crpc wire as the
// "Upload" service.
package server

import (
	"context"
	"net"

	"chaindrive/ingest"
	"chaindrive/ingest/protocol"
	"chaindrive/net/crpc"
	"chaindrive/status"

	log "github.com/sirupsen/logrus"
)

// Upload is the RPC receiver. Method names are the wire method names.
type Upload struct {
	ingest *ingest.Service
	status *status.Service
}

type Server struct {
	rpc *crpc.Server
}

func NewServer(listener net.Listener, ingestSvc *ingest.Service, statusSvc *status.Service) (*Server, error) {
	rpc := crpc.NewServer(listener)
	if err := rpc.Register(&Upload{ingest: ingestSvc, status: statusSvc}); err != nil {
		return nil, err
	}
	return &Server{rpc: rpc}, nil
}

func (s *Server) Addr() net.Addr {
	return s.rpc.Addr()
}

func (s *Server) Serve(ctx context.Context) error {
	log.Infof("upload server listening on %s", s.rpc.Addr())
	return s.rpc.Serve(ctx)
}

func (u *Upload) CreateFile(req *protocol.CreateFileRequest, res *protocol.CreateFileResponse) error {
	session, err := u.ingest.CreateFile(req.Owner, req.Name, req.MimeType, req.DeclaredSize, req.Options)
	if err != nil {
		return err
	}
	res.Session = session
	return nil
}

func (u *Upload) CreateFolder(req *protocol.CreateFolderRequest, res *protocol.CreateFolderResponse) error {
	session, children, err := u.ingest.CreateFolder(req.Owner, req.Snapshot, req.Options)
	if err != nil {
		return err
	}
	res.Session = session
	res.Children = children
	return nil
}

func (u *Upload) PutChunk(req *protocol.PutChunkRequest, _ *protocol.PutChunkResponse) error {
	return u.ingest.UploadChunk(req.Owner, req.UploadID, req.PartIndex, req.Data)
}

func (u *Upload) Complete(req *protocol.CompleteRequest, res *protocol.CompleteResponse) error {
	session, err := u.ingest.Complete(context.Background(), req.Owner, req.UploadID)
	if err != nil {
		return err
	}
	res.Session = session
	return nil
}

func (u *Upload) Cancel(req *protocol.CancelRequest, _ *protocol.CancelResponse) error {
	return u.ingest.Cancel(req.Owner, req.UploadID)
}

func (u *Upload) Summary(req *protocol.SummaryRequest, res *protocol.SummaryResponse) error {
	summary, err := u.status.Summarize(req.Owner, req.UploadID)
	if err != nil {
		return err
	}
	res.Summary = summary
	return nil
}
