package crpc

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"
)

var ErrShutdown = errors.New("connection is shut down")

// Call represents one in-flight RPC.
type Call struct {
	Method string
	Args   any
	Reply  any
	Error  error
	Done   chan *Call
}

func (call *Call) done() {
	select {
	case call.Done <- call:
	default:
		log.Debug("crpc.Client: discarding Call reply due to insufficient Done chan capacity")
	}
}

// Client is a connection to a crpc server. It supports concurrent calls;
// responses are matched back to callers by sequence number.
type Client struct {
	conn net.Conn
	enc  *cbor.Encoder
	dec  *cbor.Decoder

	sendMu sync.Mutex // guards enc; one request frame pair at a time

	mu       sync.Mutex
	seq      uint64
	pending  map[uint64]*Call
	shutdown bool
}

func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:    conn,
		enc:     cbor.NewEncoder(conn),
		dec:     cbor.NewDecoder(conn),
		pending: make(map[uint64]*Call),
	}
	go c.input()
	return c
}

func Dial(address string) (*Client, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

func (c *Client) send(call *Call) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		call.Error = ErrShutdown
		call.done()
		return
	}
	c.seq++
	seq := c.seq
	c.pending[seq] = call
	c.mu.Unlock()

	c.sendMu.Lock()
	err := c.enc.Encode(&RequestHeader{Seq: seq, Method: call.Method})
	if err == nil {
		err = c.enc.Encode(call.Args)
	}
	c.sendMu.Unlock()

	if err != nil {
		c.mu.Lock()
		call = c.pending[seq]
		delete(c.pending, seq)
		c.mu.Unlock()
		if call != nil {
			call.Error = err
			call.done()
		}
	}
}

// input reads response frames until the connection dies, then fails every
// pending call.
func (c *Client) input() {
	var err error
	for {
		resp := &ResponseHeader{}
		if err = c.dec.Decode(resp); err != nil {
			break
		}

		c.mu.Lock()
		call := c.pending[resp.Seq]
		delete(c.pending, resp.Seq)
		c.mu.Unlock()

		switch {
		case call == nil:
			log.Errorf("crpc.Client: response for unknown call seq %d", resp.Seq)
			err = errors.New("crpc: protocol desync")
		case resp.Err != "":
			call.Error = errors.New(resp.Err)
			call.done()
			continue
		default:
			if err = c.dec.Decode(call.Reply); err != nil {
				call.Error = err
				call.done()
			} else {
				call.done()
				continue
			}
		}
		break
	}

	c.mu.Lock()
	c.shutdown = true
	for _, call := range c.pending {
		call.Error = err
		call.done()
	}
	c.pending = make(map[uint64]*Call)
	c.mu.Unlock()

	if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
		log.Debugf("crpc.Client: input loop terminated: %v", err)
	}
}

// Go invokes the method asynchronously.
func (c *Client) Go(method string, args any, reply any, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	}
	call := &Call{
		Method: method,
		Args:   args,
		Reply:  reply,
		Done:   done,
	}
	c.send(call)
	return call
}

// Call invokes the method and waits for it to complete or the context to be
// cancelled. A cancelled call closes the connection, there is no way to
// retract a request already on the wire.
func (c *Client) Call(ctx context.Context, method string, args any, reply any) error {
	call := c.Go(method, args, reply, make(chan *Call, 1))
	select {
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	case call = <-call.Done:
		return call.Error
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
	return c.conn.Close()
}
