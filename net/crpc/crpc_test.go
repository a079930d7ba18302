package crpc

import (
	"context"
	"net"
	"strings"
	"sync"
	"testing"
)

type AddRequest struct {
	A int `cbor:"1,keyasint"`
	B int `cbor:"2,keyasint"`
}

type AddResponse struct {
	Sum int `cbor:"1,keyasint"`
}

type Arith struct{}

func (a *Arith) Add(req *AddRequest, res *AddResponse) error {
	res.Sum = req.A + req.B
	return nil
}

func (a *Arith) Fail(req *AddRequest, res *AddResponse) error {
	return &net.AddrError{Err: "boom", Addr: "nowhere"}
}

func startServer(t *testing.T) (string, context.CancelFunc) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(l)
	if err := srv.Register(&Arith{}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	return l.Addr().String(), cancel
}

func TestCallRoundtrip(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	cli, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	res := &AddResponse{}
	if err := cli.Call(context.Background(), "Arith.Add", &AddRequest{A: 2, B: 40}, res); err != nil {
		t.Fatal(err)
	}
	if res.Sum != 42 {
		t.Fatalf("expected 42, got %d", res.Sum)
	}
}

func TestCallErrorPropagates(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	cli, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	err = cli.Call(context.Background(), "Arith.Fail", &AddRequest{}, &AddResponse{})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected remote error, got %v", err)
	}

	// The connection survives an application error.
	res := &AddResponse{}
	if err := cli.Call(context.Background(), "Arith.Add", &AddRequest{A: 1, B: 1}, res); err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentCalls(t *testing.T) {
	addr, cancel := startServer(t)
	defer cancel()

	cli, err := Dial(addr)
	if err != nil {
		t.Fatal(err)
	}
	defer cli.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := &AddResponse{}
			if err := cli.Call(context.Background(), "Arith.Add", &AddRequest{A: i, B: i}, res); err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}
			if res.Sum != 2*i {
				t.Errorf("call %d: expected %d, got %d", i, 2*i, res.Sum)
			}
		}(i)
	}
	wg.Wait()
}
