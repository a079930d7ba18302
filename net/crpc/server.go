package crpc

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"io"
	"net"
	"reflect"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"

	log "github.com/sirupsen/logrus"
)

type methodType struct {
	method    reflect.Method
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

type Server struct {
	listener   net.Listener
	serviceMap sync.Map // map[string]*service
}

func NewServer(listener net.Listener) *Server {
	return &Server{
		listener: listener,
	}
}

// Register publishes the exported methods of rcvr. A suitable method has the
// shape `func (t *T) Name(args *Args, reply *Reply) error`.
func (srv *Server) Register(rcvr any) error {
	s := new(service)
	s.typ = reflect.TypeOf(rcvr)
	s.rcvr = reflect.ValueOf(rcvr)
	sname := reflect.Indirect(s.rcvr).Type().Name()
	if sname == "" || !token.IsExported(sname) {
		return fmt.Errorf("rpc.Register: type %s is not a usable service", s.typ.String())
	}
	s.name = sname

	s.method = suitableMethods(s.typ)
	if len(s.method) == 0 {
		return errors.New("rpc.Register: type " + sname + " has no exported methods of suitable type")
	}

	if _, dup := srv.serviceMap.LoadOrStore(sname, s); dup {
		return errors.New("rpc: service already defined: " + sname)
	}

	for m := range s.method {
		log.Debugf("rpc.Register: %s.%s", sname, m)
	}

	return nil
}

func suitableMethods(typ reflect.Type) map[string]*methodType {
	methods := make(map[string]*methodType)
	for m := 0; m < typ.NumMethod(); m++ {
		method := typ.Method(m)
		mtype := method.Type
		if !method.IsExported() {
			continue
		}
		// receiver, *args, *reply in; error out.
		if mtype.NumIn() != 3 || mtype.NumOut() != 1 {
			continue
		}
		argType := mtype.In(1)
		replyType := mtype.In(2)
		if argType.Kind() != reflect.Pointer || replyType.Kind() != reflect.Pointer {
			continue
		}
		if mtype.Out(0) != reflect.TypeFor[error]() {
			continue
		}
		methods[method.Name] = &methodType{method: method, ArgType: argType, ReplyType: replyType}
	}
	return methods
}

func (srv *Server) Addr() net.Addr {
	return srv.listener.Addr()
}

// Serve accepts connections until the context is cancelled.
func (srv *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := srv.listener.Close(); err != nil {
			log.Warnf("crpc.Server: error closing listener %s: %v", srv.listener.Addr(), err)
		}
	}()

	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Infof("crpc.Server: shutting down listener %s", srv.listener.Addr())
				return ctx.Err()
			default:
				return err
			}
		}

		log.Debugf("crpc.Server: accepted connection from %s", conn.RemoteAddr())
		go srv.serveConn(ctx, conn)
	}
}

func (srv *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	decoder := cbor.NewDecoder(conn)
	encoder := cbor.NewEncoder(conn)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		req := &RequestHeader{}
		if err := decoder.Decode(req); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Errorf("crpc.Server: error decoding request header from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		dot := strings.LastIndex(req.Method, ".")
		if dot < 0 {
			log.Errorf("crpc.Server: service/method request ill-formed: %q from %s", req.Method, conn.RemoteAddr())
			return
		}
		svci, ok := srv.serviceMap.Load(req.Method[:dot])
		if !ok {
			log.Errorf("crpc.Server: can't find service for method %q from %s", req.Method, conn.RemoteAddr())
			return
		}
		svc := svci.(*service)
		mtype := svc.method[req.Method[dot+1:]]
		if mtype == nil {
			log.Errorf("crpc.Server: can't find method %q from %s", req.Method, conn.RemoteAddr())
			return
		}

		argv := reflect.New(mtype.ArgType.Elem())
		if err := decoder.Decode(argv.Interface()); err != nil {
			log.Errorf("crpc.Server: error decoding argument for %s from %s: %v", req.Method, conn.RemoteAddr(), err)
			return
		}

		replyv := reflect.New(mtype.ReplyType.Elem())
		callErr := svc.call(mtype, argv, replyv)

		resp := &ResponseHeader{Seq: req.Seq}
		if callErr != nil {
			resp.Err = callErr.Error()
		}
		if err := encoder.Encode(resp); err != nil {
			log.Errorf("crpc.Server: error encoding response header for %s: %v", req.Method, err)
			return
		}
		if callErr == nil {
			if err := encoder.Encode(replyv.Interface()); err != nil {
				log.Errorf("crpc.Server: error encoding response body for %s: %v", req.Method, err)
				return
			}
		}
	}
}

func (svc *service) call(mtype *methodType, argv, replyv reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("crpc.Server: panic during RPC call %s: %v", mtype.method.Name, r)
			err = fmt.Errorf("rpc: internal server error during %s", mtype.method.Name)
		}
	}()

	returnValues := mtype.method.Func.Call([]reflect.Value{svc.rcvr, argv, replyv})
	if errInter := returnValues[0].Interface(); errInter != nil {
		return errInter.(error)
	}
	return nil
}
