// Package rpc provides a lightweight JSON-over-TCP RPC framework used between
// indexing clients and the retrieval server.
//
// Protocol: newline-delimited JSON over a persistent TCP connection. Every
// decoded request is dispatched on its own goroutine, so calls on the same
// connection may complete out of order; responses carry the request id.
//
// Example server:
//
//	s := rpc.NewServer()
//	s.Register(proto.MethodSearch, func(ctx context.Context, req json.RawMessage) (any, error) {
//	    var searchReq proto.SearchRequest
//	    json.Unmarshal(req, &searchReq)
//	    // ... execute search ...
//	    return &proto.SearchResponse{...}, nil
//	})
//	s.Serve(":12345")
//
// Example client:
//
//	c, _ := rpc.Dial(ctx, "localhost:12345")
//	var resp proto.SearchResponse
//	c.Call(ctx, proto.MethodSearch, &proto.SearchRequest{Terms: []string{"hello"}}, &resp)
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/errors"
)

// HandlerFunc processes an RPC request and returns a response or error.
type HandlerFunc func(ctx context.Context, req json.RawMessage) (any, error)

// Request is the wire format for an RPC request.
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id"`
	Params json.RawMessage `json:"params"`
}

// Response is the wire format for an RPC response. Code mirrors the HTTP
// status of the error class and is zero on success.
type Response struct {
	ID    string `json:"id"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  int    `json:"code,omitempty"`
}

type peerKey struct{}

// PeerFromContext returns the remote address of the connection that carried
// the current call.
func PeerFromContext(ctx context.Context) string {
	addr, _ := ctx.Value(peerKey{}).(string)
	return addr
}

// Server is a lightweight JSON-over-TCP RPC server.
type Server struct {
	handlers map[string]HandlerFunc
	listener net.Listener
	logger   *slog.Logger
	mu       sync.RWMutex

	stateMu  sync.Mutex
	closing  bool
	conns    map[net.Conn]struct{}
	maxConns int
	calls    sync.WaitGroup
	connWG   sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	ready   chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithMaxConnections caps the number of concurrently open client
// connections; extra connections are closed on accept. Zero means no cap.
func WithMaxConnections(n int) Option {
	return func(s *Server) { s.maxConns = n }
}

// NewServer creates a new RPC server.
func NewServer(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		handlers: make(map[string]HandlerFunc),
		conns:    make(map[net.Conn]struct{}),
		logger:   slog.Default().With("component", "rpc-server"),
		baseCtx:  ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		ready:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a handler for the given RPC method name.
// Method names follow the "Service.Method" convention.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
	s.logger.Debug("method registered", "method", method)
}

// Serve starts accepting TCP connections on the given address.
// It blocks until Shutdown is called.
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts connections from ln until Shutdown is called.
func (s *Server) ServeListener(ln net.Listener) error {
	s.stateMu.Lock()
	if s.closing {
		s.stateMu.Unlock()
		ln.Close()
		return nil
	}
	s.listener = ln
	close(s.ready)
	s.stateMu.Unlock()
	s.logger.Info("rpc server listening", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				s.logger.Error("accept error", "error", err)
				continue
			}
		}
		if !s.trackConn(conn) {
			conn.Close()
			continue
		}
		go s.handleConn(conn)
	}
}

// Addr returns the listening address once Serve has started, or nil.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
		return s.listener.Addr()
	default:
		return nil
	}
}

// Ready is closed once the listener is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

func (s *Server) trackConn(conn net.Conn) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.closing {
		return false
	}
	if s.maxConns > 0 && len(s.conns) >= s.maxConns {
		s.logger.Warn("connection rejected, limit reached",
			"remote", conn.RemoteAddr().String(),
			"max_connections", s.maxConns,
		)
		return false
	}
	s.conns[conn] = struct{}{}
	s.connWG.Add(1)
	return true
}

func (s *Server) untrackConn(conn net.Conn) {
	s.stateMu.Lock()
	delete(s.conns, conn)
	s.stateMu.Unlock()
	s.connWG.Done()
}

// beginCall registers an in-flight call unless the server is draining.
func (s *Server) beginCall() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.closing {
		return false
	}
	s.calls.Add(1)
	return true
}

type connWriter struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func (w *connWriter) write(resp Response) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.encoder.Encode(resp)
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.untrackConn(conn)
	defer conn.Close()

	peer := conn.RemoteAddr().String()
	decoder := json.NewDecoder(conn)
	writer := &connWriter{encoder: json.NewEncoder(conn)}

	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			return // connection closed or read error
		}
		if !s.beginCall() {
			writer.write(Response{
				ID:    req.ID,
				Error: apperrors.ErrShuttingDown.Error(),
				Code:  apperrors.HTTPStatusCode(apperrors.ErrShuttingDown),
			})
			continue
		}
		go s.dispatch(peer, writer, req)
	}
}

func (s *Server) dispatch(peer string, writer *connWriter, req Request) {
	defer s.calls.Done()

	resp := Response{ID: req.ID}
	s.mu.RLock()
	handler, exists := s.handlers[req.Method]
	s.mu.RUnlock()

	if !exists {
		resp.Error = fmt.Sprintf("unknown method: %s", req.Method)
		resp.Code = apperrors.HTTPStatusCode(apperrors.ErrInvalidInput)
	} else {
		ctx := context.WithValue(s.baseCtx, peerKey{}, peer)
		data, err := s.invoke(ctx, handler, req)
		if err != nil {
			resp.Error = err.Error()
			resp.Code = apperrors.HTTPStatusCode(err)
		} else {
			resp.Data = data
		}
	}

	if err := writer.write(resp); err != nil {
		s.logger.Debug("write error", "method", req.Method, "peer", peer, "error", err)
	}
}

// invoke runs handler and converts a panic into an internal error so one bad
// call never takes the process down.
func (s *Server) invoke(ctx context.Context, handler HandlerFunc, req Request) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked", "method", req.Method, "panic", r)
			data = nil
			err = apperrors.New(apperrors.ErrInternal, apperrors.HTTPStatusCode(apperrors.ErrInternal), "handler failed")
		}
	}()
	return handler(ctx, req.Params)
}

// MethodCount returns the number of registered methods.
func (s *Server) MethodCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.handlers)
}

// ConnectionCount returns the number of open client connections.
func (s *Server) ConnectionCount() int {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return len(s.conns)
}

// Shutdown stops accepting connections and waits for in-flight calls to
// finish. New calls on open connections are refused with ErrShuttingDown.
// If ctx expires first, the contexts of in-flight calls are cancelled and
// every connection is force-closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stateMu.Lock()
	if s.closing {
		s.stateMu.Unlock()
		return nil
	}
	s.closing = true
	ln := s.listener
	s.stateMu.Unlock()

	close(s.done)
	if ln != nil {
		ln.Close()
	}

	drained := make(chan struct{})
	go func() {
		s.calls.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
		s.logger.Info("rpc calls drained")
	case <-ctx.Done():
		err = fmt.Errorf("draining rpc calls: %w", ctx.Err())
		s.logger.Warn("grace period expired, forcing connections closed")
	}
	s.cancel()
	s.closeConns()
	if err == nil {
		s.connWG.Wait()
	}
	s.logger.Info("rpc server stopped")
	return err
}

func (s *Server) closeConns() {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}
