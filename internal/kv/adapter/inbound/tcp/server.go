// Package tcp serves the key/value protocol. One goroutine per
// connection runs the decode → dispatch → encode loop; the runtime
// netpoller multiplexes all connection I/O, so a connection waiting
// for bytes never blocks another connection and never occupies a
// worker from the engine pool.
package tcp

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/anthanhphan/go-kvs/internal/kv/port"
	"github.com/anthanhphan/go-kvs/internal/kv/protocol"
	"github.com/anthanhphan/go-kvs/internal/kv/service"
	"github.com/anthanhphan/gosdk/logger"
)

// Server accepts connections and dispatches decoded commands to the
// key/value service.
type Server struct {
	svc *service.KVService

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(svc *service.KVService) *Server {
	return &Server{
		svc:   svc,
		conns: make(map[net.Conn]struct{}),
	}
}

// Start binds addr and begins accepting connections.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go s.acceptLoop()

	logger.Infow("Server listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listen address. Valid after Start.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			// listener closed on shutdown
			return
		}
		s.track(conn)
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) track(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConn runs one connection's request/response loop. Connection
// close or a framing error terminates this connection only.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer func() { _ = conn.Close() }()

	dec := protocol.NewDecoder(conn)
	enc := protocol.NewEncoder(conn)

	for {
		cmd, err := dec.DecodeCommand()
		if err != nil {
			if err == io.EOF || s.ctx.Err() != nil {
				return
			}
			if errors.Is(err, protocol.ErrInvalidFrame) {
				logger.Warnw("Closing connection on protocol error",
					"remote", conn.RemoteAddr().String(), "error", err.Error())
			}
			return
		}

		resp := s.execute(cmd)
		if err := enc.Encode(resp); err != nil {
			logger.Debugw("Failed to write response",
				"remote", conn.RemoteAddr().String(), "error", err.Error())
			return
		}
	}
}

// execute maps one command onto the engine via the worker pool.
// Engine-reported errors become error responses, never dropped.
func (s *Server) execute(cmd protocol.Command) protocol.Response {
	switch cmd.Type {
	case protocol.CmdGet:
		value, found, err := s.svc.Get(s.ctx, cmd.Key)
		if err != nil {
			return protocol.Err(err.Error())
		}
		if !found {
			return protocol.OK()
		}
		return protocol.OKValue(value)

	case protocol.CmdSet:
		if err := s.svc.Set(s.ctx, cmd.Key, cmd.Value); err != nil {
			return protocol.Err(err.Error())
		}
		return protocol.OK()

	case protocol.CmdRemove:
		if err := s.svc.Remove(s.ctx, cmd.Key); err != nil {
			if errors.Is(err, port.ErrKeyNotFound) {
				return protocol.Err(port.ErrKeyNotFound.Error())
			}
			return protocol.Err(err.Error())
		}
		return protocol.OK()

	default:
		// Validate already rejected unknown types during decode.
		return protocol.Err("unknown command type")
	}
}

// Shutdown stops accepting, closes remaining connections, and waits
// for all handlers to finish.
func (s *Server) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
}
