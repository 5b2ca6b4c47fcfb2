// Package server accepts client connections and runs the per-connection
// request loop: one read, one dispatch, one write, until the peer
// disconnects or sends EXIT.
package server

import (
	"errors"
	"net"
	"sync"

	"memoserv/internal/dispatch"
	"memoserv/internal/protocol"
	"memoserv/pkg/logger"
)

// readBufSize bounds a single request; the protocol requires a request to
// fit in one read.
const readBufSize = 4096

// Server is the TCP front end. One goroutine per accepted connection; the
// accept loop never blocks on request processing.
type Server struct {
	addr       string
	dispatcher *dispatch.Dispatcher

	ln net.Listener
	wg sync.WaitGroup

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

func New(addr string, d *dispatch.Dispatcher) *Server {
	return &Server{
		addr:       addr,
		dispatcher: d,
		conns:      make(map[net.Conn]struct{}),
	}
}

// Start binds the listener and begins accepting in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	logger.Sugar.Infof("listening on %s", ln.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listener address. Only valid after Start.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Sugar.Warnf("accept: %v", err)
			continue
		}
		if !s.track(conn) {
			conn.Close()
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// handleConn runs the blocking read/dispatch/write cycle for one peer.
// Transport errors end this handler only; other connections are unaffected.
func (s *Server) handleConn(conn net.Conn) {
	logger.Sugar.Infof("client connected: %s", conn.RemoteAddr())
	buf := make([]byte, readBufSize)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			logger.Sugar.Infof("client disconnected: %s", conn.RemoteAddr())
			return
		}
		raw := string(buf[:n])

		resp := s.dispatcher.Handle(raw)
		if _, err := conn.Write([]byte(resp)); err != nil {
			logger.Sugar.Warnf("write to %s: %v", conn.RemoteAddr(), err)
			return
		}

		if cmd, _, ok := protocol.ParseRequest(raw); ok && cmd == dispatch.CmdExit {
			logger.Sugar.Infof("client exiting: %s", conn.RemoteAddr())
			return
		}
	}
}

// Shutdown stops accepting, closes every live connection, and waits for
// the handlers to drain.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	conns := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	if s.ln != nil {
		s.ln.Close()
	}
	for _, c := range conns {
		c.Close()
	}
	s.wg.Wait()
}
