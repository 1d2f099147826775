package status

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/metrics"
)

// Server accepts unbounded concurrent connections on a stream endpoint
// (TCP host:port or a unix socket path), decodes newline-delimited
// status frames off each one, and hands every well-formed record to a
// Repository. It never acknowledges frames.
type Server struct {
	Repo *Repository

	ln net.Listener
	wg sync.WaitGroup
}

// NewServer creates a server over repo. Start must be called to begin
// accepting connections.
func NewServer(repo *Repository) *Server {
	return &Server{Repo: repo}
}

// isUnixPath heuristically distinguishes a filesystem socket path from
// a TCP host:port endpoint: anything that doesn't parse as host:port
// is treated as a path.
func isUnixPath(addr string) bool {
	if strings.HasPrefix(addr, "/") || strings.HasPrefix(addr, "./") || strings.HasPrefix(addr, "../") {
		return true
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return true
	}
	if _, err := strconv.Atoi(port); err != nil {
		return true
	}
	_ = host
	return false
}

// Start binds addr (TCP host:port, or a filesystem path for a unix
// socket) and begins accepting connections in the background.
func (s *Server) Start(addr string) error {
	network := "tcp"
	if isUnixPath(addr) {
		network = "unix"
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return err
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()
	logger.WithComponent("status-server").Info().Str("network", network).Str("addr", addr).Msg("status server listening")
	return nil
}

// Addr returns the bound listener's address, for tasks whose status
// endpoint is assigned after the server starts on an ephemeral port.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	log := logger.WithComponent("status-server")
	scanner := bufio.NewScanner(conn)
	decodeStream(scanner, func(rec Record) {
		metrics.RecordStatusRecord(rec.Status)
		if err := s.Repo.ProcessMessage(rec); err != nil {
			log.Warn().Err(err).Str("id", rec.ID).Msg("rejected status record")
		}
	}, func(line []byte, err error) {
		metrics.RecordStatusDecodeError()
		log.Warn().Err(err).Msg("malformed status frame, skipping")
	})
}

// Stop closes the listener, then waits for already-accepted connections
// to finish draining until either they all have or ctx is done. The
// runner calls it with a short deadline before collating results.
func (s *Server) Stop(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	err := s.ln.Close()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return err
}
