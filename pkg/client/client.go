package client

import (
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// isUnixPath mirrors the server's addressing heuristic: anything that
// doesn't parse as host:port is a filesystem socket path.
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

// frame is the wire shape a reporter writes; it matches what the
// status repository decodes on the other end.
type frame struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Time      float64 `json:"time"`
	Result    string  `json:"result,omitempty"`
	OutputDir string  `json:"output_dir,omitempty"`
}

// Reporter holds one outbound connection to a status server and writes
// newline-delimited JSON frames on it. Safe for concurrent use by
// multiple goroutines reporting on behalf of different task IDs.
type Reporter struct {
	mu   sync.Mutex
	conn net.Conn
	now  func() time.Time
}

// New dials addr (TCP host:port, or a filesystem path for a unix
// socket) and returns a Reporter ready to send frames.
func New(addr string, opts ...Option) (*Reporter, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	network := "tcp"
	if isUnixPath(addr) {
		network = "unix"
	}
	conn, err := net.DialTimeout(network, addr, o.dialTimeout)
	if err != nil {
		return nil, err
	}
	return &Reporter{conn: conn, now: time.Now}, nil
}

// Started reports that id has begun running, with outputDir as the
// location of its captured output. The status repository rejects a
// started record whose outputDir is empty.
func (r *Reporter) Started(id, outputDir string) error {
	return r.send(frame{ID: id, Status: "started", OutputDir: outputDir})
}

// Finished reports that id has completed with result.
func (r *Reporter) Finished(id, result string) error {
	return r.send(frame{ID: id, Status: "finished", Result: result})
}

// Report sends an arbitrary status frame, for statuses beyond the
// started/finished pair the repository treats specially.
func (r *Reporter) Report(id, status string) error {
	return r.send(frame{ID: id, Status: status})
}

func (r *Reporter) send(f frame) error {
	f.Time = float64(r.now().UnixNano()) / 1e9

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.conn.Write(data)
	return err
}

// Close closes the underlying connection.
func (r *Reporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn.Close()
}
