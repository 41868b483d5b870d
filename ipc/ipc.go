// Package ipc implements the local control-plane socket of spec.md §4.9:
// a line-delimited JSON protocol over a POSIX unix socket (or a Windows
// named pipe), letting the operator CLI query a running worker's live
// status without going through the object store. Adapted from the
// teacher's rpc/ipc.go idiom (ServeListener/DialIPC over a platform
// net.Listener), scoped down to this fleet's status-query surface rather
// than a full JSON-RPC method dispatcher.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"

	"berith-chain/minefleet/internal/log"
)

// Status is the live worker status a connected operator CLI receives.
type Status struct {
	WorkerID      string   `json:"workerId"`
	Region        string   `json:"region"`
	Addresses     []string `json:"addresses"`
	PendingQueue  int      `json:"pendingQueue"`
	InProgress    []string `json:"inProgress"`
	LastHeartbeat string   `json:"lastHeartbeat,omitempty"`
}

// StatusProvider is implemented by the worker's running engine; kept as
// its own small interface so the ipc server never reaches directly into
// orchestrator.Engine internals.
type StatusProvider interface {
	Status() Status
}

// Request is the line-delimited JSON request shape. Only "status" is
// implemented today; the envelope leaves room for future commands
// without a wire-format break.
type Request struct {
	Command string `json:"command"`
}

// Response wraps either a Status payload or an error string.
type Response struct {
	Status *Status `json:"status,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Server accepts connections on a platform-specific listener and answers
// one Request per line with one Response per line.
type Server struct {
	provider StatusProvider
	log      log.Logger
}

func NewServer(provider StatusProvider, logger log.Logger) *Server {
	if logger == nil {
		logger = log.Root
	}
	return &Server{provider: provider, log: logger}
}

// Serve accepts connections on l until it returns an error (typically
// because the listener was closed during shutdown).
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)
	for scanner.Scan() {
		var req Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			encoder.Encode(Response{Error: fmt.Sprintf("ipc: malformed request: %v", err)})
			continue
		}
		switch req.Command {
		case "status", "":
			st := s.provider.Status()
			encoder.Encode(Response{Status: &st})
		default:
			encoder.Encode(Response{Error: fmt.Sprintf("ipc: unknown command %q", req.Command)})
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("ipc: connection read error", "err", err)
	}
}

// Dial connects to a running worker's IPC endpoint and issues one status
// query, for use by the operator CLI.
func Dial(ctx context.Context, endpoint string) (Status, error) {
	conn, err := newIPCConnection(ctx, endpoint)
	if err != nil {
		return Status{}, fmt.Errorf("ipc: dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintln(conn, `{"command":"status"}`); err != nil {
		return Status{}, fmt.Errorf("ipc: write request: %w", err)
	}
	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Status{}, fmt.Errorf("ipc: read response: %w", err)
	}
	if resp.Error != "" {
		return Status{}, fmt.Errorf("ipc: %s", resp.Error)
	}
	if resp.Status == nil {
		return Status{}, fmt.Errorf("ipc: empty response")
	}
	return *resp.Status, nil
}
