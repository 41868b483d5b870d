package ipc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProvider struct{ status Status }

func (f fakeProvider) Status() Status { return f.status }

func TestServeAndDialStatus(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "worker.sock")
	l, err := Listen(endpoint)
	require.NoError(t, err)
	defer l.Close()

	provider := fakeProvider{status: Status{
		WorkerID:     "worker1",
		Region:       "us-east-1",
		Addresses:    []string{"addr1", "addr2"},
		PendingQueue: 3,
		InProgress:   []string{"addr1-c1"},
	}}
	srv := NewServer(provider, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, l)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	st, err := Dial(dialCtx, endpoint)
	require.NoError(t, err)
	require.Equal(t, "worker1", st.WorkerID)
	require.Equal(t, 3, st.PendingQueue)
	require.Equal(t, []string{"addr1-c1"}, st.InProgress)
}

func TestServeUnknownCommand(t *testing.T) {
	endpoint := filepath.Join(t.TempDir(), "worker2.sock")
	l, err := Listen(endpoint)
	require.NoError(t, err)
	defer l.Close()

	srv := NewServer(fakeProvider{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, l)

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	conn, err := newIPCConnection(dialCtx, endpoint)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(`{"command":"bogus"}` + "\n"))
	require.NoError(t, err)

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "unknown command")
}
