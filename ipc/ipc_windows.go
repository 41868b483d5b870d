//go:build windows
// +build windows

package ipc

import (
	"context"
	"net"
	"time"

	"gopkg.in/natefinch/npipe.v2"
)

const defaultPipeDialTimeout = 2 * time.Second

// Listen creates a named pipe listener at endpoint (e.g.
// `\\.\pipe\minefleet-worker1`).
func Listen(endpoint string) (net.Listener, error) {
	return npipe.Listen(endpoint)
}

func newIPCConnection(ctx context.Context, endpoint string) (net.Conn, error) {
	timeout := defaultPipeDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return npipe.DialTimeout(endpoint, timeout)
}
