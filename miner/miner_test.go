package miner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunnerParsesSuccess(t *testing.T) {
	// /bin/sh -c '...' ignores the --flag args spec.md requires for the
	// real miner binary; exercised here only to validate stdout-JSON
	// parsing and normal exit handling.
	runner := &execRunner{binaryPath: "/bin/sh"}

	res, err := runner.runShell(context.Background(), `echo '{"success":true,"nonce":"abc"}'`, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "abc", res.Nonce)
}

func TestExecRunnerHonorsContextCancel(t *testing.T) {
	runner := &execRunner{binaryPath: "/bin/sh"}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := runner.runShell(ctx, `sleep 5; echo '{"success":false}'`, 200*time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
}
