package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	want := Entry{WorkerID: "worker-1", Addresses: []string{"a", "b", "c"}}
	require.NoError(t, s.Save(want))

	got, ok, err := s.Load("worker-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok, err = s.Load("worker-2")
	require.NoError(t, err)
	assert.False(t, ok, "unseen worker id has no cached entry")
}

func TestSaveWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(Entry{WorkerID: "worker-1", Addresses: []string{"a"}}))

	_, err = os.Stat(filepath.Join(dir, sidecarName))
	assert.NoError(t, err, "Save must leave a human-readable addresses.json sidecar")
}
