package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"sbvc/client"
	"sbvc/internal/config"
	apperrors "sbvc/internal/errors"
	"sbvc/internal/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_ServeAndShutdown(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(file, []byte("a\n"), 0644))

	engine, err := history.Create(filepath.Join(dir, "notes.sbvc"), file, history.Options{})
	require.NoError(t, err)

	srv, err := New(config.Default(), engine, nil)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	c := client.New("http://" + ln.Addr().String())

	require.NoError(t, os.WriteFile(file, []byte("a\nb\n"), 0644))
	snap, err := c.Commit()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), snap.Current.ID)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err = engine.Versions()
	assert.ErrorIs(t, err, apperrors.ErrClosed)

	reopened, err := history.Open(filepath.Join(dir, "notes.sbvc"), history.Options{})
	require.NoError(t, err)
	defer reopened.Close()
	cur, err := reopened.Current()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), cur.ID)
}
