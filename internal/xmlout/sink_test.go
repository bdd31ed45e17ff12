package xmlout

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestPipeSinkWritesThroughCommand(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), `odd "name" \ here.osm`)

	sink, err := OpenSink("cat", path)
	require.NoError(t, err)

	_, err = sink.Write([]byte("<osm>\n"))
	require.NoError(t, err)
	_, err = sink.Write([]byte("</osm>\n"))
	require.NoError(t, err)
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close(), "second close is a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<osm>\n</osm>\n", string(data))
	assert.Equal(t, int64(len(data)), sink.BytesWritten())
}

func TestPipeSinkAbnormalExit(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "out.osm")

	sink, err := OpenSink("cat >/dev/null; echo 'disk full' >&2; exit 3; :", path)
	require.NoError(t, err)
	_, _ = sink.Write([]byte("data"))

	err = sink.Close()
	var ce *CloseError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 3, ce.ExitCode)
	assert.Contains(t, ce.Stderr, "disk full")
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, err, sink.Close(), "repeated close reports the same failure")
}

func TestPipeSinkWriteAfterExit(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "out.osm")

	sink, err := OpenSink("true", path)
	require.NoError(t, err)

	// the command never reads its input, so writes eventually hit a
	// closed pipe
	chunk := []byte(strings.Repeat("x", 64*1024))
	var werr error
	for i := 0; i < 1024 && werr == nil; i++ {
		_, werr = sink.Write(chunk)
	}
	var we *WriteError
	require.True(t, errors.As(werr, &we), "got %v", werr)
	assert.Less(t, we.Written, we.Wanted)

	_ = sink.Close()
	_, err = sink.Write([]byte("late"))
	assert.True(t, errors.As(err, &we))
}

func TestOpenSinkEmptyCommand(t *testing.T) {
	_, err := OpenSink("  ", "/tmp/never")
	var se *SpawnError
	require.True(t, errors.As(err, &se))
}

func TestWriterFinishThroughPipe(t *testing.T) {
	requireShell(t)
	path := filepath.Join(t.TempDir(), "planet.osm")

	sink, err := OpenSink("cat", path)
	require.NoError(t, err)
	w, err := NewWriter(sink)
	require.NoError(t, err)
	require.NoError(t, w.Begin("osm"))
	require.NoError(t, w.AttrString("version", "0.6"))
	require.NoError(t, w.Finish())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<osm version="0.6"/>`)
}
