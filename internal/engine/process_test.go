package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartProcessBadPath(t *testing.T) {
	_, err := StartProcess("/nonexistent/engine")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestProcessCloseIsIdempotent(t *testing.T) {
	// cat is a stand-in engine: it echoes stdin lines back on stdout and
	// ignores the quit command, so Close has to fall back to killing it.
	p, err := StartProcess("/bin/cat")
	require.NoError(t, err)
	assert.True(t, p.Alive())

	require.NoError(t, p.Send("hello"))

	select {
	case line := <-p.Lines():
		assert.Equal(t, "hello\n", line)
	case <-time.After(time.Second):
		t.Fatal("no echo received")
	}

	p.Close(100 * time.Millisecond)
	assert.False(t, p.Alive())

	// Unloading an already-unloaded process is a no-op.
	p.Close(100 * time.Millisecond)
	assert.False(t, p.Alive())
}
