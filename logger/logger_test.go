package logger

import (
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalLoggerFansOut(t *testing.T) {
	Init("", false)
	buf := NewLogBuffer(10)
	require.NoError(t, AddOutput(NewLogBufferWriter(buf)))

	Named("process-1").Info("transport bound")
	Errorf("stop failed: %d", 2)
	require.NoError(t, Sync())

	entries := buf.GetAll()
	require.Len(t, entries, 2)
	assert.Equal(t, "process-1", entries[0].Source)
	assert.Equal(t, "transport bound", entries[0].Message)
	assert.Equal(t, "ERROR", entries[1].Level)
	assert.Equal(t, "stop failed: 2", entries[1].Message)
	assert.Same(t, GetGlobalLogBuffer(), GetGlobalLogBuffer())
}

func TestGlobalLoggerConcurrentAccess(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotNil(t, L())
			assert.NoError(t, AddOutput(io.Discard))
			Named("process-2").Debug("tick")
			_ = Sync()
		}()
	}
	wg.Wait()
}
