// Package logger provides a zap-backed global logger that can write to multiple outputs.
// Init must be called early in the application lifecycle before using other logger functions.
// AddOutput returns an error if called before Init; L initializes a stdout logger on demand.
package logger

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger owns the zap logger and the set of writers its core fans out to
type Logger struct {
	mu      sync.Mutex
	outputs []io.Writer
	prefix  string
	zl      *zap.Logger
}

var (
	globalLogger atomic.Pointer[Logger]
	once         sync.Once
	globalBuffer *LogBuffer
	bufferOnce   sync.Once
)

var errNotInitialized = errors.New("logger not initialized: call logger.Init() first")

// GetGlobalLogBuffer returns the global log buffer
func GetGlobalLogBuffer() *LogBuffer {
	bufferOnce.Do(func() {
		globalBuffer = NewLogBuffer(1000) // Keep last 1000 log entries
	})
	return globalBuffer
}

// Init initializes the global logger. A non-empty prefix becomes the root logger name.
func Init(prefix string, writeToStdout bool) {
	once.Do(func() {
		outputs := []io.Writer{}
		if writeToStdout {
			outputs = append(outputs, os.Stdout)
		}
		l := &Logger{
			outputs: outputs,
			prefix:  prefix,
		}
		l.zl = zap.New(zapcore.NewCore(newEncoder(), zapcore.AddSync(l), zapcore.DebugLevel))
		if prefix != "" {
			l.zl = l.zl.Named(prefix)
		}
		globalLogger.Store(l)
	})
}

// newEncoder renders "time<TAB>LEVEL<TAB>[name]<TAB>message<TAB>{fields}".
// LogBufferWriter relies on this layout to recover the process name.
func newEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeName = func(name string, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString("[" + name + "]")
	}
	cfg.CallerKey = ""
	cfg.StacktraceKey = ""
	return zapcore.NewConsoleEncoder(cfg)
}

// Write fans a fully encoded line out to every output. It is the zap core's sink.
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, output := range l.outputs {
		// A broken output must not stop the others
		_, _ = output.Write(p)
	}
	return len(p), nil
}

// AddOutput adds an additional output writer (e.g., for TUI log buffer).
// Returns an error if called before Init.
func AddOutput(w io.Writer) error {
	l := globalLogger.Load()
	if l == nil {
		return errNotInitialized
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.outputs = append(l.outputs, w)
	return nil
}

// L returns the global zap logger. Calling it before Init initializes a stdout logger.
func L() *zap.Logger {
	// Init publishes the logger before once.Do returns
	Init("", true)
	return globalLogger.Load().zl
}

// Named returns a child logger whose entries are attributed to name (a process or component)
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes any buffered entries
func Sync() error {
	l := globalLogger.Load()
	if l == nil {
		return nil
	}
	return l.zl.Sync()
}

// Errorf logs an error-level formatted message
func Errorf(format string, v ...interface{}) {
	L().Sugar().Errorf(format, v...)
}
