package logger

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"sync"
)

// LogBufferWriter is an io.Writer that parses console-encoded lines into a LogBuffer.
// Lines look like "time<TAB>LEVEL<TAB>[name]<TAB>message...", the name being optional.
type LogBufferWriter struct {
	buffer *LogBuffer
	buf    bytes.Buffer
	mu     sync.Mutex
}

var sourceRegex = regexp.MustCompile(`^\[([^\]]+)\]\s*(.*)$`)

// NewLogBufferWriter creates a new writer that writes to the log buffer
func NewLogBufferWriter(buffer *LogBuffer) *LogBufferWriter {
	return &LogBufferWriter{
		buffer: buffer,
	}
}

// Write implements io.Writer
func (lw *LogBufferWriter) Write(p []byte) (n int, err error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	// Buffer until we get a newline
	lw.buf.Write(p)

	for {
		line, err := lw.buf.ReadString('\n')
		if err == io.EOF {
			// keep the partial line for the next write
			lw.buf.Reset()
			lw.buf.WriteString(line)
			break
		}
		if err != nil {
			return len(p), err
		}

		line = strings.TrimSuffix(line, "\n")
		if len(line) == 0 {
			continue
		}
		lw.buffer.Add(parseLine(line))
	}

	return len(p), nil
}

// parseLine splits an encoded line into level, source and message
func parseLine(line string) (level, source, message string) {
	level, source, message = "INFO", "system", line

	parts := strings.SplitN(line, "\t", 3)
	if len(parts) < 3 {
		return level, source, message
	}
	level = parts[1]
	message = strings.ReplaceAll(parts[2], "\t", " ")

	if matches := sourceRegex.FindStringSubmatch(message); len(matches) == 3 {
		source = matches[1]
		message = matches[2]
	}
	return level, source, message
}
