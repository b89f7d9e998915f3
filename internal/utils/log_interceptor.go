// Package utils holds small filesystem and logging helpers shared by the
// tablesync packages.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor prefixes every complete line written to it with a sequence
// number and a timestamp. Partial lines are held until their newline arrives
// or Close flushes them.
type LogInterceptor struct {
	mu     sync.Mutex
	target io.Writer
	seq    uint64
	buf    bytes.Buffer
	now    func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.buf.Write(p)
	for {
		idx := bytes.IndexByte(i.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := i.buf.Next(idx + 1)
		if err := i.writeLine(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	prefix := slog.Uint64("line", i.seq).String() + " " +
		slog.String("time", i.now().Format(time.RFC3339)).String() + " "
	if _, err := io.WriteString(i.target, prefix); err != nil {
		return err
	}
	_, err := i.target.Write(line)
	return err
}

// Close writes out a trailing partial line, terminated with a newline.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.buf.Len() == 0 {
		return nil
	}
	line := append(i.buf.Bytes(), '\n')
	i.buf.Reset()
	return i.writeLine(line)
}
