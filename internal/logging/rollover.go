package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// writerCloser is the io.Writer each appender provides; multiWriter fans
// a logrus line out to all of them. Appenders are never closed:
// Logger.Shutdown leaves the log file open.
type writerCloser interface {
	io.Writer
}

type nopCloser struct {
	w io.Writer
}

func (n nopCloser) Write(p []byte) (int, error) { return n.w.Write(p) }

// rollingFile is a size- and/or daily-rolling log file appender, hand
// rolled in the same spirit as original_source/src/log.c's rollover
// handling (no third-party rotation library appears anywhere in the
// teacher's dependency set either).
type rollingFile struct {
	mu       sync.Mutex
	path     string
	maxSize  int64
	daily    bool
	f        *os.File
	size     int64
	openedOn time.Time
}

func newRollingFile(path string, maxSize int64, daily bool) (*rollingFile, error) {
	rf := &rollingFile{path: path, maxSize: maxSize, daily: daily}
	if err := rf.open(); err != nil {
		return nil, err
	}
	return rf, nil
}

func (r *rollingFile) open() error {
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	r.f = f
	r.size = fi.Size()
	r.openedOn = time.Now()
	return nil
}

func (r *rollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shouldRoll(len(p)) {
		if err := r.roll(); err != nil {
			return 0, err
		}
	}

	n, err := r.f.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rollingFile) shouldRoll(nextWrite int) bool {
	if r.maxSize > 0 && r.size+int64(nextWrite) > r.maxSize {
		return true
	}
	if r.daily && time.Now().YearDay() != r.openedOn.YearDay() {
		return true
	}
	return false
}

func (r *rollingFile) roll() error {
	if r.f != nil {
		r.f.Close()
	}
	rotated := fmt.Sprintf("%s.%s", r.path, time.Now().Format("20060102-150405"))
	if err := os.Rename(r.path, rotated); err != nil && !os.IsNotExist(err) {
		return err
	}
	return r.open()
}

// multiWriter fans writes out to every configured appender, matching the
// appender_flags bitmask (file | console).
func multiWriter(ws []writerCloser) io.Writer {
	if len(ws) == 0 {
		return io.Discard
	}
	if len(ws) == 1 {
		return ws[0]
	}
	out := make([]io.Writer, len(ws))
	for i, w := range ws {
		out[i] = w
	}
	return io.MultiWriter(out...)
}
