// Package logging is a leveled, ring-buffered logging sink wrapping
// logrus, shaped after the original server's log_init/log_message/
// log_shutdown contract: a fire-and-forget channel drained by a
// background goroutine, so a slow or stuck appender never stalls a
// worker.
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Format selects the rendering of log lines.
type Format int

const (
	FormatPlain Format = iota
	FormatJSON
)

// Appender bitmask, matching the original appender_flags semantics.
const (
	AppenderFile    = 1 << 0
	AppenderConsole = 1 << 1
)

// Config mirrors the `logging.*` section of ServerConfig.
type Config struct {
	File           string
	Level          string
	Format         Format
	BufferSize     int
	RolloverSize   int64
	RolloverDaily  bool
	AppenderFlags  int
}

type entry struct {
	level logrus.Level
	msg   string
	time  time.Time
}

// Logger is the fire-and-forget sink used throughout the server.
type Logger struct {
	base   *logrus.Logger
	ch     chan entry
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// New initializes the logger, starting its background drain goroutine.
// Mirrors log_init(logging_config) -> int, returning an error instead of
// an int status code.
func New(cfg Config) (*Logger, error) {
	base := logrus.New()
	base.SetLevel(parseLevel(cfg.Level))

	if cfg.Format == FormatJSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var writers []writerCloser

	if cfg.AppenderFlags&AppenderConsole != 0 || cfg.AppenderFlags == 0 {
		writers = append(writers, nopCloser{os.Stdout})
	}

	if cfg.AppenderFlags&AppenderFile != 0 && cfg.File != "" {
		rf, err := newRollingFile(cfg.File, cfg.RolloverSize, cfg.RolloverDaily)
		if err != nil {
			return nil, err
		}
		writers = append(writers, rf)
	}

	base.SetOutput(multiWriter(writers))

	size := cfg.BufferSize
	if size <= 0 {
		size = 1024
	}

	l := &Logger{
		base: base,
		ch:   make(chan entry, size),
		done: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.drain()

	return l, nil
}

func (l *Logger) drain() {
	defer l.wg.Done()
	for {
		select {
		case e := <-l.ch:
			l.base.WithTime(e.time).Log(e.level, e.msg)
		case <-l.done:
			// flush whatever remains without blocking forever.
			for {
				select {
				case e := <-l.ch:
					l.base.WithTime(e.time).Log(e.level, e.msg)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) push(lvl logrus.Level, msg string) {
	if l == nil {
		return
	}
	select {
	case l.ch <- entry{level: lvl, msg: msg, time: time.Now()}:
	default:
		// buffer full: drop rather than block a worker.
	}
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.push(logrus.DebugLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.push(logrus.InfoLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.push(logrus.WarnLevel, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.push(logrus.ErrorLevel, fmt.Sprintf(format, args...))
}

// Access writes one Common-Log-Format-like line per handled request,
// mirroring the teacher's logger.Access(...) shape.
func (l *Logger) Access(remoteAddr, method, path, proto string, status int, size int64, latency time.Duration) {
	l.push(logrus.InfoLevel, fmt.Sprintf("%s \"%s %s %s\" %d %d %s",
		remoteAddr, method, path, proto, status, size, latency))
}

// Shutdown stops the drain goroutine after flushing pending entries.
// Mirrors log_shutdown().
func (l *Logger) Shutdown() {
	if l == nil {
		return
	}
	l.closed.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
}

func parseLevel(s string) logrus.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
