package aio

import (
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// ErrTimeout is returned when a Conn's read or write deadline elapses
// before the fd becomes ready.
var ErrTimeout = errors.New("aio: i/o timeout")

// Conn adapts a raw non-blocking socket fd into a net.Conn whose Read and
// Write transparently wait for readiness on the owning worker's Handle
// instead of returning EAGAIN to the caller.
//
// This is where the WANT_READ/WANT_WRITE alternation spec.md §4.3
// describes for HandshakeDriver actually lives: crypto/tls.Conn and
// golang.org/x/net/http2.Framer both expect a conventional blocking-style
// net.Conn, and crypto/tls.Conn permanently poisons itself on the first
// non-timeout error its underlying Read/Write returns, which rules out
// retrying Handshake() itself on EAGAIN. Folding the readiness wait into
// Read/Write keeps the "one goroutine suspends on one fd" model spec.md
// §5 requires while staying inside what those packages actually support.
type Conn struct {
	fd     int
	handle *Handle
	local  net.Addr
	remote net.Addr

	readDeadline  time.Time
	writeDeadline time.Time
}

// NewConn wraps fd (already non-blocking) using handle for readiness
// waits.
func NewConn(fd int, handle *Handle, local, remote net.Addr) *Conn {
	return &Conn{fd: fd, handle: handle, local: local, remote: remote}
}

// Fd returns the underlying raw file descriptor.
func (c *Conn) Fd() int { return c.fd }

func (c *Conn) Read(p []byte) (int, error) {
	for {
		n, err := unix.Read(c.fd, p)
		if err == nil {
			if n == 0 {
				return 0, io.EOF
			}
			return n, nil
		}
		if err != unix.EAGAIN {
			return 0, err
		}
		if werr := c.waitFor(unix.EPOLLIN, c.readDeadline); werr != nil {
			return 0, werr
		}
	}
}

func (c *Conn) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := unix.Write(c.fd, p[total:])
		if err != nil {
			if err == unix.EAGAIN {
				if werr := c.waitFor(unix.EPOLLOUT, c.writeDeadline); werr != nil {
					return total, werr
				}
				continue
			}
			return total, err
		}
		total += n
	}
	return total, nil
}

func (c *Conn) waitFor(events uint32, deadline time.Time) error {
	timeoutMs := -1
	if !deadline.IsZero() {
		remain := time.Until(deadline)
		if remain <= 0 {
			return ErrTimeout
		}
		timeoutMs = int(remain / time.Millisecond)
	}

	_, err := c.handle.WaitReadable(c.fd, events, timeoutMs)
	if err != nil {
		return ErrTimeout
	}
	return nil
}

func (c *Conn) Close() error                      { return unix.Close(c.fd) }
func (c *Conn) LocalAddr() net.Addr               { return c.local }
func (c *Conn) RemoteAddr() net.Addr              { return c.remote }
func (c *Conn) SetDeadline(t time.Time) error     { c.readDeadline, c.writeDeadline = t, t; return nil }
func (c *Conn) SetReadDeadline(t time.Time) error  { c.readDeadline = t; return nil }
func (c *Conn) SetWriteDeadline(t time.Time) error { c.writeDeadline = t; return nil }
