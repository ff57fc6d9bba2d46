package aio_test

import (
	"io"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marlecce/emme/internal/aio"
)

// socketpair returns two connected, non-blocking AF_UNIX stream fds,
// standing in for a pair of TCP sockets without needing the network.
func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			t.Fatalf("set nonblock: %v", err)
		}
	}
	return fds[0], fds[1]
}

func TestConnReadWriteRoundTrip(t *testing.T) {
	a, b := socketpair(t)

	handle, err := aio.New(0)
	if err != nil {
		t.Fatalf("aio.New: %v", err)
	}
	defer handle.Close()

	connA := aio.NewConn(a, handle, nil, nil)
	connB := aio.NewConn(b, handle, nil, nil)
	defer connA.Close()
	defer connB.Close()

	payload := []byte("hello over epoll")

	go func() {
		connA.Write(payload)
	}()

	buf := make([]byte, len(payload))
	n, err := io.ReadFull(connB, buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != len(payload) || string(buf) != string(payload) {
		t.Fatalf("expected %q, got %q", payload, buf[:n])
	}
}

func TestConnReadReturnsEOFOnPeerClose(t *testing.T) {
	a, b := socketpair(t)

	handle, err := aio.New(0)
	if err != nil {
		t.Fatalf("aio.New: %v", err)
	}
	defer handle.Close()

	connB := aio.NewConn(b, handle, nil, nil)
	defer connB.Close()

	unix.Close(a)

	buf := make([]byte, 16)
	_, err = connB.Read(buf)
	if err != io.EOF {
		t.Fatalf("expected io.EOF after peer close, got %v", err)
	}
}

func TestConnReadDeadlineExceeded(t *testing.T) {
	_, b := socketpair(t)

	handle, err := aio.New(0)
	if err != nil {
		t.Fatalf("aio.New: %v", err)
	}
	defer handle.Close()

	connB := aio.NewConn(b, handle, nil, nil)
	defer connB.Close()

	connB.SetReadDeadline(time.Now().Add(50 * time.Millisecond))

	buf := make([]byte, 16)
	_, err = connB.Read(buf)
	if err != aio.ErrTimeout {
		t.Fatalf("expected aio.ErrTimeout, got %v", err)
	}
}
