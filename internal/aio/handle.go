// Package aio wraps Linux epoll as a thin submission/readiness-completion
// queue, standing in for the io_uring submission/completion queue the
// original C server drove directly (original_source/src/server.c).
// It is strictly a readiness/accept notifier: no buffered I/O happens
// through it, so the TLS and HTTP/2 layers keep owning their own
// buffering (spec.md §4.1).
package aio

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/marlecce/emme/internal/errs"
)

// QueueDepth matches the original QUEUE_DEPTH = 64 and is the base of the
// depths callers pass to New; New sizes nothing from a depth (see New).
const QueueDepth = 64

// Handle owns one epoll instance. Per spec.md §3's invariant, a Handle is
// either the single AcceptLoop-owned global instance, or lazily created
// and owned exclusively by one worker goroutine — never shared.
type Handle struct {
	epfd int
}

// New creates an epoll instance. depth is accepted but sizes nothing:
// epoll itself has no fixed submission-queue depth, and each WaitReadable
// call registers one fd and collects a single event.
func New(depth int) (*Handle, error) {
	fd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, errs.New(errs.ErrAsyncIO, "epoll_create1", err)
	}
	if depth <= 0 {
		depth = QueueDepth
	}
	return &Handle{epfd: fd}, nil
}

// Close releases the epoll file descriptor.
func (h *Handle) Close() error {
	if h == nil || h.epfd == 0 {
		return nil
	}
	return unix.Close(h.epfd)
}

// WaitReadable blocks the calling goroutine until fd reports one of the
// requested events, an error, or timeoutMs elapses (-1 means no timeout;
// 0 returns at once).
// One-shot: caller submits, caller waits, caller consumes the result —
// there is no persistent registration left behind.
func (h *Handle) WaitReadable(fd int, events uint32, timeoutMs int) (uint32, error) {
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	if err := unix.EpollCtl(h.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return 0, errs.New(errs.ErrAsyncIO, "epoll_ctl add", err)
	}
	defer unix.EpollCtl(h.epfd, unix.EPOLL_CTL_DEL, fd, nil)

	var raw [1]unix.EpollEvent
	for {
		n, err := unix.EpollWait(h.epfd, raw[:], timeoutMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errs.New(errs.ErrAsyncIO, "epoll_wait", err)
		}
		if n == 0 {
			return 0, errs.New(errs.ErrAsyncIO, "epoll_wait timeout", syscall.ETIMEDOUT)
		}
		return raw[0].Events, nil
	}
}

// SubmitAccept waits for listenFD to become readable, then performs a
// single non-blocking accept4(SOCK_NONBLOCK), returning the fresh client
// fd and its remote address. This is the one operation that may have a
// single outstanding call at a time on the global (AcceptLoop-owned)
// Handle, matching spec.md §4.1.
func (h *Handle) SubmitAccept(listenFD int) (int, net.Addr, error) {
	if _, err := h.WaitReadable(listenFD, unix.EPOLLIN, -1); err != nil {
		return -1, nil, err
	}

	nfd, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, nil, errs.New(errs.ErrAsyncIO, "accept4", err)
	}

	return nfd, sockaddrToAddr(sa), nil
}

func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
