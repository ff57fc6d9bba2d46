// Package handshake drives a TLS accept to completion over a non-blocking
// connection, mirroring spec.md §4.3's HandshakeDriver. See SPEC_FULL.md
// §6.1 for why the WANT_READ/WANT_WRITE alternation lives in the
// connection's Read and Write (internal/aio.Conn) rather than in a manual
// retry loop here: crypto/tls.Conn has no OpenSSL-style WANT_READ/
// WANT_WRITE return value and permanently poisons itself on the first
// non-timeout I/O error, so there is nothing to usefully retry at this
// layer once Handshake is called — the readiness loop already happened
// underneath it, inside Read/Write.
package handshake

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/marlecce/emme/internal/errs"
)

// Accept wraps conn in a server-side tls.Conn bound to cfg and blocks
// until the handshake completes or deadline elapses. conn should be an
// *aio.Conn (or any net.Conn whose Read/Write already suspend the calling
// goroutine on readiness) so the wait happens without spinning the
// worker.
func Accept(conn net.Conn, cfg *tls.Config, deadline time.Time) (*tls.Conn, string, error) {
	if !deadline.IsZero() {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, "", errs.New(errs.ErrHandshake, "setting handshake deadline", err)
		}
	}

	tconn := tls.Server(conn, cfg)
	if err := tconn.Handshake(); err != nil {
		return nil, "", errs.New(errs.ErrHandshake, "tls handshake", err)
	}

	// Clear the deadline now that the handshake is done; the caller (the
	// Dispatcher) sets its own per-request timeouts from here on.
	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, "", errs.New(errs.ErrHandshake, "clearing handshake deadline", err)
	}

	return tconn, tconn.ConnectionState().NegotiatedProtocol, nil
}
