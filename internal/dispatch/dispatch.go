// Package dispatch implements Dispatcher from spec.md §4.4: the
// per-connection entry point invoked by a worker pool task. It sets I/O
// timeouts, drives the TLS handshake, inspects the negotiated ALPN
// protocol, and branches to the HTTP/1.1 or HTTP/2 handler.
package dispatch

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/marlecce/emme/internal/handshake"
	"github.com/marlecce/emme/internal/http1"
	"github.com/marlecce/emme/internal/http2srv"
	"github.com/marlecce/emme/internal/logging"
	"github.com/marlecce/emme/internal/metrics"
	"github.com/marlecce/emme/internal/router"
)

// IOTimeout mirrors the Dispatcher's SO_RCVTIMEO/SO_SNDTIMEO = 5s,
// applied through the handshake and the HTTP/1.1 request head read.
const IOTimeout = 5 * time.Second

// Http2IOTimeout mirrors spec.md §5's "30s on the handler-entry
// reconfiguration" note: the HTTP/2 session loop gets a longer deadline
// than a single HTTP/1.1 request head, since one connection carries many
// frames over its lifetime.
const Http2IOTimeout = 30 * time.Second

// Handle runs one connection end-to-end: handshake, ALPN branch,
// protocol handler, TLS close-notify, socket close. Errors are logged,
// never propagated, since a single bad connection must not affect its
// sibling workers.
func Handle(conn net.Conn, tlsCfg *tls.Config, r *router.Router, log *logging.Logger) {
	connID, err := uuid.GenerateUUID()
	if err != nil {
		connID = "unknown"
	}

	defer conn.Close()

	metrics.ConnectionsAccepted.Inc()

	tconn, alpn, err := handshake.Accept(conn, tlsCfg, time.Now().Add(IOTimeout))
	if err != nil {
		metrics.HandshakeFailures.Inc()
		log.Debugf("dispatch[%s]: handshake failed: %v", connID, err)
		return
	}
	defer tconn.Close()

	if alpn == "h2" {
		metrics.RequestsByProtocol.WithLabelValues("h2").Inc()
		tconn.SetDeadline(time.Now().Add(Http2IOTimeout))
		if err := http2srv.Serve(tconn, r, log, connID); err != nil {
			log.Debugf("dispatch[%s]: http2 session ended: %v", connID, err)
		}
		return
	}

	metrics.RequestsByProtocol.WithLabelValues("http1.1").Inc()
	tconn.SetDeadline(time.Now().Add(IOTimeout))
	if err := http1.Handle(tconn, r); err != nil {
		log.Debugf("dispatch[%s]: http1 request failed: %v", connID, err)
	}
}
