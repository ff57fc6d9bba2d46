// Package http1 implements Http1Handler from spec.md §4.5: read the
// request head over an already-established TLS session, parse it, and
// delegate to Router, closing the connection on any I/O or parse
// failure. Grounded on original_source/src/server.c's handle_client
// (single-shot read-then-respond, no keep-alive) with the buffering and
// 400-on-failure behavior spec.md §4.5 spells out explicitly.
package http1

import (
	"bytes"
	"io"
	"net"

	"github.com/marlecce/emme/internal/errs"
	"github.com/marlecce/emme/internal/httpparse"
	"github.com/marlecce/emme/internal/router"
)

// MaxHeadSize is BUFFER_SIZE - 1 = 8191, the largest request head
// Http1Handler will accumulate before giving up.
const MaxHeadSize = 8191

// Handle reads one HTTP/1.1 request off conn, parses it, and routes it.
// conn is typically a *tls.Conn already past its handshake. The
// connection is not reused for a second request: spec.md's control flow
// closes after one request per TCP connection, matching the original's
// accept-handle-close cycle.
func Handle(conn net.Conn, r *router.Router) error {
	buf := make([]byte, MaxHeadSize)
	total := 0

	for {
		n, err := conn.Read(buf[total:])
		if err != nil {
			if err == io.EOF {
				return errs.New(errs.ErrParse, "connection closed before request head completed", err)
			}
			return errs.New(errs.ErrParse, "reading request head", err)
		}
		if n == 0 {
			return errs.New(errs.ErrParse, "empty read before request head completed", nil)
		}
		total += n

		if idx := bytes.Index(buf[:total], []byte("\r\n\r\n")); idx >= 0 {
			head := buf[:total]
			req, headerEnd, perr := httpparse.Parse(head)
			if perr != nil {
				writeBadRequest(conn)
				return perr
			}

			// Any body bytes already read land after the header block;
			// bodyReader carries them (plus whatever conn still has
			// queued) as the sole copy. raw must stop at headerEnd: the
			// proxy path writes raw then streams bodyReader afterward, so
			// including the same leftover bytes in both would forward
			// them to the backend twice.
			leftover := bytes.NewReader(head[headerEnd:total])
			bodyReader := io.MultiReader(leftover, conn)

			return r.Route1(req, head[:headerEnd], bodyReader, conn, conn)
		}

		if total >= MaxHeadSize {
			writeBadRequest(conn)
			return errs.New(errs.ErrParse, "request head exceeded buffer before terminator", nil)
		}
	}
}

func writeBadRequest(w io.Writer) {
	io.WriteString(w, "HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n")
}
