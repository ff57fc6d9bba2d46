// Package http2srv implements Http2Handler from spec.md §4.6: a
// hand-driven HTTP/2 session loop over an already-established TLS
// connection, using golang.org/x/net/http2's wire-level Framer and hpack
// codec directly rather than net/http.Server, since the Dispatcher picks
// HTTP/1.1 vs HTTP/2 per connection itself (see DESIGN.md §1).
//
// The per-stream user-data pointer spec.md §3 describes as a library
// slot becomes a map[uint32]*streamState owned by this package, cleaned
// up explicitly on stream close — see SPEC_FULL.md §6.2 for why a Go map
// is the idiomatic replacement for an opaque void* slot.
package http2srv

import (
	"fmt"
	"net"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/marlecce/emme/internal/errs"
	"github.com/marlecce/emme/internal/logging"
	"github.com/marlecce/emme/internal/router"
)

// streamState holds the three pseudo-header values of a stream, mirroring
// Http2StreamState from spec.md §3. Each HEADERS frame's header block is
// decoded on its own: CONTINUATION frames are not read, so a header block
// split across several frames is not assembled. authority occupies the slot spec.md
// calls "version slot for router compatibility" in the original design;
// here it is simply its own field, since Go has no reason to overload it.
type streamState struct {
	method    string
	path      string
	authority string
	headers   []hpack.HeaderField
}

// Serve drives one HTTP/2 session to completion: sends the opening empty
// SETTINGS frame, then loops reading frames and responding to
// REQUEST-category HEADERS until the connection errors or closes.
func Serve(conn net.Conn, r *router.Router, log *logging.Logger, connID string) error {
	// Leave framer.ReadMetaHeaders unset: headers are decoded manually,
	// stream by stream, via our own hpack.Decoder below.
	framer := http2.NewFramer(conn, conn)

	remote := "-"
	if ra := conn.RemoteAddr(); ra != nil {
		remote = ra.String()
	}

	if err := framer.WriteSettings(); err != nil {
		return errs.New(errs.ErrStreamSend, "writing initial SETTINGS", err)
	}

	streams := make(map[uint32]*streamState)
	hdec := hpack.NewDecoder(4096, nil)
	henc := newEncoder()

	for {
		frame, err := framer.ReadFrame()
		if err != nil {
			return err // EOF or connection error ends the session cleanly
		}

		switch f := frame.(type) {
		case *http2.SettingsFrame:
			if !f.IsAck() {
				if err := framer.WriteSettingsAck(); err != nil {
					return errs.New(errs.ErrStreamSend, "acking SETTINGS", err)
				}
			}

		case *http2.HeadersFrame:
			st := streams[f.StreamID]
			if st == nil {
				st = &streamState{}
				streams[f.StreamID] = st
			}

			fields, derr := hdec.DecodeFull(f.HeaderBlockFragment())
			if derr != nil {
				log.Debugf("http2[%s]: header decode failed on stream %d: %v", connID, f.StreamID, derr)
				delete(streams, f.StreamID)
				continue
			}
			applyPseudoHeaders(st, fields)

			if f.HeadersEnded() {
				start := time.Now()
				path := defaultPath(st.path)
				resp, rerr := r.Route2(path)
				if rerr != nil {
					log.Debugf("http2[%s]: routing stream %d failed: %v", connID, f.StreamID, rerr)
				} else {
					if err := submitResponse(framer, henc, f.StreamID, resp); err != nil {
						log.Debugf("http2[%s]: submitting response on stream %d failed: %v", connID, f.StreamID, err)
					}
					log.Access(remote, st.method, path, "HTTP/2", resp.StatusCode, int64(len(resp.Body)), time.Since(start))
				}
				delete(streams, f.StreamID)
			}

		case *http2.DataFrame:
			// Request bodies are not consumed, matching Http1Handler's
			// same restriction; nothing to do beyond acknowledging flow
			// control, which is outside this spec's scope.

		case *http2.RSTStreamFrame:
			delete(streams, f.StreamID)

		case *http2.PingFrame:
			if !f.IsAck() {
				framer.WritePing(true, f.Data)
			}

		case *http2.GoAwayFrame:
			return nil
		}
	}
}

func applyPseudoHeaders(st *streamState, fields []hpack.HeaderField) {
	for _, hf := range fields {
		switch hf.Name {
		case ":method":
			st.method = hf.Value
		case ":path":
			st.path = hf.Value
		case ":authority":
			st.authority = hf.Value
		case ":scheme":
			// ignored, per spec.md §4.6
		default:
			st.headers = append(st.headers, hf)
		}
	}
}

func defaultPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// h2Encoder pairs an hpack.Encoder with the growable buffer it writes
// into, so the same encoder (and its dynamic table) is reused across
// every stream on a session without reallocating per response.
type h2Encoder struct {
	enc *hpack.Encoder
	buf *encodedBuf
}

// encodedBuf is a trivial growable byte sink satisfying io.Writer.
type encodedBuf struct {
	b []byte
}

func (e *encodedBuf) Write(p []byte) (int, error) {
	e.b = append(e.b, p...)
	return len(p), nil
}

func newEncoder() *h2Encoder {
	buf := &encodedBuf{}
	return &h2Encoder{enc: hpack.NewEncoder(buf), buf: buf}
}

// submitResponse encodes resp's headers and writes a HEADERS frame
// followed by a single DATA frame with END_STREAM, matching spec.md
// §4.6's data-provider model collapsed into one synchronous call: the
// whole body is already in memory (BodyCursor's role), so there is
// nothing left to drive asynchronously.
func submitResponse(framer *http2.Framer, henc *h2Encoder, streamID uint32, resp *router.Http2Response) error {
	body := resp.Body
	if len(body) == 0 {
		body = []byte("\n")
	}

	henc.buf.b = henc.buf.b[:0]

	henc.enc.WriteField(hpack.HeaderField{Name: ":status", Value: fmt.Sprintf("%d", resp.StatusCode)})

	hasContentType := false
	hasContentLength := false
	for _, h := range resp.Headers {
		switch h[0] {
		case "content-type":
			hasContentType = true
		case "content-length":
			hasContentLength = true
		}
		henc.enc.WriteField(hpack.HeaderField{Name: h[0], Value: h[1]})
	}
	if !hasContentType {
		henc.enc.WriteField(hpack.HeaderField{Name: "content-type", Value: "text/html"})
	}
	if !hasContentLength {
		henc.enc.WriteField(hpack.HeaderField{Name: "content-length", Value: fmt.Sprintf("%d", len(body))})
	}

	if err := framer.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: henc.buf.b,
		EndHeaders:    true,
	}); err != nil {
		return errs.New(errs.ErrStreamSend, "writing HEADERS frame", err)
	}

	if err := framer.WriteData(streamID, true, body); err != nil {
		return errs.New(errs.ErrStreamSend, "writing DATA frame", err)
	}

	return nil
}
