// Package httpparse implements the HTTP/1.1 request-line and header
// parser, translated from original_source/src/http_parser.c. It is a
// pure function over an already-buffered request: no I/O, no allocation
// beyond the returned Request, so it is trivially unit-testable and
// reusable by both Http1Handler and the router's logging path.
package httpparse

import (
	"strings"

	"github.com/marlecce/emme/internal/errs"
)

// MaxHeaders bounds the number of headers retained, matching MAX_HEADERS.
// Extra headers are parsed (to keep cursor advancing correctly) but
// silently dropped, same as the C parser's comment says it may do.
const MaxHeaders = 20

// Header is a single field/value pair, preserving original casing.
type Header struct {
	Field string
	Value string
}

// Request is a parsed HTTP/1.1 request line plus headers. Body is not
// parsed here, and Http1Handler does not read one either: it hands any
// bytes after the header block to the router, which forwards them only on
// the reverse-proxy path.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers []Header
}

// Header looks up the first header matching name case-insensitively,
// mirroring HTTP/1.1 field-name semantics.
func (r *Request) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Field, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Parse reads the request line and headers out of buf. buf must contain
// at least the full header block (terminated by a bare CRLF); any body
// bytes after that point are ignored by Parse and left for the caller to
// slice out using the returned header-block length.
//
// Returns the parsed Request and the byte offset immediately following
// the blank line that terminates the header block.
func Parse(buf []byte) (*Request, int, error) {
	s := string(buf)

	lineEnd := strings.Index(s, "\r\n")
	if lineEnd < 0 {
		return nil, 0, errs.New(errs.ErrParse, "missing request line terminator", nil)
	}
	requestLine := s[:lineEnd]

	sp := strings.IndexByte(requestLine, ' ')
	if sp < 0 {
		return nil, 0, errs.New(errs.ErrParse, "malformed request line: missing method", nil)
	}
	method := requestLine[:sp]
	rest := requestLine[sp+1:]

	sp = strings.IndexByte(rest, ' ')
	if sp < 0 {
		return nil, 0, errs.New(errs.ErrParse, "malformed request line: missing path", nil)
	}
	path := rest[:sp]
	version := rest[sp+1:]

	if method == "" || path == "" || version == "" {
		return nil, 0, errs.New(errs.ErrParse, "malformed request line: empty field", nil)
	}

	req := &Request{Method: method, Path: path, Version: version}

	cursor := lineEnd + 2
	for cursor < len(s) {
		if strings.HasPrefix(s[cursor:], "\r\n") {
			cursor += 2
			return req, cursor, nil
		}

		next := strings.Index(s[cursor:], "\r\n")
		if next < 0 {
			return nil, 0, errs.New(errs.ErrParse, "unterminated header line", nil)
		}
		line := s[cursor : cursor+next]

		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return nil, 0, errs.New(errs.ErrParse, "header line missing ':'", nil)
		}
		field := line[:colon]
		value := strings.TrimLeft(line[colon+1:], " \t")

		if len(req.Headers) < MaxHeaders {
			req.Headers = append(req.Headers, Header{Field: field, Value: value})
		}

		cursor += next + 2
	}

	return nil, 0, errs.New(errs.ErrParse, "request headers not terminated", nil)
}
