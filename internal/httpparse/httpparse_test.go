package httpparse

import (
	"strings"
	"testing"
)

func TestParseRequestLineAndHeaders(t *testing.T) {
	raw := "GET /index.html HTTP/1.1\r\nHost: example.com\r\nAccept:  text/html\r\n\r\n"

	req, headerEnd, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if req.Method != "GET" || req.Path != "/index.html" || req.Version != "HTTP/1.1" {
		t.Fatalf("unexpected request line: %+v", req)
	}

	if v, ok := req.Header("host"); !ok || v != "example.com" {
		t.Fatalf("expected Host header example.com, got %q (ok=%v)", v, ok)
	}
	if v, ok := req.Header("Accept"); !ok || v != "text/html" {
		t.Fatalf("expected leading spaces trimmed from Accept header, got %q", v)
	}

	if headerEnd != len(raw) {
		t.Fatalf("expected headerEnd %d to equal full buffer length %d", headerEnd, len(raw))
	}
}

func TestParseRequestWithBodyLeftover(t *testing.T) {
	raw := "POST /submit HTTP/1.1\r\nContent-Length: 4\r\n\r\nbody"

	req, headerEnd, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if req.Method != "POST" {
		t.Fatalf("expected POST, got %s", req.Method)
	}
	if got := raw[headerEnd:]; got != "body" {
		t.Fatalf("expected leftover body %q, got %q", "body", got)
	}
}

func TestParseMissingRequestLineTerminator(t *testing.T) {
	if _, _, err := Parse([]byte("GET / HTTP/1.1")); err == nil {
		t.Fatal("expected error for request with no CRLF")
	}
}

func TestParseMalformedRequestLine(t *testing.T) {
	cases := []string{
		"GET\r\n\r\n",
		"GET /\r\n\r\n",
		" /path HTTP/1.1\r\n\r\n",
	}
	for _, c := range cases {
		if _, _, err := Parse([]byte(c)); err == nil {
			t.Fatalf("expected error parsing %q", c)
		}
	}
}

func TestParseHeaderMissingColon(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nBadHeader\r\n\r\n"
	if _, _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected error for header missing ':' separator")
	}
}

func TestParseUnterminatedHeaders(t *testing.T) {
	raw := "GET / HTTP/1.1\r\nHost: example.com\r\n"
	if _, _, err := Parse([]byte(raw)); err == nil {
		t.Fatal("expected error for request missing blank-line terminator")
	}
}

func TestParseHeaderCountBounded(t *testing.T) {
	var b strings.Builder
	b.WriteString("GET / HTTP/1.1\r\n")
	for i := 0; i < MaxHeaders+5; i++ {
		b.WriteString("X-Custom: value\r\n")
	}
	b.WriteString("\r\n")

	req, _, err := Parse([]byte(b.String()))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(req.Headers) != MaxHeaders {
		t.Fatalf("expected headers truncated to %d, got %d", MaxHeaders, len(req.Headers))
	}
}
