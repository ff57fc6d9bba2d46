package router_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/marlecce/emme/internal/config"
	"github.com/marlecce/emme/internal/httpparse"
	"github.com/marlecce/emme/internal/router"
)

// TestRoute2MirrorsHttp1Semantics pins the resolution of spec.md §9's
// open question: HTTP/2 responses go through the same root/static/proxy
// /404 decision tree as HTTP/1.1 instead of the original stub that always
// returned a fixed "Hello, HTTP/2!" page regardless of path.
func TestRoute2MirrorsHttp1Semantics(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "page.txt"), []byte("static over h2"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	r := router.New(&config.ServerConfig{
		Routes: []config.Route{
			{Path: "/static/", Technology: config.TechStatic, DocumentRoot: dir},
		},
	}, nil)

	t.Run("root welcome page matches the HTTP/1.1 body", func(t *testing.T) {
		resp, err := r.Route2("/")
		if err != nil {
			t.Fatalf("Route2 returned error: %v", err)
		}
		if resp.StatusCode != 200 {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if string(resp.Body) == "" {
			t.Fatal("expected non-empty welcome body")
		}

		var h1 bytes.Buffer
		req := &httpparse.Request{Method: "GET", Path: "/", Version: "HTTP/1.1"}
		if err := r.Route1(req, nil, strings.NewReader(""), nil, &h1); err != nil {
			t.Fatalf("Route1 returned error: %v", err)
		}
		if !strings.HasSuffix(h1.String(), "\r\n\r\n"+string(resp.Body)) {
			t.Fatalf("expected HTTP/2 welcome body to equal the HTTP/1.1 body, got %q", resp.Body)
		}
	})

	t.Run("static route is honored, not the fixed stub", func(t *testing.T) {
		resp, err := r.Route2("/static/page.txt")
		if err != nil {
			t.Fatalf("Route2 returned error: %v", err)
		}
		if string(resp.Body) != "static over h2" {
			t.Fatalf("expected static file contents, got %q", resp.Body)
		}
		foundLen := false
		for _, h := range resp.Headers {
			if h[0] == "content-length" && h[1] == strconv.Itoa(len("static over h2")) {
				foundLen = true
			}
		}
		if !foundLen {
			t.Fatalf("expected content-length header matching body size, got %+v", resp.Headers)
		}
	})

	t.Run("unmatched path is 404, not the stub", func(t *testing.T) {
		resp, err := r.Route2("/does-not-exist")
		if err != nil {
			t.Fatalf("Route2 returned error: %v", err)
		}
		if resp.StatusCode != 404 {
			t.Fatalf("expected 404 for unmatched path, got %d", resp.StatusCode)
		}
	})
}
