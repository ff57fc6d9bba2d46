package router_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marlecce/emme/internal/config"
	"github.com/marlecce/emme/internal/httpparse"
	"github.com/marlecce/emme/internal/router"
)

func newTestRouter(t *testing.T, routes ...config.Route) *router.Router {
	t.Helper()
	cfg := &config.ServerConfig{Routes: routes}
	return router.New(cfg, nil)
}

func TestRoute1ServesWelcomePage(t *testing.T) {
	r := newTestRouter(t)
	req := &httpparse.Request{Method: "GET", Path: "/", Version: "HTTP/1.1"}

	var out bytes.Buffer
	if err := r.Route1(req, nil, strings.NewReader(""), nil, &out); err != nil {
		t.Fatalf("Route1 returned error: %v", err)
	}

	if !strings.HasPrefix(out.String(), "HTTP/1.1 200 OK\r\n") {
		t.Fatalf("expected 200 OK, got: %s", out.String())
	}
	if !strings.Contains(out.String(), "Welcome to High Performance Web Server") {
		t.Fatalf("expected welcome body, got: %s", out.String())
	}
}

func TestRoute1ServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o600); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	r := newTestRouter(t, config.Route{Path: "/static/", Technology: config.TechStatic, DocumentRoot: dir})
	req := &httpparse.Request{Method: "GET", Path: "/static/hello.txt", Version: "HTTP/1.1"}

	var out bytes.Buffer
	if err := r.Route1(req, nil, strings.NewReader(""), nil, &out); err != nil {
		t.Fatalf("Route1 returned error: %v", err)
	}

	if !strings.Contains(out.String(), "200 OK") || !strings.HasSuffix(out.String(), "hello world") {
		t.Fatalf("unexpected static response: %s", out.String())
	}
}

func TestRoute1StaticMissReturns404(t *testing.T) {
	dir := t.TempDir()
	r := newTestRouter(t, config.Route{Path: "/static/", Technology: config.TechStatic, DocumentRoot: dir})
	req := &httpparse.Request{Method: "GET", Path: "/static/missing.txt", Version: "HTTP/1.1"}

	var out bytes.Buffer
	if err := r.Route1(req, nil, strings.NewReader(""), nil, &out); err != nil {
		t.Fatalf("Route1 returned error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "HTTP/1.1 404 Not Found") {
		t.Fatalf("expected 404, got: %s", out.String())
	}
}

func TestRoute1UnmatchedPathReturns404(t *testing.T) {
	r := newTestRouter(t)
	req := &httpparse.Request{Method: "GET", Path: "/nope", Version: "HTTP/1.1"}

	var out bytes.Buffer
	if err := r.Route1(req, nil, strings.NewReader(""), nil, &out); err != nil {
		t.Fatalf("Route1 returned error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "HTTP/1.1 404 Not Found") {
		t.Fatalf("expected 404, got: %s", out.String())
	}
}

func TestRoute1ProxiesToBackend(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		if !strings.Contains(string(buf[:n]), "GET /api/ping") {
			return
		}
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	}()

	r := newTestRouter(t, config.Route{Path: "/api/", Technology: config.TechReverseProxy, Backend: ln.Addr().String()})
	req := &httpparse.Request{Method: "GET", Path: "/api/ping", Version: "HTTP/1.1"}
	raw := []byte("GET /api/ping HTTP/1.1\r\nHost: test\r\n\r\n")

	clientServer, clientLocal := net.Pipe()
	defer clientLocal.Close()

	done := make(chan error, 1)
	go func() {
		done <- r.Route1(req, raw, strings.NewReader(""), clientServer, clientServer)
	}()

	clientLocal.SetReadDeadline(time.Now().Add(2 * time.Second))
	out, err := io.ReadAll(clientLocal)
	if err != nil && !strings.Contains(err.Error(), "closed") && !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("reading bridged response: %v", err)
	}
	if !strings.Contains(string(out), "200 OK") {
		t.Fatalf("expected bridged backend response to reach the client, got: %q", out)
	}
	clientLocal.Close()
	<-done
}
