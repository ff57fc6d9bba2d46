package router

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/marlecce/emme/internal/config"
	"github.com/marlecce/emme/internal/errs"
)

const proxyDialTimeout = 5 * time.Second

// Http2Response collects everything an HTTP/2 stream needs to send a
// response: pseudo-header status plus regular headers, and a body held
// fully in memory. spec.md §9's Design Notes call out that a real
// implementation would stream bodies; this keeps the teacher's http2.c
// approach of building a fixed response, and leaves chunked/streaming
// HTTP/2 bodies as a Non-goal.
type Http2Response struct {
	StatusCode int
	Headers    [][2]string // regular headers; the HTTP/2 handler adds content-type and content-length when absent
	Body       []byte
}

// Route2 runs the same root/static/proxy/404 decision tree as Route1,
// synthesizing the response into an Http2Response instead of writing
// HTTP/1.1 bytes directly, per DESIGN.md §2's resolution of the HTTP/2
// open question.
func (r *Router) Route2(path string) (*Http2Response, error) {
	if path == "/" {
		return &Http2Response{
			StatusCode: 200,
			Headers:    [][2]string{{"content-type", "text/html"}},
			Body:       []byte(welcomeBody),
		}, nil
	}

	if route, ok := r.cfg.FirstMatch(path, config.TechStatic); ok {
		if resp, err := serveStatic2(route, path); err == nil {
			return resp, nil
		}
		return notFound2(), nil
	}

	if route, ok := r.cfg.FirstMatch(path, config.TechReverseProxy); ok {
		if resp, err := proxy2(route, path); err == nil {
			return resp, nil
		}
		return notFound2(), nil
	}

	return notFound2(), nil
}

func notFound2() *Http2Response {
	return &Http2Response{StatusCode: 404}
}

// serveStatic2 resolves path under route's document root and reads the
// whole file into memory, the HTTP/2 analogue of serveStatic1 (which
// streams instead, since HTTP/1.1 responses write straight to the
// connection).
func serveStatic2(route config.Route, reqPath string) (*Http2Response, error) {
	rel := strings.TrimPrefix(reqPath, route.Path)
	full := filepath.Join(route.DocumentRoot, rel)
	if len(full) >= maxFilePathLen {
		return nil, errs.New(errs.ErrRouteMiss, "static path exceeds length bound", nil)
	}
	if !strings.HasPrefix(full, filepath.Clean(route.DocumentRoot)) {
		return nil, errs.New(errs.ErrRouteMiss, "static path escapes document root", nil)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errs.New(errs.ErrRouteMiss, "reading static file", err)
	}

	return &Http2Response{
		StatusCode: 200,
		Headers:    [][2]string{{"content-length", strconv.Itoa(len(data))}},
		Body:       data,
	}, nil
}

// proxy2 performs a single request/response proxy for HTTP/2: dial the
// backend, send a synthesized HTTP/1.1 request line for path, and read
// back the response body. A full duplex streaming bridge over HTTP/2 is
// a Non-goal: spec.md only requires the route to be reachable, not a
// bidirectional bridge for this protocol.
func proxy2(route config.Route, path string) (*Http2Response, error) {
	conn, err := net.DialTimeout("tcp", route.Backend, proxyDialTimeout)
	if err != nil {
		return nil, errs.New(errs.ErrBackend, "dialing backend "+route.Backend, err)
	}
	defer conn.Close()

	req := fmt.Sprintf("GET %s HTTP/1.1\r\nHost: backend\r\nConnection: close\r\n\r\n", path)
	if _, err := conn.Write([]byte(req)); err != nil {
		return nil, errs.New(errs.ErrBackend, "forwarding request to backend", err)
	}

	raw, err := io.ReadAll(conn)
	if err != nil {
		return nil, errs.New(errs.ErrBackend, "reading backend response", err)
	}

	body := raw
	if idx := strings.Index(string(raw), "\r\n\r\n"); idx >= 0 {
		body = raw[idx+4:]
	}

	return &Http2Response{
		StatusCode: 200,
		Headers:    [][2]string{{"content-length", strconv.Itoa(len(body))}},
		Body:       body,
	}, nil
}
