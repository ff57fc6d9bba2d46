// Package router implements Router from spec.md §4.6, translated from
// original_source/src/router.c: a "/" welcome page, first-match static
// file serving, first-match reverse-proxy forwarding, then 404. HTTP/2
// routing mirrors the same three branches rather than keeping router.c's
// hardcoded "Hello, HTTP/2!" stub — see DESIGN.md §2 for the resolution
// of spec.md §9's open question on this point.
package router

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marlecce/emme/internal/config"
	"github.com/marlecce/emme/internal/errs"
	"github.com/marlecce/emme/internal/httpparse"
	"github.com/marlecce/emme/internal/logging"
	"github.com/marlecce/emme/internal/metrics"
)

// maxFilePathLen bounds the constructed document-root-relative path,
// matching router.c's `char filepath[512]`.
const maxFilePathLen = 512

const bufferSize = 8192

const welcomeBody = `<html><head><title>High Performance Web Server</title></head>` +
	`<body><h1>Welcome to High Performance Web Server</h1>` +
	`<p>This server is designed to outperform Nginx and Apache by utilizing ` +
	`advanced I/O techniques, a modular architecture, and an efficient reverse proxy mechanism.</p>` +
	`</body></html>`

// Router dispatches a parsed request to the welcome page, static file
// serving, or reverse proxy, according to cfg's routes.
type Router struct {
	cfg *config.ServerConfig
	log *logging.Logger
}

// New builds a Router bound to cfg. The Router reads cfg's routes on every
// request and keeps the same cfg for its lifetime; configuration reloads
// do not replace it.
func New(cfg *config.ServerConfig, log *logging.Logger) *Router {
	return &Router{cfg: cfg, log: log}
}

// Route1 serves an HTTP/1.1 request over w, using raw as the original
// request header block for proxy forwarding (the backend expects the
// full header block verbatim, not just the parsed struct). raw must
// stop at the header terminator: any body bytes belong solely to
// remaining, an io.Reader positioned just after the header block and
// carrying any already-buffered body bytes plus whatever the connection
// still has queued. Passing the same body bytes in both would forward
// them to a proxied backend twice.
func (r *Router) Route1(req *httpparse.Request, raw []byte, remaining io.Reader, conn net.Conn, w io.Writer) error {
	start := time.Now()
	cw := &countingWriter{w: w}

	if req.Path == "/" {
		metrics.RoutesOutcome.WithLabelValues("welcome").Inc()
		err := writeWelcome1(cw)
		r.logAccess(conn, req, start, 200, cw.n)
		return err
	}

	if route, ok := r.cfg.FirstMatch(req.Path, config.TechStatic); ok {
		if err := serveStatic1(route, req.Path, cw); err == nil {
			metrics.RoutesOutcome.WithLabelValues("static").Inc()
			r.logAccess(conn, req, start, 200, cw.n)
			return nil
		}
		metrics.RoutesOutcome.WithLabelValues("not_found").Inc()
		err := write404(cw)
		r.logAccess(conn, req, start, 404, cw.n)
		return err
	}

	if route, ok := r.cfg.FirstMatch(req.Path, config.TechReverseProxy); ok {
		if err := r.proxy1(route, raw, remaining, conn, cw); err == nil {
			metrics.RoutesOutcome.WithLabelValues("proxy").Inc()
			r.logAccess(conn, req, start, 200, cw.n)
			return nil
		} else {
			r.log.Debugf("router: proxy to %s failed: %v", route.Backend, err)
		}
		metrics.RoutesOutcome.WithLabelValues("not_found").Inc()
		err := write404(cw)
		r.logAccess(conn, req, start, 404, cw.n)
		return err
	}

	metrics.RoutesOutcome.WithLabelValues("not_found").Inc()
	err := write404(cw)
	r.logAccess(conn, req, start, 404, cw.n)
	return err
}

// logAccess writes one access-log line per handled request, via
// Logger.Access. A nil Router.log (as used in tests constructing a bare
// Router) or nil conn (as used when exercising Route1 without a live
// socket) degrades gracefully rather than panicking.
func (r *Router) logAccess(conn net.Conn, req *httpparse.Request, start time.Time, status int, size int64) {
	remote := "-"
	if conn != nil && conn.RemoteAddr() != nil {
		remote = conn.RemoteAddr().String()
	}
	r.log.Access(remote, req.Method, req.Path, req.Version, status, size, time.Since(start))
}

// countingWriter tallies bytes written through it, for access-log size
// reporting without changing serveStatic1/writeWelcome1/proxy1's
// io.Writer contract.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeWelcome1(w io.Writer) error {
	header := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: text/html\r\nContent-Length: %d\r\n\r\n", len(welcomeBody))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	_, err := io.WriteString(w, welcomeBody)
	return err
}

func write404(w io.Writer) error {
	_, err := io.WriteString(w, "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n")
	return err
}

// serveStatic1 resolves path under route's document root and streams the
// file, matching serve_static_tls's open/lseek/read/write loop.
func serveStatic1(route config.Route, reqPath string, w io.Writer) error {
	rel := strings.TrimPrefix(reqPath, route.Path)
	full := filepath.Join(route.DocumentRoot, rel)
	if len(full) >= maxFilePathLen {
		return errs.New(errs.ErrRouteMiss, "static path exceeds length bound", nil)
	}
	// filepath.Join already cleans ".." segments; reject anything that
	// still escapes the document root after cleaning.
	if !strings.HasPrefix(full, filepath.Clean(route.DocumentRoot)) {
		return errs.New(errs.ErrRouteMiss, "static path escapes document root", nil)
	}

	f, err := os.Open(full)
	if err != nil {
		return errs.New(errs.ErrRouteMiss, "opening static file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errs.New(errs.ErrRouteMiss, "statting static file", err)
	}

	header := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Length: %d\r\n\r\n", info.Size())
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}

	buf := make([]byte, bufferSize)
	_, err = io.CopyBuffer(w, f, buf)
	return err
}

// proxy1 dials route's backend, forwards the original request header
// block verbatim, then bridges bytes bidirectionally until either side
// closes, matching proxy_request_tls + proxy_bidirectional_tls. raw must
// be header-only (see Route1's doc comment): body bytes travel solely
// through remaining, via bridge's alreadyBuffered parameter, so the
// backend sees each byte exactly once.
func (r *Router) proxy1(route config.Route, raw []byte, remaining io.Reader, client net.Conn, w io.Writer) error {
	backend, err := net.DialTimeout("tcp", route.Backend, 5*time.Second)
	if err != nil {
		return errs.New(errs.ErrBackend, "dialing backend "+route.Backend, err)
	}
	defer backend.Close()

	if _, err := backend.Write(raw); err != nil {
		return errs.New(errs.ErrBackend, "forwarding request to backend", err)
	}

	return bridge(client, w, backend, remaining)
}

// bridge copies backend->clientWriter and clientReader->backend
// concurrently until one side errors or closes, mirroring the
// read/SSL_write and SSL_read/send pairs in proxy_bidirectional_tls.
func bridge(clientReader io.Reader, clientWriter io.Writer, backend net.Conn, alreadyBuffered io.Reader) error {
	done := make(chan error, 2)

	go func() {
		buf := make([]byte, bufferSize)
		_, err := io.CopyBuffer(backend, alreadyBuffered, buf)
		if err == nil {
			_, err = io.CopyBuffer(backend, clientReader, buf)
		}
		done <- err
	}()

	go func() {
		buf := make([]byte, bufferSize)
		_, err := io.CopyBuffer(clientWriter, backend, buf)
		done <- err
	}()

	err := <-done
	if closer, ok := backend.(interface{ CloseWrite() error }); ok {
		closer.CloseWrite()
	}
	<-done
	return err
}
