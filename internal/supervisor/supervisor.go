// Package supervisor wires ServerConfig into a listening socket, TLS
// context, worker pool, and accept loop, and owns the process lifecycle
// from start to termination signal. Grounded on
// nabbar-golib/httpserver/server.go's NewServer/Listen shape (a struct
// holding config plus the running server handle, built once and exposing
// a blocking Listen call) and original_source/src/main.c's startup
// sequence, generalized from net/http.Server to this spec's raw-socket
// accept loop.
package supervisor

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/marlecce/emme/internal/accept"
	"github.com/marlecce/emme/internal/aio"
	"github.com/marlecce/emme/internal/config"
	"github.com/marlecce/emme/internal/dispatch"
	"github.com/marlecce/emme/internal/errs"
	"github.com/marlecce/emme/internal/health"
	"github.com/marlecce/emme/internal/logging"
	"github.com/marlecce/emme/internal/metrics"
	"github.com/marlecce/emme/internal/pool"
	"github.com/marlecce/emme/internal/router"
	"github.com/marlecce/emme/internal/tlsctx"
)

// healthInterval is how often the background health/metrics sampler
// wakes up to refresh the worker pool gauge and log a resource snapshot.
const healthInterval = 30 * time.Second

// ListenBacklog matches spec.md §4.8's listen backlog of 2048.
const ListenBacklog = 2048

// PoolMin is the worker pool's floor, spec.md §4.8's min=32.
const PoolMin = 32

// AcceptHandleDepth is the global accept handle's depth, 2x QUEUE_DEPTH
// per spec.md §4.8.
const AcceptHandleDepth = 2 * aio.QueueDepth

// Server owns every long-lived resource created from a ServerConfig: the
// listening socket fd, TLS context, worker pool, and the global accept
// handle.
type Server struct {
	cfg     *config.ServerConfig
	log     *logging.Logger
	listenF int
	tlsCfg  *tls.Config
	keyPair *tlsctx.KeyPair
}

// New binds and listens on cfg.Port, loads the initial TLS certificate,
// but does not yet accept connections; Run starts the accept loop.
func New(cfg *config.ServerConfig, log *logging.Logger) (*Server, error) {
	fd, err := bindListen(cfg.Port)
	if err != nil {
		return nil, err
	}

	tlsCfg, keyPair, err := tlsctx.New(cfg.SSL.Certificate, cfg.SSL.PrivateKey)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Server{cfg: cfg, log: log, listenF: fd, tlsCfg: tlsCfg, keyPair: keyPair}, nil
}

// TLSKeyPair returns the hot-swap handle for the server's certificate,
// so a caller (cmd/emme's config.Watch callback) can rotate it in place
// when the certificate/key files on disk change, without restarting the
// listener — the certificate rotation without restart described in
// SPEC_FULL.md §2.1.
func (s *Server) TLSKeyPair() *tlsctx.KeyPair {
	return s.keyPair
}

func bindListen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, errs.New(errs.ErrBind, "socket", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, errs.New(errs.ErrBind, "setsockopt SO_REUSEADDR", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, errs.New(errs.ErrBind, "bind", err)
	}

	if err := unix.Listen(fd, ListenBacklog); err != nil {
		unix.Close(fd)
		return -1, errs.New(errs.ErrListen, "listen", err)
	}

	return fd, nil
}

// Run starts the worker pool, accept loop, health sampler and (when
// MetricsPort is set) the metrics listener, using the TLS context built
// by New, and blocks
// until SIGINT/SIGTERM or the accept loop itself fails. There is no
// graceful in-flight-request drain: process termination is the only
// cancel-all, per spec.md §5's explicit model and the Non-goal in §1.
func (s *Server) Run(ctx context.Context) error {
	workers := pool.New(PoolMin, s.cfg.MaxConnections)
	defer workers.Shutdown()

	acceptHandle, err := aio.New(AcceptHandleDepth)
	if err != nil {
		return errs.New(errs.ErrAsyncIO, "creating accept handle", err)
	}
	defer acceptHandle.Close()

	r := router.New(s.cfg, s.log)
	local := &net.TCPAddr{IP: net.IPv4zero, Port: s.cfg.Port}

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s.log.Infof("emme listening on 0.0.0.0:%s", strconv.Itoa(s.cfg.Port))

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return accept.Loop(s.listenF, acceptHandle, workers, local, s.log, func(conn net.Conn) {
			dispatch.Handle(conn, s.tlsCfg, r, s.log)
		})
	})

	group.Go(func() error {
		<-gctx.Done()
		s.log.Infof("emme shutting down on signal")
		unix.Close(s.listenF)
		return nil
	})

	group.Go(func() error {
		s.sampleHealth(gctx, workers)
		return nil
	})

	if s.cfg.MetricsPort > 0 {
		group.Go(func() error {
			return s.serveMetrics(gctx, reg)
		})
	}

	return group.Wait()
}

// serveMetrics runs a plain HTTP (not TLS, not the ALPN-dispatched path)
// server exposing reg on /metrics for Prometheus scraping, separate from
// the edge listener so a scrape never competes with client traffic for a
// worker pool slot. It shuts down when ctx is done.
func (s *Server) serveMetrics(ctx context.Context, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(s.cfg.MetricsPort)),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// sampleHealth periodically refreshes the worker-pool gauge and logs a
// process health snapshot until ctx is done.
func (s *Server) sampleHealth(ctx context.Context, workers *pool.Pool) {
	startedAt := time.Now()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.WorkerPoolSize.Set(float64(workers.Size()))
			if snap, err := health.Collect(startedAt, 0); err == nil {
				s.log.Debugf("health: rss=%d cpu=%.1f%% fds=%d uptime=%s",
					snap.RSSBytes, snap.CPUPercent, snap.NumFDs, snap.Uptime)
			}
		}
	}
}
