// Command emme is an edge TLS/HTTP server: it terminates TLS, negotiates
// HTTP/1.1 or HTTP/2 via ALPN, and serves static files or reverse-proxies
// to a backend according to a YAML route table. Grounded on the single
// non-interactive entrypoint pattern in nabbar-golib/cobra's model.go,
// without its multi-command/bubbletea wizard machinery (see DESIGN.md §3
// for why that machinery was dropped).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marlecce/emme/internal/config"
	"github.com/marlecce/emme/internal/logging"
	"github.com/marlecce/emme/internal/supervisor"
)

// version is set by the build (normally via -ldflags); left as a literal
// default here since this module has no release pipeline wired in.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "emme",
		Short: "emme is a TLS edge server with ALPN-based HTTP/1.1 and HTTP/2 dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the emme version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	})

	return root
}

// run loads configuration, starts the logger, and blocks running the
// server until a termination signal arrives. Exit codes follow spec.md
// §6: any failure here returns a non-nil error, which main() turns into
// os.Exit(1).
func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "emme: loading configuration: %v\n", err)
		return err
	}

	log, err := logging.New(cfg.Logging.ToLoggingConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "emme: starting logger: %v\n", err)
		return err
	}
	defer log.Shutdown()

	srv, err := supervisor.New(cfg, log)
	if err != nil {
		log.Errorf("failed to start server: %v", err)
		return err
	}

	// Only the TLS certificate/key pair can be hot-swapped into the
	// running listener (via srv.TLSKeyPair().Rotate); route and pool
	// settings are read once at startup and require a restart to change,
	// per spec.md's "config loaded once" model.
	if err := config.Watch(configPath, func(next *config.ServerConfig) {
		if rerr := srv.TLSKeyPair().Rotate(next.SSL.Certificate, next.SSL.PrivateKey); rerr != nil {
			log.Warnf("configuration file changed but certificate reload failed, keeping previous certificate: %v", rerr)
			return
		}
		log.Infof("configuration file changed; TLS certificate hot-reloaded")
	}); err != nil {
		log.Warnf("config watch not started: %v", err)
	}

	if err := srv.Run(context.Background()); err != nil {
		log.Errorf("server exited: %v", err)
		return err
	}

	return nil
}
