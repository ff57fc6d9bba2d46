// Package tlsctx builds the ALPN-capable TLS server context, grounded on
// original_source/src/tls.c: ALPN offering "h2" then "http/1.1", weak
// protocol versions disabled, server-side session caching left enabled.
package tlsctx

import (
	"crypto/tls"
	"sync/atomic"

	"github.com/marlecce/emme/internal/errs"
)

// ALPNProtocols is the ALPN advertisement order: h2 preferred, http/1.1
// fallback, matching protos[] in tls.c.
var ALPNProtocols = []string{"h2", "http/1.1"}

// KeyPair holds the server's active certificate/key pair behind an
// atomic pointer. tls.Config.GetCertificate reads it once per handshake,
// so Rotate can swap in a renewed certificate without a lock on the hot
// path and without ever handing a handshake a half-updated pair.
type KeyPair struct {
	certPath, keyPath string
	current           atomic.Pointer[tls.Certificate]
}

// New loads certPath/keyPath and returns a server-side tls.Config with
// ALPN, TLSv1.2 minimum (disabling SSLv2/3 and TLS 1.0/1.1 per tls.c's
// SSL_CTX_set_options), and session resumption left at the standard
// library's default (enabled, process-scoped ticket keys) — see
// SPEC_FULL.md §4 for why this substitutes for SSL_CTX_set_session_id_context.
// The returned KeyPair is the hot-swap handle: config.Watch's reload
// callback calls its Rotate method to replace the certificate the
// running listener presents, without restarting the accept loop.
func New(certPath, keyPath string) (*tls.Config, *KeyPair, error) {
	kp := &KeyPair{}
	if err := kp.Rotate(certPath, keyPath); err != nil {
		return nil, nil, err
	}

	cfg := &tls.Config{
		GetCertificate:           kp.getCertificate,
		NextProtos:               ALPNProtocols,
		MinVersion:               tls.VersionTLS12,
		SessionTicketsDisabled:   false,
		PreferServerCipherSuites: true,
	}

	return cfg, kp, nil
}

// Rotate loads certPath/keyPath from disk and atomically swaps the
// result in as the pair future handshakes will present. In-flight
// handshakes that already read the previous certificate are unaffected.
func (kp *KeyPair) Rotate(certPath, keyPath string) error {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return errs.New(errs.ErrTLSContext, "loading certificate/key pair", err)
	}
	kp.certPath, kp.keyPath = certPath, keyPath
	kp.current.Store(&cert)
	return nil
}

func (kp *KeyPair) getCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	cert := kp.current.Load()
	if cert == nil {
		return nil, errs.New(errs.ErrTLSContext, "no certificate loaded", nil)
	}
	return cert, nil
}
