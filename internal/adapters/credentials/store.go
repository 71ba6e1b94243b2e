// Package credentials provisions and hot-reloads the TLS trust material used
// to reach the telemetry and OTA backends.
package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/edgemetrics/internal/ports"
)

const reloadDebounce = 100 * time.Millisecond

var (
	// ErrNotProvisioned is returned when verifying a peer before Provision succeeded.
	ErrNotProvisioned = errors.New("credentials: trust material not provisioned")

	// ErrNoCertificates is returned when a CA file holds no PEM certificate.
	ErrNoCertificates = errors.New("credentials: no certificates found")
)

// Store holds the CA pool built from a set of PEM files.
type Store struct {
	files  []string
	logger ports.Logger
	pool   atomic.Pointer[x509.CertPool]

	mu       sync.Mutex
	debounce *time.Timer
}

// NewStore creates a store for the given CA files, e.g. the telemetry CA and
// the OTA CA. Empty paths are ignored.
func NewStore(logger ports.Logger, files ...string) *Store {
	s := &Store{logger: logger}
	for _, f := range files {
		if f != "" {
			s.files = append(s.files, f)
		}
	}
	return s
}

// Provision loads every CA file and installs the resulting pool.
// On failure the previous pool, if any, stays in use.
func (s *Store) Provision() error {
	if len(s.files) == 0 {
		return fmt.Errorf("%w: no CA files configured", ErrNoCertificates)
	}

	pool := x509.NewCertPool()
	for _, path := range s.files {
		pem, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read CA %s: %w", path, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return fmt.Errorf("%w in %s", ErrNoCertificates, path)
		}
	}

	s.pool.Store(pool)
	s.logger.Info("TLS trust material provisioned", ports.Int("ca_files", len(s.files)))
	return nil
}

// Pool returns the current CA pool, or nil before Provision.
func (s *Store) Pool() *x509.CertPool {
	return s.pool.Load()
}

// TLSConfig returns a client TLS configuration verifying peers against the
// pool current at handshake time, so reloads apply to new connections.
func (s *Store) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		// Chain and host name are checked in VerifyConnection.
		InsecureSkipVerify: true,
		VerifyConnection:   s.verifyConnection,
	}
}

func (s *Store) verifyConnection(cs tls.ConnectionState) error {
	pool := s.pool.Load()
	if pool == nil {
		return ErrNotProvisioned
	}
	if len(cs.PeerCertificates) == 0 {
		return errors.New("credentials: peer sent no certificate")
	}

	intermediates := x509.NewCertPool()
	for _, cert := range cs.PeerCertificates[1:] {
		intermediates.AddCert(cert)
	}

	_, err := cs.PeerCertificates[0].Verify(x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Roots:         pool,
		Intermediates: intermediates,
	})
	return err
}

// Watch reloads the pool whenever one of the CA files is written or replaced.
// It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool)
	names := make(map[string]bool)
	for _, f := range s.files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		names[abs] = true

		// Watch the directory so that atomic replacements are seen.
		dir := filepath.Dir(abs)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		watched[dir] = true
	}

	defer s.stopDebounce()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !names[abs] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.debounceReload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("CA watcher error", ports.Err(err))
		}
	}
}

func (s *Store) debounceReload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(reloadDebounce, func() {
		if err := s.Provision(); err != nil {
			s.logger.Error("CA reload failed, keeping previous trust material", ports.Err(err))
		}
	})
}

func (s *Store) stopDebounce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
}

var _ ports.TrustProvisioner = (*Store)(nil)
