package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
)

type Config struct {
	Enabled         bool          `envconfig:"HTTP_ENABLED" default:"true" yaml:"enabled"`
	Port            string        `envconfig:"HTTP_PORT" default:"8080" yaml:"port"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s" yaml:"read_timeout"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"15s" yaml:"shutdown_timeout"`

	// mTLS Configuration
	MTLSEnabled    bool   `envconfig:"HTTP_MTLS_ENABLED" default:"false" yaml:"mtls_enabled"`
	MTLSCACert     string `envconfig:"HTTP_MTLS_CA_CERT" yaml:"mtls_ca_cert"`         // Path to CA Certificate
	MTLSServerCert string `envconfig:"HTTP_MTLS_SERVER_CERT" yaml:"mtls_server_cert"` // Path to Server Certificate
	MTLSServerKey  string `envconfig:"HTTP_MTLS_SERVER_KEY" yaml:"mtls_server_key"`   // Path to Server Key
}

type Server struct {
	cfg     Config
	logger  *slog.Logger
	router  *chi.Mux
	httpSrv *http.Server
}

func New(cfg Config, logger *slog.Logger, router *chi.Mux) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		logger: logger,
		router: router,
	}
}

// Start serves until ctx is cancelled or the listener fails, then
// drains in-flight requests within the shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	if s.cfg.MTLSEnabled {
		s.logger.Info("Enabling mTLS for HTTP Server")
		tlsConfig, err := loadMTLSConfig(s.cfg.MTLSCACert)
		if err != nil {
			return fmt.Errorf("failed to load mTLS config: %w", err)
		}
		s.httpSrv.TLSConfig = tlsConfig
	}

	go func() {
		s.logger.Info("HTTP server starting", "port", s.cfg.Port, "mtls", s.cfg.MTLSEnabled)
		var err error
		if s.cfg.MTLSEnabled {
			err = s.httpSrv.ListenAndServeTLS(s.cfg.MTLSServerCert, s.cfg.MTLSServerKey)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
		return s.shutdown()
	case err := <-errChan:
		return err
	}
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP shutdown error", "error", err)
		}
	}

	return nil
}

func loadMTLSConfig(caPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("could not read CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA cert")
	}

	return &tls.Config{
		ClientCAs:  caCertPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
		MinVersion: tls.VersionTLS12,
	}, nil
}
