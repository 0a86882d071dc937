// Package agent serves memory controller snapshots over mutually
// authenticated TLS.
package agent

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/host"
)

// Server represents the agent server
type Server struct {
	config     Config
	httpServer *http.Server
	logger     *log.Logger
	logFile    io.Closer
}

// NewServer creates a new agent server answering /imc from snap
func NewServer(config Config, snap Snapshotter) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tlsConfig, err := config.LoadTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS config: %w", err)
	}

	server := &Server{
		config: config,
		logger: log.New(os.Stdout, "[agent] ", log.LstdFlags),
	}
	if config.LogFile != "" {
		logFile, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		server.logger = log.New(logFile, "[agent] ", log.LstdFlags)
		server.logFile = logFile
	}

	server.httpServer = &http.Server{
		Addr:         config.Addr(),
		Handler:      server.Handler(snap, hostname()),
		TLSConfig:    tlsConfig,
		ErrorLog:     server.logger,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return server, nil
}

// Handler builds the agent's routes without any transport
func (s *Server) Handler(snap Snapshotter, hostname string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/imc", s.loggingMiddleware(imcHandler(snap, hostname)))
	mux.HandleFunc("/health", s.loggingMiddleware(healthHandler))
	return mux
}

func hostname() string {
	if info, err := host.Info(); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	name, _ := os.Hostname()
	return name
}

// Start listens on the configured address and blocks until shutdown
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve accepts TLS connections on ln
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Printf("Starting agent server on %s with mTLS", ln.Addr())

	// Certificates are already loaded in the TLS config
	err := s.httpServer.ServeTLS(ln, "", "")
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Println("Shutting down agent server...")
	err := s.httpServer.Shutdown(ctx)
	if s.logFile != nil {
		_ = s.logFile.Close()
	}
	return err
}

// loggingMiddleware logs incoming requests
func (s *Server) loggingMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientCert := "none"
		if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
			clientCert = r.TLS.PeerCertificates[0].Subject.CommonName
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		s.logger.Printf("%s %s %d %s client=%s duration=%s",
			r.Method,
			r.URL.Path,
			wrapped.statusCode,
			r.RemoteAddr,
			clientCert,
			time.Since(start),
		)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
