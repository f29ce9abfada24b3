package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hydromaas/hydromaas/pkg/logger"
)

// Dispatcher is the per-connection hook a protocol layer implements.
// Dispatch owns the connection until it returns; a nil return means the
// connection ended normally, a non-nil return is treated as an unexpected
// failure and escalates to full-service shutdown.
type Dispatcher interface {
	Dispatch(ctx context.Context, conn *Conn) error
}

// ServerConfig holds the listening endpoint and TLS material for a Server.
type ServerConfig struct {
	Host     string
	Port     int
	CertFile string
	KeyFile  string
}

// Server hosts a long-lived TLS WebSocket endpoint. Every accepted
// connection is handled by the Dispatcher in its own goroutine.
type Server struct {
	cfg        ServerConfig
	dispatcher Dispatcher
	logger     *logger.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	fatal  chan error
}

// NewServer creates a server that hands accepted connections to d.
func NewServer(cfg ServerConfig, d Dispatcher, log *logger.Logger) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		logger:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		fatal: make(chan error, 1),
	}
}

// Listen binds the configured endpoint and serves until Shutdown. It returns
// once the listener is established; serving continues in the background.
func (s *Server) Listen(ctx context.Context) error {
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("load TLS key pair: %w", err)
	}
	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}

	s.ctx, s.cancel = context.WithCancel(ctx)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := tls.Listen("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleConnection)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("Transport listening", logger.String("address", addr))

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Transport listener failed", logger.Error(err))
			s.reportFatal(err)
		}
	}()

	return nil
}

// handleConnection upgrades an accepted request and runs the dispatcher.
func (s *Server) handleConnection(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed",
			logger.String("remote", r.RemoteAddr),
			logger.Error(err),
		)
		return
	}

	conn := newConn(ws)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer conn.Close()

		s.logger.Debug("Connection opened", logger.String("remote", conn.RemoteIP()))

		if err := s.safeDispatch(s.ctx, conn); err != nil {
			// An error surfacing past the dispatcher is unexpected and
			// degrades to full-service shutdown rather than partial operation.
			s.logger.Error("Connection task failed",
				logger.String("remote", conn.RemoteIP()),
				logger.Error(err),
			)
			s.reportFatal(err)
			return
		}

		s.logger.Debug("Connection closed", logger.String("remote", conn.RemoteIP()))
	}()
}

// safeDispatch runs the dispatcher for one connection, converting a panic
// into an error. The failure then escalates through the supervisor's orderly
// shutdown instead of unwinding the goroutine and killing the process before
// the drain and cleanups run.
func (s *Server) safeDispatch(ctx context.Context, conn *Conn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connection task panic: %v", r)
		}
	}()
	return s.dispatcher.Dispatch(ctx, conn)
}

// reportFatal hands an unexpected failure to the supervisor exactly once.
func (s *Server) reportFatal(err error) {
	select {
	case s.fatal <- err:
	default:
	}
}

// Fatal exposes unexpected connection failures to the supervisor.
func (s *Server) Fatal() <-chan error {
	return s.fatal
}

// Shutdown cancels all connection tasks and waits for them to drain,
// bounded by grace.
func (s *Server) Shutdown(grace time.Duration) {
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer != nil {
		// Close stops the listener and tears down open connections, which
		// unblocks any Receive the connection tasks are parked on.
		_ = s.httpServer.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("Connection tasks did not drain before grace period expired",
			logger.Duration("grace", grace),
		)
	}
}
