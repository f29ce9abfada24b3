package transport

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hydromaas/hydromaas/pkg/logger"
)

// Supervisor owns the root context of a daemon process. It waits for an
// interrupt/terminate signal or an unexpected connection failure from any
// supervised server, then cancels everything and drains within the grace
// period.
type Supervisor struct {
	logger *logger.Logger
	grace  time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	cleanups []func()
}

// NewSupervisor creates a supervisor with the given drain grace period.
func NewSupervisor(log *logger.Logger, grace time.Duration) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		logger: log,
		grace:  grace,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context returns the root context components should derive from.
func (sv *Supervisor) Context() context.Context {
	return sv.ctx
}

// OnShutdown registers cleanup to run after the servers have drained.
// Cleanups run in reverse registration order.
func (sv *Supervisor) OnShutdown(fn func()) {
	sv.cleanups = append(sv.cleanups, fn)
}

// Run blocks until a shutdown trigger arrives, then stops every server and
// runs registered cleanups. It returns a non-zero exit code when shutdown was
// caused by an unexpected failure rather than a signal.
func (sv *Supervisor) Run(servers ...*Server) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	fatal := make(chan error, 1)
	for _, srv := range servers {
		go func(s *Server) {
			if err := <-s.Fatal(); err != nil {
				select {
				case fatal <- err:
				default:
				}
			}
		}(srv)
	}

	exitCode := 0
	select {
	case sig := <-sigCh:
		sv.logger.Info("Shutdown signal received", logger.String("signal", sig.String()))
	case err := <-fatal:
		sv.logger.Error("Unexpected failure, shutting down", logger.Error(err))
		exitCode = 1
	}

	sv.cancel()
	for _, srv := range servers {
		srv.Shutdown(sv.grace)
	}
	for i := len(sv.cleanups) - 1; i >= 0; i-- {
		sv.cleanups[i]()
	}

	return exitCode
}
