package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc is a cleanup hook run during shutdown. Each hook receives
// a context bounded by the shutdown timeout.
type ShutdownFunc func(context.Context) error

// ShutdownManager coordinates graceful shutdown: it drains the HTTP
// server first so no new work arrives, then runs the registered hooks
// (worker stops, secondary servers, exporter flushes) concurrently.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	hooks []ShutdownFunc
}

// NewShutdownManager builds a manager. A zero timeout defaults to 30s.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, server: server, timeout: timeout}
}

// RegisterShutdownFunc adds a cleanup hook. Hooks run concurrently, so
// order-dependent teardown belongs in a single hook.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then drains the server
// and runs every hook. It returns the first error class encountered; the
// timeout applies to the whole sequence.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.WithField("signal", sig.String()).Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
		sm.logger.Info("HTTP server drained")
	}

	sm.mu.Lock()
	hooks := sm.hooks
	sm.mu.Unlock()

	errCh := make(chan error, len(hooks))
	var wg sync.WaitGroup
	for _, fn := range hooks {
		wg.Add(1)
		go func(hook ShutdownFunc) {
			defer wg.Done()
			if err := hook(ctx); err != nil {
				sm.logger.WithError(err).Error("shutdown hook failed")
				errCh <- err
			}
		}(fn)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sm.logger.Warn("shutdown timeout reached")
		return errors.New("shutdown timeout reached")
	}

	close(errCh)
	var failed int
	for range errCh {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failed)
	}

	sm.logger.Info("graceful shutdown complete")
	return nil
}
