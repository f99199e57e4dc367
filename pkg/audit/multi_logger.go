package audit

import (
	"context"
	"fmt"
	"sync"
)

// MultiLogger fans events out to several sinks, typically postgres plus a
// local JSONL file. Async mode never blocks the request path.
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a multi-logger writing to every given sink
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		async:   true,
		errChan: make(chan error, 16),
	}
}

// SetAsync toggles asynchronous fan-out. Tests run synchronous.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log writes the event to every sink. One failing sink never stops the
// others.
func (m *MultiLogger) Log(ctx context.Context, event *Event) error {
	if len(m.loggers) == 0 {
		return nil
	}
	if m.async {
		for _, logger := range m.loggers {
			m.wg.Add(1)
			go func(l Logger) {
				defer m.wg.Done()
				if err := l.Log(ctx, event); err != nil {
					select {
					case m.errChan <- err:
					default: // channel full, drop
					}
				}
			}(logger)
		}
		return nil
	}

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wait blocks until all pending async writes finish
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// Errors drains errors collected from async writes
func (m *MultiLogger) Errors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes every sink
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}
	close(m.errChan)
	return firstErr
}
