package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/platinummonkey/watchlist/pkg/observability"
)

// MultiLogger logs to multiple audit loggers simultaneously
type MultiLogger struct {
	loggers []Logger
	async   bool // If true, log asynchronously
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a new multi-logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		errChan: make(chan error, len(loggers)+1),
	}
}

// SetAsync sets whether logging should be asynchronous. Async logging
// detaches from the request context so a finished request does not cancel
// the write.
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Log logs an audit event to all configured loggers
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		m.logAsync(context.WithoutCancel(ctx), event)
		return nil
	}

	return m.logSync(ctx, event)
}

// logSync logs to every logger even when one fails and returns the first error
func (m *MultiLogger) logSync(ctx context.Context, event *AuditEvent) error {
	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiLogger) logAsync(ctx context.Context, event *AuditEvent) {
	for _, logger := range m.loggers {
		m.wg.Add(1)
		go func(l Logger) {
			defer m.wg.Done()
			defer observability.RecoverPanic(observability.Default(), "audit.MultiLogger")
			if err := l.Log(ctx, event); err != nil {
				select {
				case m.errChan <- err:
				default:
					// Channel full, drop error
				}
			}
		}(logger)
	}
}

// Wait waits for all async logging operations to complete
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains the errors recorded by async logging
func (m *MultiLogger) GetErrors() []error {
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

// Close waits for pending writes and closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var errs []error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close logger: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StructuredLogger writes audit events to the service log.
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates an audit logger over logger.
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	if logger == nil {
		logger = observability.Default()
	}
	return &StructuredLogger{logger: logger}
}

// Log implements Logger.
func (s *StructuredLogger) Log(ctx context.Context, event *AuditEvent) error {
	fields := map[string]interface{}{
		"audit":         true,
		"event_type":    string(event.EventType),
		"status":        string(event.Status),
		"actor_id":      event.ActorID,
		"resource_type": string(event.ResourceType),
		"resource_id":   event.ResourceID,
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	log := s.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		log.Info(event.Message)
	} else {
		log.Warn(event.Message)
	}
	return nil
}

// Close implements Logger.
func (s *StructuredLogger) Close() error {
	return nil
}
