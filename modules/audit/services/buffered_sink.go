package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/pkg/logging"
)

type BufferOptions struct {
	// Size is the number of events per tenant that triggers an immediate flush.
	Size          int
	FlushInterval time.Duration
	Logger        *logrus.Entry
}

func (o *BufferOptions) setDefaults() {
	if o.Size <= 0 {
		o.Size = 100
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

// BufferedSink batches events per tenant in front of a repository. A batch never mixes tenants.
type BufferedSink struct {
	next event.Repository
	opts BufferOptions

	mu      sync.Mutex
	buffers map[uuid.UUID][]event.Event
}

func NewBufferedSink(next event.Repository, opts BufferOptions) *BufferedSink {
	opts.setDefaults()
	return &BufferedSink{
		next:    next,
		opts:    opts,
		buffers: make(map[uuid.UUID][]event.Event),
	}
}

func (s *BufferedSink) Append(ctx context.Context, events ...event.Event) error {
	var full []uuid.UUID
	s.mu.Lock()
	for _, e := range events {
		s.buffers[e.TenantID] = append(s.buffers[e.TenantID], e)
	}
	// A failed flush requeues its batch, so a buffer can sit above Size.
	for id, buf := range s.buffers {
		if len(buf) >= s.opts.Size {
			full = append(full, id)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, tenantID := range full {
		getMetrics().flushes.WithLabelValues("size").Inc()
		if err := s.flushTenant(ctx, tenantID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending returns how many events are waiting to be written.
func (s *BufferedSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, buf := range s.buffers {
		n += len(buf)
	}
	return n
}

// Flush writes every buffered event. Tenants whose write fails keep their events for the next flush.
func (s *BufferedSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	tenants := make([]uuid.UUID, 0, len(s.buffers))
	for id, buf := range s.buffers {
		if len(buf) > 0 {
			tenants = append(tenants, id)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range tenants {
		if err := s.flushTenant(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *BufferedSink) flushTenant(ctx context.Context, tenantID uuid.UUID) error {
	s.mu.Lock()
	batch := s.buffers[tenantID]
	delete(s.buffers, tenantID)
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := s.next.Append(ctx, batch...); err != nil {
		s.mu.Lock()
		s.buffers[tenantID] = append(batch, s.buffers[tenantID]...)
		s.mu.Unlock()
		return err
	}
	return nil
}

// Run flushes on every interval until ctx is done, then drains what is left.
func (s *BufferedSink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			getMetrics().flushes.WithLabelValues("shutdown").Inc()
			if err := s.Flush(context.WithoutCancel(ctx)); err != nil {
				s.opts.Logger.WithError(err).Error("audit: final flush failed")
			}
			return ctx.Err()
		case <-ticker.C:
		}

		getMetrics().flushes.WithLabelValues("interval").Inc()
		if err := s.Flush(ctx); err != nil {
			s.opts.Logger.WithError(err).Warn("audit: flush failed")
		}
	}
}
