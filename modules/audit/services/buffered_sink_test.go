package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
	"github.com/iota-uz/tenantcore/modules/audit/infrastructure/persistence"
	"github.com/iota-uz/tenantcore/modules/audit/services"
)

type batchRecorder struct {
	*persistence.MemoryRepository
	mu      sync.Mutex
	batches [][]event.Event
	fail    bool
}

func (r *batchRecorder) Append(ctx context.Context, events ...event.Event) error {
	r.mu.Lock()
	fail := r.fail
	if !fail {
		r.batches = append(r.batches, events)
	}
	r.mu.Unlock()
	if fail {
		return errors.New("unavailable")
	}
	return r.MemoryRepository.Append(ctx, events...)
}

func TestBufferedSink_FlushesPerTenantBySize(t *testing.T) {
	t.Parallel()

	next := &batchRecorder{MemoryRepository: persistence.NewMemoryRepository()}
	sink := services.NewBufferedSink(next, services.BufferOptions{Size: 2, FlushInterval: time.Hour})
	ctx := context.Background()
	acme, globex := uuid.New(), uuid.New()

	require.NoError(t, sink.Append(ctx, event.Event{TenantID: acme}, event.Event{TenantID: globex}))
	require.Empty(t, next.batches)
	require.Equal(t, 2, sink.Pending())

	require.NoError(t, sink.Append(ctx, event.Event{TenantID: acme}))
	require.Len(t, next.batches, 1)
	for _, e := range next.batches[0] {
		require.Equal(t, acme, e.TenantID)
	}

	require.NoError(t, sink.Flush(ctx))
	require.Zero(t, sink.Pending())
	require.Len(t, next.batches, 2)
	require.Equal(t, globex, next.batches[1][0].TenantID)
}

func TestBufferedSink_KeepsEventsWhenWriteFails(t *testing.T) {
	t.Parallel()

	next := &batchRecorder{MemoryRepository: persistence.NewMemoryRepository(), fail: true}
	sink := services.NewBufferedSink(next, services.BufferOptions{Size: 10})
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, sink.Append(ctx, event.Event{TenantID: tenantID}))
	require.Error(t, sink.Flush(ctx))
	require.Equal(t, 1, sink.Pending())

	next.mu.Lock()
	next.fail = false
	next.mu.Unlock()
	require.NoError(t, sink.Flush(ctx))
	require.Zero(t, sink.Pending())
}

func TestBufferedSink_FlushesWhenAboveSize(t *testing.T) {
	t.Parallel()

	next := &batchRecorder{MemoryRepository: persistence.NewMemoryRepository(), fail: true}
	sink := services.NewBufferedSink(next, services.BufferOptions{Size: 2, FlushInterval: time.Hour})
	ctx := context.Background()
	tenantID := uuid.New()

	require.Error(t, sink.Append(ctx, event.Event{TenantID: tenantID}, event.Event{TenantID: tenantID}, event.Event{TenantID: tenantID}))
	require.Equal(t, 3, sink.Pending())

	next.mu.Lock()
	next.fail = false
	next.mu.Unlock()
	require.NoError(t, sink.Append(ctx, event.Event{TenantID: tenantID}))
	require.Zero(t, sink.Pending())
	require.Len(t, next.batches, 1)
	require.Len(t, next.batches[0], 4)
}

func TestBufferedSink_RunDrainsOnShutdown(t *testing.T) {
	t.Parallel()

	next := &batchRecorder{MemoryRepository: persistence.NewMemoryRepository()}
	sink := services.NewBufferedSink(next, services.BufferOptions{Size: 100, FlushInterval: time.Hour})
	tenantID := uuid.New()
	require.NoError(t, sink.Append(context.Background(), event.Event{TenantID: tenantID}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sink.Run(ctx) }()
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	n, err := next.Count(context.Background(), tenantID, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
