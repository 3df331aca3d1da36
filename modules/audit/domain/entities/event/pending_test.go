package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/tenantcore/modules/audit/domain/entities/event"
)

type collector struct {
	events []event.Event
}

func (c *collector) Record(ctx context.Context, e event.Event) {
	c.events = append(c.events, e)
}

func TestEmit_WithoutHoldRecordsImmediately(t *testing.T) {
	t.Parallel()

	c := &collector{}
	event.Emit(context.Background(), c, event.Event{Type: event.TypeCreate, Success: true})
	require.Len(t, c.events, 1)
}

func TestHold_ReleasesAfterOutcome(t *testing.T) {
	t.Parallel()

	c := &collector{}
	ctx, release := event.Hold(context.Background())
	event.Emit(ctx, c, event.Event{Type: event.TypeCreate, ResourceID: "c1", Success: true})
	require.Empty(t, c.events, "held until the unit of work finishes")

	release(nil)
	require.Len(t, c.events, 1)
	require.True(t, c.events[0].Success)

	event.Emit(ctx, c, event.Event{Type: event.TypeUpdate, Success: true})
	require.Len(t, c.events, 2, "a released hold no longer buffers")
}

func TestHold_FailedOutcomeMarksMutationsFailed(t *testing.T) {
	t.Parallel()

	c := &collector{}
	ctx, release := event.Hold(context.Background())
	event.Emit(ctx, c, event.Event{Type: event.TypeCreate, ResourceID: "c1", Success: true})
	event.Emit(ctx, c, event.Event{Type: event.TypeRead, ResourceID: "c1", Success: true})
	event.Emit(ctx, c, event.Event{Type: event.TypeCreate, ResourceID: "a1", Success: false, ErrorMessage: "tenant mismatch"})

	release(errors.New("tenant mismatch"))
	require.Len(t, c.events, 3)
	require.False(t, c.events[0].Success)
	require.Equal(t, "rolled back: tenant mismatch", c.events[0].ErrorMessage)
	require.True(t, c.events[1].Success, "reads happened regardless of the rollback")
	require.Equal(t, "tenant mismatch", c.events[2].ErrorMessage)
}

func TestHold_InnerHoldDefersToOuter(t *testing.T) {
	t.Parallel()

	c := &collector{}
	outer, releaseOuter := event.Hold(context.Background())
	inner, releaseInner := event.Hold(outer)
	event.Emit(inner, c, event.Event{Type: event.TypeDelete, Success: true})

	releaseInner(nil)
	require.Empty(t, c.events)
	releaseOuter(errors.New("commit failed"))
	require.Len(t, c.events, 1)
	require.False(t, c.events[0].Success)
}
