package event

import (
	"context"
	"sync"
)

type pendingKey struct{}

type pendingEvent struct {
	ctx      context.Context
	recorder Recorder
	event    Event
}

type pending struct {
	mu       sync.Mutex
	events   []pendingEvent
	released bool
}

// Hold makes Emit keep events recorded under the returned context until release is called with
// the outcome of the enclosing unit of work. When that outcome is an error, held mutations that
// reported success are recorded as failed. Only the outermost Hold releases; inner ones are no-ops.
func Hold(ctx context.Context) (context.Context, func(outcome error)) {
	if p, ok := ctx.Value(pendingKey{}).(*pending); ok && !p.isReleased() {
		return ctx, func(error) {}
	}
	p := &pending{}
	return context.WithValue(ctx, pendingKey{}, p), p.release
}

// Emit hands e to recorder, or holds it while ctx is inside an unreleased Hold.
func Emit(ctx context.Context, recorder Recorder, e Event) {
	if p, ok := ctx.Value(pendingKey{}).(*pending); ok && p.add(ctx, recorder, e) {
		return
	}
	recorder.Record(ctx, e)
}

func (p *pending) isReleased() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}

func (p *pending) add(ctx context.Context, recorder Recorder, e Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return false
	}
	p.events = append(p.events, pendingEvent{ctx: ctx, recorder: recorder, event: e})
	return true
}

func (p *pending) release(outcome error) {
	p.mu.Lock()
	events := p.events
	p.events = nil
	p.released = true
	p.mu.Unlock()

	for _, pe := range events {
		e := pe.event
		if outcome != nil && e.Success && e.Type != TypeRead {
			e.Success = false
			e.ErrorMessage = "rolled back: " + outcome.Error()
		}
		pe.recorder.Record(context.WithoutCancel(pe.ctx), e)
	}
}
