package eventbus

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type created struct{ name string }

type deleted struct{ name string }

func bufferedLogger() (*logrus.Entry, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(log), buf
}

func TestPublisher_DispatchesByType(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	var got []string
	bus.Subscribe(func(e *created) { got = append(got, "created:"+e.name) })
	bus.Subscribe(func(e *deleted) { got = append(got, "deleted:"+e.name) })

	bus.Publish(&created{name: "acme"})
	bus.Publish(&deleted{name: "beta"})

	require.Equal(t, []string{"created:acme", "deleted:beta"}, got)
}

func TestPublisher_WarnsWithoutSubscribers(t *testing.T) {
	t.Parallel()

	log, buf := bufferedLogger()
	bus := NewEventPublisher(log)
	bus.Subscribe(func(e *created) { t.Error("should not be called") })

	bus.Publish(&deleted{name: "acme"})

	require.Contains(t, buf.String(), "no matching subscribers")
}

func TestPublisher_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	log, buf := bufferedLogger()
	bus := NewEventPublisher(log)
	second := false
	bus.Subscribe(func(e *created) { panic("boom") })
	bus.Subscribe(func(e *created) { second = true })

	require.NotPanics(t, func() { bus.Publish(&created{name: "acme"}) })
	require.True(t, second)
	require.Contains(t, buf.String(), "panicked")
}

func TestPublisher_NilArgument(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	var got *created
	called := false
	bus.Subscribe(func(e *created) { called = true; got = e })

	bus.Publish(nil)

	require.True(t, called)
	require.Nil(t, got)
}

func TestPublisher_PublishE(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	bus := NewEventPublisher(nil)
	require.ErrorIs(t, bus.PublishE(&created{}), ErrNoSubscribers)

	bus.Subscribe(func(e *created) error { return boom })
	bus.Subscribe(func(e *created) error { return nil })
	bus.Subscribe(func(e *created) {})
	require.ErrorIs(t, bus.PublishE(&created{}), boom)

	bus.Clear()
	bus.Subscribe(func(e *created) (int, error) { return 0, nil })
	require.ErrorIs(t, bus.PublishE(&created{}), ErrInvalidHandlerReturn)

	bus.Clear()
	bus.Subscribe(func(e *created) error { panic("boom") })
	err := bus.PublishE(&created{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
}

func handleCreated(*created) {}

func TestPublisher_UnsubscribeAndClear(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	bus.Subscribe(handleCreated)
	bus.Subscribe(func(e *deleted) {})
	require.Equal(t, 2, bus.SubscribersCount())

	bus.Unsubscribe(handleCreated)
	require.Equal(t, 1, bus.SubscribersCount())

	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
	require.Panics(t, func() { bus.Subscribe("not a func") })
}

func TestMatchSignature(t *testing.T) {
	t.Parallel()

	require.True(t, MatchSignature(func(*created) {}, []any{&created{}}))
	require.True(t, MatchSignature(func(any) {}, []any{&created{}}))
	require.False(t, MatchSignature(func(*created) {}, []any{&deleted{}}))
	require.False(t, MatchSignature(func(*created, *deleted) {}, []any{&created{}}))
	require.False(t, MatchSignature(func(created) {}, []any{nil}))
	require.False(t, MatchSignature("x", nil))
}
