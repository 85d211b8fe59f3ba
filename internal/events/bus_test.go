package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/readerglass/internal/clock/clocktest"
)

func newTestBus() *Bus {
	return New(clocktest.New(time.Unix(1700000000, 0).UTC()), nil)
}

// TestSubscribeDedup verifies a handler registered twice for one name fires
// exactly once per publish, and that the duplicate unsubscribe handle is
// bound to the original registration.
func TestSubscribeDedup(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	var calls int
	handler := func(Event) { calls++ }

	bus.Subscribe("route-changed", handler)
	dupUnsub := bus.Subscribe("route-changed", handler)

	bus.Publish("route-changed", nil)
	require.Equal(t, 1, calls)

	dupUnsub()
	bus.Publish("route-changed", nil)
	require.Equal(t, 1, calls, "duplicate handle must unsubscribe the original registration")
}

// TestPublishOrder verifies listeners run synchronously in registration order.
func TestPublishOrder(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	var order []string
	bus.Subscribe("tick", func(Event) { order = append(order, "first") })
	bus.Subscribe("tick", func(Event) { order = append(order, "second") })
	bus.Subscribe("tick", func(Event) { order = append(order, "third") })

	bus.Publish("tick", nil)
	require.Equal(t, []string{"first", "second", "third"}, order)
}

// TestReplayDeliversLatest verifies SubscribeWithReplay synchronously hands
// the newest history entry to the handler before returning.
func TestReplayDeliversLatest(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	bus.Publish("progress-updated", 1)
	bus.Publish("progress-updated", 3)

	var got []any
	bus.SubscribeWithReplay("progress-updated", func(evt Event) {
		got = append(got, evt.Payload)
	})
	require.Equal(t, []any{3}, got, "replay must run before SubscribeWithReplay returns")

	bus.Publish("progress-updated", 5)
	require.Equal(t, []any{3, 5}, got)
}

// TestReplayOnceDoesNotSubscribe verifies a once registration that was
// satisfied by replay never sees future events.
func TestReplayOnceDoesNotSubscribe(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	bus.Publish("settings-updated", "v1")

	var calls int
	bus.SubscribeWithReplay("settings-updated", func(Event) { calls++ }, WithOnce())
	require.Equal(t, 1, calls)

	bus.Publish("settings-updated", "v2")
	require.Equal(t, 1, calls)
}

// TestReplayPanicRecovered verifies a panic during replay is swallowed and a
// subscription is still made.
func TestReplayPanicRecovered(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	bus.Publish("chapter-changed", "boom")

	var calls int
	require.NotPanics(t, func() {
		bus.SubscribeWithReplay("chapter-changed", func(Event) {
			calls++
			if calls == 1 {
				panic("replay handler failure")
			}
		})
	})
	bus.Publish("chapter-changed", "after")
	require.Equal(t, 2, calls)
}

// TestHistoryBound verifies publishing 15 times retains only the last 10
// entries, in order.
func TestHistoryBound(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	for i := 1; i <= 15; i++ {
		bus.Publish("page-turn-direction", i)
	}
	hist := bus.History("page-turn-direction")
	require.Len(t, hist, 10)
	for i, evt := range hist {
		require.Equal(t, i+6, evt.Payload)
	}
}

// TestHistoryAppendedBeforeDispatch verifies a listener invoked during a
// publish can already observe that same event through the history.
func TestHistoryAppendedBeforeDispatch(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	var seen any
	bus.Subscribe("route-changed", func(Event) {
		latest, ok := bus.Latest("route-changed")
		require.True(t, ok)
		seen = latest.Payload
	})
	bus.Publish("route-changed", "self")
	require.Equal(t, "self", seen)
}

// TestOnceRemovedAfterPanic verifies once listeners are removed even when the
// first invocation panics, and that the panic does not abort dispatch to the
// remaining listeners.
func TestOnceRemovedAfterPanic(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	var panics, calm int
	bus.Subscribe("tick", func(Event) {
		panics++
		panic("bad consumer")
	}, WithOnce())
	bus.Subscribe("tick", func(Event) { calm++ })

	bus.Publish("tick", nil)
	bus.Publish("tick", nil)
	require.Equal(t, 1, panics)
	require.Equal(t, 2, calm)
}

// TestUnsubscribeOwner verifies owner-tagged bulk teardown spans event names.
func TestUnsubscribeOwner(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	var mine, other int
	bus.Subscribe("route-changed", func(Event) { mine++ }, WithOwner("tracker-1"))
	bus.Subscribe("chapter-changed", func(Event) { mine++ }, WithOwner("tracker-1"))
	bus.Subscribe("chapter-changed", func(Event) { other++ }, WithOwner("tracker-2"))

	bus.UnsubscribeOwner("tracker-1")
	bus.Publish("route-changed", nil)
	bus.Publish("chapter-changed", nil)
	require.Zero(t, mine)
	require.Equal(t, 1, other)
}

// TestCancelledContextRejectsSubscription verifies a context that is already
// done at subscribe time produces no registration.
func TestCancelledContextRejectsSubscription(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int
	unsub := bus.Subscribe("tick", func(Event) { calls++ }, WithCancel(ctx))
	require.NotNil(t, unsub)
	unsub()

	bus.Publish("tick", nil)
	require.Zero(t, calls)
}

// TestContextCancellationRemovesListener verifies a registration disappears
// once its context is cancelled, without any further publish on the name.
func TestContextCancellationRemovesListener(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	bus.Subscribe("tick", func(Event) { calls++ }, WithCancel(ctx))
	bus.Publish("tick", nil)
	require.Equal(t, 1, calls)

	cancel()
	require.Eventually(t, func() bool {
		before := calls
		bus.Publish("tick", nil)
		return calls == before
	}, time.Second, 5*time.Millisecond)
}

// TestLatestEmpty covers the no-history case.
func TestLatestEmpty(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	_, ok := bus.Latest("never-published")
	require.False(t, ok)
}

// TestManyNamesIndependentHistories ensures histories do not bleed across
// event names.
func TestManyNamesIndependentHistories(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	for i := 0; i < 3; i++ {
		bus.Publish(fmt.Sprintf("name-%d", i), i)
	}
	for i := 0; i < 3; i++ {
		hist := bus.History(fmt.Sprintf("name-%d", i))
		require.Len(t, hist, 1)
		require.Equal(t, i, hist[0].Payload)
	}
}
