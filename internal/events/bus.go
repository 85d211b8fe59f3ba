package events

import (
	"context"
	"reflect"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/readerglass/internal/clock"
)

// historyLimit bounds the per-name replay buffer.
const historyLimit = 10

// Event is a published payload stamped with its name and publish time.
type Event struct {
	Name    string
	Payload any
	TS      time.Time
}

// Handler consumes one published Event.
//
// Handler identity (used for per-name deduplication) is the function's code
// pointer: re-registering the same declared function or method value is a
// no-op. Distinct closures over the same literal share a code pointer and
// therefore also collide; subscribers should register named functions or
// bound methods.
type Handler func(Event)

// UnsubscribeFunc removes a registration. It is idempotent.
type UnsubscribeFunc func()

// SubscribeOption customizes a registration.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	once   bool
	owner  string
	cancel context.Context
}

// WithOnce removes the registration after its first invocation, whether the
// handler returns normally or panics.
func WithOnce() SubscribeOption {
	return func(o *subscribeOptions) { o.once = true }
}

// WithOwner tags the registration so UnsubscribeOwner can tear it down in
// bulk during component shutdown.
func WithOwner(id string) SubscribeOption {
	return func(o *subscribeOptions) { o.owner = id }
}

// WithCancel ties the registration lifetime to ctx. If ctx is already done at
// subscribe time the call is a no-op and returns an inert unsubscribe; when
// ctx is done later the registration is removed even if the event never fires
// again.
func WithCancel(ctx context.Context) SubscribeOption {
	return func(o *subscribeOptions) { o.cancel = ctx }
}

type registration struct {
	handler Handler
	key     uintptr
	once    bool
	owner   string
	done    chan struct{}
	removed bool
}

// Bus is a synchronous in-process publish/subscribe registry. Each event name
// keeps a bounded history of recent payloads so late subscribers can observe
// the current state via SubscribeWithReplay. Bus is safe for concurrent use.
type Bus struct {
	mu      sync.Mutex
	topics  map[string][]*registration
	history map[string][]Event
	clk     clock.Clock
	logger  *zap.Logger
}

// New constructs a Bus. A nil logger degrades to zap.NewNop.
func New(clk clock.Clock, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		topics:  make(map[string][]*registration),
		history: make(map[string][]Event),
		clk:     clk,
		logger:  logger,
	}
}

// Subscribe registers handler for name. Within one name a handler may be
// registered at most once; a duplicate registration is a silent no-op that
// still returns an unsubscribe bound to the original registration.
func (b *Bus) Subscribe(name string, handler Handler, opts ...SubscribeOption) UnsubscribeFunc {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.cancel != nil {
		select {
		case <-o.cancel.Done():
			return func() {}
		default:
		}
	}

	key := reflect.ValueOf(handler).Pointer()
	b.mu.Lock()
	for _, r := range b.topics[name] {
		if r.key == key {
			b.mu.Unlock()
			return b.unsubscribeFunc(name, r)
		}
	}
	r := &registration{
		handler: handler,
		key:     key,
		once:    o.once,
		owner:   o.owner,
		done:    make(chan struct{}),
	}
	b.topics[name] = append(b.topics[name], r)
	b.mu.Unlock()

	unsub := b.unsubscribeFunc(name, r)
	if o.cancel != nil {
		go func() {
			select {
			case <-o.cancel.Done():
				unsub()
			case <-r.done:
			}
		}()
	}
	return unsub
}

// SubscribeWithReplay behaves like Subscribe, but if history exists for name
// the newest entry is delivered synchronously before this call returns. When
// WithOnce is set and a replay occurred, no future subscription is made.
func (b *Bus) SubscribeWithReplay(name string, handler Handler, opts ...SubscribeOption) UnsubscribeFunc {
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}

	b.mu.Lock()
	hist := b.history[name]
	var latest Event
	replayed := len(hist) > 0
	if replayed {
		latest = hist[len(hist)-1]
	}
	b.mu.Unlock()

	if replayed {
		b.invoke(&registration{handler: handler}, latest)
		if o.once {
			return func() {}
		}
	}
	return b.Subscribe(name, handler, opts...)
}

// Publish appends the payload to the history for name, then synchronously
// invokes a snapshot of the current listener set in registration order. The
// history append happens first so a listener running during this publish can
// already observe its own event via replay. A panicking listener does not
// prevent later listeners in the same dispatch from running.
func (b *Bus) Publish(name string, payload any) {
	b.mu.Lock()
	evt := Event{Name: name, Payload: payload, TS: b.clk.Now()}
	hist := append(b.history[name], evt)
	if len(hist) > historyLimit {
		hist = hist[len(hist)-historyLimit:]
	}
	b.history[name] = hist
	snapshot := append([]*registration(nil), b.topics[name]...)
	b.mu.Unlock()

	for _, r := range snapshot {
		b.mu.Lock()
		skip := r.removed
		b.mu.Unlock()
		if skip {
			continue
		}
		b.invoke(r, evt)
		if r.once {
			b.remove(name, r)
		}
	}
}

// History returns a copy of the retained entries for name, oldest first.
func (b *Bus) History(name string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.history[name]...)
}

// Latest returns the most recent entry for name, if any.
func (b *Bus) Latest(name string) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hist := b.history[name]
	if len(hist) == 0 {
		return Event{}, false
	}
	return hist[len(hist)-1], true
}

// UnsubscribeOwner removes every registration tagged with ownerID across all
// event names.
func (b *Bus) UnsubscribeOwner(ownerID string) {
	if ownerID == "" {
		return
	}
	b.mu.Lock()
	var victims []struct {
		name string
		reg  *registration
	}
	for name, regs := range b.topics {
		for _, r := range regs {
			if r.owner == ownerID {
				victims = append(victims, struct {
					name string
					reg  *registration
				}{name, r})
			}
		}
	}
	b.mu.Unlock()
	for _, v := range victims {
		b.remove(v.name, v.reg)
	}
}

func (b *Bus) invoke(r *registration, evt Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.logger.Warn("event handler panicked",
				zap.String("event", evt.Name),
				zap.Any("panic", rec))
		}
	}()
	r.handler(evt)
}

func (b *Bus) unsubscribeFunc(name string, r *registration) UnsubscribeFunc {
	return func() { b.remove(name, r) }
}

func (b *Bus) remove(name string, victim *registration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if victim.removed {
		return
	}
	victim.removed = true
	close(victim.done)
	regs := b.topics[name]
	for i, r := range regs {
		if r == victim {
			b.topics[name] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.topics[name]) == 0 {
		delete(b.topics, name)
	}
}
