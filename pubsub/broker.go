package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/tradewinds/pkg/uuidx"
)

// ErrClosed is returned by Publish once the broker has begun shutting down.
var ErrClosed = errors.New("pubsub: broker is closed")

type broker struct {
	topics   *haxmap.Map[string, *topic]
	log      *slog.Logger
	closed   atomic.Bool
	inflight sync.WaitGroup
}

// Local creates an in-process broker. Topic registries support concurrent
// subscribe and publish; a publish dispatches to the subscribers present at
// the moment it iterates the registry and is never failed by a concurrent
// subscribe.
func Local() Broker {
	return &broker{
		topics: haxmap.New[string, *topic](),
		log:    slog.Default(),
	}
}

// WithLogger configures the logger used for handler failure reports.
func (b *broker) WithLogger(log *slog.Logger) *broker {
	if log != nil {
		b.log = log
	}
	return b
}

func (b *broker) Topic(ctx context.Context, id string) Topic {
	topic, _ := b.topics.GetOrCompute(id, func() *topic {
		return &topic{
			ID:            id,
			subscriptions: haxmap.New[string, *subscription](),
			broker:        b,
		}
	})
	return topic
}

func (b *broker) Shutdown(ctx context.Context) error {
	b.closed.Store(true)

	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// abandon whatever is still running, the process is going away
		return ctx.Err()
	}
}

type topic struct {
	ID            string
	subscriptions *haxmap.Map[string, *subscription]
	broker        *broker
}

// Publish schedules one goroutine per registered handler and returns as soon
// as scheduling is done. It never waits for handlers to finish and a handler
// panic never reaches the publisher.
func (t *topic) Publish(ctx context.Context, event Event) error {
	if t.broker.closed.Load() {
		return ErrClosed
	}

	t.subscriptions.ForEach(func(id string, sub *subscription) bool {
		if sub == nil {
			return true
		}

		select {
		case <-sub.ctx.Done():
			sub.Unsubscribe()
			return true
		default:
		}

		t.broker.inflight.Add(1)
		go t.deliver(ctx, sub, event)
		return true
	})
	return nil
}

func (t *topic) deliver(ctx context.Context, sub *subscription, event Event) {
	defer t.broker.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			t.broker.log.ErrorContext(ctx, "handler panicked",
				slog.String("topic", t.ID),
				slog.String("subscription", sub.id),
				slog.String("event", fmt.Sprintf("%T", event)),
				slog.Any("panic", r),
			)
		}
	}()
	sub.handler(ctx, event)
}

func (t *topic) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	sub := t.newSubscription(ctx, handler)
	return sub, nil
}

func (t *topic) newSubscription(ctx context.Context, handler Handler) *subscription {
	id := uuidx.NewString()
	sub := &subscription{
		id:        id, // Use the same ID for both the subscription and map key
		ctx:       ctx,
		closeOnce: sync.Once{},
		onClose:   func() { t.subscriptions.Del(id) },
		handler:   handler,
	}
	t.subscriptions.Set(id, sub)
	return sub
}

type subscription struct {
	id        string
	ctx       context.Context
	closeOnce sync.Once
	onClose   func()
	handler   Handler
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Unsubscribe() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose()
		}
	})
}
