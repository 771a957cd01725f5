package pubsub

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	wg     *sync.WaitGroup
	events []Event
}

func newRecorder(wg *sync.WaitGroup) *recorder {
	return &recorder{wg: wg}
}

func (r *recorder) handle(ctx context.Context, event Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	if r.wg != nil {
		r.wg.Done()
	}
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func waitGroupDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
}

func TestBroker(t *testing.T) {
	t.Run("creates unique topics", func(t *testing.T) {
		broker := Local()
		topic1 := broker.Topic(context.Background(), "test1")
		topic2 := broker.Topic(context.Background(), "test2")
		assert.NotEqual(t, topic1, topic2)
	})

	t.Run("reuses existing topics", func(t *testing.T) {
		broker := Local()
		topic1 := broker.Topic(context.Background(), "test")
		topic2 := broker.Topic(context.Background(), "test")
		assert.Equal(t, topic1, topic2)
	})
}

func TestTopicPublish(t *testing.T) {
	t.Run("delivers to every subscriber exactly once", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")

		var wg sync.WaitGroup
		wg.Add(2)
		recorder1 := newRecorder(&wg)
		recorder2 := newRecorder(&wg)

		_, err := topic.Subscribe(context.Background(), recorder1.handle)
		require.NoError(t, err)
		_, err = topic.Subscribe(context.Background(), recorder2.handle)
		require.NoError(t, err)

		event := MarketState{State: "bullish"}
		require.NoError(t, topic.Publish(context.Background(), event))
		waitGroupDone(t, &wg)

		require.Len(t, recorder1.snapshot(), 1)
		require.Len(t, recorder2.snapshot(), 1)
		assert.Equal(t, event, recorder1.snapshot()[0])
		assert.Equal(t, event, recorder2.snapshot()[0])
	})

	t.Run("no subscribers is a no-op", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "empty")
		assert.NoError(t, topic.Publish(context.Background(), MarketState{State: "stable"}))
	})

	t.Run("panicking handler does not affect siblings", func(t *testing.T) {
		// the panic is expected, keep its report out of the test output
		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		broker := Local().(*broker).WithLogger(quiet)
		topic := broker.Topic(context.Background(), "test")

		var wg sync.WaitGroup
		wg.Add(1)
		healthy := newRecorder(&wg)

		_, err := topic.Subscribe(context.Background(), func(ctx context.Context, event Event) {
			panic("boom")
		})
		require.NoError(t, err)
		_, err = topic.Subscribe(context.Background(), healthy.handle)
		require.NoError(t, err)

		require.NoError(t, topic.Publish(context.Background(), TradeSignal{Action: ActionHold}))
		waitGroupDone(t, &wg)

		assert.Len(t, healthy.snapshot(), 1)
	})

	t.Run("publisher does not wait for handlers", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")

		release := make(chan struct{})
		_, err := topic.Subscribe(context.Background(), func(ctx context.Context, event Event) {
			<-release
		})
		require.NoError(t, err)

		start := time.Now()
		require.NoError(t, topic.Publish(context.Background(), MarketState{State: "bullish"}))
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		close(release)
	})

	t.Run("skips subscriptions with canceled contexts", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")

		canceled, cancel := context.WithCancel(context.Background())
		cancel()
		dead := newRecorder(nil)
		_, err := topic.Subscribe(canceled, dead.handle)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(1)
		alive := newRecorder(&wg)
		_, err = topic.Subscribe(context.Background(), alive.handle)
		require.NoError(t, err)

		require.NoError(t, topic.Publish(context.Background(), MarketState{State: "bullish"}))
		waitGroupDone(t, &wg)

		assert.Len(t, alive.snapshot(), 1)
		assert.Empty(t, dead.snapshot())
	})
}

func TestTopicSubscribe(t *testing.T) {
	t.Run("requires a handler", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")
		_, err := topic.Subscribe(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")

		rec := newRecorder(nil)
		sub, err := topic.Subscribe(context.Background(), rec.handle)
		require.NoError(t, err)
		require.NotEmpty(t, sub.ID())

		sub.Unsubscribe()
		require.NoError(t, topic.Publish(context.Background(), MarketState{State: "bullish"}))

		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, rec.snapshot())
	})
}

func TestConcurrentSubscribePublish(t *testing.T) {
	const publishers = 10
	const perPublisher = 10

	broker := Local()
	topic := broker.Topic(context.Background(), "test")

	// registered before any publish begins, so it must see every message
	var wg sync.WaitGroup
	wg.Add(publishers * perPublisher)
	early := newRecorder(&wg)
	_, err := topic.Subscribe(context.Background(), early.handle)
	require.NoError(t, err)

	var work sync.WaitGroup
	for i := 0; i < publishers; i++ {
		work.Add(2)
		go func() {
			defer work.Done()
			for j := 0; j < perPublisher; j++ {
				assert.NoError(t, topic.Publish(context.Background(), TradeSignal{Action: ActionHold}))
			}
		}()
		go func() {
			defer work.Done()
			_, err := topic.Subscribe(context.Background(), func(ctx context.Context, event Event) {})
			assert.NoError(t, err)
		}()
	}
	work.Wait()
	waitGroupDone(t, &wg)

	assert.Len(t, early.snapshot(), publishers*perPublisher)
}

func TestShutdown(t *testing.T) {
	t.Run("rejects publishes after shutdown", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")

		require.NoError(t, broker.Shutdown(context.Background()))
		err := topic.Publish(context.Background(), MarketState{State: "bullish"})
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("waits for in-flight handlers", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")

		finished := make(chan struct{})
		_, err := topic.Subscribe(context.Background(), func(ctx context.Context, event Event) {
			time.Sleep(50 * time.Millisecond)
			close(finished)
		})
		require.NoError(t, err)
		require.NoError(t, topic.Publish(context.Background(), MarketState{State: "bullish"}))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, broker.Shutdown(ctx))

		select {
		case <-finished:
		default:
			t.Fatal("shutdown returned before the in-flight handler finished")
		}
	})

	t.Run("abandons handlers when the grace period expires", func(t *testing.T) {
		broker := Local()
		topic := broker.Topic(context.Background(), "test")

		release := make(chan struct{})
		defer close(release)
		_, err := topic.Subscribe(context.Background(), func(ctx context.Context, event Event) {
			<-release
		})
		require.NoError(t, err)
		require.NoError(t, topic.Publish(context.Background(), MarketState{State: "bullish"}))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, broker.Shutdown(ctx), context.DeadlineExceeded)
	})
}
