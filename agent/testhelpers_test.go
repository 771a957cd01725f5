package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/casualjim/tradewinds/pubsub"
	"github.com/stretchr/testify/require"
)

// recorder captures events delivered on a topic and signals arrivals so
// tests can wait without polling.
type recorder struct {
	mu      sync.Mutex
	events  []pubsub.Event
	arrived chan struct{}
}

func newRecorder() *recorder {
	return &recorder{arrived: make(chan struct{}, 64)}
}

func (r *recorder) handle(ctx context.Context, event pubsub.Event) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.arrived <- struct{}{}
}

func (r *recorder) snapshot() []pubsub.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pubsub.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) waitN(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.arrived:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func subscribeRecorder(t *testing.T, broker pubsub.Broker, topic string) *recorder {
	t.Helper()
	rec := newRecorder()
	_, err := broker.Topic(context.Background(), topic).Subscribe(context.Background(), rec.handle)
	require.NoError(t, err)
	return rec
}
