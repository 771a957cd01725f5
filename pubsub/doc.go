// Package pubsub implements the in-process message broker the trading
// pipeline runs on: named topics, subscriber fan-out, and asynchronous
// best-effort delivery to handlers.
//
// Design decisions:
//   - Context-first: All operations accept context.Context for cancellation
//   - Topic-based: Events are routed through named topics created on first use
//   - Fire-and-forget: Publish schedules one goroutine per handler invocation
//     and returns without waiting for any of them
//   - Isolation: A panicking handler is recovered and logged; it never affects
//     the publisher or sibling subscribers
//   - Subscription management: Explicit subscription lifecycle with unique IDs
//   - Thread safety: The topic registry supports concurrent subscribe and
//     publish without either blocking the other
//
// There are no delivery guarantees beyond a best-effort attempt to the
// subscribers registered when a publish begins, no persistence, and no
// ordering across handler invocations. The broker does not track handler
// goroutines except during Shutdown, which waits for in-flight invocations
// within a bounded grace period and then abandons them.
//
// Example usage:
//
//	broker := pubsub.Local()
//	topic := broker.Topic(ctx, pubsub.TopicMarketState)
//
//	sub, err := topic.Subscribe(ctx, func(ctx context.Context, event pubsub.Event) {
//	    // runs on its own goroutine
//	})
//	if err != nil {
//	    return err
//	}
//	defer sub.Unsubscribe()
//
//	if err := topic.Publish(ctx, pubsub.MarketState{State: "bullish"}); err != nil {
//	    return err
//	}
package pubsub
