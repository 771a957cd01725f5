// Package tradewinds wires a small multi-agent trading pipeline together
// over an in-process publish/subscribe bus. A market monitor produces market
// snapshots on a fixed interval; strategy, tax, QA, and execution agents
// react to what the others publish, forming a multi-hop fan-out chain
// (market_state -> trade_signal -> tax_update / executed).
//
// The Engine owns the single broker instance for the process, starts every
// agent's run loop concurrently, and shuts the whole pipeline down within a
// bounded grace period when its context is canceled. There is no cross-topic
// ordering: agents subscribed to the same topic race on each message, and
// that is intentional.
package tradewinds
