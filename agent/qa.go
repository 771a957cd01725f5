package agent

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/casualjim/tradewinds/pkg/slogx"
	"github.com/casualjim/tradewinds/pubsub"
	"github.com/fogfish/opts"
)

// QA is the performance analyzer. It watches trade signals and execution
// reports, keeps running counts, and logs every observation. It publishes
// nothing.
type QA struct {
	settings
	broker pubsub.Broker

	mu       sync.Mutex
	actions  map[pubsub.Action]int
	executed int
}

// Stats is a point-in-time snapshot of what the analyzer has seen.
type Stats struct {
	Actions  map[pubsub.Action]int
	Executed int
}

func NewQA(broker pubsub.Broker, options ...opts.Option[settings]) *QA {
	if broker == nil {
		panic("broker cannot be nil")
	}
	a := &QA{
		settings: settings{name: "performance-analyzer"},
		broker:   broker,
		actions:  make(map[pubsub.Action]int),
	}
	applySettings(&a.settings, options)
	return a
}

func (a *QA) Subscribe(ctx context.Context) error {
	if _, err := a.broker.Topic(ctx, pubsub.TopicTradeSignal).Subscribe(ctx, a.onTradeSignal); err != nil {
		return err
	}
	_, err := a.broker.Topic(ctx, pubsub.TopicExecuted).Subscribe(ctx, a.onExecuted)
	return err
}

func (a *QA) Run(ctx context.Context) error {
	a.log.InfoContext(ctx, "performance analyzer started", slogx.AgentName(a.name))
	return idle(ctx)
}

func (a *QA) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Actions:  maps.Clone(a.actions),
		Executed: a.executed,
	}
}

func (a *QA) onTradeSignal(ctx context.Context, event pubsub.Event) {
	signal, ok := event.(pubsub.TradeSignal)
	if !ok {
		a.log.WarnContext(ctx, "unexpected event on trade_signal", slogx.AgentName(a.name), "event", fmt.Sprintf("%T", event))
		return
	}

	a.mu.Lock()
	a.actions[signal.Action]++
	count := a.actions[signal.Action]
	a.mu.Unlock()

	a.log.InfoContext(ctx, "observed trade signal", slogx.AgentName(a.name),
		"action", string(signal.Action), "count", count)
}

func (a *QA) onExecuted(ctx context.Context, event pubsub.Event) {
	report, ok := event.(pubsub.ExecutionReport)
	if !ok {
		a.log.WarnContext(ctx, "unexpected event on executed", slogx.AgentName(a.name), "event", fmt.Sprintf("%T", event))
		return
	}

	a.mu.Lock()
	a.executed++
	count := a.executed
	a.mu.Unlock()

	a.log.InfoContext(ctx, "observed execution", slogx.AgentName(a.name),
		"status", report.Status, "action", string(report.Signal.Action), "count", count)
}
