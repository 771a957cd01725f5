package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/casualjim/tradewinds/pkg/slogx"
	"github.com/casualjim/tradewinds/pubsub"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

const defaultExecutionLatency = 500 * time.Millisecond

// Executor acts on every trade signal after a simulated execution delay and
// publishes an ExecutionReport on the executed topic. A shutdown during the
// delay abandons the trade; no report is published.
type Executor struct {
	settings
	broker pubsub.Broker
}

func NewExecutor(broker pubsub.Broker, options ...opts.Option[settings]) *Executor {
	if broker == nil {
		panic("broker cannot be nil")
	}
	a := &Executor{
		settings: settings{
			name:    "trade-executor",
			latency: defaultExecutionLatency,
		},
		broker: broker,
	}
	applySettings(&a.settings, options)
	return a
}

func (a *Executor) Subscribe(ctx context.Context) error {
	_, err := a.broker.Topic(ctx, pubsub.TopicTradeSignal).Subscribe(ctx, a.onTradeSignal)
	return err
}

func (a *Executor) Run(ctx context.Context) error {
	a.log.InfoContext(ctx, "trade executor started", slogx.AgentName(a.name), "latency", a.latency)
	return idle(ctx)
}

func (a *Executor) onTradeSignal(ctx context.Context, event pubsub.Event) {
	signal, ok := event.(pubsub.TradeSignal)
	if !ok {
		a.log.WarnContext(ctx, "unexpected event on trade_signal", slogx.AgentName(a.name), "event", fmt.Sprintf("%T", event))
		return
	}

	timer := time.NewTimer(a.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	report := pubsub.ExecutionReport{
		Status:    pubsub.StatusExecuted,
		Signal:    signal,
		Sender:    a.name,
		Timestamp: strfmt.DateTime(time.Now()),
	}

	if err := a.broker.Topic(ctx, pubsub.TopicExecuted).Publish(ctx, report); err != nil {
		if errors.Is(err, pubsub.ErrClosed) {
			return
		}
		a.log.WarnContext(ctx, "failed to publish execution report", slogx.AgentName(a.name), slogx.Error(err))
	}
}
