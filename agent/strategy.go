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

// Strategy maps every market state to a trade signal and publishes it on the
// trade_signal topic. The mapping is exhaustive: unrecognized or missing
// state labels fall back to hold.
type Strategy struct {
	settings
	broker pubsub.Broker
}

func NewStrategy(broker pubsub.Broker, options ...opts.Option[settings]) *Strategy {
	if broker == nil {
		panic("broker cannot be nil")
	}
	a := &Strategy{
		settings: settings{name: "strategy-selector"},
		broker:   broker,
	}
	applySettings(&a.settings, options)
	return a
}

func (a *Strategy) Subscribe(ctx context.Context) error {
	_, err := a.broker.Topic(ctx, pubsub.TopicMarketState).Subscribe(ctx, a.onMarketState)
	return err
}

func (a *Strategy) Run(ctx context.Context) error {
	a.log.InfoContext(ctx, "strategy selector started", slogx.AgentName(a.name))
	return idle(ctx)
}

func (a *Strategy) onMarketState(ctx context.Context, event pubsub.Event) {
	state, ok := event.(pubsub.MarketState)
	if !ok {
		a.log.WarnContext(ctx, "unexpected event on market_state", slogx.AgentName(a.name), "event", fmt.Sprintf("%T", event))
		return
	}
	if state.State == "" {
		a.log.WarnContext(ctx, "market state missing label, holding", slogx.AgentName(a.name))
	}

	action := SelectAction(state.State)
	signal := pubsub.TradeSignal{
		Action:    action,
		State:     state.State,
		Details:   fmt.Sprintf("%s selected for %s market", action, state.State),
		Sender:    a.name,
		Timestamp: strfmt.DateTime(time.Now()),
	}

	if err := a.broker.Topic(ctx, pubsub.TopicTradeSignal).Publish(ctx, signal); err != nil {
		if errors.Is(err, pubsub.ErrClosed) {
			return
		}
		a.log.WarnContext(ctx, "failed to publish trade signal", slogx.AgentName(a.name), slogx.Error(err))
	}
}

// SelectAction is the strategy policy: scalp volatile markets, ride bullish
// ones, hold everything else.
func SelectAction(state string) pubsub.Action {
	switch state {
	case "high_volatility":
		return pubsub.ActionScalping
	case "bullish":
		return pubsub.ActionSwingTrade
	default:
		return pubsub.ActionHold
	}
}
