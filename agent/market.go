package agent

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/casualjim/tradewinds/pkg/slogx"
	"github.com/casualjim/tradewinds/pubsub"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const defaultPollInterval = 5 * time.Second

// MarketMonitor polls a market data source on a fixed interval and publishes
// each snapshot to the market_state topic. The data source is pluggable; the
// default one simulates a market.
type MarketMonitor struct {
	settings
	broker pubsub.Broker
}

// NewMarketMonitor creates the producer agent for the pipeline.
func NewMarketMonitor(broker pubsub.Broker, options ...opts.Option[settings]) *MarketMonitor {
	if broker == nil {
		panic("broker cannot be nil")
	}
	m := &MarketMonitor{
		settings: settings{
			name:     "market-monitor",
			interval: defaultPollInterval,
			source:   SimulatedSource(),
		},
		broker: broker,
	}
	applySettings(&m.settings, options)
	return m
}

func (m *MarketMonitor) Run(ctx context.Context) error {
	topic := m.broker.Topic(ctx, pubsub.TopicMarketState)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.InfoContext(ctx, "market monitor started", slogx.AgentName(m.name), "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			state, err := m.source(ctx)
			if err != nil {
				m.log.WarnContext(ctx, "market source failed", slogx.AgentName(m.name), slogx.Error(err))
				continue
			}
			state.Sender = m.name
			state.Timestamp = strfmt.DateTime(time.Now())

			if err := topic.Publish(ctx, state); err != nil {
				if errors.Is(err, pubsub.ErrClosed) {
					return nil
				}
				m.log.WarnContext(ctx, "failed to publish market state", slogx.AgentName(m.name), slogx.Error(err))
			}
		}
	}
}

var marketStates = []string{"high_volatility", "bullish", "stable", "bearish"}

// SimulatedSource returns a Source that draws a random state label and a
// small set of indicators on every poll.
func SimulatedSource() Source {
	return func(ctx context.Context) (pubsub.MarketState, error) {
		indicators := orderedmap.New[string, float64]()
		indicators.Set("volatility", rand.Float64())
		indicators.Set("momentum", rand.Float64()*2-1)
		indicators.Set("volume", float64(rand.IntN(10_000)))

		return pubsub.MarketState{
			State:      marketStates[rand.IntN(len(marketStates))],
			Indicators: indicators,
		}, nil
	}
}
