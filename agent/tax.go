package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/casualjim/tradewinds/pkg/slogx"
	"github.com/casualjim/tradewinds/pubsub"
	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
)

const defaultTaxRate = 0.20

// Tax records a simulated profit/loss for every trade signal and publishes
// the withholding on the tax_update topic. Nothing is withheld on a loss.
type Tax struct {
	settings
	broker pubsub.Broker
}

func NewTax(broker pubsub.Broker, options ...opts.Option[settings]) *Tax {
	if broker == nil {
		panic("broker cannot be nil")
	}
	a := &Tax{
		settings: settings{
			name:   "tax-compliance",
			rate:   defaultTaxRate,
			profit: simulatedProfit,
		},
		broker: broker,
	}
	applySettings(&a.settings, options)
	return a
}

func (a *Tax) Subscribe(ctx context.Context) error {
	_, err := a.broker.Topic(ctx, pubsub.TopicTradeSignal).Subscribe(ctx, a.onTradeSignal)
	return err
}

func (a *Tax) Run(ctx context.Context) error {
	a.log.InfoContext(ctx, "tax recorder started", slogx.AgentName(a.name), "rate", a.rate)
	return idle(ctx)
}

func (a *Tax) onTradeSignal(ctx context.Context, event pubsub.Event) {
	if _, ok := event.(pubsub.TradeSignal); !ok {
		a.log.WarnContext(ctx, "unexpected event on trade_signal", slogx.AgentName(a.name), "event", fmt.Sprintf("%T", event))
		return
	}

	profit := a.profit()
	update := pubsub.TaxUpdate{
		Profit:      profit,
		TaxWithheld: Withholding(profit, a.rate),
		Sender:      a.name,
		Timestamp:   strfmt.DateTime(time.Now()),
	}

	if err := a.broker.Topic(ctx, pubsub.TopicTaxUpdate).Publish(ctx, update); err != nil {
		if errors.Is(err, pubsub.ErrClosed) {
			return
		}
		a.log.WarnContext(ctx, "failed to publish tax update", slogx.AgentName(a.name), slogx.Error(err))
	}
}

// Withholding applies rate to positive profits only.
func Withholding(profit, rate float64) float64 {
	if profit <= 0 {
		return 0
	}
	return profit * rate
}

func simulatedProfit() float64 {
	return rand.Float64()*1000 - 500
}
