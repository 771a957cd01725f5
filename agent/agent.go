// Package agent contains the pipeline agents: a market monitor that feeds
// the bus, and the reactive strategy, tax, QA, and execution agents that
// transform one event into at most one derived event.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/casualjim/tradewinds/pubsub"
	"github.com/fogfish/opts"
)

// Agent is a named unit of behavior with an independent run loop. Run blocks
// until the context is canceled; a nil return means the agent stopped
// cleanly.
type Agent interface {
	Name() string
	Run(ctx context.Context) error
}

// Subscriber is implemented by reactive agents. The engine wires every
// Subscriber before it starts any run loop, so handlers registered here are
// visible to all subsequent publishes.
type Subscriber interface {
	Subscribe(ctx context.Context) error
}

// Source produces one market snapshot per polling interval.
type Source func(context.Context) (pubsub.MarketState, error)

// ProfitFn yields the simulated profit/loss for one executed trade.
type ProfitFn func() float64

// settings holds the knobs shared by the agent constructors. Options apply
// to this struct so every agent is configured the same way.
type settings struct {
	name     string
	log      *slog.Logger
	interval time.Duration
	latency  time.Duration
	rate     float64
	source   Source
	profit   ProfitFn
}

func (s *settings) Name() string {
	return s.name
}

var (
	Name       = opts.ForName[settings, string]("name")
	Logger     = opts.ForName[settings, *slog.Logger]("log")
	Interval   = opts.ForName[settings, time.Duration]("interval")
	Latency    = opts.ForName[settings, time.Duration]("latency")
	TaxRate    = opts.ForName[settings, float64]("rate")
	WithSource = opts.ForName[settings, Source]("source")
	WithProfit = opts.ForName[settings, ProfitFn]("profit")
)

func applySettings(s *settings, options []opts.Option[settings]) {
	if err := opts.Apply(s, options); err != nil {
		panic(err)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
}

// idle keeps a reactive agent's run loop alive until shutdown. The real work
// happens in the handlers the broker invokes.
func idle(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
