package tradewinds

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/casualjim/tradewinds/agent"
	"github.com/casualjim/tradewinds/internal/registry"
	"github.com/casualjim/tradewinds/pkg/slogx"
	"github.com/casualjim/tradewinds/pubsub"
	"github.com/fogfish/opts"
)

const defaultGracePeriod = 5 * time.Second

// Engine owns the broker and the agent roster for one pipeline run. Its
// lifetime is the process lifetime.
type Engine struct {
	name   string
	broker pubsub.Broker
	log    *slog.Logger
	grace  time.Duration
	agents registry.Registry[agent.Agent]
}

var (
	Name        = opts.ForName[Engine, string]("name")
	Logger      = opts.ForName[Engine, *slog.Logger]("log")
	GracePeriod = opts.ForName[Engine, time.Duration]("grace")
)

// Broker overrides the engine's broker. The default is pubsub.Local().
func Broker(b pubsub.Broker) opts.Option[Engine] {
	return opts.Type[Engine](func(o *Engine) error {
		if b == nil {
			return fmt.Errorf("broker cannot be nil")
		}
		o.broker = b
		return nil
	})
}

// Agents registers agents with the engine, keyed by name. Registering two
// agents with the same name keeps the last one.
func Agents(a agent.Agent, extraAgents ...agent.Agent) opts.Option[Engine] {
	return opts.Type[Engine](func(o *Engine) error {
		o.agents.Add(a.Name(), a)
		for elem := range slices.Values(extraAgents) {
			o.agents.Add(elem.Name(), elem)
		}
		return nil
	})
}

// New creates an Engine with the provided options.
func New(options ...opts.Option[Engine]) *Engine {
	e := &Engine{
		name:   "tradewinds",
		broker: pubsub.Local(),
		log:    slog.Default(),
		grace:  defaultGracePeriod,
		agents: registry.New[agent.Agent](),
	}
	if err := opts.Apply(e, options); err != nil {
		panic(err)
	}
	return e
}

// Broker exposes the engine's bus so callers can attach their own observers
// (console output, tests) next to the agents.
func (e *Engine) Broker() pubsub.Broker {
	return e.broker
}

// Run wires every Subscriber, starts every agent's run loop on its own
// goroutine, and blocks until ctx is canceled. It then stops the broker and
// waits out the run loops, abandoning anything still in flight once the
// grace period expires. A canceled ctx is a clean shutdown, not an error.
func (e *Engine) Run(ctx context.Context) error {
	var wireErr error
	e.agents.ForEach(func(name string, a agent.Agent) bool {
		sub, ok := a.(agent.Subscriber)
		if !ok {
			return true
		}
		if err := sub.Subscribe(ctx); err != nil {
			wireErr = fmt.Errorf("wiring agent %s: %w", name, err)
			return false
		}
		return true
	})
	if wireErr != nil {
		return wireErr
	}

	e.log.InfoContext(ctx, "pipeline starting", "engine", e.name, "agents", e.agents.Len())

	var wg sync.WaitGroup
	e.agents.ForEach(func(name string, a agent.Agent) bool {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("agent panicked", slogx.AgentName(name), slog.Any("panic", r))
				}
			}()
			if err := a.Run(ctx); err != nil {
				e.log.ErrorContext(ctx, "agent stopped with error", slogx.AgentName(name), slogx.Error(err))
			}
		}()
		return true
	})

	<-ctx.Done()
	e.log.Info("pipeline shutting down", "engine", e.name, "grace", e.grace)

	graceCtx, cancel := context.WithTimeout(context.Background(), e.grace)
	defer cancel()

	if err := e.broker.Shutdown(graceCtx); err != nil {
		e.log.Warn("abandoning in-flight handlers", slogx.Error(err))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.log.Info("pipeline stopped", "engine", e.name)
	case <-graceCtx.Done():
		e.log.Warn("grace period expired, abandoning agent loops", "engine", e.name)
	}
	return nil
}
