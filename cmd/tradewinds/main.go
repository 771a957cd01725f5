package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/casualjim/tradewinds"
	"github.com/casualjim/tradewinds/agent"
	"github.com/casualjim/tradewinds/internal/msgfmt"
	"github.com/casualjim/tradewinds/pkg/slogx"
	"github.com/casualjim/tradewinds/pubsub"
	_ "github.com/joho/godotenv/autoload"
	"github.com/k0kubun/pp/v3"
	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log = zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: slog.LevelInfo}),
	))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()

	interval := durationEnv("TRADEWINDS_INTERVAL", 5*time.Second)
	latency := durationEnv("TRADEWINDS_LATENCY", 500*time.Millisecond)
	rate := floatEnv("TRADEWINDS_TAX_RATE", 0.20)

	broker := pubsub.Local()
	qa := agent.NewQA(broker, agent.Logger(logger))

	engine := tradewinds.New(
		tradewinds.Broker(broker),
		tradewinds.Logger(logger),
		tradewinds.Agents(
			agent.NewMarketMonitor(broker, agent.Interval(interval), agent.Logger(logger)),
			agent.NewStrategy(broker, agent.Logger(logger)),
			agent.NewTax(broker, agent.TaxRate(rate), agent.Logger(logger)),
			agent.NewExecutor(broker, agent.Latency(latency), agent.Logger(logger)),
			qa,
		),
	)

	console := msgfmt.Console(os.Stdout)
	for _, topic := range []string{
		pubsub.TopicMarketState,
		pubsub.TopicTradeSignal,
		pubsub.TopicTaxUpdate,
		pubsub.TopicExecuted,
	} {
		if _, err := broker.Topic(ctx, topic).Subscribe(ctx, console); err != nil {
			slog.Error("failed to attach console", "topic", topic, slogx.Error(err))
			os.Exit(1)
		}
	}

	if err := engine.Run(ctx); err != nil {
		slog.Error("pipeline failed", slogx.Error(err))
		os.Exit(1)
	}

	slog.Info("shutdown complete")
	_, _ = pp.Println(qa.Stats())
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration, using default", "key", key, "value", v, slogx.Error(err))
		return fallback
	}
	return d
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid number, using default", "key", key, "value", v, slogx.Error(err))
		return fallback
	}
	return f
}
