// Package msgfmt renders pipeline events for the console.
package msgfmt

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/casualjim/tradewinds/pubsub"
	"github.com/fatih/color"
)

// Console returns a handler that prints every pipeline event to w as a
// single line. Handlers run concurrently, so writes are serialized.
func Console(w io.Writer) pubsub.Handler {
	var mu sync.Mutex
	return func(ctx context.Context, event pubsub.Event) {
		mu.Lock()
		defer mu.Unlock()
		printEvent(w, event)
	}
}

func printEvent(w io.Writer, event pubsub.Event) {
	switch e := event.(type) {
	case pubsub.MarketState:
		fmt.Fprintf(w, "%s: market is %s\n", color.MagentaString(e.Sender), color.CyanString(e.State))
	case pubsub.TradeSignal:
		fmt.Fprintf(w, "%s: %s (%s)\n", color.MagentaString(e.Sender), color.YellowString(string(e.Action)), e.Details)
	case pubsub.TaxUpdate:
		fmt.Fprintf(w, "%s: profit %.2f, withheld %.2f\n", color.MagentaString(e.Sender), e.Profit, e.TaxWithheld)
	case pubsub.ExecutionReport:
		fmt.Fprintf(w, "%s: %s %s\n", color.MagentaString(e.Sender), color.GreenString(e.Status), string(e.Signal.Action))
	default:
		if eb, err := pubsub.ToJSON(event); err == nil {
			fmt.Fprintf(w, "unknown event: %s\n", eb)
		} else {
			fmt.Fprintf(w, "unknown event: %T\n", event)
		}
	}
}
