package agent

import (
	"context"
	"testing"
	"time"

	"github.com/casualjim/tradewinds/pubsub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQAStats(t *testing.T) {
	broker := pubsub.Local()
	qa := NewQA(broker)
	require.NoError(t, qa.Subscribe(context.Background()))

	// mirror subscriptions so the test can wait for QA's deliveries
	signals := subscribeRecorder(t, broker, pubsub.TopicTradeSignal)
	executed := subscribeRecorder(t, broker, pubsub.TopicExecuted)

	ctx := context.Background()
	signalTopic := broker.Topic(ctx, pubsub.TopicTradeSignal)
	require.NoError(t, signalTopic.Publish(ctx, pubsub.TradeSignal{Action: pubsub.ActionScalping}))
	require.NoError(t, signalTopic.Publish(ctx, pubsub.TradeSignal{Action: pubsub.ActionScalping}))
	require.NoError(t, signalTopic.Publish(ctx, pubsub.TradeSignal{Action: pubsub.ActionHold}))
	require.NoError(t, broker.Topic(ctx, pubsub.TopicExecuted).Publish(ctx, pubsub.ExecutionReport{
		Status: pubsub.StatusExecuted,
		Signal: pubsub.TradeSignal{Action: pubsub.ActionScalping},
	}))

	signals.waitN(t, 3)
	executed.waitN(t, 1)

	assert.Eventually(t, func() bool {
		stats := qa.Stats()
		return stats.Actions[pubsub.ActionScalping] == 2 &&
			stats.Actions[pubsub.ActionHold] == 1 &&
			stats.Executed == 1
	}, time.Second, 10*time.Millisecond)
}
