package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"standupbot/internal/eventbus"
	"standupbot/internal/standup"
)

func TestObserve(t *testing.T) {
	t.Parallel()

	m := New()
	for _, typ := range []string{
		standup.TopicTick, standup.TopicTick,
		standup.TopicPrompted, standup.TopicPromptFailed,
		standup.TopicSubmitted, standup.TopicThreadCreated,
		standup.TopicPostFailed, standup.TopicAckFailed,
		"something.else",
	} {
		m.Observe(eventbus.Event{Type: typ})
	}

	require.Equal(t, 2.0, testutil.ToFloat64(m.Ticks))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Prompted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PromptFailed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Submitted))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ThreadsCreated))
	require.Equal(t, 1.0, testutil.ToFloat64(m.PostFailed))
	require.Equal(t, 1.0, testutil.ToFloat64(m.AckFailed))
}

func TestConsume(t *testing.T) {
	t.Parallel()

	m := New()
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Consume(ctx, bus) }()

	require.Eventually(t, func() bool {
		eventbus.Emit(bus, standup.TopicSubmitted, nil)
		return testutil.ToFloat64(m.Submitted) >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
