package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"standupbot/internal/standup"
	"standupbot/internal/transport"
)

func TestMessengerThreadRootAndReply(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{}
	target := transport.ChatTarget{ChatID: -100, ThreadID: 5}
	m := NewMessenger(a, func() transport.ChatTarget { return target })
	ctx := context.Background()

	h, err := m.PostThreadRoot(ctx, "2024-06-03", standup.RenderRoot("2024-06-03"))
	require.NoError(t, err)
	ref, err := transport.ParseMessageRef(string(h))
	require.NoError(t, err)
	require.Equal(t, int64(-100), ref.ChatID)
	require.Equal(t, 5, ref.ThreadID)

	require.NoError(t, m.PostThreadReply(ctx, h, "body"))
	last := a.last()
	require.Equal(t, target, last.to)
	require.Equal(t, ref.MessageID, last.opt.ReplyTo)

	require.Error(t, m.PostThreadReply(ctx, "garbage", "body"))
}

func TestMessengerNoTarget(t *testing.T) {
	t.Parallel()

	m := NewMessenger(&fakeAdapter{}, func() transport.ChatTarget { return transport.ChatTarget{} })
	_, err := m.PostThreadRoot(context.Background(), "d", "s")
	require.ErrorIs(t, err, standup.ErrNoThreadTarget)
}

func TestMessengerNotifyAndAck(t *testing.T) {
	t.Parallel()

	a := &fakeAdapter{names: map[int64]string{42: "Grace Hopper"}}
	m := NewMessenger(a, nil)
	ctx := context.Background()

	require.NoError(t, m.Notify(ctx, "42"))
	prompt := a.last()
	require.Equal(t, int64(42), prompt.to.ChatID)
	require.Equal(t, standup.PromptText, prompt.text)
	require.Equal(t, CallbackSubmit, prompt.opt.Buttons[0][0].Data)

	require.NoError(t, m.Acknowledge(ctx, "42"))
	require.Equal(t, standup.AckText, a.last().text)

	name, err := m.DisplayName(ctx, "42")
	require.NoError(t, err)
	require.Equal(t, "Grace Hopper", name)

	require.Error(t, m.Notify(ctx, "U42"))
}
