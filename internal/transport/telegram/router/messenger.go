package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"standupbot/internal/standup"
	"standupbot/internal/transport"
)

// CallbackSubmit is the data carried by the prompt's submit button.
const CallbackSubmit = "submit_update"

// Messenger implements standup.Messenger on a transport adapter. User ids are
// decimal chat ids; thread handles are encoded transport.MessageRefs.
type Messenger struct {
	adapter transport.Adapter
	target  func() transport.ChatTarget
}

// NewMessenger returns a Messenger posting threads to target(), which is
// read on every root post so reloads take effect.
func NewMessenger(a transport.Adapter, target func() transport.ChatTarget) *Messenger {
	return &Messenger{adapter: a, target: target}
}

func parseUserID(userID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", userID)
	}
	return id, nil
}

func (m *Messenger) Notify(ctx context.Context, userID string) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	_, err = m.adapter.SendText(ctx, transport.ChatTarget{ChatID: id}, standup.PromptText, &transport.SendOptions{
		Buttons: [][]transport.Button{{{Text: standup.PromptButton, Data: CallbackSubmit}}},
	})
	return err
}

func (m *Messenger) PostThreadRoot(ctx context.Context, dateKey, summary string) (standup.ThreadHandle, error) {
	var to transport.ChatTarget
	if m.target != nil {
		to = m.target()
	}
	if to.IsZero() {
		return "", standup.ErrNoThreadTarget
	}
	ref, err := m.adapter.SendText(ctx, to, summary, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		return "", err
	}
	return standup.ThreadHandle(ref.String()), nil
}

func (m *Messenger) PostThreadReply(ctx context.Context, h standup.ThreadHandle, text string) error {
	ref, err := transport.ParseMessageRef(string(h))
	if err != nil {
		return err
	}
	_, err = m.adapter.SendText(ctx, transport.ChatTarget{ChatID: ref.ChatID, ThreadID: ref.ThreadID}, text, &transport.SendOptions{
		DisablePreview: true,
		ReplyTo:        ref.MessageID,
	})
	return err
}

func (m *Messenger) Acknowledge(ctx context.Context, userID string) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	_, err = m.adapter.SendText(ctx, transport.ChatTarget{ChatID: id}, standup.AckText, nil)
	return err
}

// DisplayName asks the adapter when it can resolve names.
func (m *Messenger) DisplayName(ctx context.Context, userID string) (string, error) {
	dir, ok := m.adapter.(transport.Directory)
	if !ok {
		return "", nil
	}
	id, err := parseUserID(userID)
	if err != nil {
		return "", err
	}
	return dir.DisplayName(ctx, id)
}

var _ standup.Messenger = (*Messenger)(nil)
