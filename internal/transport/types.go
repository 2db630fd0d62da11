package transport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic id (0 if none)
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
	IsPrivate    bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

func (t ChatTarget) String() string {
	if t.ThreadID == 0 {
		return strconv.FormatInt(t.ChatID, 10)
	}
	return strconv.FormatInt(t.ChatID, 10) + ":" + strconv.Itoa(t.ThreadID)
}

// ParseChatTarget parses "chatID" or "chatID:topicID". Empty input yields a
// zero target.
func ParseChatTarget(raw string) (ChatTarget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ChatTarget{}, nil
	}
	chat, topic, hasTopic := strings.Cut(raw, ":")
	id, err := strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil || id == 0 {
		return ChatTarget{}, fmt.Errorf("invalid chat id %q", chat)
	}
	t := ChatTarget{ChatID: id}
	if hasTopic {
		tid, err := strconv.Atoi(strings.TrimSpace(topic))
		if err != nil || tid < 0 {
			return ChatTarget{}, fmt.Errorf("invalid topic id %q", topic)
		}
		t.ThreadID = tid
	}
	return t, nil
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

// String encodes the ref as "chat:thread:message".
func (r MessageRef) String() string {
	return fmt.Sprintf("%d:%d:%d", r.ChatID, r.ThreadID, r.MessageID)
}

var ErrBadMessageRef = errors.New("malformed message ref")

func ParseMessageRef(s string) (MessageRef, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return MessageRef{}, fmt.Errorf("%w: %q", ErrBadMessageRef, s)
	}
	chat, err1 := strconv.ParseInt(parts[0], 10, 64)
	thread, err2 := strconv.Atoi(parts[1])
	msg, err3 := strconv.Atoi(parts[2])
	if err := errors.Join(err1, err2, err3); err != nil || chat == 0 || msg == 0 {
		return MessageRef{}, fmt.Errorf("%w: %q", ErrBadMessageRef, s)
	}
	return MessageRef{ChatID: chat, ThreadID: thread, MessageID: msg}, nil
}

// Button is an inline callback button. Data is delivered back verbatim in
// Callback.Data.
type Button struct {
	Text string
	Data string
}

type SendOptions struct {
	DisablePreview bool
	// ReplyTo threads the message under an existing message id.
	ReplyTo int
	// Buttons is an inline keyboard, one slice per row.
	Buttons [][]Button
}

// Sender is the send half of an Adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Sender

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Directory is an optional capability for resolving user display names.
type Directory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface for adapters that can publish
// a command menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
