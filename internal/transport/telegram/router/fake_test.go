package router

import (
	"context"
	"sync"

	"standupbot/internal/standup"
	"standupbot/internal/transport"
)

type sent struct {
	to   transport.ChatTarget
	text string
	opt  transport.SendOptions
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sent
	answers []string
	nextID  int
	names   map[int64]string
	sendErr error
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return transport.MessageRef{}, f.sendErr
	}
	var o transport.SendOptions
	if opt != nil {
		o = *opt
	}
	f.sent = append(f.sent, sent{to: to, text: text, opt: o})
	f.nextID++
	return transport.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: 100 + f.nextID}, nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, id, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, id)
	return nil
}

func (f *fakeAdapter) DisplayName(ctx context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.names[userID], nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

func (f *fakeAdapter) last() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sent{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []standup.RawAnswers
	users []string
	res   standup.Result
	err   error
}

func (f *fakeSubmitter) Submit(ctx context.Context, userID string, raw standup.RawAnswers) (standup.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, raw)
	f.users = append(f.users, userID)
	return f.res, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTrigger struct{ rep standup.TickReport }

func (f fakeTrigger) PromptAll(ctx context.Context) standup.TickReport { return f.rep }
