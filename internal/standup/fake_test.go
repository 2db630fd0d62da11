package standup

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	logx "standupbot/pkg/logx"
)

func testLogger() logx.Logger { return logx.Nop() }

// fakeMessenger records every call. Errors are injected per method.
type fakeMessenger struct {
	mu sync.Mutex

	rootDelay time.Duration
	rootErrs  []error // consumed in order; nil entry means success
	replyErr  error
	ackErr    error
	notifyErr map[string]error
	names     map[string]string

	roots    []string
	replies  map[ThreadHandle][]string
	acks     []string
	notified []string

	rootCalls atomic.Int64
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		replies:   map[ThreadHandle][]string{},
		notifyErr: map[string]error{},
		names:     map[string]string{},
	}
}

func (f *fakeMessenger) Notify(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.notifyErr[userID]; err != nil {
		return err
	}
	f.notified = append(f.notified, userID)
	return nil
}

func (f *fakeMessenger) PostThreadRoot(ctx context.Context, dateKey, summary string) (ThreadHandle, error) {
	n := f.rootCalls.Add(1)
	if f.rootDelay > 0 {
		select {
		case <-time.After(f.rootDelay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rootErrs) > 0 {
		err := f.rootErrs[0]
		f.rootErrs = f.rootErrs[1:]
		if err != nil {
			return "", err
		}
	}
	f.roots = append(f.roots, summary)
	return ThreadHandle(fmt.Sprintf("%s#%d", dateKey, n)), nil
}

func (f *fakeMessenger) PostThreadReply(ctx context.Context, h ThreadHandle, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return f.replyErr
	}
	f.replies[h] = append(f.replies[h], text)
	return nil
}

func (f *fakeMessenger) Acknowledge(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ackErr != nil {
		return f.ackErr
	}
	f.acks = append(f.acks, userID)
	return nil
}

func (f *fakeMessenger) DisplayName(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.names[userID]; ok {
		return n, nil
	}
	return "", errors.New("no such user")
}

func (f *fakeMessenger) rootCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.roots)
}

func (f *fakeMessenger) replyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rs := range f.replies {
		n += len(rs)
	}
	return n
}

type memJournal struct {
	mu      sync.Mutex
	updates map[string][]DailyUpdate
	threads map[string]ThreadHandle
}

func newMemJournal() *memJournal {
	return &memJournal{updates: map[string][]DailyUpdate{}, threads: map[string]ThreadHandle{}}
}

func (j *memJournal) AppendUpdate(ctx context.Context, dateKey string, u DailyUpdate) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updates[dateKey] = append(j.updates[dateKey], u)
	return nil
}

func (j *memJournal) PutThread(ctx context.Context, dateKey string, h ThreadHandle) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.threads[dateKey] = h
	return nil
}
