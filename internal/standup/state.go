package standup

import (
	"context"
	"sync"
	"time"

	logx "standupbot/pkg/logx"
)

// journalTimeout bounds one journal write.
const journalTimeout = 2 * time.Second

// State owns the submission store and the thread registry.
//
// Both maps are touched only by the goroutine running Run; every other
// goroutine goes through do(), which hands a closure to that owner and waits
// for it. The thread registry uses reserve/commit so the network call that
// creates a root happens outside the owner while later submissions for the
// same date wait for the reserved handle instead of creating a second root.
type State struct {
	log     logx.Logger
	journal Journal

	ops  chan func()
	done chan struct{}
	once sync.Once

	// owned by Run
	updates map[string][]DailyUpdate
	threads map[string]*threadSlot
}

type threadSlot struct {
	handle ThreadHandle
	// ready is closed once the handle is set or the reservation is released.
	ready chan struct{}
}

// NewState returns an empty state. journal may be nil.
func NewState(log logx.Logger, journal Journal) *State {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &State{
		log:     log,
		journal: journal,
		ops:     make(chan func()),
		done:    make(chan struct{}),
		updates: map[string][]DailyUpdate{},
		threads: map[string]*threadSlot{},
	}
}

// Restore seeds the maps from a journal replay. Must be called before Run.
func (s *State) Restore(updates map[string][]DailyUpdate, threads map[string]ThreadHandle) {
	for k, us := range updates {
		s.updates[k] = append(s.updates[k], us...)
	}
	for k, h := range threads {
		if h == "" {
			continue
		}
		if _, ok := s.threads[k]; ok {
			continue
		}
		ready := make(chan struct{})
		close(ready)
		s.threads[k] = &threadSlot{handle: h, ready: ready}
	}
}

// Run processes state operations until ctx is canceled.
func (s *State) Run(ctx context.Context) error {
	defer s.once.Do(func() { close(s.done) })
	s.log.Debug("state owner started", logx.Int("days", len(s.updates)), logx.Int("threads", len(s.threads)))
	for {
		select {
		case <-ctx.Done():
			s.log.Debug("state owner stopped")
			return nil
		case op := <-s.ops:
			op()
		}
	}
}

// Done is closed when Run has returned.
func (s *State) Done() <-chan struct{} { return s.done }

func (s *State) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.ops <- op:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
	// Once accepted, the owner runs op to completion.
	<-finished
	return nil
}

// Append records u under dateKey. Insertion order is arrival order.
func (s *State) Append(ctx context.Context, dateKey string, u DailyUpdate) error {
	err := s.do(ctx, func() {
		s.updates[dateKey] = append(s.updates[dateKey], u)
	})
	if err != nil || s.journal == nil {
		return err
	}
	// The journal is written by the caller so a slow disk never stalls the owner.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if jerr := s.journal.AppendUpdate(jctx, dateKey, u); jerr != nil {
		s.log.Warn("journal append failed", logx.String("date", dateKey), logx.String("update_id", u.ID), logx.Err(jerr))
	}
	return nil
}

// Updates returns a copy of the submissions stored for dateKey.
func (s *State) Updates(ctx context.Context, dateKey string) ([]DailyUpdate, error) {
	var out []DailyUpdate
	err := s.do(ctx, func() {
		out = append([]DailyUpdate(nil), s.updates[dateKey]...)
	})
	return out, err
}

// Thread returns the committed handle for dateKey, if any.
func (s *State) Thread(ctx context.Context, dateKey string) (ThreadHandle, bool, error) {
	var (
		h  ThreadHandle
		ok bool
	)
	err := s.do(ctx, func() {
		if slot, found := s.threads[dateKey]; found && slot.handle != "" {
			h, ok = slot.handle, true
		}
	})
	return h, ok, err
}

// Reservation is the exclusive right to create the thread root for one date.
// Exactly one of Commit or Release must be called.
type Reservation struct {
	state   *State
	dateKey string
	slot    *threadSlot
	once    sync.Once
}

// DateKey returns the reserved date.
func (r *Reservation) DateKey() string { return r.dateKey }

// ResolveThread returns the committed handle for dateKey, or a Reservation if
// the caller is the first to ask. Callers that arrive while another caller
// holds the reservation wait for it to be committed or released.
func (s *State) ResolveThread(ctx context.Context, dateKey string) (ThreadHandle, *Reservation, error) {
	for {
		var (
			h    ThreadHandle
			res  *Reservation
			wait chan struct{}
		)
		err := s.do(ctx, func() {
			slot, ok := s.threads[dateKey]
			switch {
			case !ok:
				slot = &threadSlot{ready: make(chan struct{})}
				s.threads[dateKey] = slot
				res = &Reservation{state: s, dateKey: dateKey, slot: slot}
			case slot.handle != "":
				h = slot.handle
			default:
				wait = slot.ready
			}
		})
		if err != nil {
			return "", nil, err
		}
		if wait == nil {
			return h, res, nil
		}
		select {
		case <-wait:
			// Committed or released; look again.
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-s.done:
			return "", nil, ErrStopped
		}
	}
}

// Commit records h as the thread for the reserved date. An empty handle
// releases the reservation instead.
func (r *Reservation) Commit(h ThreadHandle) error {
	if h == "" {
		return r.Release()
	}
	var err error
	r.once.Do(func() {
		s := r.state
		err = s.do(context.Background(), func() {
			r.slot.handle = h
			close(r.slot.ready)
		})
		if err != nil || s.journal == nil {
			return
		}
		jctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		if jerr := s.journal.PutThread(jctx, r.dateKey, h); jerr != nil {
			s.log.Warn("journal thread write failed", logx.String("date", r.dateKey), logx.Err(jerr))
		}
	})
	return err
}

// Release gives up the reservation so a later submission may create the root.
func (r *Reservation) Release() error {
	var err error
	r.once.Do(func() {
		s := r.state
		err = s.do(context.Background(), func() {
			if cur, ok := s.threads[r.dateKey]; ok && cur == r.slot {
				delete(s.threads, r.dateKey)
			}
			close(r.slot.ready)
		})
	})
	return err
}
