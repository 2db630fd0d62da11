package app

import (
	"context"
	"time"

	"standupbot/internal/standup"
	"standupbot/internal/storage"
)

// replayDays bounds how much history is loaded back into memory.
const replayDays = 7

// storeJournal writes standup state changes through to a storage.Store.
type storeJournal struct {
	store storage.Store
	now   func() time.Time
}

func newJournal(s storage.Store) standup.Journal {
	if s == nil {
		return nil
	}
	return &storeJournal{store: s, now: time.Now}
}

func (j *storeJournal) AppendUpdate(ctx context.Context, dateKey string, u standup.DailyUpdate) error {
	return j.store.AppendUpdate(ctx, storage.UpdateRecord{
		ID:          u.ID,
		DateKey:     dateKey,
		UserID:      u.UserID,
		SubmittedAt: u.SubmittedAt,
		Yesterday:   u.Yesterday,
		Today:       u.Today,
		Blockers:    u.Blockers,
	})
}

func (j *storeJournal) PutThread(ctx context.Context, dateKey string, h standup.ThreadHandle) error {
	return j.store.PutThread(ctx, storage.ThreadRecord{DateKey: dateKey, Handle: string(h), CreatedAt: j.now()})
}

// replay loads the recent journal into st. It returns the number of
// updates and threads restored.
func replay(ctx context.Context, s storage.Store, st *standup.State, now time.Time, loc *time.Location) (int, int, error) {
	if s == nil {
		return 0, 0, nil
	}
	since := standup.DateKey(now.AddDate(0, 0, -replayDays), loc)
	snap, err := s.Load(ctx, since)
	if err != nil {
		return 0, 0, err
	}
	updates := make(map[string][]standup.DailyUpdate)
	for _, r := range snap.Updates {
		updates[r.DateKey] = append(updates[r.DateKey], standup.DailyUpdate{
			ID:          r.ID,
			UserID:      r.UserID,
			SubmittedAt: r.SubmittedAt,
			Yesterday:   r.Yesterday,
			Today:       r.Today,
			Blockers:    r.Blockers,
		})
	}
	threads := make(map[string]standup.ThreadHandle, len(snap.Threads))
	for _, r := range snap.Threads {
		threads[r.DateKey] = standup.ThreadHandle(r.Handle)
	}
	st.Restore(updates, threads)
	return len(snap.Updates), len(snap.Threads), nil
}
