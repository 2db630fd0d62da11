package standup

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"standupbot/internal/eventbus"
	logx "standupbot/pkg/logx"
)

// CoordinatorConfig tunes the submission flow.
type CoordinatorConfig struct {
	// DateLocation is the server clock used for date keys. nil means time.Local.
	DateLocation *time.Location
	// PostTimeout bounds each messaging call. 0 means 15s.
	PostTimeout time.Duration
}

// Coordinator turns collected answers into a stored DailyUpdate and posts it
// to the day's thread.
type Coordinator struct {
	log   logx.Logger
	state *State
	msg   Messenger
	bus   eventbus.Bus

	settings atomic.Pointer[coordSettings]

	now   func() time.Time
	newID func() string
}

// Result describes how far a submission got.
type Result struct {
	Update        DailyUpdate
	DateKey       string
	Thread        ThreadHandle
	CreatedThread bool
	State         SubmissionState
}

func NewCoordinator(cfg CoordinatorConfig, state *State, msg Messenger, log logx.Logger, bus eventbus.Bus) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Coordinator{
		log:   log,
		state: state,
		msg:   msg,
		bus:   bus,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	c.apply(cfg)
	return c
}

type coordSettings struct {
	loc         *time.Location
	postTimeout time.Duration
}

func (c *Coordinator) apply(cfg CoordinatorConfig) {
	st := &coordSettings{loc: cfg.DateLocation, postTimeout: cfg.PostTimeout}
	if st.loc == nil {
		st.loc = time.Local
	}
	if st.postTimeout <= 0 {
		st.postTimeout = 15 * time.Second
	}
	c.settings.Store(st)
}

// Apply swaps the date zone and post timeout for later calls. A submission
// already past its date key keeps that key.
func (c *Coordinator) Apply(cfg CoordinatorConfig) { c.apply(cfg) }

// Submit runs one submission through
// Received -> Normalized -> Stored -> ThreadResolved -> Posted -> Acknowledged.
//
// The update is stored before any messaging call. A failure after that point
// is logged and returned, and leaves the stored update in place.
func (c *Coordinator) Submit(ctx context.Context, userID string, raw RawAnswers) (Result, error) {
	res := Result{State: StateReceived}
	st := c.settings.Load()
	log := c.log.With(logx.String("user", userID))

	n := Normalize(raw)
	now := c.now()
	res.Update = DailyUpdate{
		ID:          c.newID(),
		UserID:      userID,
		SubmittedAt: now,
		Yesterday:   n.Yesterday,
		Today:       n.Today,
		Blockers:    n.Blockers,
	}
	res.State = StateNormalized

	res.DateKey = DateKey(now, st.loc)
	log = log.With(logx.String("date", res.DateKey), logx.String("update_id", res.Update.ID))
	if err := c.state.Append(ctx, res.DateKey, res.Update); err != nil {
		log.Error("store submission failed", logx.Err(err))
		return res, err
	}
	res.State = StateStored
	eventbus.Emit(c.bus, TopicSubmitted, res.Update)

	h, created, err := c.resolveThread(ctx, res.DateKey)
	if err != nil {
		perr := &SubmissionPostError{DateKey: res.DateKey, Stage: StageRoot, Err: err}
		log.Error("thread root unavailable; submission stored but not posted", logx.Err(perr))
		eventbus.Emit(c.bus, TopicPostFailed, perr)
		return res, perr
	}
	res.Thread = h
	res.CreatedThread = created
	res.State = StateThreadResolved

	name := c.displayName(ctx, userID)
	if err := c.withTimeout(ctx, func(cctx context.Context) error {
		return c.msg.PostThreadReply(cctx, h, RenderUpdate(name, res.Update))
	}); err != nil {
		perr := &SubmissionPostError{DateKey: res.DateKey, Stage: StageReply, Err: err}
		log.Error("thread reply failed; submission stored but not posted", logx.Err(perr))
		eventbus.Emit(c.bus, TopicPostFailed, perr)
		return res, perr
	}
	res.State = StatePosted

	if err := c.withTimeout(ctx, func(cctx context.Context) error {
		return c.msg.Acknowledge(cctx, userID)
	}); err != nil {
		aerr := &AckError{UserID: userID, Err: err}
		log.Warn("acknowledgment failed", logx.Err(aerr))
		eventbus.Emit(c.bus, TopicAckFailed, aerr)
		return res, aerr
	}
	res.State = StateAcknowledged

	log.Info("submission posted", logx.Bool("thread_created", created))
	return res, nil
}

// resolveThread returns the day's thread, creating the root if this caller
// holds the reservation. Only the reservation is serialized; the root post
// runs outside the state owner.
func (c *Coordinator) resolveThread(ctx context.Context, dateKey string) (ThreadHandle, bool, error) {
	h, res, err := c.state.ResolveThread(ctx, dateKey)
	if err != nil {
		return "", false, err
	}
	if res == nil {
		return h, false, nil
	}

	var root ThreadHandle
	err = c.withTimeout(ctx, func(cctx context.Context) error {
		var perr error
		root, perr = c.msg.PostThreadRoot(cctx, dateKey, RenderRoot(dateKey))
		return perr
	})
	if err == nil && root == "" {
		err = errors.New("messenger returned an empty thread handle")
	}
	if err != nil {
		if rerr := res.Release(); rerr != nil {
			c.log.Warn("release thread reservation failed", logx.String("date", dateKey), logx.Err(rerr))
		}
		return "", false, err
	}
	if err := res.Commit(root); err != nil {
		return "", false, err
	}
	c.log.Info("thread root created", logx.String("date", dateKey), logx.String("thread", string(root)))
	eventbus.Emit(c.bus, TopicThreadCreated, dateKey)
	return root, true, nil
}

func (c *Coordinator) displayName(ctx context.Context, userID string) string {
	var name string
	err := c.withTimeout(ctx, func(cctx context.Context) error {
		var err error
		name, err = c.msg.DisplayName(cctx, userID)
		return err
	})
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil {
			c.log.Debug("display name lookup failed", logx.String("user", userID), logx.Err(err))
		}
		return UnknownUserName
	}
	return name
}

func (c *Coordinator) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, c.settings.Load().postTimeout)
	defer cancel()
	return fn(cctx)
}

// snapshot returns the stored updates and thread handle for dateKey.
func (c *Coordinator) snapshot(ctx context.Context, dateKey string) ([]DailyUpdate, ThreadHandle, error) {
	us, err := c.state.Updates(ctx, dateKey)
	if err != nil {
		return nil, "", err
	}
	h, _, err := c.state.Thread(ctx, dateKey)
	return us, h, err
}

// today returns the date key for now on the server clock.
func (c *Coordinator) today() string { return DateKey(c.now(), c.settings.Load().loc) }
