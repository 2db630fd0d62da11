package standup

import (
	"context"
	"strings"
	"time"
)

// Defaults applied by Normalize.
const (
	NoResponse = "No response"
	NoBlockers = "None"
)

// DefaultTimezone is used for roster entries without an explicit zone.
const DefaultTimezone = "Europe/Sofia"

// UserConfig is one roster entry.
type UserConfig struct {
	UserID   string
	Timezone string
	Location *time.Location
}

// RawAnswers are the unvalidated answers collected from a user.
type RawAnswers struct {
	Yesterday string
	Today     string
	Blockers  string
}

// DailyUpdate is a normalized, stored submission. Treat as immutable.
type DailyUpdate struct {
	ID          string
	UserID      string
	SubmittedAt time.Time
	Yesterday   string
	Today       string
	Blockers    string
}

// ThreadHandle identifies a day's aggregation thread on the messaging side.
type ThreadHandle string

// SubmissionState tracks how far a submission got. Transitions are one-way.
type SubmissionState int

const (
	StateReceived SubmissionState = iota
	StateNormalized
	StateStored
	StateThreadResolved
	StatePosted
	StateAcknowledged
)

func (s SubmissionState) String() string {
	switch s {
	case StateReceived:
		return "received"
	case StateNormalized:
		return "normalized"
	case StateStored:
		return "stored"
	case StateThreadResolved:
		return "thread_resolved"
	case StatePosted:
		return "posted"
	case StateAcknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

// Normalize fills blank answers with their defaults. Whitespace-only counts
// as blank; non-blank answers are kept verbatim.
func Normalize(a RawAnswers) RawAnswers {
	return RawAnswers{
		Yesterday: orDefault(a.Yesterday, NoResponse),
		Today:     orDefault(a.Today, NoResponse),
		Blockers:  orDefault(a.Blockers, NoBlockers),
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// DateKey returns the calendar date of t on the server clock loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format("2006-01-02")
}

// ---- collaborator ports ----

// Notifier delivers the interactive prompt to a user.
type Notifier interface {
	Notify(ctx context.Context, userID string) error
}

// Poster creates the day's thread root and posts replies under it.
type Poster interface {
	PostThreadRoot(ctx context.Context, dateKey, summary string) (ThreadHandle, error)
	PostThreadReply(ctx context.Context, h ThreadHandle, text string) error
}

// Acknowledger confirms a submission to its author.
type Acknowledger interface {
	Acknowledge(ctx context.Context, userID string) error
}

// Directory resolves display names. Best-effort.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Messenger is the full messaging collaborator.
type Messenger interface {
	Notifier
	Poster
	Acknowledger
	Directory
}

// Journal mirrors store writes somewhere durable. Optional.
type Journal interface {
	AppendUpdate(ctx context.Context, dateKey string, u DailyUpdate) error
	PutThread(ctx context.Context, dateKey string, h ThreadHandle) error
}

// Event topics.
const (
	TopicPrompted      = "standup.prompted"
	TopicPromptFailed  = "standup.prompt_failed"
	TopicSubmitted     = "standup.submitted"
	TopicThreadCreated = "standup.thread_created"
	TopicPostFailed    = "standup.post_failed"
	TopicAckFailed     = "standup.ack_failed"
	TopicTick          = "standup.tick"
)
