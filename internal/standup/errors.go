package standup

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRoster is wrapped in a ConfigurationError when no users are configured.
	ErrEmptyRoster = errors.New("roster is empty")
	// ErrNoThreadTarget is returned by posters that have nowhere to post.
	ErrNoThreadTarget = errors.New("notifications target is not configured")
	// ErrStopped is returned when the state owner is no longer running.
	ErrStopped = errors.New("standup state stopped")
)

// ConfigurationError reports a malformed schedule or roster. It is fatal at
// startup and causes a hot-reloaded config to be rejected.
type ConfigurationError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("configuration: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration: %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotifyError is a failed prompt delivery. Logged, never retried.
type NotifyError struct {
	UserID string
	Err    error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.UserID, e.Err)
}

func (e *NotifyError) Unwrap() error { return e.Err }

// Post stages.
const (
	StageRoot  = "root"
	StageReply = "reply"
)

// SubmissionPostError is a failure to post the thread root or a reply. The
// submission is already stored when this is returned.
type SubmissionPostError struct {
	DateKey string
	Stage   string
	Err     error
}

func (e *SubmissionPostError) Error() string {
	return fmt.Sprintf("post %s for %s: %v", e.Stage, e.DateKey, e.Err)
}

func (e *SubmissionPostError) Unwrap() error { return e.Err }

// AckError is a failed acknowledgment to the submitter.
type AckError struct {
	UserID string
	Err    error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("acknowledge %s: %v", e.UserID, e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
