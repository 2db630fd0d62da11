package router

import (
	"sync"
	"time"

	"standupbot/internal/standup"
)

type formStep int

const (
	stepYesterday formStep = iota
	stepToday
	stepBlockers
)

// Questions asked in order.
const (
	QuestionYesterday = "1/3 What did you do yesterday?"
	QuestionToday     = "2/3 What will you do today?"
	QuestionBlockers  = "3/3 Any blockers? Send /skip if none."
)

func (s formStep) question() string {
	switch s {
	case stepToday:
		return QuestionToday
	case stepBlockers:
		return QuestionBlockers
	default:
		return QuestionYesterday
	}
}

type formSession struct {
	step    formStep
	answers standup.RawAnswers
	touched time.Time
}

// forms holds in-progress answer collection per user. Sessions idle longer
// than ttl are dropped.
type forms struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[int64]*formSession
	now func() time.Time
}

func newForms(ttl time.Duration) *forms {
	return &forms{ttl: ttl, m: map[int64]*formSession{}, now: time.Now}
}

func (f *forms) setTTL(ttl time.Duration) {
	f.mu.Lock()
	f.ttl = ttl
	f.mu.Unlock()
}

// start opens (or restarts) a session and returns the first question.
func (f *forms) start(userID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[userID] = &formSession{step: stepYesterday, touched: f.now()}
	return stepYesterday.question()
}

func (f *forms) active(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.m[userID]
	if ok && f.expired(s) {
		delete(f.m, userID)
		return false
	}
	return ok
}

func (f *forms) cancel(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.m[userID]
	delete(f.m, userID)
	return ok
}

// answer records text for the current step. It returns the next question,
// or done=true with the collected answers once the last step is answered.
// ok is false when the user has no session.
func (f *forms) answer(userID int64, text string) (next string, done bool, out standup.RawAnswers, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.m[userID]
	if !ok || f.expired(s) {
		delete(f.m, userID)
		return "", false, standup.RawAnswers{}, false
	}
	s.touched = f.now()
	switch s.step {
	case stepYesterday:
		s.answers.Yesterday = text
	case stepToday:
		s.answers.Today = text
	case stepBlockers:
		s.answers.Blockers = text
		delete(f.m, userID)
		return "", true, s.answers, true
	}
	s.step++
	return s.step.question(), false, standup.RawAnswers{}, true
}

// restore reopens a finished session on its last step, keeping the answers
// collected so far.
func (f *forms) restore(userID int64, answers standup.RawAnswers) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[userID] = &formSession{step: stepBlockers, answers: answers, touched: f.now()}
}

func (f *forms) expired(s *formSession) bool {
	return f.ttl > 0 && f.now().Sub(s.touched) > f.ttl
}

// sweep drops expired sessions and returns how many were removed.
func (f *forms) sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for id, s := range f.m {
		if f.expired(s) {
			delete(f.m, id)
			n++
		}
	}
	return n
}
