package schedule

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Matches reports whether t, viewed on the wall clock of loc, falls on the
// target minute, hour and one of the target weekdays. There is no tolerance
// window: callers must evaluate every minute exactly once.
func Matches(s Spec, loc *time.Location, t time.Time) bool {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return lt.Minute() == s.Minute &&
		lt.Hour() == s.Hour &&
		s.HasWeekday(int(lt.Weekday()))
}

// everyDay carries the "*" day-of-month and month fields. cron only ANDs the
// weekday field with a starred day-of-month, which is what Spec means.
var everyDay = func() *cron.SpecSchedule {
	sched, err := cron.ParseStandard("* * * * *")
	if err != nil {
		panic(err)
	}
	return sched.(*cron.SpecSchedule)
}()

// cronSchedule converts s into a seconds-resolution cron schedule in loc.
func cronSchedule(s Spec, loc *time.Location) *cron.SpecSchedule {
	var dow uint64
	for d, ok := range s.Weekdays {
		if ok {
			dow |= 1 << uint(d)
		}
	}
	return &cron.SpecSchedule{
		Second:   1 << 0,
		Minute:   1 << uint(s.Minute),
		Hour:     1 << uint(s.Hour),
		Dom:      everyDay.Dom,
		Month:    everyDay.Month,
		Dow:      dow,
		Location: loc,
	}
}

// Next returns the first minute strictly after t that matches s in loc.
// It returns false when cron finds nothing, which happens only for an empty
// weekday set or a wall-clock time that DST skips on every matching day.
func Next(s Spec, loc *time.Location, t time.Time) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	next := cronSchedule(s, loc).Next(t)
	return next, !next.IsZero()
}
