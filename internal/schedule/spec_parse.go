package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidSpec is wrapped by every parse failure.
var ErrInvalidSpec = errors.New("invalid schedule")

// Spec is the parsed trigger target.
//
// Only the minute, hour and weekday fields of a five-field cron string are
// consulted. Minute and hour are exact values; the weekday field supports
// "*", a range "a-b", a list "a,b,c" or a single value (0 = Sunday).
type Spec struct {
	Minute   int
	Hour     int
	Weekdays [7]bool
	Source   string
}

// HasWeekday reports whether wd is part of the weekday set.
func (s Spec) HasWeekday(wd int) bool {
	if wd < 0 || wd > 6 {
		return false
	}
	return s.Weekdays[wd]
}

// WeekdayList returns the weekday set in ascending order.
func (s Spec) WeekdayList() []int {
	out := make([]int, 0, 7)
	for d, ok := range s.Weekdays {
		if ok {
			out = append(out, d)
		}
	}
	return out
}

func (s Spec) String() string {
	days := s.WeekdayList()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("%02d:%02d on weekdays [%s]", s.Hour, s.Minute, strings.Join(parts, ","))
}

// Parse parses a five-field cron-like string.
func Parse(raw string) (Spec, error) {
	fields := strings.Fields(raw)
	if len(fields) != 5 {
		return Spec{}, fmt.Errorf("%w %q: expected 5 fields, got %d", ErrInvalidSpec, raw, len(fields))
	}

	minute, err := strconv.Atoi(fields[0])
	if err != nil {
		return Spec{}, fmt.Errorf("%w %q: minute %q is not an integer", ErrInvalidSpec, raw, fields[0])
	}
	if minute < 0 || minute > 59 {
		return Spec{}, fmt.Errorf("%w %q: minute %d out of range 0-59", ErrInvalidSpec, raw, minute)
	}
	hour, err := strconv.Atoi(fields[1])
	if err != nil {
		return Spec{}, fmt.Errorf("%w %q: hour %q is not an integer", ErrInvalidSpec, raw, fields[1])
	}
	if hour < 0 || hour > 23 {
		return Spec{}, fmt.Errorf("%w %q: hour %d out of range 0-23", ErrInvalidSpec, raw, hour)
	}

	days, err := parseWeekdays(fields[4])
	if err != nil {
		return Spec{}, fmt.Errorf("%w %q: %v", ErrInvalidSpec, raw, err)
	}
	if len(days) == 0 {
		return Spec{}, fmt.Errorf("%w %q: weekday field %q selects no days", ErrInvalidSpec, raw, fields[4])
	}

	s := Spec{Minute: minute, Hour: hour, Source: strings.Join(fields, " ")}
	for _, d := range days {
		s.Weekdays[d] = true
	}
	return s, nil
}

// parseWeekdays applies the rules in priority order: "*", range, list, single.
func parseWeekdays(f string) ([]int, error) {
	switch {
	case f == "*":
		return []int{0, 1, 2, 3, 4, 5, 6}, nil
	case strings.Contains(f, "-"):
		lo, hi, ok := strings.Cut(f, "-")
		if !ok {
			return nil, fmt.Errorf("weekday range %q", f)
		}
		start, err := parseWeekday(lo)
		if err != nil {
			return nil, err
		}
		end, err := parseWeekday(hi)
		if err != nil {
			return nil, err
		}
		// start > end yields an empty set; wraparound is not supported.
		var out []int
		for d := start; d <= end; d++ {
			out = append(out, d)
		}
		return out, nil
	case strings.Contains(f, ","):
		seen := map[int]bool{}
		var out []int
		for _, p := range strings.Split(f, ",") {
			d, err := parseWeekday(p)
			if err != nil {
				return nil, err
			}
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
			}
		}
		sort.Ints(out)
		return out, nil
	default:
		d, err := parseWeekday(f)
		if err != nil {
			return nil, err
		}
		return []int{d}, nil
	}
}

func parseWeekday(s string) (int, error) {
	d, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("weekday %q is not an integer", s)
	}
	if d < 0 || d > 6 {
		return 0, fmt.Errorf("weekday %d out of range 0-6", d)
	}
	return d, nil
}
