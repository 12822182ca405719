// Package scheduler answers the calendar questions that gate the trading
// engine: is this instant a trading day, inside a session window, or the
// exact minute signals are fetched or orders executed.
package scheduler

import (
	"fmt"
	"time"

	"github.com/ksred/tradeflow-api/internal/config"
)

// clock is a wall-clock time of day in seconds since midnight.
type clock int

func (c clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/3600, int(c)%3600/60)
}

// Scheduler holds the parsed session windows and task instants. It is
// pure: every method is a function of configuration and the probe
// instant, with no side effects.
type Scheduler struct {
	morningStart   clock
	morningEnd     clock
	afternoonStart clock
	afternoonEnd   clock
	fetchHour      int
	fetchMinute    int
	executeHour    int
	executeMinute  int
}

// New parses the configured "HH:MM" strings into a Scheduler.
func New(cfg config.TradingConfig) (*Scheduler, error) {
	s := &Scheduler{}
	var err error

	if s.morningStart, err = parseClock(cfg.Morning.Start); err != nil {
		return nil, fmt.Errorf("morning start: %w", err)
	}
	if s.morningEnd, err = parseClock(cfg.Morning.End); err != nil {
		return nil, fmt.Errorf("morning end: %w", err)
	}
	if s.afternoonStart, err = parseClock(cfg.Afternoon.Start); err != nil {
		return nil, fmt.Errorf("afternoon start: %w", err)
	}
	if s.afternoonEnd, err = parseClock(cfg.Afternoon.End); err != nil {
		return nil, fmt.Errorf("afternoon end: %w", err)
	}

	fetch, err := parseClock(cfg.FetchTime)
	if err != nil {
		return nil, fmt.Errorf("fetch time: %w", err)
	}
	s.fetchHour, s.fetchMinute = int(fetch)/3600, int(fetch)%3600/60

	execute, err := parseClock(cfg.ExecuteTime)
	if err != nil {
		return nil, fmt.Errorf("execute time: %w", err)
	}
	s.executeHour, s.executeMinute = int(execute)/3600, int(execute)%3600/60

	return s, nil
}

func parseClock(v string) (clock, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", v, err)
	}
	return clock(t.Hour()*3600 + t.Minute()*60), nil
}

func secondsOfDay(t time.Time) clock {
	return clock(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

// IsTradingDay reports whether t falls on a weekday. Exchange holidays
// are not modelled.
func (s *Scheduler) IsTradingDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// IsTradingTime reports whether t is on a trading day and inside the
// morning or afternoon session, inclusive at both window edges.
func (s *Scheduler) IsTradingTime(t time.Time) bool {
	if !s.IsTradingDay(t) {
		return false
	}
	now := secondsOfDay(t)
	inMorning := s.morningStart <= now && now <= s.morningEnd
	inAfternoon := s.afternoonStart <= now && now <= s.afternoonEnd
	return inMorning || inAfternoon
}

// IsFetchTime reports whether t's hour and minute exactly match the
// configured signal fetch instant. Seconds are ignored; callers must
// probe at least once per minute or the match is missed.
func (s *Scheduler) IsFetchTime(t time.Time) bool {
	return t.Hour() == s.fetchHour && t.Minute() == s.fetchMinute
}

// IsExecuteTime reports whether t's hour and minute exactly match the
// configured order execute instant. Seconds are ignored.
func (s *Scheduler) IsExecuteTime(t time.Time) bool {
	return t.Hour() == s.executeHour && t.Minute() == s.executeMinute
}

// NextTradingInstant returns the next session opening of t's own day:
// the morning start if t is before it, the afternoon start if t is
// strictly between the sessions, and ok=false otherwise. It never looks
// ahead across days.
func (s *Scheduler) NextTradingInstant(t time.Time) (time.Time, bool) {
	now := secondsOfDay(t)

	if now < s.morningStart {
		return atClock(t, s.morningStart), true
	}
	if s.morningEnd < now && now < s.afternoonStart {
		return atClock(t, s.afternoonStart), true
	}
	return time.Time{}, false
}

func atClock(t time.Time, c clock) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), int(c)/3600, int(c)%3600/60, 0, 0, t.Location())
}

// MorningSession formats the morning window for status reporting.
func (s *Scheduler) MorningSession() string {
	return fmt.Sprintf("%s - %s", s.morningStart, s.morningEnd)
}

// AfternoonSession formats the afternoon window for status reporting.
func (s *Scheduler) AfternoonSession() string {
	return fmt.Sprintf("%s - %s", s.afternoonStart, s.afternoonEnd)
}

// FetchTime formats the configured signal fetch instant.
func (s *Scheduler) FetchTime() string {
	return fmt.Sprintf("%02d:%02d", s.fetchHour, s.fetchMinute)
}

// ExecuteTime formats the configured order execute instant.
func (s *Scheduler) ExecuteTime() string {
	return fmt.Sprintf("%02d:%02d", s.executeHour, s.executeMinute)
}
