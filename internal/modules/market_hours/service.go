// Package market_hours answers whether an exchange's trading session is
// open at a given instant. Scheduled reconciliation only runs inside the
// session, when broker position feeds are live.
package market_hours

import (
	"strings"
	"sync"
	"time"
)

// TradingHours is an exchange's regular session window in local time
type TradingHours struct {
	OpenHour    int
	OpenMinute  int
	CloseHour   int
	CloseMinute int
}

// FixedDateHoliday is a holiday that falls on the same calendar date every
// year. Movable Indian holidays (Diwali, Holi, Eid) shift each year and are
// loaded per-year via AddHolidays.
type FixedDateHoliday struct {
	Month time.Month
	Day   int
}

// ExchangeConfig describes one exchange's session calendar
type ExchangeConfig struct {
	Code         string
	TimezoneName string
	Hours        TradingHours
	Holidays     []FixedDateHoliday
}

var indiaFixedHolidays = []FixedDateHoliday{
	{Month: time.January, Day: 26},  // Republic Day
	{Month: time.April, Day: 14},    // Ambedkar Jayanti
	{Month: time.May, Day: 1},       // Maharashtra Day
	{Month: time.August, Day: 15},   // Independence Day
	{Month: time.October, Day: 2},   // Gandhi Jayanti
	{Month: time.December, Day: 25}, // Christmas
}

// NSE and BSE share the 09:15-15:30 IST equity session
var exchangeConfigs = map[string]ExchangeConfig{
	"NSE": {
		Code:         "NSE",
		TimezoneName: "Asia/Kolkata",
		Hours:        TradingHours{OpenHour: 9, OpenMinute: 15, CloseHour: 15, CloseMinute: 30},
		Holidays:     indiaFixedHolidays,
	},
	"BSE": {
		Code:         "BSE",
		TimezoneName: "Asia/Kolkata",
		Hours:        TradingHours{OpenHour: 9, OpenMinute: 15, CloseHour: 15, CloseMinute: 30},
		Holidays:     indiaFixedHolidays,
	},
}

// Service answers session-open queries for configured exchanges
type Service struct {
	mu            sync.RWMutex
	extraHolidays map[string]map[string]bool // exchange -> "2006-01-02" -> true
	locationCache map[string]*time.Location
}

// NewService creates a market hours service
func NewService() *Service {
	return &Service{
		extraHolidays: make(map[string]map[string]bool),
		locationCache: make(map[string]*time.Location),
	}
}

// AddHolidays registers exchange-specific closure dates, typically the
// yearly movable-holiday list published by the exchange.
func (s *Service) AddHolidays(exchange string, dates ...time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code := strings.ToUpper(exchange)
	if s.extraHolidays[code] == nil {
		s.extraHolidays[code] = make(map[string]bool)
	}
	for _, d := range dates {
		s.extraHolidays[code][d.Format("2006-01-02")] = true
	}
}

// IsOpen reports whether the exchange's regular session is open at t.
// Unknown exchanges are closed - the session gate fails safe.
func (s *Service) IsOpen(exchange string, t time.Time) bool {
	cfg, ok := exchangeConfigs[strings.ToUpper(exchange)]
	if !ok {
		return false
	}

	loc := s.location(cfg.TimezoneName)
	if loc == nil {
		return false
	}
	local := t.In(loc)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}
	if s.isHoliday(cfg, local) {
		return false
	}

	open := time.Date(local.Year(), local.Month(), local.Day(),
		cfg.Hours.OpenHour, cfg.Hours.OpenMinute, 0, 0, loc)
	closeAt := time.Date(local.Year(), local.Month(), local.Day(),
		cfg.Hours.CloseHour, cfg.Hours.CloseMinute, 0, 0, loc)

	// Session is [open, close]: the closing auction print lands at close
	return !local.Before(open) && !local.After(closeAt)
}

// NextOpen returns the next instant the exchange's session opens at or
// after t. Returns the zero time for unknown exchanges.
func (s *Service) NextOpen(exchange string, t time.Time) time.Time {
	cfg, ok := exchangeConfigs[strings.ToUpper(exchange)]
	if !ok {
		return time.Time{}
	}
	loc := s.location(cfg.TimezoneName)
	if loc == nil {
		return time.Time{}
	}

	local := t.In(loc)
	for i := 0; i < 30; i++ { // Bounded scan, longest Indian closure streak is days, not weeks
		day := local.AddDate(0, 0, i)
		open := time.Date(day.Year(), day.Month(), day.Day(),
			cfg.Hours.OpenHour, cfg.Hours.OpenMinute, 0, 0, loc)
		if open.Before(local) {
			continue
		}
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		if s.isHoliday(cfg, day) {
			continue
		}
		return open
	}
	return time.Time{}
}

func (s *Service) isHoliday(cfg ExchangeConfig, local time.Time) bool {
	for _, h := range cfg.Holidays {
		if local.Month() == h.Month && local.Day() == h.Day {
			return true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.extraHolidays[cfg.Code][local.Format("2006-01-02")]
}

func (s *Service) location(name string) *time.Location {
	s.mu.RLock()
	loc, ok := s.locationCache[name]
	s.mu.RUnlock()
	if ok {
		return loc
	}

	loaded, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}

	s.mu.Lock()
	s.locationCache[name] = loaded
	s.mu.Unlock()
	return loaded
}
