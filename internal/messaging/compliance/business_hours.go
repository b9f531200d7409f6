package compliance

import (
	"fmt"
	"time"
)

// BusinessHours is a daily window (local time) during which the bot answers.
// Open is inclusive and close exclusive; the zero value is always open.
type BusinessHours struct {
	OpenMinutes  int
	CloseMinutes int
	location     *time.Location
	enabled      bool
}

// ParseBusinessHours builds a window from HH:MM strings. tz names an IANA zone;
// when empty, a fixed zone at utcOffset is used.
func ParseBusinessHours(open, closeAt, tz string, utcOffset time.Duration) (BusinessHours, error) {
	loc := time.FixedZone(fmt.Sprintf("UTC%+d", int(utcOffset.Hours())), int(utcOffset.Seconds()))
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return BusinessHours{}, fmt.Errorf("compliance: load business hours tz: %w", err)
		}
	}
	openMin, err := parseClock(open)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("compliance: parse business hours open: %w", err)
	}
	closeMin, err := parseClock(closeAt)
	if err != nil {
		return BusinessHours{}, fmt.Errorf("compliance: parse business hours close: %w", err)
	}
	return BusinessHours{
		OpenMinutes:  openMin,
		CloseMinutes: closeMin,
		location:     loc,
		enabled:      true,
	}, nil
}

func parseClock(v string) (int, error) {
	if v == "" {
		return 0, fmt.Errorf("empty clock")
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Open reports whether now falls inside the window.
func (b BusinessHours) Open(now time.Time) bool {
	if !b.enabled || b.OpenMinutes == b.CloseMinutes {
		return true
	}
	local := now.In(b.location)
	minutes := local.Hour()*60 + local.Minute()
	if b.OpenMinutes < b.CloseMinutes {
		return minutes >= b.OpenMinutes && minutes < b.CloseMinutes
	}
	// Window crosses midnight.
	return minutes >= b.OpenMinutes || minutes < b.CloseMinutes
}

// Local converts now into the window's zone.
func (b BusinessHours) Local(now time.Time) time.Time {
	if b.location == nil {
		return now
	}
	return now.In(b.location)
}
