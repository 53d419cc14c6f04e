// Package timeslot centralizes parsing of the portal's textual slot
// timestamps ("DD.MM.YYYY HH:mm" with an optional seconds part) so the
// queue never re-parses loosely-typed payload fields ad hoc.
package timeslot

import (
	"fmt"
	"strings"
	"time"

	"slotwatch/internal/models"
)

const (
	LayoutFull  = "02.01.2006 15:04:05"
	LayoutShort = "02.01.2006 15:04"
	LayoutDate  = "02.01.2006"
	LayoutClock = "15:04"
)

// Parse accepts both slot layouts used by the portal.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(LayoutFull, s, time.Local); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(LayoutShort, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot %q: %w", s, err)
	}
	return t, nil
}

// DatePart extracts the calendar-date portion (the substring before the
// first space) and validates it.
func DatePart(s string) (string, error) {
	s = strings.TrimSpace(s)
	date, _, found := strings.Cut(s, " ")
	if !found {
		date = s
	}
	if _, err := time.ParseInLocation(LayoutDate, date, time.Local); err != nil {
		return "", fmt.Errorf("parse slot date %q: %w", s, err)
	}
	return date, nil
}

// Clock returns the HH:mm portion of a slot string, empty when the slot
// does not parse.
func Clock(s string) string {
	t, err := Parse(s)
	if err != nil {
		return ""
	}
	return t.Format(LayoutClock)
}

// Expired reports whether the end of the target window has passed,
// allowing the grace period after the nominal end.
func Expired(endSlot string, now time.Time) (bool, error) {
	end, err := Parse(endSlot)
	if err != nil {
		return false, err
	}
	deadline := end.Add(models.ExpiryGraceSeconds * time.Second)
	return now.After(deadline), nil
}

// Began reports whether a slot's start time has already passed.
func Began(slot string, now time.Time) (bool, error) {
	start, err := Parse(slot)
	if err != nil {
		return false, err
	}
	return now.After(start), nil
}
