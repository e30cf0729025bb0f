// Package kst encodes and decodes slot timestamps expressed in Korea Standard
// Time (fixed UTC+09:00).
//
// Decoding is positional: every timestamp handed to Decode or Clock must
// already be written as "YYYY-MM-DDTHH:MM:SS+09:00". No offset conversion is
// performed, so a timestamp in any other offset decodes to the wrong wall
// clock. CheckOffset reports such values; it never corrects them.
package kst

import (
	"fmt"
	"regexp"
	"time"
)

// Offset is the suffix carried by every encoded timestamp.
const Offset = "+09:00"

// Zone is the fixed KST location used for formatting instants.
var Zone = time.FixedZone("KST", 9*60*60)

// Layout selects one of the display formats produced by Format.
type Layout string

const (
	LayoutDate     Layout = "date"
	LayoutTime     Layout = "time"
	LayoutDateTime Layout = "datetime"
	LayoutDateKo   Layout = "date-ko"
)

var (
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timePattern      = regexp.MustCompile(`^\d{2}:\d{2}$`)
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\+09:00$`)
)

// Encode joins a calendar date and a time of day into a +09:00 timestamp.
func Encode(date, hhmm string) string {
	return date + "T" + hhmm + ":00" + Offset
}

// Decode splits a timestamp into its date (characters 0-10) and time of day
// (characters 11-16).
func Decode(ts string) (date, hhmm string) {
	return slice(ts, 0, 10), slice(ts, 11, 16)
}

// Date returns the date part of a timestamp.
func Date(ts string) string {
	return slice(ts, 0, 10)
}

// Clock returns the HH:MM part of a timestamp.
func Clock(ts string) string {
	return slice(ts, 11, 16)
}

// Window renders a start/end pair as "HH:MM ~ HH:MM".
func Window(startAt, endAt string) string {
	return Clock(startAt) + " ~ " + Clock(endAt)
}

// CheckOffset reports whether ts honours the positional contract.
func CheckOffset(ts string) error {
	if !timestampPattern.MatchString(ts) {
		return fmt.Errorf("timestamp %q is not in YYYY-MM-DDTHH:MM:SS%s form", ts, Offset)
	}
	return nil
}

// IsValidDate reports whether s has the YYYY-MM-DD shape.
func IsValidDate(s string) bool {
	return datePattern.MatchString(s)
}

// IsValidTime reports whether s has the HH:MM shape.
func IsValidTime(s string) bool {
	return timePattern.MatchString(s)
}

// Today returns the KST calendar date of now.
func Today(now time.Time) string {
	return now.In(Zone).Format("2006-01-02")
}

// Format renders an instant in KST using one of the display layouts.
// Unknown layouts fall back to LayoutDateTime.
func Format(t time.Time, layout Layout) string {
	k := t.In(Zone)
	switch layout {
	case LayoutDate:
		return k.Format("2006-01-02")
	case LayoutTime:
		return k.Format("15:04:05")
	case LayoutDateKo:
		return k.Format("2006년 01월 02일")
	default:
		return k.Format("2006-01-02 15:04:05") + " KST"
	}
}

// FormatString parses an RFC 3339 timestamp and renders it with Format. The
// input is returned unchanged when it cannot be parsed.
func FormatString(ts string, layout Layout) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return Format(t, layout)
}

func slice(s string, from, to int) string {
	if from > len(s) {
		return ""
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}
