package feed

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateError indicates a publish date that could not be normalized even after
// the known repair rules were applied. It is fatal for the feed being
// ingested, never for the worker processing it.
type DateError struct {
	Value string
}

func (e *DateError) Error() string {
	return fmt.Sprintf("unparseable publish date %q from feed item", e.Value)
}

var (
	// The "-0000" offset is not technically valid RFC 2822 but plainly
	// means UTC.
	missingOffset = regexp.MustCompile(`-0000$`)

	// Like "Mon, 27 Mar 2017 9:42:00 EST": hours need two digits to be
	// valid, but feeds in the wild truncate them.
	shortHour = regexp.MustCompile(`\b\d:`)

	trailingZone = regexp.MustCompile(`([A-Za-z]+)$`)
)

// Offsets for the named zone abbreviations RFC 2822 defines (plus a couple of
// common aliases). time.Parse would accept these names but silently assign
// them a zero offset, which is worse than rejecting them.
var zoneOffsets = map[string]int{
	"UT":  0,
	"GMT": 0,
	"UTC": 0,
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,
}

var rfc2822Layouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 -0700",
}

var rfc2822NamedLayouts = []string{
	"Mon, 2 Jan 2006 15:04:05",
	"2 Jan 2006 15:04:05",
}

// ParseDateTime parses an RFC-2822-ish timestamp as found in feed pubDate
// elements, repairing the known malformations before giving up. The result is
// always UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := parseRFC2822(s); err == nil {
		return t, nil
	}

	repaired := missingOffset.ReplaceAllString(s, "+0000")
	repaired = padHour(repaired)
	if t, err := parseRFC2822(repaired); err == nil {
		return t, nil
	}

	return time.Time{}, &DateError{Value: s}
}

// padHour zero-pads the leftmost single-digit hour, leaving the rest of the
// string alone.
func padHour(s string) string {
	loc := shortHour.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + "0" + s[loc[0]:]
}

func parseRFC2822(s string) (time.Time, error) {
	for _, layout := range rfc2822Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	// Named zone abbreviation: resolve it to a fixed offset ourselves.
	m := trailingZone.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
	}
	offset, ok := zoneOffsets[m[1]]
	if !ok {
		return time.Time{}, fmt.Errorf("unrecognized time zone %q", m[1])
	}
	base := strings.TrimSpace(strings.TrimSuffix(s, m[1]))
	for _, layout := range rfc2822NamedLayouts {
		if t, err := time.ParseInLocation(layout, base, time.FixedZone(m[1], offset)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime %q", s)
}
