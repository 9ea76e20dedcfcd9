package wleappcam

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// The store keeps timestamps as FILETIME values: 100 nanosecond ticks since
// 1601-01-01 UTC.
const (
	ticksPerSecond   = 10000000
	epochDeltaSecond = 11644473600
	// NotAvailable is rendered for a zero timestamp, which means "never".
	NotAvailable = "N.A."
	dateLayout   = "2006-01-02"
)

// ToFileTime converts a time to FILETIME ticks.
func ToFileTime(t time.Time) int64 {
	return (t.Unix()+epochDeltaSecond)*ticksPerSecond + int64(t.Nanosecond())/100
}

// FromFileTime converts FILETIME ticks to a UTC time.
func FromFileTime(ft int64) time.Time {
	secs := ft/ticksPerSecond - epochDeltaSecond
	return time.Unix(secs, (ft%ticksPerSecond)*100).UTC()
}

// FormatFileTime renders ticks as a civil timestamp in loc, or "N.A." for 0.
func FormatFileTime(ft int64, loc *time.Location) string {
	if ft == 0 {
		return NotAvailable
	}
	return FromFileTime(ft).In(loc).Format("2006-01-02 15:04:05")
}

// DateToFileTime converts a YYYY-MM-DD date, taken as midnight UTC.
func DateToFileTime(date string) (int64, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid date '%s' (expected format is YYYY-MM-DD)", date)
	}
	return ToFileTime(t), nil
}

// DateRange bounds a timestamp column. Either bound may be absent.
type DateRange struct {
	Start *int64
	End   *int64
}

// ParseDateRange converts configured dates. Empty strings and "NONE" leave a
// bound open.
func ParseDateRange(start, end string) (DateRange, error) {
	var r DateRange
	var err error
	if r.Start, err = parseBound(start); err != nil {
		return DateRange{}, err
	}
	if r.End, err = parseBound(end); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

func parseBound(date string) (*int64, error) {
	if unsetDate(date) {
		return nil, nil
	}
	ft, err := DateToFileTime(date)
	if err != nil {
		return nil, err
	}
	return &ft, nil
}

func unsetDate(date string) bool {
	date = strings.TrimSpace(date)
	return date == "" || strings.EqualFold(date, "NONE")
}

// IsZero reports whether neither bound is set.
func (r DateRange) IsZero() bool {
	return r.Start == nil && r.End == nil
}

// Where returns the WHERE clause bounding column, inclusive on both sides,
// or "" when the range is open.
func (r DateRange) Where(column string) string {
	switch {
	case r.Start != nil && r.End != nil:
		return fmt.Sprintf("WHERE ((%s >= %d) and (%s <= %d))", column, *r.Start, column, *r.End)
	case r.Start != nil:
		return fmt.Sprintf("WHERE (%s >= %d)", column, *r.Start)
	case r.End != nil:
		return fmt.Sprintf("WHERE (%s <= %d)", column, *r.End)
	}
	return ""
}

// Contains reports whether ft lies within the range.
func (r DateRange) Contains(ft int64) bool {
	if r.Start != nil && ft < *r.Start {
		return false
	}
	if r.End != nil && ft > *r.End {
		return false
	}
	return true
}

// FilterText renders the configured dates as "[start,end]" with "--" for an
// open side, or "" when no dates were configured.
func FilterText(start, end string) string {
	if unsetDate(start) && unsetDate(end) {
		return ""
	}
	s, e := "--", "--"
	if !unsetDate(start) {
		if _, err := DateToFileTime(start); err == nil {
			s = start
		}
	}
	if !unsetDate(end) {
		if _, err := DateToFileTime(end); err == nil {
			e = end
		}
	}
	return fmt.Sprintf("[%s,%s]", s, e)
}
