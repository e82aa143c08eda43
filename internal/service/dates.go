package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/pkordes/eventsync/internal/domain"
)

// pickerLayout is the date-time form submitted by editors without seconds.
const pickerLayout = "2006-01-02 15:04"

// relativeSuffix follows a Today/Yesterday/Tomorrow label.
const relativeSuffix = ", 02. January 2006"

// DateService parses, normalizes and formats event dates in one configured zone.
type DateService struct {
	loc        *time.Location
	dateLayout string
	timeLayout string
	now        func() time.Time
}

// NewDateService constructs a DateService. dateLayout and timeLayout are Go
// time layouts for display strings. A nil now uses time.Now.
func NewDateService(loc *time.Location, dateLayout, timeLayout string, now func() time.Time) *DateService {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &DateService{loc: loc, dateLayout: dateLayout, timeLayout: timeLayout, now: now}
}

// Location returns the configured zone.
func (d *DateService) Location() *time.Location { return d.loc }

// Now returns the current time in the configured zone.
func (d *DateService) Now() time.Time { return d.now().In(d.loc) }

// Parse reads a date-time in the canonical "YYYY-MM-DD HH:MM:SS" form, the
// picker form without seconds, or RFC 3339. Returns domain.ErrInvalidDateFormat
// for anything else.
func (d *DateService) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.DateTime, pickerLayout} {
		if t, err := time.ParseInLocation(layout, s, d.loc); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(d.loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidDateFormat, s)
}

// Normalize returns s in the canonical "YYYY-MM-DD HH:MM:SS" form.
func (d *DateService) Normalize(s string) (string, error) {
	t, err := d.Parse(s)
	if err != nil {
		return "", err
	}
	return t.Format(time.DateTime), nil
}

// RelativeLabel returns "Today", "Yesterday" or "Tomorrow" when date falls on
// that calendar day relative to today in the configured zone, else "".
func (d *DateService) RelativeLabel(date, today time.Time) string {
	switch calendarDays(today.In(d.loc), date.In(d.loc)) {
	case 0:
		return "Today"
	case -1:
		return "Yesterday"
	case 1:
		return "Tomorrow"
	default:
		return ""
	}
}

// FormatDay renders the bucket title of a day: the relative label followed
// by the full date, or the configured absolute date layout.
func (d *DateService) FormatDay(date time.Time) string {
	date = date.In(d.loc)
	if label := d.RelativeLabel(date, d.Now()); label != "" {
		return label + date.Format(relativeSuffix)
	}
	return date.Format(d.dateLayout)
}

// DurationMinutes converts an "H:MM" duration into minutes. Empty or
// malformed input yields 0.
func DurationMinutes(s string) int {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0
	}
	return absInt(parts[0])*60 + absInt(parts[1])
}

// DisplayDateAndDuration joins the formatted date, time and "N Minutes"
// duration of an event, skipping empty parts.
func (d *DateService) DisplayDateAndDuration(dateTime, duration string) string {
	var parts []string
	if t, err := d.Parse(dateTime); err == nil {
		parts = append(parts, t.Format(d.dateLayout), t.Format(d.timeLayout))
	}
	if m := DurationMinutes(duration); m > 0 {
		parts = append(parts, fmt.Sprintf("%d Minutes", m))
	}
	return strings.Join(parts, ", ")
}

// ExpandRule expands an RFC 5545 RRULE starting at dtstart into canonical
// date-time strings. dtstart itself is not included and at most limit
// occurrences are returned.
func (d *DateService) ExpandRule(rule string, dtstart time.Time, limit int) ([]string, error) {
	opt, err := rrule.StrToROption(strings.TrimPrefix(strings.TrimSpace(rule), "RRULE:"))
	if err != nil {
		return nil, fmt.Errorf("%w: rrule: %v", domain.ErrValidation, err)
	}
	opt.Dtstart = dtstart.In(d.loc)

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("%w: rrule: %v", domain.ErrValidation, err)
	}

	out := []string{}
	next := r.Iterator()
	for len(out) < limit {
		t, ok := next()
		if !ok {
			break
		}
		if t.Equal(opt.Dtstart) {
			continue
		}
		out = append(out, t.In(d.loc).Format(time.DateTime))
	}
	return out, nil
}

// calendarDays is the number of calendar days from a to b.
func calendarDays(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad).Hours() / 24)
}

func absInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	if n < 0 {
		return -n
	}
	return n
}
