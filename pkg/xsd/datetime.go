// Package xsd implements checked arithmetic and comparison for the XSD
// value types SPARQL 1.1 needs: dateTime, date, time, the gregorian
// fragments, duration and its two subtypes, and decimal. Operations that
// would overflow or produce an illegal normalization (Feb 30, a timezone
// outside [-14:00, +14:00]) return ok=false ("none") instead of panicking
// or silently wrapping, so callers can fold that into SPARQL's local
// error-recovery rule.
package xsd

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinTZOffset and MaxTZOffset bound legal timezone offsets, in seconds.
const (
	MinTZOffset = -14 * 3600
	MaxTZOffset = 14 * 3600
)

// DateTime is a point in time with an optional timezone. A value with no
// timezone is "local" and compares as indeterminate against a zoned value,
// per XSD 1.1 partial ordering.
type DateTime struct {
	Year                          int
	Month, Day                    int
	Hour, Minute                  int
	Second                        int
	Nanosecond                    int
	HasTZ                         bool
	TZOffsetSeconds               int
}

// ParseDateTime parses an xsd:dateTime lexical form.
func ParseDateTime(s string) (DateTime, bool) {
	s = strings.TrimSpace(s)
	tzOffset, hasTZ, body, ok := splitTZ(s)
	if !ok {
		return DateTime{}, false
	}
	parts := strings.SplitN(body, "T", 2)
	if len(parts) != 2 {
		return DateTime{}, false
	}
	y, mo, d, ok := parseDateParts(parts[0])
	if !ok {
		return DateTime{}, false
	}
	h, mi, sec, ns, ok := parseTimeParts(parts[1])
	if !ok {
		return DateTime{}, false
	}
	dt := DateTime{Year: y, Month: mo, Day: d, Hour: h, Minute: mi, Second: sec, Nanosecond: ns, HasTZ: hasTZ, TZOffsetSeconds: tzOffset}
	if !dt.normalizationValid() {
		return DateTime{}, false
	}
	return dt, true
}

// ParseDate parses an xsd:date lexical form (YYYY-MM-DD with optional TZ).
func ParseDate(s string) (DateTime, bool) {
	s = strings.TrimSpace(s)
	tzOffset, hasTZ, body, ok := splitTZ(s)
	if !ok {
		return DateTime{}, false
	}
	y, mo, d, ok := parseDateParts(body)
	if !ok {
		return DateTime{}, false
	}
	dt := DateTime{Year: y, Month: mo, Day: d, HasTZ: hasTZ, TZOffsetSeconds: tzOffset}
	if !dt.normalizationValid() {
		return DateTime{}, false
	}
	return dt, true
}

// ParseTime parses an xsd:time lexical form (hh:mm:ss.sss with optional TZ).
func ParseTime(s string) (DateTime, bool) {
	s = strings.TrimSpace(s)
	tzOffset, hasTZ, body, ok := splitTZ(s)
	if !ok {
		return DateTime{}, false
	}
	h, mi, sec, ns, ok := parseTimeParts(body)
	if !ok {
		return DateTime{}, false
	}
	// Anchor on an arbitrary valid date so day arithmetic stays well defined.
	dt := DateTime{Year: 2000, Month: 1, Day: 1, Hour: h, Minute: mi, Second: sec, Nanosecond: ns, HasTZ: hasTZ, TZOffsetSeconds: tzOffset}
	if !dt.normalizationValid() {
		return DateTime{}, false
	}
	return dt, true
}

func splitTZ(s string) (offset int, has bool, body string, ok bool) {
	if s == "" {
		return 0, false, "", false
	}
	if strings.HasSuffix(s, "Z") {
		return 0, true, s[:len(s)-1], true
	}
	// Look for a +HH:MM or -HH:MM suffix after the first char (avoid the
	// leading '-' of a BCE year).
	for i := len(s) - 1; i > 0; i-- {
		if s[i] == '+' || (s[i] == '-' && i >= 6) {
			rest := s[i:]
			if off, ok := parseTZOffset(rest); ok {
				if off < MinTZOffset || off > MaxTZOffset {
					return 0, false, "", false
				}
				return off, true, s[:i], true
			}
		}
	}
	return 0, false, s, true
}

func parseTZOffset(s string) (int, bool) {
	if len(s) != 6 || s[3] != ':' {
		return 0, false
	}
	sign := 1
	if s[0] == '-' {
		sign = -1
	} else if s[0] != '+' {
		return 0, false
	}
	h, err := strconv.Atoi(s[1:3])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(s[4:6])
	if err != nil {
		return 0, false
	}
	return sign * (h*3600 + m*60), true
}

func parseDateParts(s string) (y, mo, d int, ok bool) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	var err error
	y, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, false
	}
	if neg {
		y = -y
	}
	mo, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, false
	}
	d, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, 0, false
	}
	return y, mo, d, true
}

func parseTimeParts(s string) (h, mi, sec, ns int, ok bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, 0, false
	}
	var err error
	h, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, 0, 0, false
	}
	mi, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, 0, 0, false
	}
	secStr := parts[2]
	if dot := strings.Index(secStr, "."); dot >= 0 {
		whole, frac := secStr[:dot], secStr[dot+1:]
		sec, err = strconv.Atoi(whole)
		if err != nil {
			return 0, 0, 0, 0, false
		}
		for len(frac) < 9 {
			frac += "0"
		}
		frac = frac[:9]
		ns, err = strconv.Atoi(frac)
		if err != nil {
			return 0, 0, 0, 0, false
		}
	} else {
		sec, err = strconv.Atoi(secStr)
		if err != nil {
			return 0, 0, 0, 0, false
		}
	}
	return h, mi, sec, ns, true
}

func daysInMonth(year, month int) int {
	switch month {
	case 1, 3, 5, 7, 8, 10, 12:
		return 31
	case 4, 6, 9, 11:
		return 30
	case 2:
		if isLeapYear(year) {
			return 29
		}
		return 28
	default:
		return 0
	}
}

func isLeapYear(y int) bool {
	return (y%4 == 0 && y%100 != 0) || y%400 == 0
}

func (dt DateTime) normalizationValid() bool {
	if dt.Month < 1 || dt.Month > 12 {
		return false
	}
	if dt.Day < 1 || dt.Day > daysInMonth(dt.Year, dt.Month) {
		return false
	}
	if dt.Hour < 0 || dt.Hour > 24 || dt.Minute < 0 || dt.Minute > 59 || dt.Second < 0 || dt.Second > 60 {
		return false
	}
	if dt.Hour == 24 && (dt.Minute != 0 || dt.Second != 0 || dt.Nanosecond != 0) {
		return false
	}
	return true
}

// toTime converts to a comparable instant, assuming UTC when HasTZ is
// false. Callers must not compare the result across a zoned/unzoned pair
// without first checking HasTZ on both sides (see Compare).
func (dt DateTime) toTime() time.Time {
	loc := time.UTC
	t := time.Date(dt.Year, time.Month(dt.Month), dt.Day, dt.Hour, dt.Minute, dt.Second, dt.Nanosecond, loc)
	if dt.HasTZ {
		t = t.Add(-time.Duration(dt.TZOffsetSeconds) * time.Second)
	}
	return t
}

func fromTime(t time.Time, hasTZ bool, tzOffset int) DateTime {
	return DateTime{
		Year: t.Year(), Month: int(t.Month()), Day: t.Day(),
		Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond(),
		HasTZ: hasTZ, TZOffsetSeconds: tzOffset,
	}
}

// Order is the result of comparing two partially-ordered XSD values.
type Order int

const (
	OrderLess Order = iota
	OrderEqual
	OrderGreater
	OrderIndeterminate
)

// Compare implements XSD 1.1 §3.2.7.4 partial ordering for dateTime
// (and, by the same rule, date/time): two zoned values, or two unzoned
// values, compare by instant; a zoned value compared against an unzoned
// one is indeterminate unless the 14-hour bracketing still decides it.
func Compare(a, b DateTime) Order {
	if a.HasTZ == b.HasTZ {
		at, bt := a.toTime(), b.toTime()
		switch {
		case at.Before(bt):
			return OrderLess
		case at.After(bt):
			return OrderGreater
		default:
			return OrderEqual
		}
	}
	// Bracket the unzoned value by [-14:00, +14:00] and see if that
	// still decides the comparison (XSD 1.1 definite-order extension).
	zoned, unzoned := a, b
	unzonedIsA := false
	if !a.HasTZ {
		zoned, unzoned = b, a
		unzonedIsA = true
	}
	earliest := unzoned
	earliest.HasTZ, earliest.TZOffsetSeconds = true, MaxTZOffset
	latest := unzoned
	latest.HasTZ, latest.TZOffsetSeconds = true, MinTZOffset
	zt := zoned.toTime()
	if zt.Before(earliest.toTime()) {
		if unzonedIsA {
			return OrderGreater
		}
		return OrderLess
	}
	if zt.After(latest.toTime()) {
		if unzonedIsA {
			return OrderLess
		}
		return OrderGreater
	}
	return OrderIndeterminate
}

// Duration is a signed span of years/months plus seconds/nanoseconds,
// kept as two independent fields per XSD (months are not convertible to
// a fixed number of days, so they never mix with the seconds component
// except during AddToDateTime).
type Duration struct {
	Months     int // may be negative
	Seconds    int64
	Nanosecond int
	Negative   bool // applies to both components together when parsed as "-P..."
}

// ParseDuration parses xsd:duration, xsd:yearMonthDuration or
// xsd:dayTimeDuration lexical forms ("PnYnMnDTnHnMnS").
func ParseDuration(s string) (Duration, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if !strings.HasPrefix(s, "P") {
		return Duration{}, false
	}
	s = s[1:]
	datePart, timePart := s, ""
	if idx := strings.Index(s, "T"); idx >= 0 {
		datePart, timePart = s[:idx], s[idx+1:]
	}
	var months int
	var seconds int64
	var ns int
	rest := datePart
	y, rest, ok := takeNum(rest, "Y")
	if !ok {
		return Duration{}, false
	}
	mo, rest, ok := takeNum(rest, "M")
	if !ok {
		return Duration{}, false
	}
	d, rest, ok := takeNum(rest, "D")
	if !ok {
		return Duration{}, false
	}
	if rest != "" {
		return Duration{}, false
	}
	months = y*12 + mo
	seconds += int64(d) * 86400

	if timePart != "" {
		h, rest, ok := takeNum(timePart, "H")
		if !ok {
			return Duration{}, false
		}
		mi, rest, ok := takeNum(rest, "M")
		if !ok {
			return Duration{}, false
		}
		secVal, nsVal, rest, ok := takeSeconds(rest)
		if !ok {
			return Duration{}, false
		}
		if rest != "" {
			return Duration{}, false
		}
		seconds += int64(h)*3600 + int64(mi)*60 + secVal
		ns = nsVal
	}
	return Duration{Months: months, Seconds: seconds, Nanosecond: ns, Negative: neg}, true
}

func takeNum(s, suffix string) (int, string, bool) {
	idx := strings.Index(s, suffix)
	if idx < 0 {
		return 0, s, true
	}
	n, err := strconv.Atoi(s[:idx])
	if err != nil {
		return 0, s, false
	}
	return n, s[idx+1:], true
}

func takeSeconds(s string) (int64, int, string, bool) {
	idx := strings.Index(s, "S")
	if idx < 0 {
		return 0, 0, s, true
	}
	numStr := s[:idx]
	if dot := strings.Index(numStr, "."); dot >= 0 {
		whole, frac := numStr[:dot], numStr[dot+1:]
		w, err := strconv.ParseInt(whole, 10, 64)
		if err != nil {
			return 0, 0, s, false
		}
		for len(frac) < 9 {
			frac += "0"
		}
		n, err := strconv.Atoi(frac[:9])
		if err != nil {
			return 0, 0, s, false
		}
		return w, n, s[idx+1:], true
	}
	w, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, 0, s, false
	}
	return w, 0, s[idx+1:], true
}

// String renders the canonical xsd:duration lexical form.
func (d Duration) String() string {
	var b strings.Builder
	if d.Negative && (d.Months != 0 || d.Seconds != 0 || d.Nanosecond != 0) {
		b.WriteByte('-')
	}
	b.WriteByte('P')
	y, mo := d.Months/12, d.Months%12
	if y != 0 {
		fmt.Fprintf(&b, "%dY", y)
	}
	if mo != 0 {
		fmt.Fprintf(&b, "%dM", mo)
	}
	secs, ns := d.Seconds, d.Nanosecond
	days := secs / 86400
	secs -= days * 86400
	if days != 0 {
		fmt.Fprintf(&b, "%dD", days)
	}
	if secs != 0 || ns != 0 {
		b.WriteByte('T')
		h := secs / 3600
		secs -= h * 3600
		mi := secs / 60
		secs -= mi * 60
		if h != 0 {
			fmt.Fprintf(&b, "%dH", h)
		}
		if mi != 0 {
			fmt.Fprintf(&b, "%dM", mi)
		}
		if secs != 0 || ns != 0 {
			if ns == 0 {
				fmt.Fprintf(&b, "%dS", secs)
			} else {
				s := fmt.Sprintf("%09d", ns)
				s = strings.TrimRight(s, "0")
				fmt.Fprintf(&b, "%d.%sS", secs, s)
			}
		}
	}
	if y == 0 && mo == 0 && days == 0 && secs == 0 && ns == 0 {
		b.WriteString("T0S")
	}
	return b.String()
}

// AddToDateTime implements checked dateTime + duration arithmetic
// (XSD 1.1 Appendix E). Months are applied first against the calendar
// (clamping an overflowing day-of-month to the last valid day, per the
// spec's normalization rule), then seconds/nanoseconds are added as a
// fixed offset. ok is false only when the result's year falls outside
// the int range used by DateTime.Year, which cannot happen in practice.
func AddToDateTime(dt DateTime, d Duration) (DateTime, bool) {
	months := d.Months
	secs := d.Seconds
	ns := d.Nanosecond
	if d.Negative {
		months, secs, ns = -months, -secs, -ns
	}

	totalMonths := (dt.Year*12 + (dt.Month - 1)) + months
	newYear := totalMonths / 12
	newMonth := totalMonths%12 + 1
	if newMonth <= 0 {
		newMonth += 12
		newYear--
	}
	maxDay := daysInMonth(newYear, newMonth)
	newDay := dt.Day
	if newDay > maxDay {
		newDay = maxDay
	}

	base := DateTime{
		Year: newYear, Month: newMonth, Day: newDay,
		Hour: dt.Hour, Minute: dt.Minute, Second: dt.Second, Nanosecond: dt.Nanosecond,
		HasTZ: dt.HasTZ, TZOffsetSeconds: dt.TZOffsetSeconds,
	}
	t := base.toTime().Add(time.Duration(secs)*time.Second + time.Duration(ns)*time.Nanosecond)
	return fromTime(t, dt.HasTZ, dt.TZOffsetSeconds), true
}

// SubDateTimes returns the dayTimeDuration between two instants (b - a),
// defined only when both operands are zoned or both unzoned.
func SubDateTimes(a, b DateTime) (Duration, bool) {
	if a.HasTZ != b.HasTZ {
		return Duration{}, false
	}
	delta := b.toTime().Sub(a.toTime())
	neg := delta < 0
	if neg {
		delta = -delta
	}
	secs := int64(delta / time.Second)
	ns := int(delta % time.Second)
	return Duration{Seconds: secs, Nanosecond: ns, Negative: neg}, true
}

// String renders the canonical xsd:dateTime lexical form.
func (dt DateTime) String() string {
	var tz string
	switch {
	case dt.HasTZ && dt.TZOffsetSeconds == 0:
		tz = "Z"
	case dt.HasTZ:
		sign := "+"
		off := dt.TZOffsetSeconds
		if off < 0 {
			sign, off = "-", -off
		}
		tz = fmt.Sprintf("%s%02d:%02d", sign, off/3600, (off%3600)/60)
	}
	base := fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", dt.Year, dt.Month, dt.Day, dt.Hour, dt.Minute, dt.Second)
	if dt.Nanosecond != 0 {
		frac := strings.TrimRight(fmt.Sprintf("%09d", dt.Nanosecond), "0")
		base += "." + frac
	}
	return base + tz
}

// DateString renders the canonical xsd:date lexical form.
func (dt DateTime) DateString() string {
	s := fmt.Sprintf("%04d-%02d-%02d", dt.Year, dt.Month, dt.Day)
	if !dt.HasTZ {
		return s
	}
	if dt.TZOffsetSeconds == 0 {
		return s + "Z"
	}
	sign := "+"
	off := dt.TZOffsetSeconds
	if off < 0 {
		sign, off = "-", -off
	}
	return fmt.Sprintf("%s%s%02d:%02d", s, sign, off/3600, (off%3600)/60)
}
