// Package timeconv converts between wire timestamp formats and a fixed
// offset location, so MySQL DATETIME semantics (naive local time, no zone
// suffix) are interpreted the same way regardless of the process's default
// session zone.
package timeconv

import (
	"time"

	"github.com/fyuneru/boxnet/errors"
)

// LongFormat matches the sync REST layer's last_update query parameter and
// the persisted cursor timestamps: %Y-%m-%d %H:%M:%S%.3f.
const LongFormat = "2006-01-02 15:04:05.000"

// DateTimeFormat matches the relational store's modify_time column: naive,
// second precision, no fractional part.
const DateTimeFormat = "2006-01-02 15:04:05"

// Converter parses and formats timestamps against a single fixed IANA
// location. It never consults the process's local zone.
type Converter struct {
	loc *time.Location
}

// NewConverter resolves tz (an IANA zone name such as "Asia/Shanghai" or the
// literal "UTC") and returns a Converter bound to it.
func NewConverter(tz string) (*Converter, error) {
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", tz)
	}
	return &Converter{loc: loc}, nil
}

// ValidateTimezone reports whether tz resolves to a known IANA location.
func ValidateTimezone(tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return errors.Wrapf(err, "invalid timezone %q", tz)
	}
	return nil
}

// ParseLong parses a last_update-style timestamp in the converter's location.
func (c *Converter) ParseLong(s string) (time.Time, error) {
	t, err := time.ParseInLocation(LongFormat, s, c.loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse timestamp %q", s)
	}
	return t, nil
}

// FormatLong renders t in the converter's location using LongFormat.
func (c *Converter) FormatLong(t time.Time) string {
	return t.In(c.loc).Format(LongFormat)
}

// ParseDateTime parses a relational-store modify_time value in the
// converter's location.
func (c *Converter) ParseDateTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateTimeFormat, s, c.loc)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parse datetime %q", s)
	}
	return t, nil
}

// FormatDateTime renders t in the converter's location using DateTimeFormat.
func (c *Converter) FormatDateTime(t time.Time) string {
	return t.In(c.loc).Format(DateTimeFormat)
}

// Now returns the current time in the converter's location.
func (c *Converter) Now() time.Time {
	return time.Now().In(c.loc)
}
