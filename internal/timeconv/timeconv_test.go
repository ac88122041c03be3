package timeconv

import "testing"

func TestConverterRoundTrip(t *testing.T) {
	c, err := NewConverter("UTC")
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}

	ts, err := c.ParseLong("2026-07-31 10:20:30.500")
	if err != nil {
		t.Fatalf("ParseLong: %v", err)
	}
	if got := c.FormatLong(ts); got != "2026-07-31 10:20:30.500" {
		t.Errorf("FormatLong round-trip = %q", got)
	}

	dt, err := c.ParseDateTime("2026-07-31 10:20:30")
	if err != nil {
		t.Fatalf("ParseDateTime: %v", err)
	}
	if got := c.FormatDateTime(dt); got != "2026-07-31 10:20:30" {
		t.Errorf("FormatDateTime round-trip = %q", got)
	}
}

func TestNewConverterDefaultsToUTC(t *testing.T) {
	c, err := NewConverter("")
	if err != nil {
		t.Fatalf("NewConverter: %v", err)
	}
	if c.loc.String() != "UTC" {
		t.Errorf("expected UTC, got %s", c.loc.String())
	}
}

func TestValidateTimezone(t *testing.T) {
	if err := ValidateTimezone("Asia/Shanghai"); err != nil {
		t.Errorf("expected valid timezone, got %v", err)
	}
	if err := ValidateTimezone("Not/A_Zone"); err == nil {
		t.Error("expected error for invalid timezone")
	}
}
