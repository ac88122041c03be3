package objectstore

import (
	"testing"
	"time"
)

func TestDatePrefixFormatsYearMonthDay(t *testing.T) {
	ts := time.Date(2024, 3, 7, 15, 4, 5, 0, time.UTC)
	if got := datePrefix(ts); got != "2024/03/07" {
		t.Errorf("datePrefix: got %q", got)
	}
}
