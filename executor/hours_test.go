package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckTradingWindow(t *testing.T) {
	// 2024-03-15 is a Friday, 2024-03-16 a Saturday.
	et := func(day, hour, min int) time.Time {
		return time.Date(2024, time.March, day, hour, min, 0, 0, marketTZ)
	}

	tests := []struct {
		name       string
		now        time.Time
		avoidFirst int
		avoidLast  int
		wantReason string
	}{
		{"saturday", et(16, 12, 0), 0, 0, "weekend"},
		{"sunday", et(17, 12, 0), 0, 0, "weekend"},
		{"before open", et(15, 9, 0), 0, 0, "outside regular session"},
		{"at open", et(15, 9, 30), 0, 0, ""},
		{"midday", et(15, 12, 30), 0, 0, ""},
		{"at close", et(15, 16, 0), 0, 0, "outside regular session"},
		{"after close", et(15, 18, 0), 0, 0, "outside regular session"},
		{"inside avoid-first window", et(15, 9, 40), 15, 0, "first 15 minutes"},
		{"just past avoid-first window", et(15, 9, 45), 15, 0, ""},
		{"inside avoid-last window", et(15, 15, 50), 0, 15, "last 15 minutes"},
		{"just before avoid-last window", et(15, 15, 44), 0, 15, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := checkTradingWindow(tt.now, tt.avoidFirst, tt.avoidLast)
			if tt.wantReason == "" {
				assert.Empty(t, reason)
			} else {
				assert.Contains(t, reason, tt.wantReason)
			}
		})
	}
}

func TestCheckTradingWindow_ConvertsFromOtherZones(t *testing.T) {
	// 17:30 UTC on a Friday in March (EDT) is 13:30 ET, mid-session.
	now := time.Date(2024, time.March, 15, 17, 30, 0, 0, time.UTC)
	assert.Empty(t, checkTradingWindow(now, 0, 0))
}
