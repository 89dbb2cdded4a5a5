package markethours

import (
	"testing"
	"time"
)

// 2026-01-27 is an ordinary Tuesday; 2026-01-26 (Republic Day) is a Monday
// holiday; 2026-01-24 is a Saturday.
func ist(day, hour, min int) time.Time {
	return time.Date(2026, time.January, day, hour, min, 0, 0, IST)
}

func TestStatusAtSessionBoundaries(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want Status
	}{
		{"pre-open", ist(27, 9, 5), StatusPreOpen},
		{"open at bell", ist(27, 9, 15), StatusOpen},
		{"mid-session", ist(27, 10, 30), StatusOpen},
		{"last minute", ist(27, 15, 29), StatusOpen},
		{"at close", ist(27, 15, 30), StatusPostMarket},
		{"post-market", ist(27, 15, 45), StatusPostMarket},
		{"evening", ist(27, 18, 0), StatusAfterHours},
		{"early morning", ist(27, 8, 0), StatusAfterHours},
		{"saturday", ist(24, 10, 30), StatusWeekend},
		{"sunday", ist(25, 10, 30), StatusWeekend},
		{"republic day", ist(26, 11, 0), StatusHoliday},
	}
	for _, tc := range cases {
		if got := StatusAt(tc.at); got != tc.want {
			t.Errorf("%s: StatusAt = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsMarketOpenConvertsToIST(t *testing.T) {
	// 05:00 UTC is 10:30 IST.
	utc := time.Date(2026, time.January, 27, 5, 0, 0, 0, time.UTC)
	if !IsMarketOpen(utc) {
		t.Fatal("05:00 UTC on a trading day should be inside the session")
	}
}

func TestShouldStreamData(t *testing.T) {
	if !ShouldStreamData(ist(27, 9, 5)) {
		t.Error("pre-open should stream")
	}
	if !ShouldStreamData(ist(27, 10, 30)) {
		t.Error("open session should stream")
	}
	if ShouldStreamData(ist(27, 16, 0)) {
		t.Error("after close should not stream")
	}
}

func TestNextOpenSkipsWeekendAndHoliday(t *testing.T) {
	// Friday evening: Sat, Sun and Monday's holiday all get skipped.
	got := NextOpen(ist(23, 16, 0))
	want := ist(27, 9, 15)
	if !got.Equal(want) {
		t.Fatalf("NextOpen = %s, want %s", got, want)
	}
}

func TestNextOpenSameDayBeforeBell(t *testing.T) {
	got := NextOpen(ist(27, 8, 0))
	if !got.Equal(ist(27, 9, 15)) {
		t.Fatalf("NextOpen = %s, want today's open", got)
	}
}

func TestTimeUntilClose(t *testing.T) {
	if d := TimeUntilClose(ist(27, 15, 0)); d != 30*time.Minute {
		t.Fatalf("TimeUntilClose = %s, want 30m", d)
	}
	if d := TimeUntilClose(ist(27, 16, 0)); d != 0 {
		t.Fatalf("TimeUntilClose after close = %s, want 0", d)
	}
}

func TestIsTradingDay(t *testing.T) {
	if !IsTradingDay(ist(27, 12, 0)) {
		t.Error("ordinary Tuesday should be a trading day")
	}
	if IsTradingDay(ist(26, 12, 0)) {
		t.Error("Republic Day should not be a trading day")
	}
	if IsTradingDay(ist(24, 12, 0)) {
		t.Error("Saturday should not be a trading day")
	}
}
