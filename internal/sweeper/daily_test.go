package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeReminder struct {
	mu    sync.Mutex
	dates []string
	err   error
}

func (f *fakeReminder) SendReminders(_ context.Context, date string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, date)
	return 3, f.err
}

func TestDailyNext(t *testing.T) {
	kathmandu := time.FixedZone("NPT", 5*3600+45*60)
	d := &Daily{Hour: 10, Location: kathmandu}
	cases := []struct {
		now, want time.Time
	}{
		{time.Date(2026, 3, 2, 8, 0, 0, 0, kathmandu), time.Date(2026, 3, 2, 10, 0, 0, 0, kathmandu)},
		{time.Date(2026, 3, 2, 10, 0, 0, 0, kathmandu), time.Date(2026, 3, 3, 10, 0, 0, 0, kathmandu)},
		{time.Date(2026, 3, 31, 23, 0, 0, 0, kathmandu), time.Date(2026, 4, 1, 10, 0, 0, 0, kathmandu)},
		// 05:00 UTC is 10:45 in Kathmandu, past today's run.
		{time.Date(2026, 3, 2, 5, 0, 0, 0, time.UTC), time.Date(2026, 3, 3, 10, 0, 0, 0, kathmandu)},
	}
	for _, tc := range cases {
		if got := d.Next(tc.now); !got.Equal(tc.want) {
			t.Errorf("Next(%v) = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestDailyRemindsForTomorrow(t *testing.T) {
	f := &fakeReminder{}
	now := time.Date(2026, 3, 31, 10, 0, 0, 0, time.UTC)
	d := &Daily{Reminder: f, Hour: 10, Log: quiet(), Now: func() time.Time { return now }}

	if n := d.RunOnce(context.Background()); n != 3 {
		t.Fatalf("reminded %d, want 3", n)
	}
	f.err = errors.New("db down")
	d.RunOnce(context.Background())
	if len(f.dates) != 2 || f.dates[0] != "2026-04-01" {
		t.Fatalf("dates = %v, want 2026-04-01", f.dates)
	}
}

func TestDailyRunStopsOnCancel(t *testing.T) {
	f := &fakeReminder{}
	d := &Daily{Reminder: f, Hour: 10, Log: quiet()}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := d.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run returned %v", err)
	}
}
