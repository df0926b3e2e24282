package sweeper

import (
	"context"
	"log/slog"
	"time"
)

// Reminder sends the reminders for bookings on date (YYYY-MM-DD).
type Reminder interface {
	SendReminders(ctx context.Context, date string) (int, error)
}

// Daily runs Reminder once a day at Hour, for the following day.
type Daily struct {
	Reminder Reminder
	Hour     int
	Location *time.Location
	Log      *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Daily) now() time.Time {
	if d.Now != nil {
		return d.Now().In(d.loc())
	}
	return time.Now().In(d.loc())
}

func (d *Daily) loc() *time.Location {
	if d.Location == nil {
		return time.UTC
	}
	return d.Location
}

// Next returns the first run time strictly after t.
func (d *Daily) Next(t time.Time) time.Time {
	t = t.In(d.loc())
	run := time.Date(t.Year(), t.Month(), t.Day(), d.Hour, 0, 0, 0, d.loc())
	if !run.After(t) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

// Run waits for each run time and reminds until ctx is done.
func (d *Daily) Run(ctx context.Context) error {
	for {
		now := d.now()
		t := time.NewTimer(d.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce sends the reminders for the day after now. Errors are logged.
func (d *Daily) RunOnce(ctx context.Context) int {
	date := d.now().AddDate(0, 0, 1).Format("2006-01-02")
	n, err := d.Reminder.SendReminders(ctx, date)
	if err != nil {
		d.Log.Error("reminders: pass failed", "date", date, "err", err, "sent", n)
		return n
	}
	d.Log.Info("reminders: pass done", "date", date, "count", n)
	return n
}
