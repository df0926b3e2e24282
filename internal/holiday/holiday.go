// Package holiday answers "is this date a public holiday".
package holiday

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// Oracle reports whether a calendar date is a holiday.
type Oracle interface {
	IsHoliday(ctx context.Context, date time.Time) (bool, error)
}

// Static is a fixed set of YYYY-MM-DD dates.
type Static map[string]struct{}

// NewStatic builds a Static oracle from date strings. Invalid entries are
// rejected so a typo in configuration does not silently disable a holiday.
func NewStatic(dates []string) (Static, error) {
	s := make(Static, len(dates))
	for _, d := range dates {
		if d == "" {
			continue
		}
		if _, err := model.ParseDate(d); err != nil {
			return nil, err
		}
		s[d] = struct{}{}
	}
	return s, nil
}

func (s Static) IsHoliday(_ context.Context, date time.Time) (bool, error) {
	_, ok := s[date.Format(model.DateLayout)]
	return ok, nil
}

// Chain reports a holiday if any oracle does. The first error is returned
// only when no oracle said yes.
type Chain []Oracle

func (c Chain) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	var firstErr error
	for _, o := range c {
		ok, err := o.IsHoliday(ctx, date)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

type yearEntry struct {
	dates     map[string]struct{}
	fetchedAt time.Time
}

// Calendar fetches a year's holidays from an HTTP endpoint
// (GET {base}?year=YYYY returning a JSON array of YYYY-MM-DD strings) and
// caches each year for TTL. Concurrent misses for the same year share one
// request.
type Calendar struct {
	base string
	ttl  time.Duration
	hc   *http.Client
	now  func() time.Time

	mu    sync.RWMutex
	years map[int]yearEntry
	group singleflight.Group
}

// NewCalendar constructs a Calendar client.
func NewCalendar(baseURL string, ttl time.Duration) *Calendar {
	return &Calendar{
		base:  baseURL,
		ttl:   ttl,
		hc:    &http.Client{Timeout: 5 * time.Second},
		now:   time.Now,
		years: make(map[int]yearEntry),
	}
}

func (c *Calendar) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	dates, err := c.year(ctx, date.Year())
	if err != nil {
		return false, err
	}
	_, ok := dates[date.Format(model.DateLayout)]
	return ok, nil
}

func (c *Calendar) year(ctx context.Context, y int) (map[string]struct{}, error) {
	c.mu.RLock()
	e, ok := c.years[y]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.dates, nil
	}

	v, err, _ := c.group.Do(strconv.Itoa(y), func() (any, error) {
		dates, err := c.fetch(ctx, y)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.years[y] = yearEntry{dates: dates, fetchedAt: c.now()}
		c.mu.Unlock()
		return dates, nil
	})
	if err != nil {
		// A stale year is better than none.
		if ok {
			return e.dates, nil
		}
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

func (c *Calendar) fetch(ctx context.Context, y int) (map[string]struct{}, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, fmt.Errorf("holiday api url: %w", err)
	}
	q := u.Query()
	q.Set("year", strconv.Itoa(y))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch holidays %d: %w", y, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read holidays %d: %w", y, err)
	}
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch holidays %d: status=%d", y, res.StatusCode)
	}

	var list []string
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("decode holidays %d: %w", y, err)
	}
	dates := make(map[string]struct{}, len(list))
	for _, d := range list {
		dates[d] = struct{}{}
	}
	return dates, nil
}
