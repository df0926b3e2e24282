// Package pricing computes slot prices from a venue's base price and its
// modifier rules. Every function here is pure.
package pricing

import (
	"math"
	"time"

	"github.com/Shivanand-hulikatti/futsal-booking/internal/model"
)

// NearRadiusMeters separates the location modifier's near and far bands.
const NearRadiusMeters = 10_000

const earthRadiusMeters = 6371e3

// QuoteInput is everything outside the venue that affects the price.
type QuoteInput struct {
	Date    time.Time
	Start   model.Clock
	Holiday bool
	From    *model.GeoPoint
}

// Quote returns the hourly price for a slot starting at in.Start on in.Date:
// base plus base times the sum of all enabled modifiers, rounded to whole
// currency units.
func Quote(v *model.Venue, in QuoteInput) int64 {
	base := float64(v.Pricing.BasePrice)
	m := v.Pricing.Modifiers

	var frac float64
	if m.TimeOfDay.Enabled {
		frac += timeOfDay(m.TimeOfDay, in.Start.Hour())
	}
	if m.Holiday.Enabled && in.Holiday {
		frac += m.Holiday.Percentage
	}
	if m.Weekend.Enabled {
		if wd := in.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			frac += m.Weekend.Percentage
		}
	}
	if m.Location.Enabled && in.From != nil {
		if Distance(*in.From, v.Location) > NearRadiusMeters {
			frac += m.Location.Far
		} else {
			frac += m.Location.Near
		}
	}
	if m.Rating.Enabled && v.AvgRating != nil {
		frac += ratingAdjustment(*v.AvgRating)
	}

	p := math.Round(base + base*frac)
	if p < 0 {
		return 0
	}
	return int64(p)
}

// PriceFor scales an hourly quote to a booking of the given length.
func PriceFor(hourly int64, minutes int) int64 {
	return int64(math.Round(float64(hourly) * float64(minutes) / 60))
}

func timeOfDay(m model.TimeOfDayModifier, hour int) float64 {
	switch {
	case hour >= 6 && hour < 12:
		return m.Morning
	case hour >= 12 && hour < 18:
		return m.Midday
	case hour >= 18 && hour < 22:
		return m.Evening
	}
	return 0
}

func ratingAdjustment(r float64) float64 {
	switch {
	case r >= 4.5:
		return 0.1
	case r >= 4.0:
		return 0.05
	case r <= 2.5:
		return -0.1
	}
	return 0
}

// Distance is the haversine great-circle distance in meters.
func Distance(a, b model.GeoPoint) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
