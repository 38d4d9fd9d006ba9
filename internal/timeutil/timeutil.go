// Package timeutil keeps instants in UTC and converts them to Barcelona
// local time only for presentation.
package timeutil

import (
	"fmt"
	"time"
)

// Madrid is the presentation timezone of every transport mode served
var Madrid *time.Location

func init() {
	var err error
	Madrid, err = time.LoadLocation("Europe/Madrid")
	if err != nil {
		panic(fmt.Errorf("failed to load Europe/Madrid timezone: %w", err))
	}
}

// FromEpochMillis converts an upstream millisecond timestamp to UTC.
// Zero or negative values mean "not set".
func FromEpochMillis(ms int64) *time.Time {
	if ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

// FromEpochSeconds converts an upstream second timestamp to UTC
func FromEpochSeconds(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// InMadrid converts t to local Barcelona time
func InMadrid(t time.Time) time.Time {
	return t.In(Madrid)
}

// ClockTime formats an epoch second as HH:MM in Barcelona
func ClockTime(epochSeconds int64) string {
	return time.Unix(epochSeconds, 0).In(Madrid).Format("15:04")
}

// Bucket classifies how far away an arrival is
type Bucket string

const (
	BucketNow     Bucket = "now"
	BucketMinutes Bucket = "minutes"
	BucketClock   Bucket = "clock"
)

// Remaining describes the time left until an arrival
type Remaining struct {
	Bucket  Bucket `json:"bucket"`
	Minutes int    `json:"minutes"`
	Clock   string `json:"clock"`
}

// RemainingUntil buckets the time between now and an arrival given in
// epoch seconds: under a minute (or already past) is Now, under an hour is
// whole Minutes, anything later is shown as a Madrid clock time.
func RemainingUntil(now time.Time, arrivalEpoch int64) Remaining {
	left := time.Unix(arrivalEpoch, 0).Sub(now)
	r := Remaining{Clock: ClockTime(arrivalEpoch)}

	switch {
	case left < time.Minute:
		r.Bucket = BucketNow
	case left < time.Hour:
		r.Bucket = BucketMinutes
		r.Minutes = int(left / time.Minute)
	default:
		r.Bucket = BucketClock
		r.Minutes = int(left / time.Minute)
	}
	return r
}
