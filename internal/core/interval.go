package core

import "fmt"

// Interval is the period of a bar, in seconds. Intervals are ordered by
// length, so the smallest interval in a data set drives matching and the
// largest drives the mark-to-market window.
type Interval int64

const (
	IntervalNone Interval = 0
	Interval1m   Interval = 60
	Interval3m   Interval = 180
	Interval5m   Interval = 300
	Interval15m  Interval = 900
	Interval30m  Interval = 1800
	Interval1h   Interval = 3600
	Interval2h   Interval = 7200
	Interval4h   Interval = 14400
	IntervalDay  Interval = 86400
	IntervalWeek Interval = 604800
)

var intervalTags = map[Interval]string{
	Interval1m:   "1m",
	Interval3m:   "3m",
	Interval5m:   "5m",
	Interval15m:  "15m",
	Interval30m:  "30m",
	Interval1h:   "1h",
	Interval2h:   "2h",
	Interval4h:   "4h",
	IntervalDay:  "1d",
	IntervalWeek: "1w",
}

// Seconds returns the interval length in seconds.
func (i Interval) Seconds() int64 { return int64(i) }

func (i Interval) String() string {
	if tag, ok := intervalTags[i]; ok {
		return tag
	}
	return fmt.Sprintf("%ds", int64(i))
}

// ParseInterval converts a bar data "ktype" tag into an Interval.
func ParseInterval(tag string) (Interval, error) {
	for iv, t := range intervalTags {
		if t == tag {
			return iv, nil
		}
	}
	return IntervalNone, fmt.Errorf("unknown interval tag %q", tag)
}

// MinInterval returns the smallest interval in the set, IntervalNone when the
// set is empty.
func MinInterval(intervals []Interval) Interval {
	var min Interval
	for _, iv := range intervals {
		if min == IntervalNone || iv < min {
			min = iv
		}
	}
	return min
}

// MaxInterval returns the largest interval in the set.
func MaxInterval(intervals []Interval) Interval {
	var max Interval
	for _, iv := range intervals {
		if iv > max {
			max = iv
		}
	}
	return max
}
