// Package bucket derives cache bucket keys from timestamps.
//
// All derivations use a fixed UTC+7 reference offset because the upstream
// hydrology API reports readings in that offset regardless of where the
// collector or a reader runs. The hour-00 reassignment (a reading stamped
// at midnight belongs to hour 24 of the previous calendar day) is an
// invariant of key derivation, not a caller concern.
package bucket

import (
	"errors"
	"fmt"
	"time"
)

// Reference is the fixed UTC+7 offset used for every bucket derivation.
var Reference = time.FixedZone("UTC+7", 7*60*60)

// Key widths. Keys are fixed-width, zero-padded numeric strings, so
// lexicographic comparison within one width is chronological comparison.
const (
	DailyWidth  = 8  // YYYYMMDD
	HourlyWidth = 10 // YYYYMMDDHH
)

// ErrInvalidKey is returned for bucket keys that are not exactly 8 or 10 digits.
var ErrInvalidKey = errors.New("invalid bucket key")

// HourlyKey returns the hourly bucket key (YYYYMMDDHH) for t in the
// reference timezone. Hour 00 is reassigned to hour 24 of the previous
// calendar day, matching the upstream convention for "end of day".
func HourlyKey(t time.Time) string {
	t = t.In(Reference)
	if t.Hour() == 0 {
		prev := t.AddDate(0, 0, -1)
		return prev.Format("20060102") + "24"
	}
	return t.Format("2006010215")
}

// DailyKey returns the daily bucket key (YYYYMMDD) for t in the reference
// timezone. No hour reassignment applies to daily keys.
func DailyKey(t time.Time) string {
	return t.In(Reference).Format("20060102")
}

// APIDateParam formats t as DD-MM-YYYY in the reference timezone, the date
// format the upstream API expects. DailyKey and APIDateParam always agree on
// the calendar day for the same input.
func APIDateParam(t time.Time) string {
	return t.In(Reference).Format("02-01-2006")
}

// HourSelector returns the upstream request parameters for the hourly bucket
// containing t: the DD-MM-YYYY date and the two-digit hour selector. Hour 00
// maps to selector "24" against the previous calendar day, mirroring HourlyKey.
func HourSelector(t time.Time) (date string, selector string) {
	t = t.In(Reference)
	if t.Hour() == 0 {
		return APIDateParam(t.AddDate(0, 0, -1)), "24"
	}
	return APIDateParam(t), fmt.Sprintf("%02d", t.Hour())
}

// ValidateKey rejects anything that is not exactly 8 digits (daily) or
// 10 digits (hourly). Called at every boundary before storage is touched.
func ValidateKey(key string) error {
	if len(key) != DailyWidth && len(key) != HourlyWidth {
		return fmt.Errorf("%w: %q must be %d digits (daily) or %d digits (hourly)",
			ErrInvalidKey, key, DailyWidth, HourlyWidth)
	}
	for _, c := range key {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidKey, key)
		}
	}
	return nil
}

// NearMidnight reports whether t falls within the first 30 minutes past
// midnight in the reference timezone. At that moment the freshest real
// observation for "today" is still yesterday's hour-24 reading.
func NearMidnight(t time.Time) bool {
	t = t.In(Reference)
	return t.Hour() == 0 && t.Minute() < 30
}
