// Package station models the raw reading payload as reported by the upstream
// hydrology API, including its sloppy field typing: numeric fields arrive as
// strings, numbers or null depending on the day.
package station

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FlexValue is a reading field that the upstream serves inconsistently as a
// JSON string, number or null. It normalizes to a string: null and absent
// become "", a zero-valued number becomes "0", everything else keeps the
// original text.
type FlexValue string

func (v *FlexValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = FlexValue(s)
		return nil
	}
	// Bare number token. Collapse every zero spelling (0, 0.0, -0) to "0" so
	// the validity predicate sees one canonical absent form.
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		return fmt.Errorf("unsupported value %q: %w", b, err)
	}
	if d.IsZero() {
		*v = "0"
		return nil
	}
	*v = FlexValue(b)
	return nil
}

func (v FlexValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(v))
}

// Decimal parses the value as a decimal number, tolerating thousands
// separators. Returns zero for empty or unparsable values.
func (v FlexValue) Decimal() decimal.Decimal {
	s := strings.ReplaceAll(strings.TrimSpace(string(v)), ",", "")
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Reading is the per-observation payload served by the upstream API.
// Field names follow the upstream wire format.
type Reading struct {
	StationName   string    `json:"station_name,omitempty"`
	RiverName     string    `json:"river_name,omitempty"`
	Level         FlexValue `json:"level1"`
	PoleHeight    FlexValue `json:"price_pole,omitempty"`
	Discharge     FlexValue `json:"dischg,omitempty"`
	AlertLevel    FlexValue `json:"alert_level,omitempty"`
	CriticalLevel FlexValue `json:"critical_level,omitempty"`
	Time          string    `json:"time,omitempty"`
	Date          string    `json:"date,omitempty"`
}

// Usable reports whether the reading carries an actual water level.
// Empty and zero-equivalent levels ("", "0", 0, null, absent) count as no
// reading at all; they trigger fallback lookups, never errors.
func (r Reading) Usable() bool {
	s := strings.TrimSpace(string(r.Level))
	return s != "" && s != "0"
}

// RelativeLevel is the water level above the reference pole, floored at zero.
// An unusable reading yields zero rather than a negative artifact.
func (r Reading) RelativeLevel() decimal.Decimal {
	if !r.Usable() {
		return decimal.Zero
	}
	rel := r.Level.Decimal().Sub(r.PoleHeight.Decimal())
	if rel.IsNegative() {
		return decimal.Zero
	}
	return rel
}

// Decode parses a raw payload into a Reading.
func Decode(raw json.RawMessage) (Reading, error) {
	var r Reading
	if err := json.Unmarshal(raw, &r); err != nil {
		return Reading{}, fmt.Errorf("decode reading: %w", err)
	}
	return r, nil
}
