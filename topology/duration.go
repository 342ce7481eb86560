package topology

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sarchlab/netsim/timing"
)

// Duration is a simulated time written either as a Go duration string such
// as "2ms" or "6500ns", or as a number of seconds.
type Duration timing.VTimeInSec

// Seconds returns the duration as simulated time.
func (d Duration) Seconds() timing.VTimeInSec {
	return timing.VTimeInSec(d)
}

// ParseDuration reads a Go duration string or a number of seconds.
func ParseDuration(s string) (Duration, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(v), nil
	}

	td, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}

	return Duration(timing.FromDuration(td)), nil
}

// String prints whole nanosecond durations in Go notation and anything else
// in seconds.
func (d Duration) String() string {
	ns := float64(d) * 1e9
	if ns == float64(int64(ns)) {
		td := time.Duration(int64(ns))
		if timing.FromDuration(td) == timing.VTimeInSec(d) {
			return td.String()
		}
	}

	return strconv.FormatFloat(float64(d), 'g', -1, 64)
}

// UnmarshalYAML accepts strings and numbers.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}

	parsed, err := ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}

	*d = parsed

	return nil
}

// MarshalYAML writes the duration in Go notation when possible.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalJSON accepts strings and numbers.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseDuration(s)
		if err != nil {
			return err
		}

		*d = parsed

		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("duration must be a string or a number: %w", err)
	}

	*d = Duration(v)

	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}
