package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a positive time.Duration written as a Go duration string ("10s", "1m30s").
type Duration struct {
	d time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) *Duration {
	return &Duration{d: d}
}

// Value returns the wrapped duration. A nil Duration is zero.
func (d *Duration) Value() time.Duration {
	if d == nil {
		return 0
	}
	return d.d
}

func (d Duration) String() string {
	return d.d.String()
}

// UnmarshalText parses and validates a duration string. Used by TOML.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		return fmt.Errorf("duration string cannot be empty")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration string %q: %w", s, err)
	}
	if parsed <= 0 {
		return fmt.Errorf("duration must be positive, got %q", s)
	}
	d.d = parsed
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.d.String()), nil
}

// UnmarshalJSON accepts only JSON strings.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration should be a string, got %s", string(data))
	}
	return d.UnmarshalText([]byte(s))
}

// MarshalJSON renders the duration as a JSON string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.d.String())
}

// UnmarshalYAML accepts only scalar string nodes.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode || value.ShortTag() != "!!str" {
		return fmt.Errorf("duration should be a string, got %s", value.Value)
	}
	return d.UnmarshalText([]byte(value.Value))
}
