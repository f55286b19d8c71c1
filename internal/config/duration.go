package config

import (
	"fmt"
	"strings"
	"time"
)

// Time-valued fields in the file are Go duration strings ("90s", "5m").
// Parsing is shared between Validate and the runtime mapping in the app
// layer; path names the field in error messages.

// Duration parses the field at path. An empty string means unset and
// yields zero; negative values are rejected outright.
func Duration(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("config %s: bad duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config %s: duration %q is negative", path, raw)
	}
	return d, nil
}

// DurationOr is Duration with a fallback for unset fields.
func DurationOr(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := Duration(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
