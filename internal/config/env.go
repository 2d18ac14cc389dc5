package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Env reads typed settings from the environment. KEY may instead be supplied through a
// file named by KEY_FILE, which suits container secrets. A malformed value leaves the
// default in place and is reported by Err.
type Env struct {
	lookup func(string) (string, bool)
	errs   []error
}

// NewEnv returns an Env backed by the process environment
func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

func (e *Env) value(key string) (string, bool) {
	if val, ok := e.lookup(key); ok && val != "" {
		return val, true
	}
	path, ok := e.lookup(key + "_FILE")
	if !ok || path == "" {
		return "", false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s_FILE: %w", key, err))
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

func (e *Env) invalid(key, val string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, val, err))
}

// String returns the value of key, or def when unset
func (e *Env) String(key, def string) string {
	if val, ok := e.value(key); ok {
		return val
	}
	return def
}

// Int returns the integer value of key, or def when unset or malformed
func (e *Env) Int(key string, def int) int {
	val, ok := e.value(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		e.invalid(key, val, err)
		return def
	}
	return i
}

// Bool returns the boolean value of key, or def when unset or malformed
func (e *Env) Bool(key string, def bool) bool {
	val, ok := e.value(key)
	if !ok {
		return def
	}
	b, err := ParseBool(val)
	if err != nil {
		e.invalid(key, val, err)
		return def
	}
	return b
}

// Duration returns the duration value of key, or def when unset or malformed
func (e *Env) Duration(key string, def time.Duration) time.Duration {
	val, ok := e.value(key)
	if !ok {
		return def
	}
	d, err := ParseDuration(val)
	if err != nil {
		e.invalid(key, val, err)
		return def
	}
	return d
}

// List returns the comma separated, lower-cased entries of key, or def when unset
func (e *Env) List(key string, def []string) []string {
	if val, ok := e.value(key); ok {
		return splitList(val)
	}
	return def
}

// Err reports every malformed value read so far
func (e *Env) Err() error {
	return errors.Join(e.errs...)
}

// ParseBool accepts 1, t, true, y, yes and 0, f, false, n, no in any case
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// ParseDuration behaves like time.ParseDuration and also accepts whole days such as "30d"
func ParseDuration(s string) (time.Duration, error) {
	lower := strings.ToLower(strings.TrimSpace(s))
	if days, ok := strings.CutSuffix(lower, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number of days %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(lower)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
