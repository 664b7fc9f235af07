package util

import (
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Env is a thin wrapper around a koanf instance loaded once from the process
// environment. It is the only configuration surface this module exposes --
// there is no file or remote config provider.
type Env struct {
	ko *koanf.Koanf
}

// LoadEnv reads the process environment into a koanf instance. Keys are
// taken verbatim (no prefix stripping, no case folding) so that names like
// MONITOR_START_137 round-trip exactly as documented.
func LoadEnv() (*Env, error) {
	ko := koanf.New(".")
	if err := ko.Load(env.ProviderWithValue("", ".", func(key, value string) (string, interface{}) {
		return key, value
	}), nil); err != nil {
		return nil, err
	}
	return &Env{ko: ko}, nil
}

func (e *Env) String(key string) (string, bool) {
	v := e.ko.String(key)
	return v, v != ""
}

// MustString returns the named value or def when unset.
func (e *Env) MustString(key, def string) string {
	v, ok := e.String(key)
	if !ok {
		return def
	}
	return v
}

func (e *Env) Float64(key string, def float64) float64 {
	v := e.ko.String(key)
	if v == "" {
		return def
	}
	f, err := parseFloat(v)
	if err != nil {
		return def
	}
	return f
}

func (e *Env) Duration(key string, defMs int64) time.Duration {
	v := e.ko.String(key)
	if v == "" {
		return time.Duration(defMs) * time.Millisecond
	}
	ms, err := parseInt(v)
	if err != nil {
		return time.Duration(defMs) * time.Millisecond
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Env) Int(key string, def int) int {
	v := e.ko.String(key)
	if v == "" {
		return def
	}
	n, err := parseInt(v)
	if err != nil {
		return def
	}
	return int(n)
}

// StringSlice reads a comma-separated value.
func (e *Env) StringSlice(key string) []string {
	v := e.ko.String(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
