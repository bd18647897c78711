// Package envflags reads the environment variable surface spec.md §6
// defines for the core: concurrency override, the no-config allowance,
// and color presentation. Skip-token reading lives in internal/selector
// since it's selector-shaped, not a boolean/int flag.
package envflags

import (
	"os"
	"strconv"
	"strings"
)

// NoConcurrency reports whether PREK_NO_CONCURRENCY or, as a fallback,
// PRE_COMMIT_NO_CONCURRENCY is truthy, forcing the scheduler's
// concurrency limit C to 1.
func NoConcurrency() bool {
	return truthy(firstSet("PREK_NO_CONCURRENCY", "PRE_COMMIT_NO_CONCURRENCY"))
}

// AllowNoConfig reports whether PREK_ALLOW_NO_CONFIG or, as a fallback,
// PRE_COMMIT_ALLOW_NO_CONFIG is truthy, suppressing the Workspace
// Discoverer's "no config found" error.
func AllowNoConfig() bool {
	return truthy(firstSet("PREK_ALLOW_NO_CONFIG", "PRE_COMMIT_ALLOW_NO_CONFIG"))
}

// Color is the resolved presentation preference: "auto" (the default,
// detect via isatty), "always", or "never".
type Color int

const (
	ColorAuto Color = iota
	ColorAlways
	ColorNever
)

// PREKColor reads PREK_COLOR, defaulting to ColorAuto.
func PREKColor() Color {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("PREK_COLOR"))) {
	case "always", "force", "1", "true", "yes":
		return ColorAlways
	case "never", "0", "false", "no", "off":
		return ColorNever
	default:
		return ColorAuto
	}
}

func firstSet(names ...string) string {
	for _, n := range names {
		if v, ok := os.LookupEnv(n); ok {
			return v
		}
	}
	return ""
}

func truthy(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v != "0"
}
