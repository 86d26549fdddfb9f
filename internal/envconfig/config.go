// Package envconfig reads generator settings from the environment.
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/fwessels/primdb/internal/emit"
)

// LogLevel returns the log level, configurable via PRIMDB_DEBUG.
// Values: 0/false = INFO (default), 1/true = DEBUG.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("PRIMDB_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

var (
	// MaxLines bounds the lines of one emitted string literal.
	MaxLines = Uint("PRIMDB_MAX_LINES", emit.MaxLines)
	// MaxCharacters bounds the characters of one emitted string literal.
	MaxCharacters = Uint("PRIMDB_MAX_CHARS", emit.MaxCharacters)
)

// Limits returns the segment bounds configured in the environment.
func Limits() emit.Limits {
	return emit.Limits{MaxLines: int(MaxLines()), MaxCharacters: int(MaxCharacters())}
}

// Uint returns a getter for an unsigned setting with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil || n == 0 {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"PRIMDB_DEBUG":     {"PRIMDB_DEBUG", LogLevel(), "Show additional debug information (e.g. PRIMDB_DEBUG=1)"},
		"PRIMDB_MAX_LINES": {"PRIMDB_MAX_LINES", MaxLines(), "Maximum lines per string literal segment (default 200)"},
		"PRIMDB_MAX_CHARS": {"PRIMDB_MAX_CHARS", MaxCharacters(), "Maximum characters per string literal segment (default 16350)"},
	}
}

// Values returns the current settings as strings.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = strings.TrimSpace(fmtValue(v.Value))
	}
	return vals
}

func fmtValue(v any) string {
	switch v := v.(type) {
	case slog.Level:
		return v.String()
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	default:
		return ""
	}
}

// Var returns an environment variable stripped of surrounding quotes and
// spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
