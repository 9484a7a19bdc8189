package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envValue parses the trimmed value of key. Unset, unparsable or rejected
// values yield def.
func envValue[T any](key string, def T, parse func(string) (T, error), accept func(T) bool) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil || (accept != nil && !accept(v)) {
		return def
	}
	return v
}

func positive[T int | int32 | int64 | time.Duration](v T) bool { return v > 0 }

func nonNegative[T int | int32 | int64](v T) bool { return v >= 0 }

func parseInt32(s string) (int32, error) {
	n, err := strconv.ParseInt(s, 10, 32)
	return int32(n), err
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	return envValue(key, def, func(s string) (string, error) { return s, nil }, nil)
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
	return envValue(key, def, strconv.ParseBool, nil)
}

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
	return envValue(key, def, strconv.Atoi, positive[int])
}

// EnvIntAllowZero reads a non-negative int env var with a default.
func EnvIntAllowZero(key string, def int) int {
	return envValue(key, def, strconv.Atoi, nonNegative[int])
}

// EnvInt32 reads a non-negative int32 env var with a default.
func EnvInt32(key string, def int32) int32 {
	return envValue(key, def, parseInt32, nonNegative[int32])
}

// EnvInt64 reads a positive int64 env var with a default.
func EnvInt64(key string, def int64) int64 {
	return envValue(key, def, parseInt64, positive[int64])
}

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
	return envValue(key, def, time.ParseDuration, positive[time.Duration])
}

// EnvCSV reads a comma separated list, dropping empty items.
func EnvCSV(key string, def []string) []string {
	return envValue(key, def, func(s string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}, func(v []string) bool { return len(v) > 0 })
}
