package utils

import (
	"os"
	"strconv"
	"strings"
)

// EnvStr reads a string env var with a default fallback.
func EnvStr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvInt reads an int env var with a default fallback.
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// Mask hides the middle of a credential for diagnostics output.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return v[:1] + "***" + v[len(v)-1:]
	}
	return v[:4] + "***" + v[len(v)-4:]
}
