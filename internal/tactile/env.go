package tactile

import (
	"runtime"
	"strings"
)

// envKeyEqual compares variable names. Windows names are case-insensitive,
// so PATH and Path are the same variable there.
func envKeyEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

func envIndex(env []string, key string) int {
	for i, kv := range env {
		if k, _, ok := strings.Cut(kv, "="); ok && envKeyEqual(k, key) {
			return i
		}
	}
	return -1
}

// MergeEnv returns base with every KEY=VALUE of overrides applied in order.
// Entries without "=" are ignored and base is left untouched.
func MergeEnv(base []string, overrides ...string) []string {
	out := append([]string(nil), base...)
	for _, kv := range overrides {
		key, _, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if i := envIndex(out, key); i >= 0 {
			out[i] = kv
		} else {
			out = append(out, kv)
		}
	}
	return out
}

// LookupEnv returns the value of key in env.
func LookupEnv(env []string, key string) (string, bool) {
	if i := envIndex(env, key); i >= 0 {
		_, v, _ := strings.Cut(env[i], "=")
		return v, true
	}
	return "", false
}
