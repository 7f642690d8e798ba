package authapi

import (
	"os"
	"strconv"
	"strings"
)

// Config controls auth API behavior.
type Config struct {
	MaxBodyBytes int64
}

// LoadConfigFromEnv loads auth API config from environment variables with
// safe defaults.
//
// Optional:
//   - WARDEN_AUTH_MAX_BODY_BYTES
func LoadConfigFromEnv() Config {
	return Config{
		MaxBodyBytes: envInt64("WARDEN_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
	}
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
