package circuitbreaker

import (
	"os"
	"strconv"
	"time"
)

// CapabilityConfig returns the breaker configuration used for capability provider
// calls, with CB_CAPABILITY_* environment overrides.
func CapabilityConfig() Config {
	c := DefaultConfig()
	c.MaxRequests = getEnvUint32("CB_CAPABILITY_MAX_REQUESTS", c.MaxRequests)
	c.Interval = getEnvDuration("CB_CAPABILITY_INTERVAL", c.Interval)
	c.Timeout = getEnvDuration("CB_CAPABILITY_TIMEOUT", c.Timeout)
	c.FailureThreshold = getEnvUint32("CB_CAPABILITY_FAILURE_THRESHOLD", c.FailureThreshold)
	c.SuccessThreshold = getEnvUint32("CB_CAPABILITY_SUCCESS_THRESHOLD", c.SuccessThreshold)
	return c
}

func getEnvUint32(key string, defaultValue uint32) uint32 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseUint(val, 10, 32); err == nil {
			return uint32(parsed)
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultValue
}
