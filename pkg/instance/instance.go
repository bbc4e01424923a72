package instance

import "os"

const defaultID = "local"

// GetID returns the process instance identifier used in logs and lock ownership.
func GetID() string {
	for _, key := range []string{"SHIPWALLET_INSTANCE_ID", "DYNO", "WORKER_ID"} {
		if id := os.Getenv(key); id != "" {
			return id
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
