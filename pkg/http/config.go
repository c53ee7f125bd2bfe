package http

import "time"

// Config holds HTTP server configuration
type Config struct {
	// Port is the port to listen on
	Port int

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// MaxUploadBytes caps the size of an uploaded audio body
	MaxUploadBytes int64

	// EnableMetrics controls whether the /metrics endpoint is registered
	EnableMetrics bool
}

// DefaultConfig returns the default HTTP server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    10 * time.Minute,
		WriteTimeout:   10 * time.Minute,
		MaxUploadBytes: 100 << 20,
		EnableMetrics:  true,
	}
}
