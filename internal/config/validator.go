package config

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateInterval validates a flush interval in milliseconds
func (v *Validator) ValidateInterval(ms int) error {
	if ms <= 0 {
		return fmt.Errorf("flush interval must be positive, got %dms", ms)
	}
	return nil
}

// ValidateLogLevel validates a zerolog level name
func (v *Validator) ValidateLogLevel(level string) error {
	if level == "" {
		return nil // defaults to info
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(level)); err != nil {
		return fmt.Errorf("invalid log level %q", level)
	}
	return nil
}

// ValidateListenAddr validates a host:port listen address
func (v *Validator) ValidateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}

	if host != "" && host != "localhost" && net.ParseIP(host) == nil {
		return fmt.Errorf("invalid listen host %q", host)
	}

	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("invalid listen port %q", port)
	}

	return nil
}

// ParseInterval parses a flush interval argument given in milliseconds.
// Anything that is not a positive integer, or too large for a
// time.Duration, yields the default interval and ok=false so the caller can
// warn.
func ParseInterval(arg string) (interval time.Duration, ok bool) {
	ms, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || ms <= 0 || ms > maxIntervalMS {
		return DefaultFlushIntervalMS * time.Millisecond, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

const maxIntervalMS = math.MaxInt64 / int64(time.Millisecond)
