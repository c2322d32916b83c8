package config

import (
	"fmt"
	"strings"
	"time"
)

// SessionConfig governs per-session cart manager lifetimes.
// A session that has been idle longer than TTL is evicted by the janitor.
type SessionConfig struct {
	CookieName      string        `koanf:"cookiename"`
	TTL             time.Duration `koanf:"ttl"`
	CleanupInterval time.Duration `koanf:"cleanupinterval"`
}

// String returns a string representation of the SessionConfig.
func (c *SessionConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Sessions ---\n")
	b.WriteString(fmt.Sprintf("  cookiename: %s\n", c.CookieName))
	b.WriteString(fmt.Sprintf("  ttl: %s\n", c.TTL))
	b.WriteString(fmt.Sprintf("  cleanupinterval: %s\n", c.CleanupInterval))
	return b.String()
}

func (c *SessionConfig) Validate() error {
	if c.CookieName == "" {
		return fmt.Errorf("session cookie name is not configured")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("session TTL is not configured")
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("session cleanup interval is not configured")
	}
	return nil
}
