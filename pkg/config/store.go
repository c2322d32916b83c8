package config

import (
	"fmt"
	"strings"
)

// StoreConfig configures the on-disk location of anonymous session carts.
// Each anonymous session persists its cart as a single JSON document under
// this directory.
type StoreConfig struct {
	Dir string `koanf:"dir"`
}

// String returns a string representation of the StoreConfig.
func (c *StoreConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Local Cart Store ---\n")
	b.WriteString(fmt.Sprintf("  dir: %s\n", c.Dir))
	return b.String()
}

func (c *StoreConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("store directory is not configured")
	}
	return nil
}
