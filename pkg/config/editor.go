package config

import (
	"fmt"
	"strings"
	"time"
)

// EditorConfig configures the quantity edit coalescing window. Rapid edits to
// one cart line within the window collapse into a single committed update.
type EditorConfig struct {
	Window time.Duration `koanf:"window"`
}

// String returns a string representation of the EditorConfig.
func (c *EditorConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Quantity Editor ---\n")
	b.WriteString(fmt.Sprintf("  window: %s\n", c.Window))
	return b.String()
}

func (c *EditorConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("editor window is not configured")
	}
	return nil
}
