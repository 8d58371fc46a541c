package assign

import (
	"fmt"
	"time"
)

// TimeoutConfig holds the engine deadlines, in minutes as configured.
type TimeoutConfig struct {
	ProviderResponseMinutes int `json:"provider_response_minutes"`
	AdminEscalationMinutes  int `json:"admin_escalation_minutes"`
	AutoCancelMinutes       int `json:"auto_cancel_minutes"`
}

// SetDefaults fills unset timeouts.
func (c *TimeoutConfig) SetDefaults() {
	if c.ProviderResponseMinutes == 0 {
		c.ProviderResponseMinutes = 15
	}
	if c.AdminEscalationMinutes == 0 {
		c.AdminEscalationMinutes = 60
	}
	if c.AutoCancelMinutes == 0 {
		c.AutoCancelMinutes = 240
	}
}

// Validate rejects timeouts outside their documented ranges. Values are
// never clamped.
func (c TimeoutConfig) Validate() error {
	if c.ProviderResponseMinutes < 1 || c.ProviderResponseMinutes > 120 {
		return fmt.Errorf("provider_response_minutes must be between 1 and 120, got %d", c.ProviderResponseMinutes)
	}
	if c.AdminEscalationMinutes < 30 || c.AdminEscalationMinutes > 1440 {
		return fmt.Errorf("admin_escalation_minutes must be between 30 and 1440, got %d", c.AdminEscalationMinutes)
	}
	if c.AutoCancelMinutes < 60 || c.AutoCancelMinutes > 2880 {
		return fmt.Errorf("auto_cancel_minutes must be between 60 and 2880, got %d", c.AutoCancelMinutes)
	}
	if c.AdminEscalationMinutes >= c.AutoCancelMinutes {
		return fmt.Errorf("admin_escalation_minutes (%d) must be lower than auto_cancel_minutes (%d)", c.AdminEscalationMinutes, c.AutoCancelMinutes)
	}
	return nil
}

// AutomaticConfig holds the automatic-processing bounds.
type AutomaticConfig struct {
	AssignmentTimeoutMinutes int `json:"assignment_timeout_minutes"`
	MaxProvidersContacted    int `json:"max_providers_contacted"`
}

// SetDefaults fills unset bounds.
func (c *AutomaticConfig) SetDefaults() {
	if c.AssignmentTimeoutMinutes == 0 {
		c.AssignmentTimeoutMinutes = 5
	}
	if c.MaxProvidersContacted == 0 {
		c.MaxProvidersContacted = 3
	}
}

// Validate rejects values outside their documented ranges.
func (c AutomaticConfig) Validate() error {
	if c.AssignmentTimeoutMinutes < 1 || c.AssignmentTimeoutMinutes > 60 {
		return fmt.Errorf("assignment_timeout_minutes must be between 1 and 60, got %d", c.AssignmentTimeoutMinutes)
	}
	if c.MaxProvidersContacted < 1 || c.MaxProvidersContacted > 10 {
		return fmt.Errorf("max_providers_contacted must be between 1 and 10, got %d", c.MaxProvidersContacted)
	}
	return nil
}

// Options is the validated, immutable snapshot injected into the manager.
// Deadlines are concrete durations so tests can shrink them freely; a
// snapshot is bound to a request worker at creation time and configuration
// changes only apply to requests created afterwards.
type Options struct {
	ProviderResponseTimeout time.Duration
	AdminEscalationTimeout  time.Duration
	AutoCancelTimeout       time.Duration
	AssignmentTimeout       time.Duration
	MaxProvidersContacted   int
}

// OptionsFrom converts validated configuration sections into Options.
func OptionsFrom(t TimeoutConfig, a AutomaticConfig) Options {
	return Options{
		ProviderResponseTimeout: time.Duration(t.ProviderResponseMinutes) * time.Minute,
		AdminEscalationTimeout:  time.Duration(t.AdminEscalationMinutes) * time.Minute,
		AutoCancelTimeout:       time.Duration(t.AutoCancelMinutes) * time.Minute,
		AssignmentTimeout:       time.Duration(a.AssignmentTimeoutMinutes) * time.Minute,
		MaxProvidersContacted:   a.MaxProvidersContacted,
	}
}
