package assign

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutConfigValidate(t *testing.T) {
	valid := TimeoutConfig{ProviderResponseMinutes: 15, AdminEscalationMinutes: 60, AutoCancelMinutes: 240}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*TimeoutConfig)
		wantErr string
	}{
		{"response too low", func(c *TimeoutConfig) { c.ProviderResponseMinutes = 0 }, "provider_response_minutes"},
		{"response too high", func(c *TimeoutConfig) { c.ProviderResponseMinutes = 121 }, "provider_response_minutes"},
		{"escalation too low", func(c *TimeoutConfig) { c.AdminEscalationMinutes = 29 }, "admin_escalation_minutes"},
		{"cancel too high", func(c *TimeoutConfig) { c.AutoCancelMinutes = 2881 }, "auto_cancel_minutes"},
		{"escalation not before cancel", func(c *TimeoutConfig) { c.AdminEscalationMinutes = 240 }, "must be lower than"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAutomaticConfigValidate(t *testing.T) {
	valid := AutomaticConfig{AssignmentTimeoutMinutes: 5, MaxProvidersContacted: 3}
	require.NoError(t, valid.Validate())

	c := valid
	c.MaxProvidersContacted = 11
	assert.ErrorContains(t, c.Validate(), "max_providers_contacted")

	c = valid
	c.AssignmentTimeoutMinutes = 61
	assert.ErrorContains(t, c.Validate(), "assignment_timeout_minutes")
}

func TestSetDefaultsProduceValidConfig(t *testing.T) {
	var tc TimeoutConfig
	tc.SetDefaults()
	require.NoError(t, tc.Validate())

	var ac AutomaticConfig
	ac.SetDefaults()
	require.NoError(t, ac.Validate())
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(
		TimeoutConfig{ProviderResponseMinutes: 10, AdminEscalationMinutes: 30, AutoCancelMinutes: 60},
		AutomaticConfig{AssignmentTimeoutMinutes: 5, MaxProvidersContacted: 3},
	)
	assert.Equal(t, 10*time.Minute, opts.ProviderResponseTimeout)
	assert.Equal(t, 30*time.Minute, opts.AdminEscalationTimeout)
	assert.Equal(t, time.Hour, opts.AutoCancelTimeout)
	assert.Equal(t, 5*time.Minute, opts.AssignmentTimeout)
	assert.Equal(t, 3, opts.MaxProvidersContacted)
}
