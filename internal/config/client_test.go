package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name: "Should fail validation on invalid refresh strategy",
			envVars: mergeEnvVars(map[string]string{
				"HEIMDALL_CLIENT_REFRESH_STRATEGY": "webhook",
			}),
			wantErr: true,
		},
		{
			name: "Should pass validation with manual refresh strategy",
			envVars: mergeEnvVars(map[string]string{
				"HEIMDALL_CLIENT_REFRESH_STRATEGY": "manual",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "manual", cfg.Client.RefreshStrategy)
			},
			wantErr: false,
		},
		{
			name:    "Should verify client defaults",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://cdn.growthbook.io", cfg.Client.APIHost)
				assert.Equal(t, "periodic", cfg.Client.RefreshStrategy)
				assert.Equal(t, 60*time.Second, cfg.Client.SWRTTL)
				assert.Equal(t, 5*time.Second, cfg.Client.InitializationTimeout)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation with SWR TTL below 1 second",
			envVars: mergeEnvVars(map[string]string{
				"HEIMDALL_CLIENT_SWR_TTL": "500ms",
			}),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tt.want != nil {
				tt.want(t, cfg)
			}
		})
	}
}
