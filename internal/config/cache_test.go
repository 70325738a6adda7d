package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    func(t *testing.T, cfg *Config)
		wantErr bool
	}{
		{
			name:    "Should report unconfigured when address is empty",
			envVars: minimalRequiredConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Cache.IsConfigured())
			},
			wantErr: false,
		},
		{
			name: "Should report configured when address is set",
			envVars: mergeEnvVars(map[string]string{
				"HEIMDALL_CACHE_ADDRESS": "localhost:6379",
			}),
			want: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Cache.IsConfigured())
			},
			wantErr: false,
		},
		{
			name: "Should fail validation when cache password missing in production",
			envVars: func() map[string]string {
				cfg := validProductionConfig()
				delete(cfg, "HEIMDALL_CACHE_PASSWORD")
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "Should fail validation when cache TLS disabled in production",
			envVars: func() map[string]string {
				cfg := validProductionConfig()
				cfg["HEIMDALL_CACHE_TLS_ENABLED"] = "false"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name:    "Should pass validation with valid production cache config",
			envVars: validProductionConfig(),
			want: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Cache.TLSEnabled)
			},
			wantErr: false,
		},
		{
			name: "Should fail validation with DB index above 15",
			envVars: mergeEnvVars(map[string]string{
				"HEIMDALL_CACHE_DB": "16",
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
