package config

import (
	"fmt"
)

// CacheConfig contains settings for the optional L2 payload cache shared
// across SDK instances on the same host. When Address is empty the
// Repository falls back to an in-process MemoryStore.
type CacheConfig struct {
	Address    string `envconfig:"ADDRESS"`
	Password   string `envconfig:"PASSWORD"`
	DB         int    `envconfig:"DB" default:"0" validate:"min=0,max=15"`
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`
}

// IsConfigured reports whether enough information was provided to dial
// an L2 cache backend.
func (c *CacheConfig) IsConfigured() bool {
	return c.Address != ""
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate(environment string) error {
	if !c.IsConfigured() {
		return nil
	}

	if environment == EnvironmentProduction {
		if c.Password == "" {
			return fmt.Errorf("cache password is required in production environment")
		}
		if err := validatePasswordStrength(c.Password, "cache", environment); err != nil {
			return err
		}
		if !c.TLSEnabled {
			return fmt.Errorf("cache TLS must be enabled in production environment")
		}
	}

	return nil
}
