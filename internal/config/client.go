package config

import (
	"fmt"
	"strings"
	"time"
)

// ClientConfig configures the Repository's connection to the feature
// definitions origin.
type ClientConfig struct {
	ClientKey       string `envconfig:"KEY" validate:"required"`
	APIHost         string `envconfig:"API_HOST" default:"https://cdn.growthbook.io"`
	DecryptionKey   string `envconfig:"DECRYPTION_KEY"`
	RefreshStrategy string `envconfig:"REFRESH_STRATEGY" default:"periodic" validate:"oneof=periodic manual"`

	SWRTTL                time.Duration `envconfig:"SWR_TTL" default:"60s" validate:"min=1s"`
	InitializationTimeout time.Duration `envconfig:"INITIALIZATION_TIMEOUT" default:"5s" validate:"min=0"`
	RequestTimeout        time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s" validate:"min=1s"`
}

// Validate performs validation on the ClientConfig.
func (c *ClientConfig) Validate(_ string) error {
	if strings.TrimSpace(c.ClientKey) == "" {
		return fmt.Errorf("client key cannot be empty")
	}
	if c.APIHost == "" {
		return fmt.Errorf("client api host cannot be empty")
	}
	return nil
}
