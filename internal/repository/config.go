package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/heimdall-sdk/heimdall/internal/ruleengine"
)

const defaultAPIHost = "https://cdn.growthbook.io"

// RefreshStrategy selects how the Repository keeps its cache warm.
type RefreshStrategy string

const (
	// RefreshPeriodic refreshes on a timer every SWRTTLSeconds, in
	// addition to the on-read-after-TTL and explicit-Refresh triggers.
	RefreshPeriodic RefreshStrategy = "periodic"
	// RefreshManual disables the timer; only explicit Refresh calls and
	// on-read-after-TTL staleness trigger a refetch.
	RefreshManual RefreshStrategy = "manual"
)

// Config configures a Repository instance.
type Config struct {
	ClientKey               string
	APIHost                 string
	DecryptionKey           string
	SWRTTLSeconds           int
	RefreshStrategy         RefreshStrategy
	OnRefresh               func(map[string]*ruleengine.Feature)
	InitializationTimeoutMS int
}

func (c Config) withDefaults() (Config, error) {
	if c.ClientKey == "" {
		return c, fmt.Errorf("%w: client_key is required", ErrConfig)
	}

	if c.APIHost == "" {
		c.APIHost = defaultAPIHost
	}
	c.APIHost = strings.TrimRight(c.APIHost, "/")

	if c.SWRTTLSeconds <= 0 {
		c.SWRTTLSeconds = 60
	}
	if c.RefreshStrategy == "" {
		c.RefreshStrategy = RefreshPeriodic
	}
	if c.RefreshStrategy != RefreshPeriodic && c.RefreshStrategy != RefreshManual {
		return c, fmt.Errorf("%w: refresh_strategy must be %q or %q", ErrConfig, RefreshPeriodic, RefreshManual)
	}
	if c.InitializationTimeoutMS <= 0 {
		c.InitializationTimeoutMS = 5000
	}
	return c, nil
}

func (c Config) swrTTL() time.Duration {
	return time.Duration(c.SWRTTLSeconds) * time.Second
}

func (c Config) initTimeout() time.Duration {
	return time.Duration(c.InitializationTimeoutMS) * time.Millisecond
}

func (c Config) featuresURL() string {
	return fmt.Sprintf("%s/api/features/%s", c.APIHost, c.ClientKey)
}
