package heimdall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-sdk/heimdall/internal/config"
	"github.com/heimdall-sdk/heimdall/internal/ruleengine"
)

func testConfig(apiHost string) *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:        "heimdall-test",
			Version:     "v0.0.0-test",
			Environment: "development",
			LogLevel:    "error",
			LogFormat:   "text",
		},
		Client: config.ClientConfig{
			ClientKey:             "sdk-test-key",
			APIHost:               apiHost,
			RefreshStrategy:       "manual",
			SWRTTL:                60 * time.Second,
			InitializationTimeout: 2 * time.Second,
			RequestTimeout:        2 * time.Second,
		},
		Observability: config.ObservabilityConfig{
			Port:          "19090",
			Timeout:       5 * time.Second,
			LivenessPath:  "/healthz",
			ReadinessPath: "/readyz",
			MetricsPath:   "/metrics",
		},
	}
}

func newTestOriginServer(t *testing.T, features map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]any{"features": features})
		require.NoError(t, err)
		w.Write(body)
	}))
}

func TestNew(t *testing.T) {
	t.Run("Should reject a nil config", func(t *testing.T) {
		assert.Panics(t, func() {
			_, _ = New(context.Background(), nil)
		})
	})

	t.Run("Should construct a ready client against a healthy origin", func(t *testing.T) {
		server := newTestOriginServer(t, map[string]any{
			"dark-mode": map[string]any{"defaultValue": false},
		})
		defer server.Close()

		client, err := New(context.Background(), testConfig(server.URL))
		require.NoError(t, err)
		defer client.Shutdown(context.Background())

		features := client.GetFeatures()
		assert.Contains(t, features, "dark-mode")
	})
}

func TestClient_FeatureAndRun(t *testing.T) {
	server := newTestOriginServer(t, map[string]any{
		"dark-mode": map[string]any{"defaultValue": true},
	})
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	require.NoError(t, err)
	defer client.Shutdown(context.Background())

	evalCtx := client.BuildContext(map[string]any{"id": "user-1"}, nil)

	result := client.Feature(evalCtx, "dark-mode")
	assert.Equal(t, true, result.Value)
	assert.Equal(t, ruleengine.SourceDefaultValue, result.Source)

	unknown := client.Feature(evalCtx, "does-not-exist")
	assert.Equal(t, ruleengine.SourceUnknownFeature, unknown.Source)

	exp := &ruleengine.Experiment{
		Key:        "checkout-button-color",
		Variations: []any{"blue", "green"},
	}
	expResult := client.Run(evalCtx, exp)
	assert.Contains(t, []any{"blue", "green"}, expResult.Value)
}

func TestClient_BuildContext_ExplicitFeaturesOverridesRepositorySnapshot(t *testing.T) {
	server := newTestOriginServer(t, map[string]any{
		"dark-mode": map[string]any{"defaultValue": false},
	})
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	require.NoError(t, err)
	defer client.Shutdown(context.Background())

	override := map[string]*ruleengine.Feature{
		"dark-mode": {DefaultValue: true},
	}
	evalCtx := client.BuildContext(map[string]any{"id": "user-1"}, override)

	result := client.Feature(evalCtx, "dark-mode")
	assert.Equal(t, true, result.Value, "an explicit features map must take precedence over the Repository's snapshot")
}

func TestClient_SubscribeAndRefresh(t *testing.T) {
	server := newTestOriginServer(t, map[string]any{
		"dark-mode": map[string]any{"defaultValue": false},
	})
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	require.NoError(t, err)
	defer client.Shutdown(context.Background())

	notified := make(chan map[string]*ruleengine.Feature, 1)
	client.Subscribe("watcher", func(features map[string]*ruleengine.Feature) {
		notified <- features
	})

	require.NoError(t, client.Refresh(context.Background()))

	select {
	case features := <-notified:
		assert.Contains(t, features, "dark-mode")
	case <-time.After(time.Second):
		t.Fatal("subscriber was not notified after Refresh")
	}

	client.Unsubscribe("watcher")
}

func TestClient_Checkers(t *testing.T) {
	server := newTestOriginServer(t, map[string]any{})
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	require.NoError(t, err)
	defer client.Shutdown(context.Background())

	checkers := client.Checkers()
	require.Len(t, checkers, 1)
	assert.Equal(t, "repository", checkers[0].Name())
	assert.NoError(t, checkers[0].Check(context.Background()))
}
