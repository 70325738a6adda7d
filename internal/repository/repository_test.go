package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-sdk/heimdall/internal/ruleengine"
)

func featuresPayload(t *testing.T, key string, value any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"features": map[string]any{
			key: map[string]any{"defaultValue": value},
		},
	})
	require.NoError(t, err)
	return body
}

func TestNew(t *testing.T) {
	t.Run("Should fail when client key is empty", func(t *testing.T) {
		_, err := New(Config{}, nil, nil, nil)
		assert.ErrorIs(t, err, ErrConfig)
	})

	t.Run("Should apply defaults", func(t *testing.T) {
		repo, err := New(Config{ClientKey: "sdk-abc"}, nil, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, StatePending, repo.state)
		assert.Equal(t, defaultAPIHost, repo.cfg.APIHost)
	})
}

func TestRepository_InitialFetchAndGetFeatures(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(featuresPayload(t, "checkout-flow", "control"))
	}))
	defer server.Close()

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, RefreshStrategy: RefreshManual}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	require.NoError(t, repo.AwaitInitialization(2*time.Second))

	features := repo.GetFeatures()
	require.Contains(t, features, "checkout-flow")
	assert.Equal(t, "control", features["checkout-flow"].DefaultValue)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	state, stateErr := repo.State()
	assert.Equal(t, StateReady, state)
	assert.NoError(t, stateErr)
}

func TestRepository_AwaitInitializationTimesOutOnSlowOrigin(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, RefreshStrategy: RefreshManual}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	err = repo.AwaitInitialization(50 * time.Millisecond)
	assert.ErrorIs(t, err, ErrInitializationTimeout)
}

func TestRepository_ManualStrategyOnlyRefreshesOnDemand(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		w.Write(featuresPayload(t, "checkout-flow", n))
	}))
	defer server.Close()

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, RefreshStrategy: RefreshManual}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	require.NoError(t, repo.AwaitInitialization(2*time.Second))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	require.NoError(t, repo.Refresh(ctx))
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits), "periodic strategy is disabled, no extra fetches should occur")
}

func TestRepository_PeriodicStrategyFetchesExactlyOnceAtStartup(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(featuresPayload(t, "checkout-flow", "control"))
	}))
	defer server.Close()

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, SWRTTLSeconds: 60, RefreshStrategy: RefreshPeriodic}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	require.NoError(t, repo.AwaitInitialization(2*time.Second))

	time.Sleep(100 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits), "the scheduler's immediate first tick must not duplicate the initial fetch")

	require.NoError(t, repo.Shutdown(context.Background()))
}

func TestRepository_PeriodicStrategyRefreshesOnTimer(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		w.Write(featuresPayload(t, "checkout-flow", n))
	}))
	defer server.Close()

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, SWRTTLSeconds: 1, RefreshStrategy: RefreshPeriodic}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	require.NoError(t, repo.AwaitInitialization(2*time.Second))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) >= 2
	}, 3*time.Second, 50*time.Millisecond, "the timer should drive a second fetch after swr_ttl_seconds elapses")

	require.NoError(t, repo.Shutdown(context.Background()))
}

func TestRepository_GetFeatures_StaleReadTriggersBackgroundRefreshAndNotifiesOnce(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		w.Write(featuresPayload(t, "checkout-flow", n))
	}))
	defer server.Close()

	var onRefreshCalls int32
	repo, err := New(Config{
		ClientKey:       "sdk-abc",
		APIHost:         server.URL,
		SWRTTLSeconds:   1,
		RefreshStrategy: RefreshManual,
		OnRefresh: func(map[string]*ruleengine.Feature) {
			atomic.AddInt32(&onRefreshCalls, 1)
		},
	}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	require.NoError(t, repo.AwaitInitialization(2*time.Second))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&onRefreshCalls) == 1
	}, 2*time.Second, 10*time.Millisecond, "on_refresh also fires for the initial fetch")

	time.Sleep(1200 * time.Millisecond)

	stale := repo.GetFeatures()
	require.Contains(t, stale, "checkout-flow")
	assert.EqualValues(t, float64(1), stale["checkout-flow"].DefaultValue, "GetFeatures must return the stale snapshot immediately, not block for the refresh")

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) >= 2
	}, 2*time.Second, 20*time.Millisecond, "a stale read must kick off exactly one background refresh")

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&onRefreshCalls) == 2
	}, 2*time.Second, 20*time.Millisecond, "on_refresh must be invoked exactly once more after the stale-triggered refresh completes")

	fresh := repo.GetFeatures()
	assert.EqualValues(t, float64(2), fresh["checkout-flow"].DefaultValue)

	require.NoError(t, repo.Shutdown(context.Background()))
}

func TestRepository_EncryptedFeaturesWithoutKeyFailsInitializationAndLeavesCacheEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := json.Marshal(map[string]any{"encryptedFeatures": "aXY=.Y2lwaGVydGV4dA=="})
		require.NoError(t, err)
		w.Write(body)
	}))
	defer server.Close()

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, RefreshStrategy: RefreshManual}, nil, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	err = repo.AwaitInitialization(2 * time.Second)
	assert.ErrorIs(t, err, ErrEncryptedWithoutKey)

	state, stateErr := repo.State()
	assert.Equal(t, StateError, state)
	assert.ErrorIs(t, stateErr, ErrEncryptedWithoutKey)
	assert.Empty(t, repo.GetFeatures())
}

func TestRepository_SubscribersAreNotifiedAndIsolated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(featuresPayload(t, "checkout-flow", "control"))
	}))
	defer server.Close()

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, RefreshStrategy: RefreshManual}, nil, nil, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var calledIDs []string

	repo.Subscribe("panics", func(map[string]*ruleengine.Feature) {
		panic("boom")
	})
	repo.Subscribe("observer", func(features map[string]*ruleengine.Feature) {
		mu.Lock()
		defer mu.Unlock()
		calledIDs = append(calledIDs, "observer")
		assert.Contains(t, features, "checkout-flow")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo.Start(ctx)
	require.NoError(t, repo.AwaitInitialization(2*time.Second))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(calledIDs) > 0
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"observer"}, calledIDs, "a panicking subscriber must not prevent its siblings from running")
	mu.Unlock()

	repo.Unsubscribe("observer")
	calledIDs = nil

	require.NoError(t, repo.Refresh(ctx))

	mu.Lock()
	assert.Empty(t, calledIDs, "an unsubscribed callback must not be invoked again")
	mu.Unlock()
}

func TestRepository_ShutdownReleasesAwaitingCallers(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	repo, err := New(Config{ClientKey: "sdk-abc", APIHost: server.URL, RefreshStrategy: RefreshManual}, nil, nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	repo.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- repo.AwaitInitialization(2 * time.Second) }()

	require.NoError(t, repo.Shutdown(shutdownCtx))
	assert.ErrorIs(t, <-errCh, ErrShutdown)
}
