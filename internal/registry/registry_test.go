package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	id int
}

func TestRegistry_GetBuildsOnceAndCaches(t *testing.T) {
	reg, err := New(4)
	require.NoError(t, err)
	defer reg.Close()

	builds := 0
	build := func() (*fakeClient, func(context.Context) error, error) {
		builds++
		return &fakeClient{id: builds}, func(context.Context) error { return nil }, nil
	}

	first, err := Get(reg, "sdk-key-a", build)
	require.NoError(t, err)
	assert.Equal(t, 1, builds)

	second, err := Get(reg, "sdk-key-a", build)
	require.NoError(t, err)
	assert.Equal(t, 1, builds, "the second Get for the same key must not rebuild")
	assert.Same(t, first, second)
}

func TestRegistry_GetIsolatesDistinctKeys(t *testing.T) {
	reg, err := New(4)
	require.NoError(t, err)
	defer reg.Close()

	build := func(id int) func() (*fakeClient, func(context.Context) error, error) {
		return func() (*fakeClient, func(context.Context) error, error) {
			return &fakeClient{id: id}, func(context.Context) error { return nil }, nil
		}
	}

	a, err := Get(reg, "sdk-key-a", build(1))
	require.NoError(t, err)
	b, err := Get(reg, "sdk-key-b", build(2))
	require.NoError(t, err)

	assert.NotEqual(t, a.id, b.id)
}

func TestRegistry_GetPropagatesBuildError(t *testing.T) {
	reg, err := New(4)
	require.NoError(t, err)
	defer reg.Close()

	wantErr := assert.AnError
	_, err = Get(reg, "sdk-key-a", func() (*fakeClient, func(context.Context) error, error) {
		return nil, nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestRegistry_DeleteShutsDownAndRemoves(t *testing.T) {
	reg, err := New(4)
	require.NoError(t, err)
	defer reg.Close()

	shutdownCalled := false
	_, err = Get(reg, "sdk-key-a", func() (*fakeClient, func(context.Context) error, error) {
		return &fakeClient{id: 1}, func(context.Context) error {
			shutdownCalled = true
			return nil
		}, nil
	})
	require.NoError(t, err)

	require.NoError(t, reg.Delete(context.Background(), "sdk-key-a"))
	assert.True(t, shutdownCalled)

	builds := 0
	_, err = Get(reg, "sdk-key-a", func() (*fakeClient, func(context.Context) error, error) {
		builds++
		return &fakeClient{id: 2}, func(context.Context) error { return nil }, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, builds, "a deleted key must rebuild on the next Get")
}

func TestRegistry_DeleteOnMissingKeyIsNoop(t *testing.T) {
	reg, err := New(4)
	require.NoError(t, err)
	defer reg.Close()

	assert.NoError(t, reg.Delete(context.Background(), "does-not-exist"))
}
