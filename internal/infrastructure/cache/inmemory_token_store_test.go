package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryTokenStore_GetSet(t *testing.T) {
	store := NewInMemoryTokenStore()
	defer store.Close()

	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "tenant-1:user-1")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("stores and returns token", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "tenant-1:user-1", "00Dxx!token", time.Hour))

		token, err := store.Get(ctx, "tenant-1:user-1")
		require.NoError(t, err)
		assert.Equal(t, "00Dxx!token", token)
	})

	t.Run("delete removes token", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "tenant-2:user-1", "tok", time.Hour))
		require.NoError(t, store.Delete(ctx, "tenant-2:user-1"))

		_, err := store.Get(ctx, "tenant-2:user-1")
		assert.ErrorIs(t, err, ErrTokenNotFound)
		assert.NoError(t, store.Delete(ctx, "never-set"))
	})
}

func TestInMemoryTokenStore_Expiry(t *testing.T) {
	store := NewInMemoryTokenStore()
	defer store.Close()

	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "k", "tok", time.Minute))

	now = now.Add(59 * time.Second)
	_, err := store.Get(ctx, "k")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	store.cleanup()
	assert.Equal(t, 0, store.Size())
}

func TestInMemoryTokenStore_Concurrent(t *testing.T) {
	store := NewInMemoryTokenStore()
	defer store.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set(ctx, "shared", "tok", time.Hour)
			_, _ = store.Get(ctx, "shared")
		}()
	}
	wg.Wait()

	token, err := store.Get(ctx, "shared")
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestInMemoryTokenStore_CloseTwice(t *testing.T) {
	store := NewInMemoryTokenStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
