package passivation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocdi/gocdi/passivation"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()
		store := passivation.NewMemoryStore()

		require.NoError(t, store.Save(ctx, "sess-1", []byte("cart state")))
		blob, err := store.Load(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("cart state"), blob)
	})

	t.Run("unknown session", func(t *testing.T) {
		t.Parallel()
		store := passivation.NewMemoryStore()

		_, err := store.Load(ctx, "sess-unknown")
		assert.ErrorIs(t, err, passivation.ErrNotFound)
	})

	t.Run("save overwrites", func(t *testing.T) {
		t.Parallel()
		store := passivation.NewMemoryStore()

		require.NoError(t, store.Save(ctx, "sess-1", []byte("v1")))
		require.NoError(t, store.Save(ctx, "sess-1", []byte("v2")))
		blob, err := store.Load(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), blob)
	})

	t.Run("delete then load misses", func(t *testing.T) {
		t.Parallel()
		store := passivation.NewMemoryStore()

		require.NoError(t, store.Save(ctx, "sess-1", []byte("gone soon")))
		require.NoError(t, store.Delete(ctx, "sess-1"))
		_, err := store.Load(ctx, "sess-1")
		assert.ErrorIs(t, err, passivation.ErrNotFound)

		require.NoError(t, store.Delete(ctx, "sess-1"), "deleting a missing session is not an error")
	})

	t.Run("stored blob is isolated from the caller's slice", func(t *testing.T) {
		t.Parallel()
		store := passivation.NewMemoryStore()

		src := []byte("original")
		require.NoError(t, store.Save(ctx, "sess-1", src))
		src[0] = 'X'

		blob, err := store.Load(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), blob)

		blob[0] = 'Y'
		again, err := store.Load(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, []byte("original"), again)
	})
}

// Store is satisfied by both shipped implementations.
var (
	_ passivation.Store = (*passivation.MemoryStore)(nil)
	_ passivation.Store = (*passivation.RedisStore)(nil)
)
