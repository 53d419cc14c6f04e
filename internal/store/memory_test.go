package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		val, err := s.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("SetAndGet", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "k", []byte("v1")))
		val, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), val)
	})

	t.Run("Remove", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, "gone", []byte("x")))
		require.NoError(t, s.Remove(ctx, "gone"))
		val, err := s.Get(ctx, "gone")
		require.NoError(t, err)
		assert.Nil(t, val)
	})

	t.Run("WatchFiresWithOldAndNew", func(t *testing.T) {
		var gotNew, gotOld []byte
		var calls int
		s.Watch("watched", func(newValue, oldValue []byte) {
			gotNew, gotOld = newValue, oldValue
			calls++
		})

		require.NoError(t, s.Set(ctx, "watched", []byte("first")))
		assert.Equal(t, []byte("first"), gotNew)
		assert.Nil(t, gotOld)

		require.NoError(t, s.Set(ctx, "watched", []byte("second")))
		assert.Equal(t, []byte("second"), gotNew)
		assert.Equal(t, []byte("first"), gotOld)
		assert.Equal(t, 2, calls)
	})

	t.Run("WatchOtherKeySilent", func(t *testing.T) {
		var calls int
		s.Watch("quiet", func(_, _ []byte) { calls++ })
		require.NoError(t, s.Set(ctx, "noisy", []byte("x")))
		assert.Zero(t, calls)
	})
}
