package rolemapping

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	raerr "github.com/StricklySoft/realmauth/pkg/errors"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	newMapping := func(name string) Mapping {
		return Mapping{
			Name:    name,
			Enabled: true,
			Roles:   []string{"role-" + name},
			Rules:   mustParse(t, `{"field": {"username": "*"}}`),
		}
	}

	t.Run("put then list sorted by name", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(ctx, newMapping("zeta")))
		require.NoError(t, store.Put(ctx, newMapping("alpha")))

		mappings, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, mappings, 2)
		assert.Equal(t, "alpha", mappings[0].Name)
		assert.Equal(t, "zeta", mappings[1].Name)
	})

	t.Run("put replaces existing mapping", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(ctx, newMapping("m")))

		updated := newMapping("m")
		updated.Roles = []string{"replaced"}
		require.NoError(t, store.Put(ctx, updated))

		mappings, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, mappings, 1)
		assert.Equal(t, []string{"replaced"}, mappings[0].Roles)
	})

	t.Run("put without name", func(t *testing.T) {
		store := NewMemoryStore()
		err := store.Put(ctx, Mapping{Enabled: true, Rules: mustParse(t, `{"any": []}`)})
		require.Error(t, err)
		assert.Equal(t, raerr.CodeValidationRequired, raerr.GetCode(err))
	})

	t.Run("put without rules", func(t *testing.T) {
		store := NewMemoryStore()
		err := store.Put(ctx, Mapping{Name: "m", Enabled: true})
		require.Error(t, err)
		assert.Equal(t, raerr.CodeValidationRequired, raerr.GetCode(err))
	})

	t.Run("delete", func(t *testing.T) {
		store := NewMemoryStore()
		require.NoError(t, store.Put(ctx, newMapping("m")))
		require.NoError(t, store.Delete(ctx, "m"))

		mappings, err := store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, mappings)
	})

	t.Run("delete missing mapping", func(t *testing.T) {
		store := NewMemoryStore()
		err := store.Delete(ctx, "absent")
		require.Error(t, err)
		assert.True(t, raerr.IsNotFound(err))
	})

	t.Run("concurrent access", func(t *testing.T) {
		store := NewMemoryStore()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_ = store.Put(ctx, newMapping("shared"))
			}()
			go func() {
				defer wg.Done()
				_, _ = store.List(ctx)
			}()
		}
		wg.Wait()
	})
}
