package services

import (
	"context"
	"testing"

	"meu_perito_go/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationRegistry(t *testing.T) {
	ctx := context.Background()
	registry := NewLocationRegistry(NewMemoryKV())

	t.Run("list starts with the fixed federal list", func(t *testing.T) {
		locs, err := registry.List(ctx)
		require.NoError(t, err)
		assert.Len(t, locs, len(models.FederalLocations))
	})

	t.Run("add and sort", func(t *testing.T) {
		loc, err := registry.Add(ctx, "  Fórum   de Crato ", "perito-1")
		require.NoError(t, err)
		assert.Equal(t, "Fórum de Crato", loc.Name)
		assert.False(t, loc.Fixed)

		_, err = registry.Add(ctx, "Clínica Álvaro", "perito-1")
		require.NoError(t, err)

		locs, err := registry.List(ctx)
		require.NoError(t, err)
		require.Len(t, locs, len(models.FederalLocations)+2)
		var names []string
		for _, l := range locs {
			names = append(names, l.Name)
		}
		assert.Equal(t, []string{
			"15ª Vara Federal",
			"17ª Vara Federal",
			"23ª Vara Federal",
			"25ª Vara Federal",
			"27ª Vara Federal",
			"Clínica Álvaro",
			"Fórum de Crato",
			"JEF Juazeiro do Norte",
		}, names)
	})

	t.Run("duplicates ignore case and accents", func(t *testing.T) {
		_, err := registry.Add(ctx, "forum de crato", "perito-1")
		assert.ErrorIs(t, err, ErrDuplicateLocation)
		_, err = registry.Add(ctx, "17ª VARA FEDERAL", "perito-1")
		assert.ErrorIs(t, err, ErrDuplicateLocation)
		_, err = registry.Add(ctx, "   ", "perito-1")
		assert.ErrorIs(t, err, ErrMissingRequiredField)
	})

	t.Run("remove", func(t *testing.T) {
		assert.ErrorIs(t, registry.Remove(ctx, "jf-17-vara"), ErrFixedLocation)
		assert.ErrorIs(t, registry.Remove(ctx, "nope"), ErrNotFound)

		locs, err := registry.List(ctx)
		require.NoError(t, err)
		var dynamicID string
		for _, l := range locs {
			if l.Name == "Fórum de Crato" {
				dynamicID = l.ID
			}
		}
		require.NotEmpty(t, dynamicID)
		require.NoError(t, registry.Remove(ctx, dynamicID))

		_, err = registry.Get(ctx, dynamicID)
		assert.ErrorIs(t, err, ErrUnknownLocation)
		assert.Equal(t, dynamicID, registry.Name(ctx, dynamicID))
	})
}
