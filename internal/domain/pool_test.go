package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
		ok   bool
	}{
		{"seafood", CategorySeafood, true},
		{"  Sunrise ", CategorySunrise, true},
		{"AQUACULTURE", CategoryAquaculture, true},
		{"volcano", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCategory(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryFallbackType(t *testing.T) {
	assert.Equal(t, FallbackFood, CategorySeafood.FallbackType())
	assert.Equal(t, FallbackFood, CategoryFood.FallbackType())
	assert.Equal(t, FallbackLandscape, CategoryFisherman.FallbackType())
	assert.Equal(t, FallbackLandscape, CategorySunrise.FallbackType())
	assert.Equal(t, FallbackLandscape, Category("other").FallbackType())
}

func TestNewCategoryPool(t *testing.T) {
	t.Run("requires default category", func(t *testing.T) {
		_, err := NewCategoryPool(map[Category][]string{CategorySeafood: {"a"}})
		require.ErrorIs(t, err, ErrEmptyPool)
	})

	t.Run("rejects empty lists", func(t *testing.T) {
		_, err := NewCategoryPool(map[Category][]string{
			CategorySunrise: {"a"},
			CategorySeafood: {},
		})
		require.ErrorIs(t, err, ErrEmptyPool)
	})

	t.Run("unknown category uses default list", func(t *testing.T) {
		pool, err := NewCategoryPool(map[Category][]string{
			CategorySunrise: {"s1", "s2"},
			CategorySeafood: {"f1"},
		})
		require.NoError(t, err)

		assert.Equal(t, []string{"f1"}, pool.URLs(CategorySeafood))
		assert.Equal(t, []string{"s1", "s2"}, pool.URLs(CategoryAquaculture))
		assert.Equal(t, []string{"s1", "s2"}, pool.URLs(Category("nope")))
	})
}

func TestNewFallbackPool(t *testing.T) {
	_, err := NewFallbackPool(map[FallbackType][]string{FallbackFood: {"/f.svg"}})
	require.ErrorIs(t, err, ErrEmptyPool)

	pool, err := NewFallbackPool(map[FallbackType][]string{
		FallbackLandscape: {"/l.svg"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"/l.svg"}, pool.Assets(FallbackFood))
}

func TestStatsSettled(t *testing.T) {
	s := Stats{Total: 5, Loaded: 2, Fallback: 1, Failed: 1}
	assert.Equal(t, 4, s.Settled())
	assert.True(t, ImageStateFallback.IsSettled())
	assert.False(t, ImageStatePending.IsSettled())
}
