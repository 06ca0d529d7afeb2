package category

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xiapu/imageguard/internal/domain"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()

	pool, err := domain.NewCategoryPool(map[domain.Category][]string{
		domain.CategorySunrise:   {"s1", "s2", "s3"},
		domain.CategorySeafood:   {"f1", "f2", "f3"},
		domain.CategoryFisherman: {"m1"},
	})
	require.NoError(t, err)

	fallbacks, err := domain.NewFallbackPool(map[domain.FallbackType][]string{
		domain.FallbackLandscape: {"/images/fallback-landscape.svg"},
		domain.FallbackFood:      {"/images/fallback-seafood.svg"},
	})
	require.NoError(t, err)

	return NewResolver(pool, fallbacks, rand.New(rand.NewPCG(1, 2)))
}

func TestInferPriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.Category
	}{
		{"chinese sunrise", "霞浦滩涂日出", domain.CategorySunrise},
		{"english sunrise", "Sunrise over the Mudflats", domain.CategorySunrise},
		{"seafood", "Fresh SEAFOOD dinner", domain.CategorySeafood},
		{"chinese food", "当地美食", domain.CategorySeafood},
		{"fisherman", "渔民劳作", domain.CategoryFisherman},
		{"aquaculture", "Kelp farming at low tide", domain.CategoryAquaculture},
		{"sunrise beats fisherman", "fisherman at sunrise", domain.CategorySunrise},
		{"seafood beats aquaculture", "oyster seafood", domain.CategorySeafood},
		{"default", "霞浦风光", domain.DefaultCategory},
		{"empty", "", domain.DefaultCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Infer(tt.text))
		})
	}
}

func TestInferIsDeterministic(t *testing.T) {
	for i := 0; i < 50; i++ {
		assert.Equal(t, domain.CategoryFisherman, Infer("Fishermen hauling nets"))
	}
}

func TestResolveExplicit(t *testing.T) {
	r := newTestResolver(t)

	assert.Equal(t, domain.CategorySeafood, r.Resolve("seafood", "sunrise"))
	assert.Equal(t, domain.CategoryLandscape, r.Resolve("volcano", "sunrise"))
	assert.Equal(t, domain.CategorySunrise, r.Resolve("  ", "sunrise"))
}

func TestPickURL(t *testing.T) {
	r := newTestResolver(t)

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		u := r.PickURL(domain.CategorySeafood)
		assert.Contains(t, []string{"f1", "f2", "f3"}, u)
		seen[u] = true
	}
	assert.Len(t, seen, 3)

	// Categories without their own pool draw from the default one.
	assert.Contains(t, []string{"s1", "s2", "s3"}, r.PickURL(domain.CategoryAquaculture))
	assert.True(t, r.CanAssign())
}

func TestPickFallback(t *testing.T) {
	r := newTestResolver(t)

	assert.Equal(t, "/images/fallback-seafood.svg", r.PickFallback(domain.FallbackFood))
	assert.Equal(t, "/images/fallback-landscape.svg", r.PickFallback(domain.FallbackLandscape))
}

func TestResolverWithoutPool(t *testing.T) {
	fallbacks, err := domain.NewFallbackPool(map[domain.FallbackType][]string{
		domain.FallbackLandscape: {"/l.svg"},
	})
	require.NoError(t, err)

	r := NewResolver(nil, fallbacks, nil)
	assert.False(t, r.CanAssign())
	assert.Empty(t, r.PickURL(domain.CategorySunrise))
}
