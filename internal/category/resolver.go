package category

import (
	"math/rand/v2"
	"strings"
	"sync"

	"xiapu/imageguard/internal/domain"
)

type rule struct {
	category domain.Category
	keywords []string
}

// Checked top to bottom, first hit wins.
var rules = []rule{
	{domain.CategorySunrise, []string{"日出", "朝阳", "sunrise", "dawn"}},
	{domain.CategorySeafood, []string{"海鲜", "美食", "seafood", "food", "cuisine"}},
	{domain.CategoryFisherman, []string{"渔民", "劳作", "fisherman", "fishermen", "fishing"}},
	{domain.CategoryAquaculture, []string{"养殖", "海带", "紫菜", "aquaculture", "farming", "kelp", "oyster"}},
}

// Resolver maps an image to a category and picks URLs from the pools.
type Resolver struct {
	pool      *domain.CategoryPool
	fallbacks *domain.FallbackPool

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewResolver(pool *domain.CategoryPool, fallbacks *domain.FallbackPool, rnd *rand.Rand) *Resolver {
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Resolver{
		pool:      pool,
		fallbacks: fallbacks,
		rnd:       rnd,
	}
}

// Resolve returns the explicit category when one is given and the
// inferred one otherwise. Unknown explicit values land on landscape.
func (r *Resolver) Resolve(explicit, description string) domain.Category {
	if strings.TrimSpace(explicit) != "" {
		if c, ok := domain.ParseCategory(explicit); ok {
			return c
		}
		return domain.CategoryLandscape
	}
	return Infer(description)
}

// Infer matches description against the keyword rules.
func Infer(description string) domain.Category {
	text := strings.ToLower(description)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.category
			}
		}
	}
	return domain.DefaultCategory
}

// CanAssign reports whether the resolver may invent a source for images
// that have none.
func (r *Resolver) CanAssign() bool {
	return r.pool != nil
}

// PickURL returns a random candidate for the category, or "" when no
// category pool is configured.
func (r *Resolver) PickURL(c domain.Category) string {
	if r.pool == nil {
		return ""
	}
	return r.pick(r.pool.URLs(c))
}

func (r *Resolver) PickFallback(t domain.FallbackType) string {
	return r.pick(r.fallbacks.Assets(t))
}

func (r *Resolver) pick(list []string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return list[r.rnd.IntN(len(list))]
}
