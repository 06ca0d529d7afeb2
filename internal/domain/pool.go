package domain

import (
	"errors"
	"fmt"
)

var ErrEmptyPool = errors.New("pool has no entries")

// CategoryPool maps every category to a non-empty list of candidate URLs.
// Categories without their own list share the default category's list.
type CategoryPool struct {
	urls map[Category][]string
}

func NewCategoryPool(urls map[Category][]string) (*CategoryPool, error) {
	if len(urls[DefaultCategory]) == 0 {
		return nil, fmt.Errorf("category %s: %w", DefaultCategory, ErrEmptyPool)
	}

	pool := &CategoryPool{urls: make(map[Category][]string, len(urls))}
	for category, list := range urls {
		if len(list) == 0 {
			return nil, fmt.Errorf("category %s: %w", category, ErrEmptyPool)
		}
		pool.urls[category] = append([]string(nil), list...)
	}

	return pool, nil
}

// URLs never returns an empty slice.
func (p *CategoryPool) URLs(c Category) []string {
	if list, ok := p.urls[c]; ok {
		return list
	}
	return p.urls[DefaultCategory]
}

// FallbackPool maps a coarse type to local placeholder asset paths.
type FallbackPool struct {
	assets map[FallbackType][]string
}

func NewFallbackPool(assets map[FallbackType][]string) (*FallbackPool, error) {
	if len(assets[FallbackLandscape]) == 0 {
		return nil, fmt.Errorf("fallback %s: %w", FallbackLandscape, ErrEmptyPool)
	}

	pool := &FallbackPool{assets: make(map[FallbackType][]string, len(assets))}
	for t, list := range assets {
		if len(list) == 0 {
			return nil, fmt.Errorf("fallback %s: %w", t, ErrEmptyPool)
		}
		pool.assets[t] = append([]string(nil), list...)
	}

	return pool, nil
}

func (p *FallbackPool) Assets(t FallbackType) []string {
	if list, ok := p.assets[t]; ok {
		return list
	}
	return p.assets[FallbackLandscape]
}
