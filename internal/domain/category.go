package domain

import (
	"fmt"
	"strings"
)

type Category string

func (c Category) String() string {
	return string(c)
}

const (
	CategorySunrise     Category = "sunrise"     // Dawn over the mudflats
	CategorySeafood     Category = "seafood"     // Seafood dishes
	CategoryFood        Category = "food"        // Other local food
	CategoryFisherman   Category = "fisherman"   // Fishermen at work
	CategoryAquaculture Category = "aquaculture" // Kelp and oyster farms
	CategoryLandscape   Category = "landscape"   // Generic scenery
)

// DefaultCategory is used when nothing in the description matches.
const DefaultCategory = CategorySunrise

var Categories = []Category{
	CategorySunrise,
	CategorySeafood,
	CategoryFood,
	CategoryFisherman,
	CategoryAquaculture,
	CategoryLandscape,
}

// ParseCategory maps a free-form attribute value onto the closed set.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

func (c Category) GetCategoryName() string {
	switch c {
	case CategorySunrise:
		return "Sunrise"
	case CategorySeafood:
		return "Seafood"
	case CategoryFood:
		return "Food"
	case CategoryFisherman:
		return "Fisherman"
	case CategoryAquaculture:
		return "Aquaculture"
	case CategoryLandscape:
		return "Landscape"
	default:
		return "Unknown"
	}
}

// FallbackType returns the coarse placeholder family for the category.
func (c Category) FallbackType() FallbackType {
	switch c {
	case CategorySeafood, CategoryFood:
		return FallbackFood
	default:
		return FallbackLandscape
	}
}

type FallbackType string

const (
	FallbackLandscape FallbackType = "landscape"
	FallbackFood      FallbackType = "food"
)

func (t FallbackType) String() string {
	return string(t)
}

func ParseFallbackType(s string) (FallbackType, error) {
	switch FallbackType(strings.ToLower(strings.TrimSpace(s))) {
	case FallbackLandscape:
		return FallbackLandscape, nil
	case FallbackFood:
		return FallbackFood, nil
	default:
		return "", fmt.Errorf("unknown fallback type %q", s)
	}
}
