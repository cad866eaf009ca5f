package transform

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Canonical categories for cost and variance analysis.
const (
	CategoryProduce   = "produce"
	CategoryProtein   = "protein"
	CategoryDairy     = "dairy"
	CategoryDryGoods  = "dry_goods"
	CategoryBeverage  = "beverage"
	CategoryAlcohol   = "alcohol"
	CategoryBakery    = "bakery"
	CategoryFrozen    = "frozen"
	CategoryCleaning  = "cleaning"
	CategoryPackaging = "packaging"
	CategoryOther     = "other"
)

type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy"
	MatchFallback MatchType = "fallback"
)

// Classification is embedded into the canonical item's provenance; it is
// never persisted on its own.
type Classification struct {
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	MatchType  MatchType `json:"match_type"`
}

const (
	maxEditDistance    = 3
	minFuzzyConfidence = 0.7
	fallbackConfidence = 0.3
)

// FallbackClassification is the caller-side policy when Classify finds no
// match: a generic category at low confidence, flagged for review.
func FallbackClassification() Classification {
	return Classification{
		Category:   CategoryOther,
		Confidence: fallbackConfidence,
		MatchType:  MatchFallback,
	}
}

// CategoryTable maps normalized provider labels to canonical categories.
// It is immutable after construction; Extend returns a new table, so a
// table may be shared across concurrent runs without synchronization.
type CategoryTable struct {
	entries map[string]string
}

func NewCategoryTable(entries map[string]string) *CategoryTable {
	normalized := make(map[string]string, len(entries))
	for label, category := range entries {
		normalized[normalizeLabel(label)] = category
	}
	return &CategoryTable{entries: normalized}
}

// Extend returns a new table containing this table's entries plus the
// given ones. The receiver is unchanged.
func (t *CategoryTable) Extend(entries map[string]string) *CategoryTable {
	merged := make(map[string]string, len(t.entries)+len(entries))
	for label, category := range t.entries {
		merged[label] = category
	}
	for label, category := range entries {
		merged[normalizeLabel(label)] = category
	}
	return &CategoryTable{entries: merged}
}

func (t *CategoryTable) Len() int {
	return len(t.entries)
}

// Classify maps a free-text provider label to a canonical category.
// Exact table hits score 1.0; otherwise the nearest key by edit distance
// wins when it is close enough (distance <= 3, confidence >= 0.7).
// Returns ok=false when nothing qualifies; the caller applies the
// fallback policy.
func (t *CategoryTable) Classify(label string) (Classification, bool) {
	normalized := normalizeLabel(label)
	if normalized == "" {
		return Classification{}, false
	}

	if category, ok := t.entries[normalized]; ok {
		return Classification{Category: category, Confidence: 1.0, MatchType: MatchExact}, true
	}

	bestDistance := maxEditDistance + 1
	bestKey := ""
	for key := range t.entries {
		d := levenshtein.ComputeDistance(normalized, key)
		if d < bestDistance || (d == bestDistance && key < bestKey) {
			bestDistance = d
			bestKey = key
		}
	}
	if bestDistance > maxEditDistance {
		return Classification{}, false
	}

	confidence := fuzzyConfidence(normalized, bestKey, bestDistance)
	if confidence < minFuzzyConfidence {
		return Classification{}, false
	}
	return Classification{
		Category:   t.entries[bestKey],
		Confidence: confidence,
		MatchType:  MatchFuzzy,
	}, true
}

func fuzzyConfidence(label, key string, distance int) float64 {
	longest := len([]rune(label))
	if l := len([]rune(key)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	confidence := 1.0 - float64(distance)/float64(longest)
	if confidence < 0 {
		return 0
	}
	return confidence
}

func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// DefaultCategoryTable covers the provider labels seen across supported
// POS exports and distributor order guides.
func DefaultCategoryTable() *CategoryTable {
	return defaultCategoryTable
}

var defaultCategoryTable = NewCategoryTable(map[string]string{
	// produce
	"produce":       CategoryProduce,
	"fresh produce": CategoryProduce,
	"vegetables":    CategoryProduce,
	"vegetable":     CategoryProduce,
	"veg":           CategoryProduce,
	"fruit":         CategoryProduce,
	"fruits":        CategoryProduce,
	"greens":        CategoryProduce,
	"salad":         CategoryProduce,
	"salads":        CategoryProduce,
	"herbs":         CategoryProduce,
	"lettuce":       CategoryProduce,
	"tomatoes":      CategoryProduce,
	"onions":        CategoryProduce,
	"peppers":       CategoryProduce,
	"potatoes":      CategoryProduce,
	"citrus":        CategoryProduce,
	"berries":       CategoryProduce,
	"mushrooms":     CategoryProduce,
	"avocados":      CategoryProduce,

	// protein
	"protein":     CategoryProtein,
	"meat":        CategoryProtein,
	"meats":       CategoryProtein,
	"beef":        CategoryProtein,
	"ground beef": CategoryProtein,
	"steak":       CategoryProtein,
	"pork":        CategoryProtein,
	"bacon":       CategoryProtein,
	"sausage":     CategoryProtein,
	"poultry":     CategoryProtein,
	"chicken":     CategoryProtein,
	"turkey":      CategoryProtein,
	"lamb":        CategoryProtein,
	"seafood":     CategoryProtein,
	"fish":        CategoryProtein,
	"shellfish":   CategoryProtein,
	"shrimp":      CategoryProtein,
	"deli meat":   CategoryProtein,
	"deli":        CategoryProtein,

	// dairy
	"dairy":      CategoryDairy,
	"milk":       CategoryDairy,
	"cheese":     CategoryDairy,
	"butter":     CategoryDairy,
	"cream":      CategoryDairy,
	"sour cream": CategoryDairy,
	"yogurt":     CategoryDairy,
	"eggs":       CategoryDairy,
	"ice cream":  CategoryDairy,

	// dry goods
	"dry goods":    CategoryDryGoods,
	"dry storage":  CategoryDryGoods,
	"grocery":      CategoryDryGoods,
	"pantry":       CategoryDryGoods,
	"grains":       CategoryDryGoods,
	"rice":         CategoryDryGoods,
	"pasta":        CategoryDryGoods,
	"flour":        CategoryDryGoods,
	"sugar":        CategoryDryGoods,
	"spices":       CategoryDryGoods,
	"seasoning":    CategoryDryGoods,
	"seasonings":   CategoryDryGoods,
	"canned goods": CategoryDryGoods,
	"canned":       CategoryDryGoods,
	"condiments":   CategoryDryGoods,
	"sauces":       CategoryDryGoods,
	"sauce":        CategoryDryGoods,
	"oil":          CategoryDryGoods,
	"oils":         CategoryDryGoods,
	"vinegar":      CategoryDryGoods,
	"baking":       CategoryDryGoods,
	"cereal":       CategoryDryGoods,
	"beans":        CategoryDryGoods,
	"nuts":         CategoryDryGoods,
	"snacks":       CategoryDryGoods,

	// beverage
	"beverage":      CategoryBeverage,
	"beverages":     CategoryBeverage,
	"drinks":        CategoryBeverage,
	"soda":          CategoryBeverage,
	"soft drinks":   CategoryBeverage,
	"juice":         CategoryBeverage,
	"juices":        CategoryBeverage,
	"coffee":        CategoryBeverage,
	"tea":           CategoryBeverage,
	"water":         CategoryBeverage,
	"energy drinks": CategoryBeverage,

	// alcohol
	"alcohol":      CategoryAlcohol,
	"beer":         CategoryAlcohol,
	"draft beer":   CategoryAlcohol,
	"bottled beer": CategoryAlcohol,
	"wine":         CategoryAlcohol,
	"liquor":       CategoryAlcohol,
	"spirits":      CategoryAlcohol,
	"cider":        CategoryAlcohol,
	"seltzer":      CategoryAlcohol,
	"cocktail mix": CategoryAlcohol,

	// bakery
	"bakery":    CategoryBakery,
	"bread":     CategoryBakery,
	"breads":    CategoryBakery,
	"rolls":     CategoryBakery,
	"buns":      CategoryBakery,
	"bagels":    CategoryBakery,
	"tortillas": CategoryBakery,
	"pastry":    CategoryBakery,
	"pastries":  CategoryBakery,
	"dessert":   CategoryBakery,
	"desserts":  CategoryBakery,
	"cakes":     CategoryBakery,

	// frozen
	"frozen":            CategoryFrozen,
	"frozen foods":      CategoryFrozen,
	"frozen food":       CategoryFrozen,
	"frozen vegetables": CategoryFrozen,
	"frozen fruit":      CategoryFrozen,
	"frozen seafood":    CategoryFrozen,
	"french fries":      CategoryFrozen,
	"fries":             CategoryFrozen,
	"frozen dough":      CategoryFrozen,

	// cleaning
	"cleaning":          CategoryCleaning,
	"cleaning supplies": CategoryCleaning,
	"chemicals":         CategoryCleaning,
	"sanitizer":         CategoryCleaning,
	"detergent":         CategoryCleaning,
	"janitorial":        CategoryCleaning,
	"soap":              CategoryCleaning,
	"degreaser":         CategoryCleaning,

	// packaging
	"packaging":          CategoryPackaging,
	"paper goods":        CategoryPackaging,
	"paper":              CategoryPackaging,
	"to go":              CategoryPackaging,
	"to go supplies":     CategoryPackaging,
	"togo":               CategoryPackaging,
	"takeout containers": CategoryPackaging,
	"containers":         CategoryPackaging,
	"disposables":        CategoryPackaging,
	"napkins":            CategoryPackaging,
	"cups":               CategoryPackaging,
	"lids":               CategoryPackaging,
	"straws":             CategoryPackaging,
	"utensils":           CategoryPackaging,
	"foil":               CategoryPackaging,
	"film":               CategoryPackaging,
	"gloves":             CategoryPackaging,
	"bags":               CategoryPackaging,

	// other
	"misc":          CategoryOther,
	"miscellaneous": CategoryOther,
	"other":         CategoryOther,
	"general":       CategoryOther,
	"supplies":      CategoryOther,
	"smallwares":    CategoryOther,
	"equipment":     CategoryOther,
	"office":        CategoryOther,
	"retail":        CategoryOther,
})
