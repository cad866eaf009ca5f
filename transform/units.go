package transform

import "strings"

// Canonical measurement units.
const (
	UnitEach   = "each"
	UnitLb     = "lb"
	UnitOz     = "oz"
	UnitKg     = "kg"
	UnitG      = "g"
	UnitL      = "l"
	UnitMl     = "ml"
	UnitGal    = "gal"
	UnitQt     = "qt"
	UnitCase   = "case"
	UnitBox    = "box"
	UnitBag    = "bag"
	UnitBottle = "bottle"
	UnitCan    = "can"
	UnitDozen  = "dozen"
)

var unitAliases = map[string]string{
	"each": UnitEach, "ea": UnitEach, "unit": UnitEach, "units": UnitEach,
	"count": UnitEach, "ct": UnitEach, "pc": UnitEach, "pcs": UnitEach,
	"piece": UnitEach, "pieces": UnitEach,

	"lb": UnitLb, "lbs": UnitLb, "pound": UnitLb, "pounds": UnitLb, "#": UnitLb,
	"oz": UnitOz, "ounce": UnitOz, "ounces": UnitOz,
	"kg": UnitKg, "kilo": UnitKg, "kilos": UnitKg, "kilogram": UnitKg, "kilograms": UnitKg,
	"g": UnitG, "gr": UnitG, "gram": UnitG, "grams": UnitG,

	"l": UnitL, "lt": UnitL, "ltr": UnitL, "liter": UnitL, "liters": UnitL,
	"litre": UnitL, "litres": UnitL,
	"ml": UnitMl, "milliliter": UnitMl, "milliliters": UnitMl, "millilitre": UnitMl,
	"gal": UnitGal, "gallon": UnitGal, "gallons": UnitGal,
	"qt": UnitQt, "quart": UnitQt, "quarts": UnitQt,

	"case": UnitCase, "cases": UnitCase, "cs": UnitCase,
	"box": UnitBox, "boxes": UnitBox, "bx": UnitBox,
	"bag": UnitBag, "bags": UnitBag, "sack": UnitBag, "sacks": UnitBag,
	"bottle": UnitBottle, "bottles": UnitBottle, "btl": UnitBottle,
	"can": UnitCan, "cans": UnitCan, "tin": UnitCan, "tins": UnitCan,
	"dozen": UnitDozen, "doz": UnitDozen, "dz": UnitDozen,
}

// NormalizeUnit maps a raw unit token to its canonical unit. Unknown
// or empty tokens degrade to "each" so downstream math always has a
// discrete unit to work with.
func NormalizeUnit(raw string) string {
	token := strings.ToLower(strings.TrimSpace(raw))
	token = strings.TrimSuffix(token, ".")
	if canonical, ok := unitAliases[token]; ok {
		return canonical
	}
	return UnitEach
}
