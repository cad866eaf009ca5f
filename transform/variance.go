package transform

import (
	"github.com/shopspring/decimal"
)

// VarianceBreakdown retains the intermediate values of a threshold
// calculation for audit and review tooling.
type VarianceBreakdown struct {
	BasePct        float64         `json:"base_pct"`
	CategoryAdjPct float64         `json:"category_adj_pct"`
	UnitAdjPct     float64         `json:"unit_adj_pct"`
	FinalPct       float64         `json:"final_pct"`
	StockingLevel  decimal.Decimal `json:"stocking_level"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
}

// VarianceThreshold is the derived tolerance for a single item. When
// Valid is false the thresholds are zeroed and Reason explains why; the
// caller records the row as errored instead of persisting the zeroes.
type VarianceThreshold struct {
	QuantityThreshold decimal.Decimal   `json:"quantity_threshold"`
	DollarThreshold   decimal.Decimal   `json:"dollar_threshold"`
	IsHighValue       bool              `json:"is_high_value"`
	Breakdown         VarianceBreakdown `json:"breakdown"`
	Valid             bool              `json:"valid"`
	Reason            string            `json:"reason,omitempty"`
}

// Base percentage tiers by unit cost. Cheaper items tolerate looser
// counts; expensive items get tight thresholds.
var costTiers = []struct {
	below decimal.Decimal
	pct   float64
}{
	{decimal.NewFromInt(5), 20},
	{decimal.NewFromInt(20), 15},
	{decimal.NewFromInt(100), 10},
}

const fallbackTierPct = 5

// Perishables get looser thresholds, portion-controlled proteins and
// alcohol get tighter ones.
var categoryAdjustments = map[string]float64{
	CategoryProduce: 5,
	CategoryBakery:  3,
	CategoryDairy:   2,
	CategoryProtein: -5,
	CategoryAlcohol: -3,
}

// Discrete units count cleanly, so they tolerate more slack; bulk
// containers are counted tighter.
var unitAdjustments = map[string]float64{
	UnitEach:   10,
	UnitDozen:  5,
	UnitBottle: 3,
	UnitCan:    3,
	UnitCase:   -2,
	UnitBox:    -2,
	UnitBag:    -1,
}

const minFinalPct = 1.0

type VarianceCalculator struct {
	highValueBoundary decimal.Decimal
}

func NewVarianceCalculator(highValueBoundary decimal.Decimal) *VarianceCalculator {
	return &VarianceCalculator{highValueBoundary: highValueBoundary}
}

// Calculate derives the variance tolerance for an item. The result is a
// pure function of its inputs.
func (c *VarianceCalculator) Calculate(unitCost decimal.Decimal, unit, category string, stockingLevel decimal.Decimal) VarianceThreshold {
	if unitCost.IsNegative() {
		return VarianceThreshold{Reason: "unit cost must not be negative"}
	}
	if !stockingLevel.IsPositive() {
		return VarianceThreshold{Reason: "stocking level must be positive"}
	}

	basePct := float64(fallbackTierPct)
	for _, tier := range costTiers {
		if unitCost.LessThan(tier.below) {
			basePct = tier.pct
			break
		}
	}

	categoryAdj := categoryAdjustments[category]
	unitAdj := unitAdjustments[unit]

	finalPct := basePct + categoryAdj + unitAdj
	if finalPct < minFinalPct {
		finalPct = minFinalPct
	}

	qtyThreshold := stockingLevel.Mul(decimal.NewFromFloat(finalPct)).Div(decimal.NewFromInt(100))
	dollarThreshold := qtyThreshold.Mul(unitCost)

	return VarianceThreshold{
		QuantityThreshold: qtyThreshold,
		DollarThreshold:   dollarThreshold,
		IsHighValue:       dollarThreshold.GreaterThanOrEqual(c.highValueBoundary),
		Valid:             true,
		Breakdown: VarianceBreakdown{
			BasePct:        basePct,
			CategoryAdjPct: categoryAdj,
			UnitAdjPct:     unitAdj,
			FinalPct:       finalPct,
			StockingLevel:  stockingLevel,
			UnitCost:       unitCost,
		},
	}
}
