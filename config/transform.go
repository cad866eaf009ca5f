package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// TransformPolicy carries the knobs the transform orchestrators need.
// It is threaded explicitly through constructors so concurrent runs can
// operate under different policies; nothing reads these values globally.
type TransformPolicy struct {
	// ErrorRatePct is the run-level gate: a run whose row error rate
	// exceeds this percentage is marked failed.
	ErrorRatePct float64 `validate:"gte=0,lte=100"`
	// DefaultStockingLevel is used for variance thresholds when a row
	// carries no par level of its own.
	DefaultStockingLevel decimal.Decimal
	// HighValueBoundary is the dollar threshold at or above which an item
	// is flagged high-value.
	HighValueBoundary decimal.Decimal
	// BatchSize is the tier-1 batch flush threshold for the parser.
	BatchSize int `validate:"gt=0"`
	// RunTimeoutSeconds bounds a single orchestrator run end to end.
	RunTimeoutSeconds int `validate:"gt=0"`
}

func DefaultTransformPolicy() TransformPolicy {
	return TransformPolicy{
		ErrorRatePct:         5,
		DefaultStockingLevel: decimal.NewFromInt(10),
		HighValueBoundary:    decimal.NewFromInt(50),
		BatchSize:            1000,
		RunTimeoutSeconds:    600,
	}
}

// LoadTransformPolicy reads overrides from env on top of the defaults.
func LoadTransformPolicy() (TransformPolicy, error) {
	policy := DefaultTransformPolicy()

	if v := strings.TrimSpace(os.Getenv("TRANSFORM_ERROR_RATE_PCT")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return policy, fmt.Errorf("TRANSFORM_ERROR_RATE_PCT: %w", err)
		}
		policy.ErrorRatePct = f
	}
	if v := strings.TrimSpace(os.Getenv("TRANSFORM_DEFAULT_STOCKING_LEVEL")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return policy, fmt.Errorf("TRANSFORM_DEFAULT_STOCKING_LEVEL: %w", err)
		}
		policy.DefaultStockingLevel = d
	}
	if v := strings.TrimSpace(os.Getenv("TRANSFORM_HIGH_VALUE_BOUNDARY")); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return policy, fmt.Errorf("TRANSFORM_HIGH_VALUE_BOUNDARY: %w", err)
		}
		policy.HighValueBoundary = d
	}
	policy.BatchSize = intFromEnv("TRANSFORM_BATCH_SIZE", policy.BatchSize)
	policy.RunTimeoutSeconds = intFromEnv("TRANSFORM_RUN_TIMEOUT_SECONDS", policy.RunTimeoutSeconds)

	if err := validator.New().Struct(policy); err != nil {
		return policy, fmt.Errorf("invalid transform policy: %w", err)
	}
	if policy.DefaultStockingLevel.LessThanOrEqual(decimal.Zero) {
		return policy, fmt.Errorf("invalid transform policy: default stocking level must be positive")
	}
	if policy.HighValueBoundary.IsNegative() {
		return policy, fmt.Errorf("invalid transform policy: high value boundary must not be negative")
	}
	return policy, nil
}
