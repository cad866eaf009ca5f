package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/models"
	"github.com/marginworks/costbooks_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("costbooks-transform")

// RunRequest identifies the staged upload a transform should consume.
type RunRequest struct {
	BusinessId  string
	UploadId    int
	DryRun      bool
	TriggeredBy string
}

// InventoryTransformer turns staged inventory batches into canonical
// items with derived variance thresholds. Runs are idempotent per
// (business, provider, source item id).
type InventoryTransformer struct {
	store      Store
	policy     config.TransformPolicy
	categories *CategoryTable
	variance   *VarianceCalculator
	logger     *logrus.Logger
}

func NewInventoryTransformer(store Store, policy config.TransformPolicy, categories *CategoryTable) *InventoryTransformer {
	if categories == nil {
		categories = DefaultCategoryTable()
	}
	return &InventoryTransformer{
		store:      store,
		policy:     policy,
		categories: categories,
		variance:   NewVarianceCalculator(policy.HighValueBoundary),
		logger:     config.GetLogger(),
	}
}

// Run executes one inventory transform. Rows that error are recorded and
// skipped; the run finalizes failed when the error rate exceeds the
// configured gate, with rows written before the gate tripped left in
// place and accounted for in the ledger.
func (t *InventoryTransformer) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(t.policy.RunTimeoutSeconds)*time.Second)
	defer cancel()
	ctx, span := tracer.Start(ctx, "transform.inventory.run")
	defer span.End()

	upload, batches, err := loadValidatedUpload(ctx, t.store, req.BusinessId, req.UploadId, models.RecordTypeInventory)
	if err != nil {
		return nil, err
	}

	run := &models.TransformRun{
		BusinessId:  req.BusinessId,
		UploadId:    upload.ID,
		RecordType:  models.RecordTypeInventory,
		DryRun:      req.DryRun,
		TriggeredBy: req.TriggeredBy,
	}
	if err := t.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"run_id":      run.ID,
		"upload_id":   upload.ID,
		"business_id": req.BusinessId,
		"dry_run":     req.DryRun,
		"batches":     len(batches),
	}).Info("[transform.inventory] run started")

	result := &RunResult{RunId: run.ID, DryRun: req.DryRun}

	for _, batch := range batches {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, RunRowError{
				BatchIndex: batch.BatchIndex,
				Message:    "run deadline exceeded",
			})
			result.Summary.Errors++
			break
		}
		for _, row := range models.DecodeBatchRows(batch.RowsJSON) {
			result.Summary.Processed++
			outcome, err := t.processRow(ctx, upload, req.DryRun, row)
			if err != nil {
				result.Summary.Errors++
				result.Errors = append(result.Errors, RunRowError{
					BatchIndex: batch.BatchIndex,
					Row:        row.Row,
					Message:    err.Error(),
				})
				t.logger.WithFields(logrus.Fields{
					"run_id": run.ID,
					"batch":  batch.BatchIndex,
					"row":    row.Row,
				}).WithError(err).Warn("[transform.inventory] row failed")
				continue
			}
			switch outcome {
			case rowCreated:
				result.Summary.Created++
			case rowUpdated:
				result.Summary.Updated++
			case rowSkipped:
				result.Summary.Skipped++
			}
		}
	}

	markTransformed := !req.DryRun
	return finalizeRun(ctx, t.store, t.policy.ErrorRatePct, t.logger, "transform.inventory", upload, result, markTransformed)
}

type rowOutcome int

const (
	rowCreated rowOutcome = iota
	rowUpdated
	rowSkipped
)

func (t *InventoryTransformer) processRow(ctx context.Context, upload *models.Upload, dryRun bool, row models.BatchRow) (rowOutcome, error) {
	name := stringField(row.Data, "name")
	if name == "" {
		return 0, fmt.Errorf("name is required")
	}

	rawCategory := stringField(row.Data, "category")
	needsReview := false
	cls, ok := t.categories.Classify(rawCategory)
	if !ok {
		cls = FallbackClassification()
		needsReview = true
	}

	unit := NormalizeUnit(stringField(row.Data, "unit"))

	unitCost, ok := decimalField(row.Data, "unit_cost")
	if !ok {
		return 0, fmt.Errorf("unit_cost is missing or not a number")
	}

	parLevel, ok := decimalField(row.Data, "par_level")
	if !ok {
		parLevel = t.policy.DefaultStockingLevel
	}
	reorderPoint, ok := decimalField(row.Data, "reorder_point")
	if !ok {
		reorderPoint = decimal.Zero
	}

	threshold := t.variance.Calculate(unitCost, unit, cls.Category, parLevel)
	if !threshold.Valid {
		return 0, fmt.Errorf("variance threshold: %s", threshold.Reason)
	}

	payload, _ := json.Marshal(row.Data)
	item := &models.InventoryItem{
		BusinessId:              upload.BusinessId,
		Name:                    name,
		Category:                cls.Category,
		Unit:                    unit,
		UnitCost:                unitCost,
		ParLevel:                parLevel,
		ReorderPoint:            reorderPoint,
		VarianceThresholdQty:    threshold.QuantityThreshold,
		VarianceThresholdDollar: threshold.DollarThreshold,
		IsHighValue:             threshold.IsHighValue,
		NeedsReview:             needsReview,
		CategoryMatchType:       string(cls.MatchType),
		CategoryConfidence:      cls.Confidence,
		SourceProvider:          upload.SourceProvider,
		SourceItemId:            sourceItemId(row),
		ProviderPayload:         payload,
	}

	if dryRun {
		existing, err := t.store.FindItemBySource(ctx, item.BusinessId, item.SourceProvider, item.SourceItemId)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return rowCreated, nil
		}
		return rowUpdated, nil
	}

	created, err := t.store.UpsertItem(ctx, item)
	if err != nil {
		return 0, err
	}
	if needsReview {
		if err := t.store.QueueReview(ctx, &models.ReviewQueueEntry{
			BusinessId:      item.BusinessId,
			InventoryItemId: item.ID,
			RawLabel:        rawCategory,
			Reason:          "category fallback applied",
		}); err != nil {
			t.logger.WithError(err).Warn("[transform.inventory] review queue write failed")
		}
	}
	if created {
		return rowCreated, nil
	}
	return rowUpdated, nil
}

// sourceItemId derives the stable idempotency key for a staged row:
// the provider code when present, else a slug of the name, else the
// row's position in the source file.
func sourceItemId(row models.BatchRow) string {
	if code := stringField(row.Data, "code"); code != "" {
		return code
	}
	if slug := utils.Slugify(stringField(row.Data, "name")); slug != "" {
		return slug
	}
	return fmt.Sprintf("row-%d", row.Row)
}

