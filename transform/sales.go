package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/ingest"
	"github.com/marginworks/costbooks_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SalesTransformer turns staged sales batches into immutable canonical
// transactions. Line items whose catalog reference does not resolve to a
// known inventory item are skipped, not errored: sales data routinely
// references items the inventory sync has not seen yet.
type SalesTransformer struct {
	store  Store
	policy config.TransformPolicy
	logger *logrus.Logger
}

func NewSalesTransformer(store Store, policy config.TransformPolicy) *SalesTransformer {
	return &SalesTransformer{
		store:  store,
		policy: policy,
		logger: config.GetLogger(),
	}
}

func (t *SalesTransformer) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(t.policy.RunTimeoutSeconds)*time.Second)
	defer cancel()
	ctx, span := tracer.Start(ctx, "transform.sales.run")
	defer span.End()

	upload, batches, err := loadValidatedUpload(ctx, t.store, req.BusinessId, req.UploadId, models.RecordTypeSales)
	if err != nil {
		return nil, err
	}

	run := &models.TransformRun{
		BusinessId:  req.BusinessId,
		UploadId:    upload.ID,
		RecordType:  models.RecordTypeSales,
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
	}).Info("[transform.sales] run started")

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
				}).WithError(err).Warn("[transform.sales] row failed")
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

	// Sales transforms never mark the upload transformed: the same staged
	// window may be re-pulled with corrections appended.
	return finalizeRun(ctx, t.store, t.policy.ErrorRatePct, t.logger, "transform.sales", upload, result, false)
}

var centsPerUnit = decimal.NewFromInt(100)

func (t *SalesTransformer) processRow(ctx context.Context, upload *models.Upload, dryRun bool, row models.BatchRow) (rowOutcome, error) {
	lineItemId := stringField(row.Data, "line_item_id")
	if lineItemId == "" {
		return 0, fmt.Errorf("line_item_id is required")
	}

	catalogRef := stringField(row.Data, "catalog_object_id")
	var itemId *int
	if catalogRef == "" {
		return rowSkipped, nil
	}
	item, err := t.store.FindItemBySource(ctx, upload.BusinessId, upload.SourceProvider, catalogRef)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return rowSkipped, nil
	}
	itemId = &item.ID

	quantity, ok := decimalField(row.Data, "quantity")
	if !ok || !quantity.IsPositive() {
		return 0, fmt.Errorf("quantity is missing or not positive")
	}

	cents, ok := intField(row.Data, "total_money_cents")
	if !ok || cents < 0 {
		return 0, fmt.Errorf("total_money_cents is missing or negative")
	}
	totalAmount := decimal.NewFromInt(cents).Div(centsPerUnit)
	unitPrice := totalAmount.Div(quantity)

	txnDate, err := ingest.ParseDate(stringField(row.Data, "transaction_date"))
	if err != nil {
		return 0, fmt.Errorf("transaction_date %v", err)
	}

	payload, _ := json.Marshal(row.Data)
	txn := &models.SalesTransaction{
		BusinessId:       upload.BusinessId,
		InventoryItemId:  itemId,
		TransactionDate:  txnDate,
		Quantity:         quantity.String(),
		UnitPrice:        unitPrice,
		TotalAmount:      totalAmount,
		SourceProvider:   upload.SourceProvider,
		SourceOrderId:    stringField(row.Data, "order_id"),
		SourceLineItemId: lineItemId,
		ProviderPayload:  payload,
	}

	if dryRun {
		existing, err := t.store.FindTransactionBySource(ctx, txn.SourceProvider, txn.SourceLineItemId)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return rowCreated, nil
		}
		return rowSkipped, nil
	}

	created, err := t.store.CreateTransaction(ctx, txn)
	if err != nil {
		return 0, err
	}
	if created {
		return rowCreated, nil
	}
	return rowSkipped, nil
}
