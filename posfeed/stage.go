package posfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Stager writes POS line records into the same staged tier file uploads
// land in, so the sales transform runs off one batch shape regardless of
// where the data came from.
type Stager struct {
	batchSize int
	logger    *logrus.Logger
}

func NewStager(policy config.TransformPolicy) *Stager {
	return &Stager{
		batchSize: policy.BatchSize,
		logger:    config.GetLogger(),
	}
}

// Stage validates the records, persists them as a sales upload with
// ordered batches, and marks the upload validated. Records that fail
// validation are counted invalid and carried in the batch error lists,
// mirroring how the file parser buckets bad rows.
func (s *Stager) Stage(ctx context.Context, businessId, provider string, records []LineRecord) (*models.Upload, error) {
	if _, ok := feedDecoders[provider]; !ok {
		return nil, fmt.Errorf("unsupported feed provider %q", provider)
	}

	upload := &models.Upload{
		BusinessId:     businessId,
		RecordType:     models.RecordTypeSales,
		SourceProvider: provider,
		FileName:       fmt.Sprintf("%s-feed-%s", provider, time.Now().UTC().Format("20060102T150405Z")),
		Status:         models.UploadStatusUploaded,
	}
	if err := models.CreateUpload(ctx, upload); err != nil {
		return nil, err
	}

	var (
		rows       []models.BatchRow
		rowErrs    []models.RowError
		batchIndex int
		rowsValid  int
	)

	flush := func() error {
		if len(rows) == 0 && len(rowErrs) == 0 {
			return nil
		}
		batch := &models.UploadBatch{
			UploadId:    upload.ID,
			BusinessId:  businessId,
			BatchIndex:  batchIndex,
			RowsTotal:   len(rows) + len(rowErrs),
			RowsValid:   len(rows),
			RowsInvalid: len(rowErrs),
			RowsJSON:    models.EncodeBatchRows(rows),
			ErrorsJSON:  models.EncodeRowErrors(rowErrs),
		}
		if err := models.CreateUploadBatch(ctx, batch); err != nil {
			return err
		}
		batchIndex++
		rows = rows[:0]
		rowErrs = rowErrs[:0]
		return nil
	}

	for i, record := range records {
		rowNum := i + 1
		if fieldErrs := validateRecord(record); len(fieldErrs) > 0 {
			rowErrs = append(rowErrs, models.RowError{Row: rowNum, Errors: fieldErrs})
		} else {
			rowsValid++
			rows = append(rows, models.BatchRow{Row: rowNum, Data: record.stagedRow()})
		}
		if len(rows)+len(rowErrs) >= s.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if err := models.MarkUploadValidated(ctx, upload.ID, len(records), rowsValid, len(records)-rowsValid, batchIndex); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"upload_id":   upload.ID,
		"business_id": businessId,
		"provider":    provider,
		"rows_total":  len(records),
		"rows_valid":  rowsValid,
		"batches":     batchIndex,
	}).Info("[posfeed.stage] feed staged")

	refreshed, err := models.GetUploadById(ctx, businessId, upload.ID)
	if err != nil {
		return upload, nil
	}
	return refreshed, nil
}

func (r LineRecord) stagedRow() map[string]any {
	return map[string]any{
		"order_id":          r.OrderId,
		"line_item_id":      r.LineItemId,
		"catalog_object_id": r.CatalogObjectId,
		"name":              r.Name,
		"quantity":          r.Quantity,
		"total_money_cents": r.TotalMoneyCents,
		"transaction_date":  r.TransactionDate.Format(time.RFC3339),
	}
}

func validateRecord(record LineRecord) []models.FieldError {
	var errs []models.FieldError
	if record.OrderId == "" {
		errs = append(errs, models.FieldError{Field: "order_id", Message: "is required"})
	}
	if record.LineItemId == "" {
		errs = append(errs, models.FieldError{Field: "line_item_id", Message: "is required"})
	}
	if q, err := decimal.NewFromString(record.Quantity); err != nil || q.LessThanOrEqual(decimal.Zero) {
		errs = append(errs, models.FieldError{Field: "quantity", Message: "must be a positive number"})
	}
	if record.TotalMoneyCents < 0 {
		errs = append(errs, models.FieldError{Field: "total_money_cents", Message: "must not be negative"})
	}
	if record.TransactionDate.IsZero() {
		errs = append(errs, models.FieldError{Field: "transaction_date", Message: "is required"})
	}
	return errs
}
