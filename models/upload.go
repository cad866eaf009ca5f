package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/utils"
	"gorm.io/gorm"
)

type RecordType string

const (
	RecordTypeInventory RecordType = "inventory"
	RecordTypeSales     RecordType = "sales"
)

type UploadStatus string

const (
	UploadStatusUploaded    UploadStatus = "uploaded"
	UploadStatusValidated   UploadStatus = "validated"
	UploadStatusTransformed UploadStatus = "transformed"
	UploadStatusFailed      UploadStatus = "failed"
)

// Upload is one ingestion run: a single raw file (or staged POS pull)
// plus the parse outcome. The raw bytes live in object storage under
// ObjectKey; the parsed rows live in UploadBatch records.
type Upload struct {
	ID             int          `gorm:"primary_key" json:"id"`
	BusinessId     string       `gorm:"index;not null" json:"business_id"`
	RecordType     RecordType   `gorm:"type:enum('inventory','sales');not null" json:"record_type"`
	SourceProvider string       `gorm:"size:50;not null" json:"source_provider"`
	FileName       string       `gorm:"size:255" json:"file_name"`
	ObjectKey      string       `gorm:"size:255" json:"object_key"`
	Status         UploadStatus `gorm:"type:enum('uploaded','validated','transformed','failed');default:'uploaded'" json:"status"`
	RowsTotal      int          `gorm:"not null;default:0" json:"rows_total"`
	RowsValid      int          `gorm:"not null;default:0" json:"rows_valid"`
	RowsInvalid    int          `gorm:"not null;default:0" json:"rows_invalid"`
	BatchCount     int          `gorm:"not null;default:0" json:"batch_count"`
	SummaryJSON    []byte       `gorm:"type:json" json:"-"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

// UploadBatch is an immutable ordered chunk of one ingestion run.
// BatchIndex is zero-based and unique per upload.
type UploadBatch struct {
	ID          int       `gorm:"primary_key" json:"id"`
	UploadId    int       `gorm:"not null;uniqueIndex:idx_upload_batch" json:"upload_id"`
	BusinessId  string    `gorm:"index;not null" json:"business_id"`
	BatchIndex  int       `gorm:"not null;uniqueIndex:idx_upload_batch" json:"batch_index"`
	RowsTotal   int       `gorm:"not null;default:0" json:"rows_total"`
	RowsValid   int       `gorm:"not null;default:0" json:"rows_valid"`
	RowsInvalid int       `gorm:"not null;default:0" json:"rows_invalid"`
	RowsJSON    []byte    `gorm:"type:json" json:"-"`
	ErrorsJSON  []byte    `gorm:"type:json" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BatchRow is one sanitized valid row. Row numbers are 1-based data-row
// positions in the source file (the header row is row 0).
type BatchRow struct {
	Row  int            `json:"row"`
	Data map[string]any `json:"data"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type RowError struct {
	Row    int          `json:"row"`
	Errors []FieldError `json:"errors"`
}

func EncodeBatchRows(rows []BatchRow) []byte {
	b, _ := json.Marshal(rows)
	return b
}

func DecodeBatchRows(raw []byte) []BatchRow {
	if len(raw) == 0 {
		return nil
	}
	var rows []BatchRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil
	}
	return rows
}

func EncodeRowErrors(errs []RowError) []byte {
	b, _ := json.Marshal(errs)
	return b
}

func DecodeRowErrors(raw []byte) []RowError {
	if len(raw) == 0 {
		return nil
	}
	var errs []RowError
	if err := json.Unmarshal(raw, &errs); err != nil {
		return nil
	}
	return errs
}

func CreateUpload(ctx context.Context, upload *Upload) error {
	if upload.BusinessId == "" {
		businessId, ok := utils.GetBusinessIdFromContext(ctx)
		if !ok {
			return errors.New("business id missing")
		}
		upload.BusinessId = businessId
	}
	return config.GetDB().WithContext(ctx).Create(upload).Error
}

// GetUploadById fetches an upload scoped to the given tenant.
func GetUploadById(ctx context.Context, businessId string, uploadId int) (*Upload, error) {
	var upload Upload
	err := config.GetDB().WithContext(ctx).
		Where("id = ? AND business_id = ?", uploadId, businessId).
		Take(&upload).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &upload, nil
}

func CreateUploadBatch(ctx context.Context, batch *UploadBatch) error {
	return config.GetDB().WithContext(ctx).Create(batch).Error
}

// GetUploadBatches returns all batches of an upload in batch-index order.
func GetUploadBatches(ctx context.Context, businessId string, uploadId int) ([]UploadBatch, error) {
	var batches []UploadBatch
	err := config.GetDB().WithContext(ctx).
		Where("upload_id = ? AND business_id = ?", uploadId, businessId).
		Order("batch_index ASC").
		Find(&batches).Error
	return batches, err
}

func CountUploadBatches(ctx context.Context, businessId string, uploadId int) (int64, error) {
	var count int64
	err := config.GetDB().WithContext(ctx).
		Model(&UploadBatch{}).
		Where("upload_id = ? AND business_id = ?", uploadId, businessId).
		Count(&count).Error
	return count, err
}

// MarkUploadValidated records the parse counters and moves the upload to
// validated (or failed when nothing valid was parsed).
func MarkUploadValidated(ctx context.Context, uploadId int, rowsTotal, rowsValid, rowsInvalid, batchCount int) error {
	status := UploadStatusValidated
	if rowsValid == 0 {
		status = UploadStatusFailed
	}
	return config.GetDB().WithContext(ctx).
		Model(&Upload{}).
		Where("id = ?", uploadId).
		Updates(map[string]interface{}{
			"status":       status,
			"rows_total":   rowsTotal,
			"rows_valid":   rowsValid,
			"rows_invalid": rowsInvalid,
			"batch_count":  batchCount,
		}).Error
}

func MarkUploadFailed(ctx context.Context, uploadId int) error {
	return config.GetDB().WithContext(ctx).
		Model(&Upload{}).
		Where("id = ?", uploadId).
		Update("status", UploadStatusFailed).Error
}

// MarkUploadTransformed stamps a completed non-dry-run transform outcome
// onto the source upload.
func MarkUploadTransformed(ctx context.Context, uploadId int, summary any) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return config.GetDB().WithContext(ctx).
		Model(&Upload{}).
		Where("id = ?", uploadId).
		Updates(map[string]interface{}{
			"status":       UploadStatusTransformed,
			"summary_json": summaryJSON,
		}).Error
}
