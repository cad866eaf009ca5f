package models

import (
	"context"
	"time"

	"github.com/marginworks/costbooks_backend/config"
)

type TransformRunStatus string

const (
	TransformRunStatusProcessing TransformRunStatus = "processing"
	TransformRunStatusCompleted  TransformRunStatus = "completed"
	TransformRunStatusFailed     TransformRunStatus = "failed"
)

// TransformRun is the audit ledger for one orchestrator invocation.
// A row is created in processing after preconditions pass and finalized
// exactly once.
type TransformRun struct {
	ID             int                `gorm:"primary_key" json:"id"`
	BusinessId     string             `gorm:"index;not null" json:"business_id"`
	UploadId       int                `gorm:"index;not null" json:"upload_id"`
	RecordType     RecordType         `gorm:"type:enum('inventory','sales');not null" json:"record_type"`
	DryRun         bool               `gorm:"not null;default:false" json:"dry_run"`
	Status         TransformRunStatus `gorm:"type:enum('processing','completed','failed');default:'processing'" json:"status"`
	ProcessedCount int                `gorm:"not null;default:0" json:"processed_count"`
	CreatedCount   int                `gorm:"not null;default:0" json:"created_count"`
	UpdatedCount   int                `gorm:"not null;default:0" json:"updated_count"`
	SkippedCount   int                `gorm:"not null;default:0" json:"skipped_count"`
	ErrorCount     int                `gorm:"not null;default:0" json:"error_count"`
	ErrorRate      float64            `gorm:"default:0" json:"error_rate"`
	ErrorsJSON     []byte             `gorm:"type:json" json:"-"`
	TriggeredBy    string             `gorm:"size:50" json:"triggered_by"`
	StartedAt      *time.Time         `json:"started_at"`
	FinishedAt     *time.Time         `json:"finished_at"`
	CreatedAt      time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t TransformRun) GetBusinessId() string {
	return t.BusinessId
}

func CreateTransformRun(ctx context.Context, run *TransformRun) error {
	now := time.Now()
	run.Status = TransformRunStatusProcessing
	run.StartedAt = &now
	return config.GetDB().WithContext(ctx).Create(run).Error
}

// FinalizeTransformRun transitions the run out of processing with its
// summary counters and sampled errors.
func FinalizeTransformRun(ctx context.Context, runId int, status TransformRunStatus,
	processed, created, updated, skipped, errorCount int, errorRate float64, errorsJSON []byte) error {
	now := time.Now()
	return config.GetDB().WithContext(ctx).
		Model(&TransformRun{}).
		Where("id = ?", runId).
		Updates(map[string]interface{}{
			"status":          status,
			"processed_count": processed,
			"created_count":   created,
			"updated_count":   updated,
			"skipped_count":   skipped,
			"error_count":     errorCount,
			"error_rate":      errorRate,
			"errors_json":     errorsJSON,
			"finished_at":     now,
		}).Error
}

func GetTransformRunById(ctx context.Context, businessId string, runId int) (*TransformRun, error) {
	var run TransformRun
	err := config.GetDB().WithContext(ctx).
		Where("id = ? AND business_id = ?", runId, businessId).
		Take(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func ListTransformRuns(ctx context.Context, businessId string, limit int) ([]TransformRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []TransformRun
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ?", businessId).
		Order("id DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
