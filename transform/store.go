package transform

import (
	"context"

	"github.com/marginworks/costbooks_backend/models"
)

// Store is the persistence surface the orchestrators run against. The
// production implementation delegates to the models package; tests
// substitute an in-memory one.
type Store interface {
	GetUpload(ctx context.Context, businessId string, uploadId int) (*models.Upload, error)
	GetUploadBatches(ctx context.Context, businessId string, uploadId int) ([]models.UploadBatch, error)
	MarkUploadTransformed(ctx context.Context, uploadId int, summary any) error

	CreateRun(ctx context.Context, run *models.TransformRun) error
	FinalizeRun(ctx context.Context, runId int, status models.TransformRunStatus,
		processed, created, updated, skipped, errorCount int, errorRate float64, errorsJSON []byte) error

	FindItemBySource(ctx context.Context, businessId, sourceProvider, sourceItemId string) (*models.InventoryItem, error)
	UpsertItem(ctx context.Context, item *models.InventoryItem) (created bool, err error)
	QueueReview(ctx context.Context, entry *models.ReviewQueueEntry) error

	FindTransactionBySource(ctx context.Context, sourceProvider, sourceLineItemId string) (*models.SalesTransaction, error)
	CreateTransaction(ctx context.Context, txn *models.SalesTransaction) (created bool, err error)
}

type gormStore struct{}

// NewGormStore returns the database-backed Store.
func NewGormStore() Store {
	return gormStore{}
}

func (gormStore) GetUpload(ctx context.Context, businessId string, uploadId int) (*models.Upload, error) {
	return models.GetUploadById(ctx, businessId, uploadId)
}

func (gormStore) GetUploadBatches(ctx context.Context, businessId string, uploadId int) ([]models.UploadBatch, error) {
	return models.GetUploadBatches(ctx, businessId, uploadId)
}

func (gormStore) MarkUploadTransformed(ctx context.Context, uploadId int, summary any) error {
	return models.MarkUploadTransformed(ctx, uploadId, summary)
}

func (gormStore) CreateRun(ctx context.Context, run *models.TransformRun) error {
	return models.CreateTransformRun(ctx, run)
}

func (gormStore) FinalizeRun(ctx context.Context, runId int, status models.TransformRunStatus,
	processed, created, updated, skipped, errorCount int, errorRate float64, errorsJSON []byte) error {
	return models.FinalizeTransformRun(ctx, runId, status, processed, created, updated, skipped, errorCount, errorRate, errorsJSON)
}

func (gormStore) FindItemBySource(ctx context.Context, businessId, sourceProvider, sourceItemId string) (*models.InventoryItem, error) {
	return models.FindInventoryItemBySource(ctx, businessId, sourceProvider, sourceItemId)
}

func (gormStore) UpsertItem(ctx context.Context, item *models.InventoryItem) (created bool, err error) {
	return models.UpsertInventoryItemBySource(ctx, item)
}

func (gormStore) QueueReview(ctx context.Context, entry *models.ReviewQueueEntry) error {
	return models.QueueItemForReview(ctx, entry)
}

func (gormStore) FindTransactionBySource(ctx context.Context, sourceProvider, sourceLineItemId string) (*models.SalesTransaction, error) {
	return models.FindSalesTransactionBySource(ctx, sourceProvider, sourceLineItemId)
}

func (gormStore) CreateTransaction(ctx context.Context, txn *models.SalesTransaction) (created bool, err error) {
	return models.CreateSalesTransactionIdempotent(ctx, txn)
}
