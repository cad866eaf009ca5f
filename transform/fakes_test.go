package transform

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/marginworks/costbooks_backend/models"
	"github.com/marginworks/costbooks_backend/utils"
)

// memStore is the in-memory Store used by orchestrator tests.
type memStore struct {
	uploads map[int]*models.Upload
	batches map[int][]models.UploadBatch

	items     map[string]*models.InventoryItem
	txns      map[string]*models.SalesTransaction
	runs      map[int]*models.TransformRun
	reviews   []models.ReviewQueueEntry
	marked    []int
	nextItem  int
	nextRun   int
	nextBatch int
}

func newMemStore() *memStore {
	return &memStore{
		uploads: map[int]*models.Upload{},
		batches: map[int][]models.UploadBatch{},
		items:   map[string]*models.InventoryItem{},
		txns:    map[string]*models.SalesTransaction{},
		runs:    map[int]*models.TransformRun{},
	}
}

func itemKey(businessId, provider, sourceItemId string) string {
	return businessId + "|" + provider + "|" + sourceItemId
}

func txnKey(provider, lineItemId string) string {
	return provider + "|" + lineItemId
}

// addUpload stages a validated upload with its rows chunked into batches.
func (s *memStore) addUpload(upload models.Upload, batchSize int, rows []models.BatchRow) *models.Upload {
	u := upload
	u.ID = len(s.uploads) + 1
	if u.Status == "" {
		u.Status = models.UploadStatusValidated
	}
	u.RowsTotal = len(rows)
	u.RowsValid = len(rows)

	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]
		s.batches[u.ID] = append(s.batches[u.ID], models.UploadBatch{
			ID:         s.nextBatch + 1,
			UploadId:   u.ID,
			BusinessId: u.BusinessId,
			BatchIndex: start / batchSize,
			RowsTotal:  len(chunk),
			RowsValid:  len(chunk),
			RowsJSON:   models.EncodeBatchRows(chunk),
		})
		s.nextBatch++
	}
	u.BatchCount = len(s.batches[u.ID])
	s.uploads[u.ID] = &u
	return &u
}

func (s *memStore) GetUpload(_ context.Context, businessId string, uploadId int) (*models.Upload, error) {
	u, ok := s.uploads[uploadId]
	if !ok || u.BusinessId != businessId {
		return nil, utils.ErrorRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) GetUploadBatches(_ context.Context, businessId string, uploadId int) ([]models.UploadBatch, error) {
	batches := append([]models.UploadBatch(nil), s.batches[uploadId]...)
	sort.Slice(batches, func(i, j int) bool { return batches[i].BatchIndex < batches[j].BatchIndex })
	return batches, nil
}

func (s *memStore) MarkUploadTransformed(_ context.Context, uploadId int, _ any) error {
	if u, ok := s.uploads[uploadId]; ok {
		u.Status = models.UploadStatusTransformed
	}
	s.marked = append(s.marked, uploadId)
	return nil
}

func (s *memStore) CreateRun(_ context.Context, run *models.TransformRun) error {
	s.nextRun++
	run.ID = s.nextRun
	run.Status = models.TransformRunStatusProcessing
	now := time.Now()
	run.StartedAt = &now
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memStore) FinalizeRun(_ context.Context, runId int, status models.TransformRunStatus,
	processed, created, updated, skipped, errorCount int, errorRate float64, errorsJSON []byte) error {
	run, ok := s.runs[runId]
	if !ok {
		return fmt.Errorf("run %d not found", runId)
	}
	run.Status = status
	run.ProcessedCount = processed
	run.CreatedCount = created
	run.UpdatedCount = updated
	run.SkippedCount = skipped
	run.ErrorCount = errorCount
	run.ErrorRate = errorRate
	run.ErrorsJSON = errorsJSON
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

func (s *memStore) FindItemBySource(_ context.Context, businessId, provider, sourceItemId string) (*models.InventoryItem, error) {
	item, ok := s.items[itemKey(businessId, provider, sourceItemId)]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *memStore) UpsertItem(_ context.Context, item *models.InventoryItem) (bool, error) {
	key := itemKey(item.BusinessId, item.SourceProvider, item.SourceItemId)
	if existing, ok := s.items[key]; ok {
		item.ID = existing.ID
		cp := *item
		s.items[key] = &cp
		return false, nil
	}
	s.nextItem++
	item.ID = s.nextItem
	cp := *item
	s.items[key] = &cp
	return true, nil
}

func (s *memStore) QueueReview(_ context.Context, entry *models.ReviewQueueEntry) error {
	entry.ID = len(s.reviews) + 1
	s.reviews = append(s.reviews, *entry)
	return nil
}

func (s *memStore) FindTransactionBySource(_ context.Context, provider, lineItemId string) (*models.SalesTransaction, error) {
	txn, ok := s.txns[txnKey(provider, lineItemId)]
	if !ok {
		return nil, nil
	}
	cp := *txn
	return &cp, nil
}

func (s *memStore) CreateTransaction(_ context.Context, txn *models.SalesTransaction) (bool, error) {
	key := txnKey(txn.SourceProvider, txn.SourceLineItemId)
	if _, ok := s.txns[key]; ok {
		return false, nil
	}
	txn.ID = len(s.txns) + 1
	cp := *txn
	s.txns[key] = &cp
	return true, nil
}
