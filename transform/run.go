package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marginworks/costbooks_backend/models"
	"github.com/marginworks/costbooks_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Precondition failures. Returned before any run ledger row is created.
var (
	ErrUploadNotFound     = errors.New("upload not found")
	ErrUploadNotValidated = errors.New("upload has not been validated")
	ErrNoValidRows        = errors.New("upload has no valid rows")
	ErrNoBatches          = errors.New("upload has no batches")
	ErrWrongRecordType    = errors.New("upload record type does not match transform")
)

type RunSummary struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
}

// RunRowError ties a failure back to its position in the staged data.
type RunRowError struct {
	BatchIndex int    `json:"batch_index"`
	Row        int    `json:"row"`
	Message    string `json:"message"`
}

// RunResult is the outcome of one orchestrator invocation.
type RunResult struct {
	RunId     int           `json:"run_id"`
	Status    string        `json:"status"`
	DryRun    bool          `json:"dry_run"`
	ErrorRate float64       `json:"error_rate"`
	Summary   RunSummary    `json:"summary"`
	Errors    []RunRowError `json:"errors,omitempty"`
}

// RunFailedError is returned when a run finalizes as failed because the
// error rate exceeded the configured gate. It carries the full result,
// including any rows that were written before the gate tripped.
type RunFailedError struct {
	Result *RunResult
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("transform run %d failed: %d of %d rows errored (rate %.4f)",
		e.Result.RunId, e.Result.Summary.Errors, e.Result.Summary.Processed, e.Result.ErrorRate)
}

// loadValidatedUpload checks every precondition a transform requires
// before its ledger row is created. Tenant mismatches surface as
// not-found: lookups are already scoped to the caller's business.
func loadValidatedUpload(ctx context.Context, store Store, businessId string, uploadId int,
	want models.RecordType) (*models.Upload, []models.UploadBatch, error) {

	upload, err := store.GetUpload(ctx, businessId, uploadId)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, nil, ErrUploadNotFound
		}
		return nil, nil, err
	}
	if upload.RecordType != want {
		return nil, nil, ErrWrongRecordType
	}
	// Transformed uploads stay runnable: re-running is how idempotency
	// is exercised after a partial failure.
	if upload.Status != models.UploadStatusValidated && upload.Status != models.UploadStatusTransformed {
		return nil, nil, ErrUploadNotValidated
	}
	if upload.RowsValid < 1 {
		return nil, nil, ErrNoValidRows
	}

	batches, err := store.GetUploadBatches(ctx, businessId, uploadId)
	if err != nil {
		return nil, nil, err
	}
	if len(batches) == 0 {
		return nil, nil, ErrNoBatches
	}
	return upload, batches, nil
}

// finalizeRun settles a run's status against the error-rate gate, writes
// the ledger row, and optionally marks the source upload transformed.
// A failed run returns *RunFailedError so callers can surface the
// partial result.
func finalizeRun(ctx context.Context, store Store, errorRatePct float64, logger *logrus.Logger,
	event string, upload *models.Upload, result *RunResult, markTransformed bool) (*RunResult, error) {

	result.ErrorRate = runErrorRate(result.Summary.Errors, result.Summary.Processed)

	status := models.TransformRunStatusCompleted
	if result.ErrorRate > errorRatePct/100 {
		status = models.TransformRunStatusFailed
	}
	result.Status = string(status)

	if err := store.FinalizeRun(ctx, result.RunId, status,
		result.Summary.Processed, result.Summary.Created, result.Summary.Updated,
		result.Summary.Skipped, result.Summary.Errors, result.ErrorRate,
		encodeLedgerErrors(result.Errors)); err != nil {
		return result, err
	}

	if status == models.TransformRunStatusCompleted && markTransformed {
		if err := store.MarkUploadTransformed(ctx, upload.ID, result.Summary); err != nil {
			return result, err
		}
	}

	logger.WithFields(logrus.Fields{
		"run_id":     result.RunId,
		"status":     result.Status,
		"processed":  result.Summary.Processed,
		"created":    result.Summary.Created,
		"updated":    result.Summary.Updated,
		"skipped":    result.Summary.Skipped,
		"errors":     result.Summary.Errors,
		"error_rate": result.ErrorRate,
	}).Info("[" + event + "] run finished")

	if status == models.TransformRunStatusFailed {
		return result, &RunFailedError{Result: result}
	}
	return result, nil
}

func runErrorRate(errorCount, processed int) float64 {
	if processed == 0 {
		return 0
	}
	return float64(errorCount) / float64(processed)
}

// ErrorsJSON capped so a pathological upload cannot balloon the ledger row.
const maxLedgerErrors = 50

func encodeLedgerErrors(errs []RunRowError) []byte {
	if len(errs) == 0 {
		return nil
	}
	sample := errs
	if len(sample) > maxLedgerErrors {
		sample = sample[:maxLedgerErrors]
	}
	raw, err := json.Marshal(sample)
	if err != nil {
		return nil
	}
	return raw
}

// Row data comes back from JSON-typed batch columns, so numbers may be
// float64 or json.Number depending on the decode path. These accessors
// absorb that.

func stringField(data map[string]any, name string) string {
	v, ok := data[name]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func decimalField(data map[string]any, name string) (decimal.Decimal, bool) {
	raw := stringField(data, name)
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func intField(data map[string]any, name string) (int64, bool) {
	v, ok := data[name]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
