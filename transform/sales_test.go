package transform

import (
	"context"
	"testing"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/marginworks/costbooks_backend/models"
)

func salesRow(row int, orderId, lineItemId, catalogRef, qty string, cents any, date string) models.BatchRow {
	data := map[string]any{
		"order_id":          orderId,
		"line_item_id":      lineItemId,
		"quantity":          qty,
		"total_money_cents": cents,
		"transaction_date":  date,
	}
	if catalogRef == "" {
		data["catalog_object_id"] = nil
	} else {
		data["catalog_object_id"] = catalogRef
	}
	return models.BatchRow{Row: row, Data: data}
}

func stageSalesUpload(store *memStore, rows []models.BatchRow) *models.Upload {
	return store.addUpload(models.Upload{
		BusinessId:     "biz-1",
		RecordType:     models.RecordTypeSales,
		SourceProvider: "square",
	}, 100, rows)
}

func seedItem(store *memStore, catalogRef string) *models.InventoryItem {
	item := &models.InventoryItem{
		BusinessId:     "biz-1",
		SourceProvider: "square",
		SourceItemId:   catalogRef,
		Name:           "Seeded",
	}
	_, _ = store.UpsertItem(context.Background(), item)
	return item
}

func TestSalesRunCreatesTransactions(t *testing.T) {
	store := newMemStore()
	item := seedItem(store, "cat-9")
	upload := stageSalesUpload(store, []models.BatchRow{
		// cents arrive as float64 after the JSON round trip
		salesRow(1, "ord-1", "li-1", "cat-9", "1", float64(995), "2026-03-01"),
		salesRow(2, "ord-1", "li-2", "cat-9", "2.5", float64(1000), "2026-03-01T13:45:00Z"),
	})

	tr := NewSalesTransformer(store, config.DefaultTransformPolicy())
	result, err := tr.Run(context.Background(), RunRequest{BusinessId: "biz-1", UploadId: upload.ID, TriggeredBy: "test"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Summary.Created != 2 || result.Summary.Errors != 0 {
		t.Fatalf("summary = %+v", result.Summary)
	}

	txn, _ := store.FindTransactionBySource(context.Background(), "square", "li-1")
	if txn == nil {
		t.Fatal("li-1 not created")
	}
	// minor units: 995 cents is 9.95, and quantity 1 keeps unit price equal
	if txn.TotalAmount.String() != "9.95" || txn.UnitPrice.String() != "9.95" {
		t.Fatalf("li-1 amounts = %s/%s", txn.TotalAmount, txn.UnitPrice)
	}
	if txn.InventoryItemId == nil || *txn.InventoryItemId != item.ID {
		t.Fatalf("li-1 item ref = %v", txn.InventoryItemId)
	}
	if txn.SourceOrderId != "ord-1" {
		t.Fatalf("li-1 order = %s", txn.SourceOrderId)
	}

	frac, _ := store.FindTransactionBySource(context.Background(), "square", "li-2")
	// fractional quantity survives as the exact decimal string
	if frac.Quantity != "2.5" {
		t.Fatalf("li-2 quantity = %q", frac.Quantity)
	}
	if frac.TotalAmount.String() != "10" || frac.UnitPrice.String() != "4" {
		t.Fatalf("li-2 amounts = %s/%s", frac.TotalAmount, frac.UnitPrice)
	}

	// sales runs never mark the upload transformed
	if len(store.marked) != 0 {
		t.Fatal("sales run marked upload transformed")
	}
}

func TestSalesRunSkipsUnmappedLines(t *testing.T) {
	store := newMemStore()
	seedItem(store, "cat-9")
	upload := stageSalesUpload(store, []models.BatchRow{
		salesRow(1, "ord-1", "li-1", "cat-9", "1", float64(500), "2026-03-01"),
		salesRow(2, "ord-1", "li-2", "", "1", float64(500), "2026-03-01"),
		salesRow(3, "ord-1", "li-3", "cat-unknown", "1", float64(500), "2026-03-01"),
	})

	tr := NewSalesTransformer(store, config.DefaultTransformPolicy())
	result, err := tr.Run(context.Background(), RunRequest{BusinessId: "biz-1", UploadId: upload.ID})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Summary.Created != 1 || result.Summary.Skipped != 2 || result.Summary.Errors != 0 {
		t.Fatalf("summary = %+v", result.Summary)
	}
	if result.Status != string(models.TransformRunStatusCompleted) {
		t.Fatalf("status = %s", result.Status)
	}
	if len(store.txns) != 1 {
		t.Fatalf("txns = %d, want 1", len(store.txns))
	}
}

func TestSalesRunIdempotent(t *testing.T) {
	store := newMemStore()
	seedItem(store, "cat-9")
	upload := stageSalesUpload(store, []models.BatchRow{
		salesRow(1, "ord-1", "li-1", "cat-9", "1", float64(995), "2026-03-01"),
		salesRow(2, "ord-1", "li-2", "cat-9", "1", float64(250), "2026-03-01"),
	})

	tr := NewSalesTransformer(store, config.DefaultTransformPolicy())
	req := RunRequest{BusinessId: "biz-1", UploadId: upload.ID}

	if _, err := tr.Run(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := tr.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Summary.Created != 0 || second.Summary.Skipped != 2 {
		t.Fatalf("second run summary = %+v", second.Summary)
	}
	if len(store.txns) != 2 {
		t.Fatalf("txns = %d, want 2", len(store.txns))
	}
}

func TestSalesRunRowErrors(t *testing.T) {
	store := newMemStore()
	seedItem(store, "cat-9")

	noQty := salesRow(1, "ord-1", "li-1", "cat-9", "", float64(500), "2026-03-01")
	noQty.Data["quantity"] = nil
	badDate := salesRow(2, "ord-1", "li-2", "cat-9", "1", float64(500), "soon")
	negative := salesRow(3, "ord-1", "li-3", "cat-9", "1", float64(-5), "2026-03-01")
	upload := stageSalesUpload(store, []models.BatchRow{noQty, badDate, negative})

	tr := NewSalesTransformer(store, config.DefaultTransformPolicy())
	result, err := tr.Run(context.Background(), RunRequest{BusinessId: "biz-1", UploadId: upload.ID})
	if err == nil {
		t.Fatal("expected gate failure with every row errored")
	}
	if result.Summary.Errors != 3 || len(result.Errors) != 3 {
		t.Fatalf("summary = %+v errors = %d", result.Summary, len(result.Errors))
	}
	for i, rowErr := range result.Errors {
		if rowErr.Row != i+1 {
			t.Fatalf("error %d references row %d", i, rowErr.Row)
		}
	}
}

func TestSalesRunDryRun(t *testing.T) {
	store := newMemStore()
	seedItem(store, "cat-9")
	upload := stageSalesUpload(store, []models.BatchRow{
		salesRow(1, "ord-1", "li-1", "cat-9", "1", float64(995), "2026-03-01"),
	})
	_, _ = store.CreateTransaction(context.Background(), &models.SalesTransaction{
		BusinessId: "biz-1", SourceProvider: "square", SourceLineItemId: "li-0", SourceOrderId: "ord-0",
	})

	tr := NewSalesTransformer(store, config.DefaultTransformPolicy())
	result, err := tr.Run(context.Background(), RunRequest{BusinessId: "biz-1", UploadId: upload.ID, DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if result.Summary.Created != 1 {
		t.Fatalf("summary = %+v", result.Summary)
	}
	if len(store.txns) != 1 {
		t.Fatalf("dry run persisted transactions: %d", len(store.txns))
	}
}
