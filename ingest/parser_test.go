package ingest

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marginworks/costbooks_backend/models"
	"github.com/xuri/excelize/v2"
)

type memSink struct {
	batches []models.UploadBatch
	failOn  int // batch index to fail on; -1 disables
}

func newMemSink() *memSink {
	return &memSink{failOn: -1}
}

func (s *memSink) Persist(_ context.Context, batch *models.UploadBatch) error {
	if batch.BatchIndex == s.failOn {
		return errors.New("sink unavailable")
	}
	s.batches = append(s.batches, *batch)
	return nil
}

func parseCSV(t *testing.T, recordType models.RecordType, batchSize int, body string) (*ParseSummary, *memSink, error) {
	t.Helper()
	sink := newMemSink()
	p := NewParser(SchemaFor(recordType), batchSize, sink)
	summary, err := p.Parse(context.Background(), "biz-1", 7, strings.NewReader(body), FormatCSV)
	return summary, sink, err
}

func TestParseMissingHeadersAbortsBeforeAnyBatch(t *testing.T) {
	body := "name,category,unit\nflour,dry goods,lb\n"
	_, sink, err := parseCSV(t, models.RecordTypeInventory, 10, body)

	var missing *MissingHeadersError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingHeadersError, got %v", err)
	}
	if len(missing.Missing) != 1 || missing.Missing[0] != "unit_cost" {
		t.Fatalf("missing = %v, want [unit_cost]", missing.Missing)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("persisted %d batches, want 0", len(sink.batches))
	}
}

func TestParseEmptyInputAbortsWithAllRequired(t *testing.T) {
	_, sink, err := parseCSV(t, models.RecordTypeInventory, 10, "")
	var missing *MissingHeadersError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingHeadersError, got %v", err)
	}
	if len(sink.batches) != 0 {
		t.Fatalf("persisted %d batches, want 0", len(sink.batches))
	}
}

func TestParseBucketsValidAndInvalidRows(t *testing.T) {
	body := strings.Join([]string{
		"Item Name,SKU,Department,UOM,Cost,Par",
		"Flour,FL-1,dry goods,lb,12.50,4",
		"Broken,,dry goods,lb,not-a-number,4",
		"Butter,BT-9,dairy,lb,3.99,",
		",,,,,",
		"NoCost,NC-1,dairy,lb,,2",
	}, "\n")

	summary, sink, err := parseCSV(t, models.RecordTypeInventory, 100, body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if summary.RowsTotal != 4 || summary.RowsValid != 2 || summary.RowsInvalid != 2 {
		t.Fatalf("summary = %d/%d/%d, want 4/2/2", summary.RowsTotal, summary.RowsValid, summary.RowsInvalid)
	}
	if !summary.ReadyForTransform {
		t.Fatal("expected ReadyForTransform")
	}
	if len(sink.batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(sink.batches))
	}

	rows := models.DecodeBatchRows(sink.batches[0].RowsJSON)
	if len(rows) != 2 {
		t.Fatalf("valid rows = %d, want 2", len(rows))
	}
	// blank line is skipped entirely, so data rows number 1,2,3,4
	if rows[0].Row != 1 || rows[1].Row != 3 {
		t.Fatalf("row numbers = %d,%d, want 1,3", rows[0].Row, rows[1].Row)
	}
	if rows[0].Data["name"] != "Flour" || rows[0].Data["code"] != "FL-1" {
		t.Fatalf("unexpected row data: %v", rows[0].Data)
	}
	if rows[0].Data["unit_cost"] != "12.5" {
		t.Fatalf("unit_cost = %v, want canonical decimal string 12.5", rows[0].Data["unit_cost"])
	}
	// empty cell becomes explicit null
	if v, ok := rows[1].Data["par_level"]; !ok || v != nil {
		t.Fatalf("par_level = %v (present=%v), want nil", v, ok)
	}

	rowErrs := models.DecodeRowErrors(sink.batches[0].ErrorsJSON)
	if len(rowErrs) != 2 {
		t.Fatalf("row errors = %d, want 2", len(rowErrs))
	}
	if rowErrs[0].Row != 2 || rowErrs[0].Errors[0].Field != "unit_cost" {
		t.Fatalf("unexpected first row error: %+v", rowErrs[0])
	}
	// unit_cost failed coercion and is also required; that is one error,
	// not two.
	if len(rowErrs[0].Errors) != 1 {
		t.Fatalf("errors for row 2 = %+v, want exactly one", rowErrs[0].Errors)
	}
	if rowErrs[1].Row != 4 {
		t.Fatalf("second error row = %d, want 4", rowErrs[1].Row)
	}
}

func TestParseFlushesBatchesAtThreshold(t *testing.T) {
	var b strings.Builder
	b.WriteString("name,unit_cost\n")
	for i := 0; i < 5; i++ {
		b.WriteString("item,1.00\n")
	}

	summary, sink, err := parseCSV(t, models.RecordTypeInventory, 2, b.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if summary.BatchCount != 3 {
		t.Fatalf("BatchCount = %d, want 3", summary.BatchCount)
	}
	for i, batch := range sink.batches {
		if batch.BatchIndex != i {
			t.Fatalf("batch %d has index %d", i, batch.BatchIndex)
		}
	}
	if sink.batches[2].RowsValid != 1 {
		t.Fatalf("final partial batch RowsValid = %d, want 1", sink.batches[2].RowsValid)
	}
}

func TestParseStopsOnSinkError(t *testing.T) {
	sink := newMemSink()
	sink.failOn = 1
	p := NewParser(SchemaFor(models.RecordTypeInventory), 2, sink)

	var b strings.Builder
	b.WriteString("name,unit_cost\n")
	for i := 0; i < 6; i++ {
		b.WriteString("item,1.00\n")
	}
	_, err := p.Parse(context.Background(), "biz-1", 7, strings.NewReader(b.String()), FormatCSV)
	if err == nil || !strings.Contains(err.Error(), "persist batch 1") {
		t.Fatalf("expected persist error for batch 1, got %v", err)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("persisted %d batches, want 1", len(sink.batches))
	}
}

func TestParseDetectsSemicolonDelimiter(t *testing.T) {
	body := "name;unit_cost;unit\nolive oil;8.25;l\n"
	summary, _, err := parseCSV(t, models.RecordTypeInventory, 10, body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if summary.RowsValid != 1 {
		t.Fatalf("RowsValid = %d, want 1", summary.RowsValid)
	}
}

func TestParseSalesRowCoercion(t *testing.T) {
	body := strings.Join([]string{
		"Order Number,Line Item Uid,Variation Id,Item,Closed At,Qty,Amount Cents",
		"ord-1,li-1,cat-9,Burger,2026-03-01,2.5,995",
		"ord-1,li-2,cat-9,Burger,not-a-date,1,995",
		"ord-1,li-3,cat-9,Burger,2026-03-01,-1,995",
	}, "\n")

	summary, sink, err := parseCSV(t, models.RecordTypeSales, 10, body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if summary.RowsValid != 1 || summary.RowsInvalid != 2 {
		t.Fatalf("summary = %d valid %d invalid, want 1/2", summary.RowsValid, summary.RowsInvalid)
	}

	rows := models.DecodeBatchRows(sink.batches[0].RowsJSON)
	data := rows[0].Data
	if data["quantity"] != "2.5" {
		t.Fatalf("quantity = %v, want exact string 2.5", data["quantity"])
	}
	// ints survive the JSON round trip as float64
	if cents, ok := data["total_money_cents"].(float64); !ok || cents != 995 {
		t.Fatalf("total_money_cents = %v", data["total_money_cents"])
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"Item Name", "Cost", "UOM"},
		{"Cheddar", 4.75, "lb"},
		{"Tomatoes", 2.10, "case"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("SetSheetRow: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("Write xlsx: %v", err)
	}

	sink := newMemSink()
	p := NewParser(SchemaFor(models.RecordTypeInventory), 10, sink)
	summary, err := p.Parse(context.Background(), "biz-1", 7, &buf, FormatXLSX)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if summary.RowsValid != 2 || summary.BatchCount != 1 {
		t.Fatalf("summary = %d valid, %d batches; want 2, 1", summary.RowsValid, summary.BatchCount)
	}
}

func TestParseDate(t *testing.T) {
	for _, raw := range []string{"2026-03-01", "03/01/2026", "2026-03-01 13:45:00", "2026-03-01T13:45:00Z"} {
		if _, err := ParseDate(raw); err != nil {
			t.Errorf("ParseDate(%q): %v", raw, err)
		}
	}
	if _, err := ParseDate("yesterday"); err == nil {
		t.Error("ParseDate(yesterday) should fail")
	}
}
