package posfeed

import (
	"strings"
	"testing"
	"time"
)

func TestDecodeFeedSquare(t *testing.T) {
	payload := `{
		"provider": "square",
		"orders": [
			{
				"id": "ord-1",
				"closed_at": "2026-03-01T13:45:00Z",
				"line_items": [
					{"uid": "li-1", "catalog_object_id": "cat-9", "name": "Burger", "quantity": "2", "total_money": {"amount": 1990, "currency": "USD"}},
					{"uid": "li-2", "catalog_object_id": "", "name": "Custom Item", "quantity": "1", "total_money": {"amount": 500, "currency": "USD"}}
				]
			},
			{
				"id": "ord-2",
				"closed_at": "2026-03-01T14:00:00Z",
				"line_items": [
					{"uid": "li-3", "catalog_object_id": "cat-4", "name": "Fries", "quantity": "1.5", "total_money": {"amount": 450, "currency": "USD"}}
				]
			}
		]
	}`

	provider, records, err := DecodeFeed([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeFeed: %v", err)
	}
	if provider != ProviderSquare {
		t.Fatalf("provider = %q", provider)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}

	first := records[0]
	if first.OrderId != "ord-1" || first.LineItemId != "li-1" || first.CatalogObjectId != "cat-9" {
		t.Fatalf("first = %+v", first)
	}
	if first.Quantity != "2" || first.TotalMoneyCents != 1990 {
		t.Fatalf("first amounts = %q/%d", first.Quantity, first.TotalMoneyCents)
	}
	want := time.Date(2026, 3, 1, 13, 45, 0, 0, time.UTC)
	if !first.TransactionDate.Equal(want) {
		t.Fatalf("first date = %v", first.TransactionDate)
	}
	// line items inherit their order's close time
	if !records[1].TransactionDate.Equal(want) {
		t.Fatalf("second date = %v", records[1].TransactionDate)
	}
	if records[2].Quantity != "1.5" {
		t.Fatalf("third quantity = %q", records[2].Quantity)
	}
}

func TestDecodeFeedGeneric(t *testing.T) {
	payload := `{
		"provider": "generic",
		"orders": [
			{"order_id": "o-1", "line_item_id": "l-1", "catalog_object_id": "c-1", "name": "Taco", "quantity": "3", "total_money_cents": 900, "transaction_date": "2026-03-02T10:00:00Z"}
		]
	}`
	provider, records, err := DecodeFeed([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeFeed: %v", err)
	}
	if provider != ProviderGeneric || len(records) != 1 {
		t.Fatalf("provider = %q records = %d", provider, len(records))
	}
	if records[0].TotalMoneyCents != 900 || records[0].Quantity != "3" {
		t.Fatalf("record = %+v", records[0])
	}
}

func TestDecodeFeedUnknownProvider(t *testing.T) {
	_, _, err := DecodeFeed([]byte(`{"provider": "clover", "orders": []}`))
	if err == nil || !strings.Contains(err.Error(), "unsupported feed provider") {
		t.Fatalf("err = %v", err)
	}
}

func TestDecodeFeedMalformed(t *testing.T) {
	if _, _, err := DecodeFeed([]byte(`{"provider": "square", "orders": {"not": "a list"}}`)); err == nil {
		t.Fatal("expected decode error")
	}
	if _, _, err := DecodeFeed([]byte(`not json`)); err == nil {
		t.Fatal("expected envelope error")
	}
}

func TestValidateRecord(t *testing.T) {
	good := LineRecord{
		OrderId: "o-1", LineItemId: "l-1", Quantity: "2",
		TotalMoneyCents: 100, TransactionDate: time.Now(),
	}
	if errs := validateRecord(good); len(errs) != 0 {
		t.Fatalf("good record rejected: %v", errs)
	}

	bad := LineRecord{Quantity: "-1", TotalMoneyCents: -5}
	errs := validateRecord(bad)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{"order_id", "line_item_id", "quantity", "total_money_cents", "transaction_date"} {
		if !fields[want] {
			t.Errorf("missing error for %s: %v", want, errs)
		}
	}
}

func TestStagedRowShape(t *testing.T) {
	record := LineRecord{
		OrderId: "o-1", LineItemId: "l-1", CatalogObjectId: "c-1", Name: "Taco",
		Quantity: "2.5", TotalMoneyCents: 900,
		TransactionDate: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	row := record.stagedRow()
	if row["quantity"] != "2.5" {
		t.Fatalf("quantity = %v", row["quantity"])
	}
	if row["total_money_cents"] != int64(900) {
		t.Fatalf("total_money_cents = %v", row["total_money_cents"])
	}
	if row["transaction_date"] != "2026-03-02T10:00:00Z" {
		t.Fatalf("transaction_date = %v", row["transaction_date"])
	}
}
