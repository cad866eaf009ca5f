package ingest

import (
	"testing"

	"github.com/marginworks/costbooks_backend/models"
)

func TestNormalizeHeader(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Item Name", "item_name"},
		{"  Unit Cost  ", "unit_cost"},
		{"par-level", "par_level"},
		{"REORDER   POINT", "reorder_point"},
		{"\uFEFFname", "name"},
		{"qty", "qty"},
	}
	for _, tt := range tests {
		if got := NormalizeHeader(tt.raw); got != tt.want {
			t.Errorf("NormalizeHeader(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestCanonicalHeaderAliases(t *testing.T) {
	inv := SchemaFor(models.RecordTypeInventory)
	tests := []struct {
		raw  string
		want string
	}{
		{"SKU", "code"},
		{"Item Name", "name"},
		{"Cost Per Unit", "unit_cost"},
		{"Price", "unit_cost"},
		{"Par", "par_level"},
		{"UOM", "unit"},
		{"Department", "category"},
		// unknown headings pass through normalized
		{"Vendor Notes", "vendor_notes"},
	}
	for _, tt := range tests {
		if got := inv.CanonicalHeader(tt.raw); got != tt.want {
			t.Errorf("CanonicalHeader(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}

	sales := SchemaFor(models.RecordTypeSales)
	if got := sales.CanonicalHeader("Closed At"); got != "transaction_date" {
		t.Errorf("CanonicalHeader(Closed At) = %q, want transaction_date", got)
	}
	if got := sales.CanonicalHeader("Variation Id"); got != "catalog_object_id" {
		t.Errorf("CanonicalHeader(Variation Id) = %q, want catalog_object_id", got)
	}
}

func TestMissingRequired(t *testing.T) {
	inv := SchemaFor(models.RecordTypeInventory)

	missing := inv.MissingRequired([]string{"name", "category", "unit"})
	if len(missing) != 1 || missing[0] != "unit_cost" {
		t.Fatalf("MissingRequired = %v, want [unit_cost]", missing)
	}

	if missing := inv.MissingRequired([]string{"name", "unit_cost"}); len(missing) != 0 {
		t.Fatalf("MissingRequired = %v, want none", missing)
	}
}
