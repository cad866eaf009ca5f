package ingest

import (
	"strings"

	"github.com/marginworks/costbooks_backend/models"
)

// FieldKind drives coercion and validation of a sanitized cell.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindDecimal FieldKind = "decimal"
	KindInt     FieldKind = "int"
	KindDate    FieldKind = "date"
)

// FieldRule is one canonical column of a record type: how the raw cell
// is coerced and which constraints reject the row.
type FieldRule struct {
	Name        string
	Kind        FieldKind
	Required    bool
	Positive    bool // value must be > 0
	NonNegative bool // value must be >= 0
	MaxLen      int  // strings only; 0 means unbounded
}

// Schema declares, for one record type, the canonical fields plus the
// alias table that maps human-entered column headings onto them.
// A Schema is immutable after construction.
type Schema struct {
	RecordType models.RecordType
	fields     []FieldRule
	byName     map[string]FieldRule
	aliases    map[string]string
}

func newSchema(recordType models.RecordType, fields []FieldRule, aliases map[string]string) *Schema {
	byName := make(map[string]FieldRule, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	normalized := make(map[string]string, len(aliases))
	for k, v := range aliases {
		normalized[NormalizeHeader(k)] = v
	}
	return &Schema{
		RecordType: recordType,
		fields:     fields,
		byName:     byName,
		aliases:    normalized,
	}
}

// NormalizeHeader lower_snake_cases a raw column heading.
func NormalizeHeader(raw string) string {
	h := strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF"))
	h = strings.ToLower(h)
	h = strings.Join(strings.Fields(h), "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

// CanonicalHeader maps a raw heading through the alias table; unknown
// headings keep their normalized form so provider-specific columns pass
// through into the row payload.
func (s *Schema) CanonicalHeader(raw string) string {
	normalized := NormalizeHeader(raw)
	if canonical, ok := s.aliases[normalized]; ok {
		return canonical
	}
	return normalized
}

func (s *Schema) Rule(name string) (FieldRule, bool) {
	r, ok := s.byName[name]
	return r, ok
}

func (s *Schema) Fields() []FieldRule {
	out := make([]FieldRule, len(s.fields))
	copy(out, s.fields)
	return out
}

// MissingRequired reports which required fields are absent from the
// canonicalized header set.
func (s *Schema) MissingRequired(headers []string) []string {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}
	var missing []string
	for _, f := range s.fields {
		if f.Required && !present[f.Name] {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// SchemaFor returns the registered schema for a record type.
func SchemaFor(recordType models.RecordType) *Schema {
	if recordType == models.RecordTypeSales {
		return salesSchema
	}
	return inventorySchema
}

var inventorySchema = newSchema(models.RecordTypeInventory,
	[]FieldRule{
		{Name: "name", Kind: KindString, Required: true, MaxLen: 255},
		{Name: "code", Kind: KindString, MaxLen: 191},
		{Name: "category", Kind: KindString, MaxLen: 100},
		{Name: "unit", Kind: KindString, MaxLen: 50},
		{Name: "unit_cost", Kind: KindDecimal, Required: true, NonNegative: true},
		{Name: "par_level", Kind: KindDecimal, Positive: true},
		{Name: "reorder_point", Kind: KindDecimal, NonNegative: true},
	},
	map[string]string{
		"item":             "name",
		"item name":        "name",
		"product":          "name",
		"product name":     "name",
		"description":      "name",
		"sku":              "code",
		"item code":        "code",
		"item number":      "code",
		"plu":              "code",
		"dept":             "category",
		"department":       "category",
		"group":            "category",
		"item category":    "category",
		"uom":              "unit",
		"unit of measure":  "unit",
		"units":            "unit",
		"pack size":        "unit",
		"cost":             "unit_cost",
		"price":            "unit_cost",
		"unit price":       "unit_cost",
		"cost per unit":    "unit_cost",
		"case cost":        "unit_cost",
		"par":              "par_level",
		"par qty":          "par_level",
		"expected stock":   "par_level",
		"stocking level":   "par_level",
		"reorder":          "reorder_point",
		"reorder level":    "reorder_point",
		"reorder quantity": "reorder_point",
	},
)

var salesSchema = newSchema(models.RecordTypeSales,
	[]FieldRule{
		{Name: "order_id", Kind: KindString, Required: true, MaxLen: 191},
		{Name: "line_item_id", Kind: KindString, Required: true, MaxLen: 191},
		{Name: "catalog_object_id", Kind: KindString, MaxLen: 191},
		{Name: "name", Kind: KindString, MaxLen: 255},
		{Name: "transaction_date", Kind: KindDate, Required: true},
		{Name: "quantity", Kind: KindDecimal, Required: true, Positive: true},
		{Name: "total_money_cents", Kind: KindInt, Required: true, NonNegative: true},
	},
	map[string]string{
		"order":          "order_id",
		"order number":   "order_id",
		"receipt id":     "order_id",
		"line id":        "line_item_id",
		"line item":      "line_item_id",
		"line item uid":  "line_item_id",
		"catalog id":     "catalog_object_id",
		"catalog ref":    "catalog_object_id",
		"item id":        "catalog_object_id",
		"variation id":   "catalog_object_id",
		"item":           "name",
		"item name":      "name",
		"date":           "transaction_date",
		"sold at":        "transaction_date",
		"sale date":      "transaction_date",
		"closed at":      "transaction_date",
		"qty":            "quantity",
		"qty sold":       "quantity",
		"amount cents":   "total_money_cents",
		"total cents":    "total_money_cents",
		"gross sales":    "total_money_cents",
		"total money":    "total_money_cents",
	},
)
