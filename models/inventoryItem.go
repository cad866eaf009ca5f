package models

import (
	"context"
	"errors"
	"time"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InventoryItem is the canonical (tier-2) inventory entity. The triple
// (business_id, source_provider, source_item_id) is the idempotency key:
// repeated transform runs over the same source data update the same row.
// Rows are never deleted by the transform core.
type InventoryItem struct {
	ID                      int             `gorm:"primary_key" json:"id"`
	BusinessId              string          `gorm:"not null;uniqueIndex:idx_items_source,length:64" json:"business_id"`
	Name                    string          `gorm:"size:255;not null" json:"name"`
	Category                string          `gorm:"size:50;not null" json:"category"`
	Unit                    string          `gorm:"size:20;not null" json:"unit"`
	UnitCost                decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_cost"`
	ParLevel                decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"par_level"`
	ReorderPoint            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"reorder_point"`
	VarianceThresholdQty    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_threshold_qty"`
	VarianceThresholdDollar decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"variance_threshold_dollar"`
	IsHighValue             bool            `gorm:"not null;default:false" json:"is_high_value"`
	NeedsReview             bool            `gorm:"not null;default:false" json:"needs_review"`
	CategoryMatchType       string          `gorm:"size:10" json:"category_match_type"`
	CategoryConfidence      float64         `gorm:"default:0" json:"category_confidence"`
	SourceProvider          string          `gorm:"size:50;not null;uniqueIndex:idx_items_source" json:"source_provider"`
	SourceItemId            string          `gorm:"size:191;not null;uniqueIndex:idx_items_source" json:"source_item_id"`
	ProviderPayload         []byte          `gorm:"type:json" json:"-"`
	CreatedAt               time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (i InventoryItem) GetBusinessId() string {
	return i.BusinessId
}

// fillable lists the columns an upsert may overwrite. Identity and
// provenance keys stay fixed.
func (i *InventoryItem) fillable() map[string]interface{} {
	return map[string]interface{}{
		"name":                      i.Name,
		"category":                  i.Category,
		"unit":                      i.Unit,
		"unit_cost":                 i.UnitCost,
		"par_level":                 i.ParLevel,
		"reorder_point":             i.ReorderPoint,
		"variance_threshold_qty":    i.VarianceThresholdQty,
		"variance_threshold_dollar": i.VarianceThresholdDollar,
		"is_high_value":             i.IsHighValue,
		"needs_review":              i.NeedsReview,
		"category_match_type":       i.CategoryMatchType,
		"category_confidence":       i.CategoryConfidence,
		"provider_payload":          i.ProviderPayload,
	}
}

// FindInventoryItemBySource looks up the canonical item by its
// idempotency key. Returns (nil, nil) when absent.
func FindInventoryItemBySource(ctx context.Context, businessId, sourceProvider, sourceItemId string) (*InventoryItem, error) {
	var item InventoryItem
	err := config.GetDB().WithContext(ctx).
		Where("business_id = ? AND source_provider = ? AND source_item_id = ?",
			businessId, sourceProvider, sourceItemId).
		Take(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

// UpsertInventoryItemBySource creates or updates the canonical item keyed
// by (business, provider, source item id). A duplicate-key race with a
// concurrent run resolves by re-reading and updating the winner's row.
func UpsertInventoryItemBySource(ctx context.Context, item *InventoryItem) (created bool, err error) {
	db := config.GetDB().WithContext(ctx)

	existing, err := FindInventoryItemBySource(ctx, item.BusinessId, item.SourceProvider, item.SourceItemId)
	if err != nil {
		return false, err
	}
	if existing != nil {
		item.ID = existing.ID
		return false, db.Model(&InventoryItem{}).
			Where("id = ?", existing.ID).
			Updates(item.fillable()).Error
	}

	if err := db.Create(item).Error; err != nil {
		if !IsDuplicateKeyErr(err) {
			return false, err
		}
		// Lost the insert race; the unique key guarantees exactly one row.
		winner, ferr := FindInventoryItemBySource(ctx, item.BusinessId, item.SourceProvider, item.SourceItemId)
		if ferr != nil {
			return false, ferr
		}
		if winner == nil {
			return false, err
		}
		item.ID = winner.ID
		return false, db.Model(&InventoryItem{}).
			Where("id = ?", winner.ID).
			Updates(item.fillable()).Error
	}
	return true, nil
}
