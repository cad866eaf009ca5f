package models

import (
	"context"
	"errors"
	"time"

	"github.com/marginworks/costbooks_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SalesTransaction is the canonical (tier-2) sales line item. It is
// immutable once created: corrections arrive as new transactions from
// the provider, never as mutations. (source_provider, source_line_item_id)
// is unique, so re-ingesting the same provider data is a no-op.
type SalesTransaction struct {
	ID               int             `gorm:"primary_key" json:"id"`
	BusinessId       string          `gorm:"index;not null" json:"business_id"`
	InventoryItemId  *int            `gorm:"index" json:"inventory_item_id"`
	TransactionDate  time.Time       `gorm:"index;not null" json:"transaction_date"`
	Quantity         string          `gorm:"type:decimal(20,4);not null" json:"quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	SourceProvider   string          `gorm:"size:50;not null;uniqueIndex:idx_txn_source" json:"source_provider"`
	SourceOrderId    string          `gorm:"size:191;index" json:"source_order_id"`
	SourceLineItemId string          `gorm:"size:191;not null;uniqueIndex:idx_txn_source" json:"source_line_item_id"`
	ProviderPayload  []byte          `gorm:"type:json" json:"-"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (s SalesTransaction) GetBusinessId() string {
	return s.BusinessId
}

// FindSalesTransactionBySource looks up a canonical transaction by its
// provider line-item key. Returns (nil, nil) when absent.
func FindSalesTransactionBySource(ctx context.Context, sourceProvider, sourceLineItemId string) (*SalesTransaction, error) {
	var txn SalesTransaction
	err := config.GetDB().WithContext(ctx).
		Where("source_provider = ? AND source_line_item_id = ?", sourceProvider, sourceLineItemId).
		Take(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// CreateSalesTransactionIdempotent inserts the transaction unless the
// provider line item was already reconciled. Duplicate-key races count
// as "already present", never as errors.
func CreateSalesTransactionIdempotent(ctx context.Context, txn *SalesTransaction) (created bool, err error) {
	existing, err := FindSalesTransactionBySource(ctx, txn.SourceProvider, txn.SourceLineItemId)
	if err != nil {
		return false, err
	}
	if existing != nil {
		txn.ID = existing.ID
		return false, nil
	}

	if err := config.GetDB().WithContext(ctx).Create(txn).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
