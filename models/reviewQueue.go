package models

import (
	"context"
	"time"

	"github.com/marginworks/costbooks_backend/config"
)

// ReviewQueueEntry records an item whose category could not be classified
// with enough confidence; the fallback category was applied and a human
// should confirm or correct it.
type ReviewQueueEntry struct {
	ID              int       `gorm:"primary_key" json:"id"`
	BusinessId      string    `gorm:"index;not null" json:"business_id"`
	InventoryItemId int       `gorm:"index;not null" json:"inventory_item_id"`
	RawLabel        string    `gorm:"size:255" json:"raw_label"`
	Reason          string    `gorm:"size:255" json:"reason"`
	Resolved        bool      `gorm:"not null;default:false" json:"resolved"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r ReviewQueueEntry) GetBusinessId() string {
	return r.BusinessId
}

type reviewNotification struct {
	BusinessId      string `json:"business_id"`
	InventoryItemId int    `json:"inventory_item_id"`
	RawLabel        string `json:"raw_label"`
}

// QueueItemForReview persists the review entry and pushes a best-effort
// notification onto the tenant's review list in Redis.
func QueueItemForReview(ctx context.Context, entry *ReviewQueueEntry) error {
	if err := config.GetDB().WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	_ = config.PushRedisList("ReviewQueue:"+entry.BusinessId, reviewNotification{
		BusinessId:      entry.BusinessId,
		InventoryItemId: entry.InventoryItemId,
		RawLabel:        entry.RawLabel,
	})
	return nil
}
