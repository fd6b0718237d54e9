package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PriceSnapshot is an append-only price observation. Rows are never updated,
// only superseded by newer rows for the same (store_id, upc).
type PriceSnapshot struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	StoreID          uuid.UUID `gorm:"type:uuid;index:idx_snapshot_lookup" json:"store_id"`
	UPC              string    `gorm:"index:idx_snapshot_lookup" json:"upc"`
	PriceCents       int64     `gorm:"not null" json:"price_cents"`
	Currency         string    `gorm:"default:'USD'" json:"currency"`
	ObservedAt       time.Time `gorm:"index:idx_snapshot_lookup,sort:desc" json:"observed_at"`
	Source           string    `gorm:"not null" json:"source"`        // "dataset", "community" or "live"
	EvidenceType     string    `gorm:"not null" json:"evidence_type"` // "dataset", "manual" or "receipt_text"
	Confidence       float64   `json:"confidence"`
	SubmitterSession string    `json:"-"`
	Flags            string    `json:"flags,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

func (p *PriceSnapshot) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (PriceSnapshot) TableName() string {
	return "price_snapshots"
}
