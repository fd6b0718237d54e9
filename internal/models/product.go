package models

import (
	"time"
)

// Product is the canonical row per UPC. Last write wins on refresh.
type Product struct {
	UPC            string    `gorm:"primaryKey" json:"upc"`
	Source         string    `gorm:"not null" json:"source"` // "catalog" or "seed"
	Name           string    `gorm:"not null" json:"name"`
	Brand          string    `json:"brand,omitempty"`
	NormalizedName string    `gorm:"index" json:"normalized_name,omitempty"`
	QuantityValue  float64   `json:"quantity_value,omitempty"`
	QuantityUnit   string    `json:"quantity_unit,omitempty"`
	ImageURL       string    `json:"image_url,omitempty"`
	SourceURL      string    `json:"source_url,omitempty"`
	ContentHash    string    `json:"-"` // hash of the raw provider payload, for drift detection
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}
