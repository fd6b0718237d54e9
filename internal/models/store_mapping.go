package models

import (
	"time"

	"github.com/google/uuid"
)

// StoreProviderMapping caches the spatial match between an internal store and
// an external provider's own location id. Valid only while verified recently
// enough; the overlay service enforces the freshness floor.
type StoreProviderMapping struct {
	StoreID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"store_id"`
	Provider           string    `gorm:"primaryKey" json:"provider"`
	ProviderLocationID string    `gorm:"not null" json:"provider_location_id"`
	MatchMethod        string    `json:"match_method"` // "nearest"
	MatchScore         float64   `json:"match_score"`
	CreatedAt          time.Time `json:"created_at"`
	VerifiedAt         time.Time `json:"verified_at"`
}

func (StoreProviderMapping) TableName() string {
	return "store_provider_mappings"
}
