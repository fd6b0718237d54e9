package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tag set stored as a jsonb column.
type TagMap map[string]string

func (t TagMap) Value() (driver.Value, error) {
	if t == nil {
		return "{}", nil
	}
	b, err := json.Marshal(t)
	return string(b), err
}

func (t *TagMap) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported tag column type %T", value)
	}
}

type Store struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	Source     string    `gorm:"not null;uniqueIndex:idx_store_identity" json:"source"` // "osm" or "seed"
	ExternalID string    `gorm:"not null;uniqueIndex:idx_store_identity" json:"external_id"`
	Name       string    `gorm:"not null" json:"name"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Tags       TagMap    `gorm:"type:jsonb" json:"tags,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *Store) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

func (Store) TableName() string {
	return "stores"
}
