package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MappingRepository struct {
	db *storage.Postgres
}

func NewMappingRepository(db *storage.Postgres) *MappingRepository {
	return &MappingRepository{db: db}
}

func (r *MappingRepository) Find(ctx context.Context, storeID uuid.UUID, provider string) (*models.StoreProviderMapping, error) {
	var mapping models.StoreProviderMapping
	err := r.db.DB.WithContext(ctx).
		Where("store_id = ? AND provider = ?", storeID, provider).
		First(&mapping).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &mapping, err
}

func (r *MappingRepository) Upsert(ctx context.Context, mapping *models.StoreProviderMapping) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "store_id"}, {Name: "provider"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider_location_id", "match_method", "match_score", "verified_at",
			}),
		}).
		Create(mapping).Error
}
