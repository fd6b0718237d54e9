package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StoreRepository struct {
	db *storage.Postgres
}

func NewStoreRepository(db *storage.Postgres) *StoreRepository {
	return &StoreRepository{db: db}
}

// Upsert writes the store keyed on (source, external_id) and refreshes
// last_seen_at. Called opportunistically after successful discovery fetches.
func (r *StoreRepository) Upsert(ctx context.Context, store *models.Store) error {
	store.LastSeenAt = time.Now().UTC()

	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "source"}, {Name: "external_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "lat", "lon", "tags", "last_seen_at",
			}),
		}).
		Create(store).Error
}

func (r *StoreRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	err := r.db.DB.WithContext(ctx).
		Where("id = ?", id).
		First(&store).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &store, err
}

func (r *StoreRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Store, error) {
	var stores []models.Store
	err := r.db.DB.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&stores).Error

	return stores, err
}

func (r *StoreRepository) FindByIdentity(ctx context.Context, source, externalID string) (*models.Store, error) {
	var store models.Store
	err := r.db.DB.WithContext(ctx).
		Where("source = ? AND external_id = ?", source, externalID).
		First(&store).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &store, err
}

func (r *StoreRepository) ListBySource(ctx context.Context, source string) ([]models.Store, error) {
	var stores []models.Store
	err := r.db.DB.WithContext(ctx).
		Where("source = ?", source).
		Order("name ASC").
		Find(&stores).Error

	return stores, err
}
