package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/storage"
	"gorm.io/gorm"
)

type PriceRepository struct {
	db *storage.Postgres
}

func NewPriceRepository(db *storage.Postgres) *PriceRepository {
	return &PriceRepository{db: db}
}

// Insert appends a snapshot. The evidence log is append-only; there is no
// update path.
func (r *PriceRepository) Insert(ctx context.Context, snapshot *models.PriceSnapshot) error {
	return r.db.DB.WithContext(ctx).Create(snapshot).Error
}

// LatestSnapshots returns, per (store_id, upc) pair, the single best row:
// most recent observed_at first, tie-broken by highest confidence.
func (r *PriceRepository) LatestSnapshots(ctx context.Context, storeIDs []uuid.UUID, upcs []string) ([]models.PriceSnapshot, error) {
	if len(storeIDs) == 0 || len(upcs) == 0 {
		return nil, nil
	}

	var snapshots []models.PriceSnapshot
	err := r.db.DB.WithContext(ctx).
		Raw(`SELECT DISTINCT ON (store_id, upc) *
		     FROM price_snapshots
		     WHERE store_id IN ? AND upc IN ?
		     ORDER BY store_id, upc, observed_at DESC, confidence DESC`,
			storeIDs, upcs).
		Scan(&snapshots).Error

	return snapshots, err
}

// RecentPrices returns up to limit most recent prices for one store+upc,
// newest first. Used for the median outlier guard.
func (r *PriceRepository) RecentPrices(ctx context.Context, storeID uuid.UUID, upc string, limit int) ([]int64, error) {
	var prices []int64
	err := r.db.DB.WithContext(ctx).
		Model(&models.PriceSnapshot{}).
		Where("store_id = ? AND upc = ?", storeID, upc).
		Order("observed_at DESC").
		Limit(limit).
		Pluck("price_cents", &prices).Error

	return prices, err
}

// FindDuplicate returns an existing snapshot with the same store, upc and
// price observed within the window, if any. Used for idempotent submission.
func (r *PriceRepository) FindDuplicate(ctx context.Context, storeID uuid.UUID, upc string, priceCents int64, since time.Time) (*models.PriceSnapshot, error) {
	var snapshot models.PriceSnapshot
	err := r.db.DB.WithContext(ctx).
		Where("store_id = ? AND upc = ? AND price_cents = ? AND observed_at >= ?",
			storeID, upc, priceCents, since).
		Order("observed_at DESC").
		First(&snapshot).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &snapshot, err
}
