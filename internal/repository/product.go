package repository

import (
	"context"

	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProductRepository struct {
	db *storage.Postgres
}

func NewProductRepository(db *storage.Postgres) *ProductRepository {
	return &ProductRepository{db: db}
}

// Upsert replaces the canonical row for the UPC. Last write wins.
func (r *ProductRepository) Upsert(ctx context.Context, product *models.Product) error {
	return r.db.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "upc"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"source", "name", "brand", "normalized_name",
				"quantity_value", "quantity_unit",
				"image_url", "source_url", "content_hash", "updated_at",
			}),
		}).
		Create(product).Error
}

func (r *ProductRepository) FindByUPC(ctx context.Context, upc string) (*models.Product, error) {
	var product models.Product
	err := r.db.DB.WithContext(ctx).
		Where("upc = ?", upc).
		First(&product).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &product, err
}

// Search matches against name and normalized name, paged.
func (r *ProductRepository) Search(ctx context.Context, query string, page, pageSize int) ([]models.Product, int64, error) {
	pattern := "%" + query + "%"

	base := r.db.DB.WithContext(ctx).
		Model(&models.Product{}).
		Where("name ILIKE ? OR normalized_name ILIKE ?", pattern, pattern)

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := base.
		Order("name ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&products).Error

	return products, total, err
}
