package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/apperr"
	"github.com/shopscout/shopscout/internal/cache"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/provider"
	"github.com/shopscout/shopscout/internal/ratelimit"
)

const (
	productTTL       = 12 * time.Hour
	productSearchTTL = time.Hour

	defaultPageSize = 20
	maxPageSize     = 50
)

type CatalogProvider interface {
	Lookup(ctx context.Context, upc string) (*provider.CatalogProduct, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]provider.CatalogProduct, int, error)
}

type ProductStore interface {
	Upsert(ctx context.Context, product *models.Product) error
	FindByUPC(ctx context.Context, upc string) (*models.Product, error)
	Search(ctx context.Context, query string, page, pageSize int) ([]models.Product, int64, error)
}

// CatalogService serves product lookups and searches with a fresh-cache /
// stale-while-revalidate / live-fetch / stored-row fallback ladder.
type CatalogService struct {
	provider CatalogProvider
	cache    *cache.Cache
	limits   *ratelimit.Registry
	products ProductStore
	runner   *Runner
}

func NewCatalogService(p CatalogProvider, c *cache.Cache, limits *ratelimit.Registry, products ProductStore, runner *Runner) *CatalogService {
	return &CatalogService{
		provider: p,
		cache:    c,
		limits:   limits,
		products: products,
		runner:   runner,
	}
}

type ProductResult struct {
	Product    *models.Product `json:"product"`
	DataMode   DataMode        `json:"data_mode"`
	CacheState CacheState      `json:"cache_state,omitempty"`
}

type ProductSearchResult struct {
	Products   []models.Product `json:"products"`
	Total      int64            `json:"total"`
	DataMode   DataMode         `json:"data_mode"`
	CacheState CacheState       `json:"cache_state,omitempty"`
}

// Lookup returns the canonical product for a UPC.
func (s *CatalogService) Lookup(ctx context.Context, upc, sessionID string) (*ProductResult, error) {
	if err := validateUPC(upc); err != nil {
		return nil, err
	}

	key := "product:" + upc

	peeked, err := s.cache.Peek(ctx, key)
	if err == nil && peeked != nil {
		var product models.Product
		if err := json.Unmarshal(peeked.Payload, &product); err == nil {
			if peeked.IsFresh {
				return &ProductResult{Product: &product, DataMode: DataModeCache, CacheState: CacheFresh}, nil
			}
			// Serve stale now, refresh for the next caller.
			s.runner.Go("product-refresh:"+upc, func(ctx context.Context) error {
				_, err := s.refreshProduct(ctx, upc)
				return err
			})
			return &ProductResult{Product: &product, DataMode: DataModeCache, CacheState: CacheStale}, nil
		}
	}

	allowed, limitErr := s.limits.Take(ctx, ratelimit.OpProductLookup, sessionID, 1)

	var fetchErr error
	if limitErr == nil && allowed {
		product, err := s.refreshProduct(ctx, upc)
		if err == nil && product != nil {
			return &ProductResult{Product: product, DataMode: DataModeLive}, nil
		}
		fetchErr = err
		// Live path failed or the catalog has no such product; fall through
		// to the stored row.
	}

	stored, err := s.products.FindByUPC(ctx, upc)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		mode := DataModeCache
		if stored.Source == "seed" {
			mode = DataModeSeed
		}
		return &ProductResult{Product: stored, DataMode: mode}, nil
	}

	if limitErr == nil && !allowed {
		return nil, apperr.ErrRateLimited
	}
	if fetchErr != nil {
		return nil, apperr.Wrap(apperr.ErrCatalogUnavailable, fetchErr)
	}
	return nil, apperr.ErrProductNotFound
}

// Search runs a paged product search with the same ladder as Lookup.
func (s *CatalogService) Search(ctx context.Context, query string, page, pageSize int, sessionID string) (*ProductSearchResult, error) {
	query = normalizeQuery(query)
	if query == "" {
		return nil, apperr.ErrEmptyQuery
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	key := fmt.Sprintf("productsearch:%s:%d:%d", hashKey(query), page, pageSize)

	peeked, err := s.cache.Peek(ctx, key)
	if err == nil && peeked != nil {
		var cached ProductSearchResult
		if err := json.Unmarshal(peeked.Payload, &cached); err == nil {
			if peeked.IsFresh {
				cached.DataMode = DataModeCache
				cached.CacheState = CacheFresh
				return &cached, nil
			}
			s.runner.Go("product-search-refresh:"+key, func(ctx context.Context) error {
				_, err := s.refreshSearch(ctx, key, query, page, pageSize)
				return err
			})
			cached.DataMode = DataModeCache
			cached.CacheState = CacheStale
			return &cached, nil
		}
	}

	allowed, err := s.limits.Take(ctx, ratelimit.OpProductSearch, sessionID, 1)
	if err == nil && allowed {
		result, err := s.refreshSearch(ctx, key, query, page, pageSize)
		if err == nil {
			return result, nil
		}
	}

	// Provider unavailable or rate limited: serve from the canonical rows.
	products, total, serr := s.products.Search(ctx, query, page, pageSize)
	if serr != nil {
		return nil, serr
	}
	return &ProductSearchResult{
		Products: products,
		Total:    total,
		DataMode: DataModeCache,
	}, nil
}

// refreshProduct does the live fetch, re-upserts the canonical row with a
// content hash of the raw payload, and rewrites the cache entry.
func (s *CatalogService) refreshProduct(ctx context.Context, upc string) (*models.Product, error) {
	fetched, err := s.provider.Lookup(ctx, upc)
	if err != nil {
		return nil, err
	}
	if fetched == nil {
		return nil, nil
	}

	product := normalizeCatalogProduct(fetched)
	if err := s.products.Upsert(ctx, product); err != nil {
		return nil, err
	}

	if payload, merr := json.Marshal(product); merr == nil {
		if cerr := s.cache.Put(ctx, "product:"+upc, payload, productTTL); cerr != nil {
			return product, nil // cache write failure is not a lookup failure
		}
	}
	return product, nil
}

func (s *CatalogService) refreshSearch(ctx context.Context, key, query string, page, pageSize int) (*ProductSearchResult, error) {
	fetched, total, err := s.provider.Search(ctx, query, page, pageSize)
	if err != nil {
		return nil, err
	}

	products := make([]models.Product, 0, len(fetched))
	for i := range fetched {
		product := normalizeCatalogProduct(&fetched[i])
		if err := s.products.Upsert(ctx, product); err != nil {
			continue
		}
		products = append(products, *product)
	}

	result := &ProductSearchResult{
		Products: products,
		Total:    int64(total),
		DataMode: DataModeLive,
	}

	if payload, merr := json.Marshal(result); merr == nil {
		_ = s.cache.Put(ctx, key, payload, productSearchTTL)
	}
	return result, nil
}

func normalizeCatalogProduct(p *provider.CatalogProduct) *models.Product {
	value, unit := parseQuantity(p.Quantity)

	product := &models.Product{
		UPC:            p.UPC,
		Source:         "catalog",
		Name:           p.Name,
		Brand:          p.Brand,
		NormalizedName: normalizeQuery(p.Name),
		QuantityValue:  value,
		QuantityUnit:   unit,
		ImageURL:       p.ImageURL,
		SourceURL:      p.SourceURL,
		UpdatedAt:      time.Now().UTC(),
	}

	if len(p.Raw) > 0 {
		sum := sha256.Sum256(p.Raw)
		product.ContentHash = hex.EncodeToString(sum[:])
	}
	return product
}

// parseQuantity splits strings like "16 oz" or "1 gal" best-effort.
func parseQuantity(q string) (float64, string) {
	fields := strings.Fields(q)
	if len(fields) < 2 {
		return 0, strings.TrimSpace(q)
	}

	var value float64
	if _, err := fmt.Sscanf(fields[0], "%f", &value); err != nil {
		return 0, strings.TrimSpace(q)
	}
	return value, strings.Join(fields[1:], " ")
}
