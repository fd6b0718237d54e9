package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/apperr"
	"github.com/shopscout/shopscout/internal/cache"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/provider"
	"github.com/shopscout/shopscout/internal/ratelimit"
	"github.com/sirupsen/logrus"
)

const (
	// Mappings older than this are re-verified against the provider.
	mappingFreshness = 90 * 24 * time.Hour

	// A provider location further away than this is not the same store.
	matchThresholdMeters = 700.0

	livePriceTTL   = 10 * time.Minute
	overlayWorkers = 4
	maxOverlayUPCs = 25
	liveSourceName = "live"
	liveConfidence = 0.9
)

type PricingProvider interface {
	LocationsNear(ctx context.Context, lat, lon float64) ([]provider.Location, error)
	PriceFor(ctx context.Context, locationID, upc string) (*provider.Price, error)
}

type MappingStore interface {
	Find(ctx context.Context, storeID uuid.UUID, providerName string) (*models.StoreProviderMapping, error)
	Upsert(ctx context.Context, mapping *models.StoreProviderMapping) error
}

// Overlay fetches live prices for a store's UPC list. Absence of live data
// is an expected outcome, never an error: every failure mode degrades to
// "fewer prices" plus a warning code.
type Overlay struct {
	pricing  PricingProvider
	mappings MappingStore
	cache    *cache.Cache
	limits   *ratelimit.Registry

	now func() time.Time
}

func NewOverlay(pricing PricingProvider, mappings MappingStore, c *cache.Cache, limits *ratelimit.Registry) *Overlay {
	return &Overlay{
		pricing:  pricing,
		mappings: mappings,
		cache:    c,
		limits:   limits,
		now:      time.Now,
	}
}

// OverlayResult maps UPC to its live price. Partial is set when any UPC was
// denied, failed, or truncated.
type OverlayResult struct {
	Prices   map[string]*provider.Price
	Partial  bool
	Warnings []string
}

// PricesForStore resolves the store's provider location and fans out per-UPC
// price fetches through a fixed worker pool.
func (o *Overlay) PricesForStore(ctx context.Context, store *models.Store, upcs []string, sessionID string) *OverlayResult {
	result := &OverlayResult{Prices: make(map[string]*provider.Price)}

	if len(upcs) > maxOverlayUPCs {
		upcs = upcs[:maxOverlayUPCs]
		result.Partial = true
		result.Warnings = append(result.Warnings, "LIVE_UPC_LIMIT")
	}

	mapping := o.resolveMapping(ctx, store, sessionID, result)
	if mapping == nil {
		// No resolvable location: the overlay silently contributes nothing.
		return result
	}

	type fetched struct {
		upc    string
		price  *provider.Price
		denied bool
		failed bool
	}

	jobs := make(chan string)
	results := make(chan fetched, len(upcs))

	var wg sync.WaitGroup
	for i := 0; i < overlayWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for upc := range jobs {
				price, denied, err := o.fetchOne(ctx, mapping.ProviderLocationID, upc, sessionID)
				results <- fetched{upc: upc, price: price, denied: denied, failed: err != nil}
			}
		}()
	}

	for _, upc := range upcs {
		jobs <- upc
	}
	close(jobs)
	wg.Wait()
	close(results)

	var sawDenied, sawFailed bool
	for f := range results {
		if f.price != nil {
			result.Prices[f.upc] = f.price
		}
		sawDenied = sawDenied || f.denied
		sawFailed = sawFailed || f.failed
	}

	if sawDenied {
		result.Partial = true
		result.Warnings = append(result.Warnings, apperr.ErrRateLimited.Code)
	}
	if sawFailed {
		result.Partial = true
		result.Warnings = append(result.Warnings, apperr.ErrPricingUnavailable.Code)
	}

	return result
}

// fetchOne serves one UPC from the short-TTL cache or the provider, each
// fetch subject to its own rate-limit check.
func (o *Overlay) fetchOne(ctx context.Context, locationID, upc, sessionID string) (price *provider.Price, denied bool, err error) {
	key := fmt.Sprintf("liveprice:%s:%s", locationID, upc)

	if payload, hit, cerr := o.cache.Get(ctx, key); cerr == nil && hit {
		var cached provider.Price
		if jerr := json.Unmarshal(payload, &cached); jerr == nil {
			return &cached, false, nil
		}
	}

	allowed, lerr := o.limits.Take(ctx, ratelimit.OpLivePrice, sessionID, 1)
	if lerr != nil {
		return nil, false, lerr
	}
	if !allowed {
		return nil, true, nil
	}

	price, err = o.pricing.PriceFor(ctx, locationID, upc)
	if err != nil {
		return nil, false, err
	}
	if price == nil {
		return nil, false, nil
	}

	if payload, merr := json.Marshal(price); merr == nil {
		_ = o.cache.Put(ctx, key, payload, livePriceTTL)
	}
	return price, false, nil
}

// resolveMapping returns a fresh-enough store→provider-location mapping,
// re-matching spatially when the persisted one is absent or stale.
func (o *Overlay) resolveMapping(ctx context.Context, store *models.Store, sessionID string, result *OverlayResult) *models.StoreProviderMapping {
	mapping, err := o.mappings.Find(ctx, store.ID, provider.NameLivePricing)
	if err != nil {
		logrus.WithError(err).Warn("mapping lookup failed")
		return nil
	}
	if mapping != nil && o.now().Sub(mapping.VerifiedAt) < mappingFreshness {
		return mapping
	}

	allowed, err := o.limits.Take(ctx, ratelimit.OpLivePrice, sessionID, 1)
	if err != nil || !allowed {
		if !allowed {
			result.Partial = true
			result.Warnings = append(result.Warnings, apperr.ErrRateLimited.Code)
		}
		// A stale mapping beats none at all.
		return mapping
	}

	locations, err := o.pricing.LocationsNear(ctx, store.Lat, store.Lon)
	if err != nil {
		result.Partial = true
		result.Warnings = append(result.Warnings, apperr.ErrPricingUnavailable.Code)
		return mapping
	}

	var nearest *provider.Location
	nearestDist := 0.0
	for i := range locations {
		d := haversineMeters(store.Lat, store.Lon, locations[i].Lat, locations[i].Lon)
		if nearest == nil || d < nearestDist {
			nearest = &locations[i]
			nearestDist = d
		}
	}

	if nearest == nil || nearestDist > matchThresholdMeters {
		return nil
	}

	fresh := &models.StoreProviderMapping{
		StoreID:            store.ID,
		Provider:           provider.NameLivePricing,
		ProviderLocationID: nearest.ID,
		MatchMethod:        "nearest",
		MatchScore:         1 - nearestDist/matchThresholdMeters,
		VerifiedAt:         o.now(),
	}
	if err := o.mappings.Upsert(ctx, fresh); err != nil {
		logrus.WithError(err).Warn("mapping upsert failed")
	}
	return fresh
}
