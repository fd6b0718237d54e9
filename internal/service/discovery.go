package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/apperr"
	"github.com/shopscout/shopscout/internal/cache"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/provider"
	"github.com/shopscout/shopscout/internal/ratelimit"
	"github.com/shopscout/shopscout/internal/seed"
	"github.com/sirupsen/logrus"
)

const (
	geocodeTTL = 30 * 24 * time.Hour
	poiTTL     = 24 * time.Hour

	// Results are truncated to this many stores after distance sorting.
	maxDiscoveredStores = 50

	osmAttribution  = "© OpenStreetMap contributors"
	seedAttribution = "static seed data"
)

type GeocodeProvider interface {
	Geocode(ctx context.Context, query string) (*provider.Coordinate, error)
}

type PlaceProvider interface {
	Nearby(ctx context.Context, center provider.Coordinate, radiusMeters int) ([]provider.Place, error)
}

type StoreUpserter interface {
	Upsert(ctx context.Context, store *models.Store) error
}

// Discovery answers "what stores are nearby": geocode the location, search
// POIs around it, and fall back to seed data when providers are down. The
// response's DataMode tells the caller which of those happened.
type Discovery struct {
	geocoder GeocodeProvider
	places   PlaceProvider
	cache    *cache.Cache
	limits   *ratelimit.Registry
	stores   StoreUpserter
}

func NewDiscovery(geocoder GeocodeProvider, places PlaceProvider, c *cache.Cache, limits *ratelimit.Registry, stores StoreUpserter) *Discovery {
	return &Discovery{
		geocoder: geocoder,
		places:   places,
		cache:    c,
		limits:   limits,
		stores:   stores,
	}
}

// DiscoveredStore is one candidate store in a search response.
type DiscoveredStore struct {
	ID             uuid.UUID         `json:"id,omitempty"`
	Source         string            `json:"source"`
	ExternalID     string            `json:"external_id"`
	Name           string            `json:"name"`
	Lat            float64           `json:"lat"`
	Lon            float64           `json:"lon"`
	DistanceMeters float64           `json:"distance_meters"`
	Tags           map[string]string `json:"tags,omitempty"`
}

type StoreSearchResult struct {
	Stores      []DiscoveredStore `json:"stores"`
	DataMode    DataMode          `json:"data_mode"`
	Attribution string            `json:"attribution"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// Search resolves the location and returns nearby stores sorted by distance.
// Provider failures degrade to cached and then seed data; the only hard
// errors are storage-level.
func (d *Discovery) Search(ctx context.Context, location string, radiusMeters int, sessionID string) (*StoreSearchResult, error) {
	var warnings []string

	center, centerMode, warn := d.resolveCenter(ctx, location, sessionID)
	warnings = append(warnings, warn...)

	if center == nil {
		return d.seedResult(ctx, warnings)
	}

	places, placesMode, warn := d.resolvePlaces(ctx, *center, radiusMeters, sessionID)
	warnings = append(warnings, warn...)

	if places == nil {
		return d.seedResult(ctx, warnings)
	}

	stores := make([]DiscoveredStore, 0, len(places))
	for _, p := range places {
		stores = append(stores, DiscoveredStore{
			Source:         "osm",
			ExternalID:     p.ExternalID,
			Name:           p.Name,
			Lat:            p.Lat,
			Lon:            p.Lon,
			DistanceMeters: haversineMeters(center.Lat, center.Lon, p.Lat, p.Lon),
			Tags:           p.Tags,
		})
	}

	sort.Slice(stores, func(i, j int) bool {
		return stores[i].DistanceMeters < stores[j].DistanceMeters
	})
	if len(stores) > maxDiscoveredStores {
		stores = stores[:maxDiscoveredStores]
	}

	d.persistStores(ctx, stores)

	mode := DataModeLive
	if centerMode == DataModeCache || placesMode == DataModeCache {
		mode = DataModeCache
	}

	return &StoreSearchResult{
		Stores:      stores,
		DataMode:    mode,
		Attribution: osmAttribution,
		Warnings:    warnings,
	}, nil
}

// resolveCenter tries fresh cache, then a rate-limited live geocode, then a
// stale cache entry. A nil coordinate means every path failed.
func (d *Discovery) resolveCenter(ctx context.Context, location, sessionID string) (*provider.Coordinate, DataMode, []string) {
	key := "geocode:" + hashKey(normalizeQuery(location))

	if payload, hit, err := d.cache.Get(ctx, key); err == nil && hit {
		var coord provider.Coordinate
		if err := json.Unmarshal(payload, &coord); err == nil {
			return &coord, DataModeCache, nil
		}
	}

	allowed, err := d.limits.Take(ctx, ratelimit.OpGeocode, sessionID, 1)
	if err == nil && allowed {
		coord, err := d.geocoder.Geocode(ctx, location)
		if err == nil {
			if payload, merr := json.Marshal(coord); merr == nil {
				if cerr := d.cache.Put(ctx, key, payload, geocodeTTL); cerr != nil {
					logrus.WithError(cerr).Warn("geocode cache write failed")
				}
			}
			return coord, DataModeLive, nil
		}
		return d.staleCenter(ctx, key, []string{apperr.ErrGeocoderUnavailable.Code})
	}

	warn := apperr.ErrRateLimited.Code
	if err != nil {
		warn = apperr.ErrGeocoderUnavailable.Code
	}
	return d.staleCenter(ctx, key, []string{warn})
}

func (d *Discovery) staleCenter(ctx context.Context, key string, warnings []string) (*provider.Coordinate, DataMode, []string) {
	peeked, err := d.cache.Peek(ctx, key)
	if err != nil || peeked == nil {
		return nil, DataModeSeed, warnings
	}

	var coord provider.Coordinate
	if err := json.Unmarshal(peeked.Payload, &coord); err != nil {
		return nil, DataModeSeed, warnings
	}
	return &coord, DataModeCache, warnings
}

func (d *Discovery) resolvePlaces(ctx context.Context, center provider.Coordinate, radiusMeters int, sessionID string) ([]provider.Place, DataMode, []string) {
	key := "poi:" + hashKey(fmt.Sprintf("%.4f:%.4f:%d", center.Lat, center.Lon, radiusMeters))

	if payload, hit, err := d.cache.Get(ctx, key); err == nil && hit {
		var places []provider.Place
		if err := json.Unmarshal(payload, &places); err == nil {
			return places, DataModeCache, nil
		}
	}

	allowed, err := d.limits.Take(ctx, ratelimit.OpPOISearch, sessionID, 1)
	if err == nil && allowed {
		places, err := d.places.Nearby(ctx, center, radiusMeters)
		if err == nil {
			if payload, merr := json.Marshal(places); merr == nil {
				if cerr := d.cache.Put(ctx, key, payload, poiTTL); cerr != nil {
					logrus.WithError(cerr).Warn("poi cache write failed")
				}
			}
			return places, DataModeLive, nil
		}
		return d.stalePlaces(ctx, key, []string{apperr.ErrPOIUnavailable.Code})
	}

	warn := apperr.ErrRateLimited.Code
	if err != nil {
		warn = apperr.ErrPOIUnavailable.Code
	}
	return d.stalePlaces(ctx, key, []string{warn})
}

func (d *Discovery) stalePlaces(ctx context.Context, key string, warnings []string) ([]provider.Place, DataMode, []string) {
	peeked, err := d.cache.Peek(ctx, key)
	if err != nil || peeked == nil {
		return nil, DataModeSeed, warnings
	}

	var places []provider.Place
	if err := json.Unmarshal(peeked.Payload, &places); err != nil {
		return nil, DataModeSeed, warnings
	}
	return places, DataModeCache, warnings
}

// persistStores upserts discovered rows so later quotes can reference them.
// Failures are logged; the response does not depend on the writes.
func (d *Discovery) persistStores(ctx context.Context, stores []DiscoveredStore) {
	for i := range stores {
		row := &models.Store{
			Source:     stores[i].Source,
			ExternalID: stores[i].ExternalID,
			Name:       stores[i].Name,
			Lat:        stores[i].Lat,
			Lon:        stores[i].Lon,
			Tags:       models.TagMap(stores[i].Tags),
		}
		if err := d.stores.Upsert(ctx, row); err != nil {
			logrus.WithError(err).WithField("external_id", row.ExternalID).Warn("store upsert failed")
			continue
		}
		stores[i].ID = row.ID
	}
}

// seedResult serves the static store list around the seed center.
func (d *Discovery) seedResult(ctx context.Context, warnings []string) (*StoreSearchResult, error) {
	seedStores, err := seed.Stores()
	if err != nil {
		return nil, err
	}

	centerLat, centerLon, ok := seed.Center()
	if !ok {
		return &StoreSearchResult{
			Stores:      []DiscoveredStore{},
			DataMode:    DataModeSeed,
			Attribution: seedAttribution,
			Warnings:    warnings,
		}, nil
	}

	stores := make([]DiscoveredStore, 0, len(seedStores))
	for _, s := range seedStores {
		stores = append(stores, DiscoveredStore{
			Source:         "seed",
			ExternalID:     s.ExternalID,
			Name:           s.Name,
			Lat:            s.Lat,
			Lon:            s.Lon,
			DistanceMeters: haversineMeters(centerLat, centerLon, s.Lat, s.Lon),
			Tags:           s.Tags,
		})
	}

	sort.Slice(stores, func(i, j int) bool {
		return stores[i].DistanceMeters < stores[j].DistanceMeters
	})

	d.persistStores(ctx, stores)

	return &StoreSearchResult{
		Stores:      stores,
		DataMode:    DataModeSeed,
		Attribution: seedAttribution,
		Warnings:    warnings,
	}, nil
}
