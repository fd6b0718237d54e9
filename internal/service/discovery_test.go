package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/cache"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/provider"
	"github.com/shopscout/shopscout/internal/ratelimit"
	"github.com/shopscout/shopscout/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGeocoder struct {
	coord *provider.Coordinate
	err   error
	calls int
}

func (f *fakeGeocoder) Geocode(ctx context.Context, query string) (*provider.Coordinate, error) {
	f.calls++
	return f.coord, f.err
}

type fakePlaces struct {
	places []provider.Place
	err    error
	calls  int
}

func (f *fakePlaces) Nearby(ctx context.Context, center provider.Coordinate, radiusMeters int) ([]provider.Place, error) {
	f.calls++
	return f.places, f.err
}

type fakeUpserter struct {
	upserts []*models.Store
}

func (f *fakeUpserter) Upsert(ctx context.Context, store *models.Store) error {
	f.upserts = append(f.upserts, store)
	return nil
}

func looseLimits() *ratelimit.Registry {
	kv := storage.NewMemory()
	limits := ratelimit.NewRegistry()
	limits.Register(ratelimit.OpGeocode, ratelimit.NewTokenBucket(kv, 100, 10))
	limits.Register(ratelimit.OpPOISearch, ratelimit.NewTokenBucket(kv, 100, 10))
	return limits
}

func drainedLimits() *ratelimit.Registry {
	kv := storage.NewMemory()
	limits := ratelimit.NewRegistry()
	limits.Register(ratelimit.OpGeocode, ratelimit.NewTokenBucket(kv, 0.5, 0.001))
	limits.Register(ratelimit.OpPOISearch, ratelimit.NewTokenBucket(kv, 0.5, 0.001))
	return limits
}

func TestDiscoverySearchLive(t *testing.T) {
	ctx := context.Background()

	geocoder := &fakeGeocoder{coord: &provider.Coordinate{Lat: 42.36, Lon: -71.06}}
	places := &fakePlaces{places: []provider.Place{
		{ExternalID: "node/2", Name: "Far Mart", Lat: 42.40, Lon: -71.06},
		{ExternalID: "node/1", Name: "Near Mart", Lat: 42.361, Lon: -71.06},
	}}
	upserter := &fakeUpserter{}

	d := NewDiscovery(geocoder, places, cache.New(storage.NewMemory()), looseLimits(), upserter)

	result, err := d.Search(ctx, "Boston, MA", 5000, "session")
	require.NoError(t, err)

	assert.Equal(t, DataModeLive, result.DataMode)
	assert.Equal(t, osmAttribution, result.Attribution)
	require.Len(t, result.Stores, 2)
	assert.Equal(t, "Near Mart", result.Stores[0].Name)
	assert.Less(t, result.Stores[0].DistanceMeters, result.Stores[1].DistanceMeters)
	assert.Len(t, upserter.upserts, 2)
}

func TestDiscoverySecondSearchServedFromCache(t *testing.T) {
	ctx := context.Background()

	geocoder := &fakeGeocoder{coord: &provider.Coordinate{Lat: 42.36, Lon: -71.06}}
	places := &fakePlaces{places: []provider.Place{
		{ExternalID: "node/1", Name: "Mart", Lat: 42.36, Lon: -71.06},
	}}

	d := NewDiscovery(geocoder, places, cache.New(storage.NewMemory()), looseLimits(), &fakeUpserter{})

	_, err := d.Search(ctx, "Boston, MA", 5000, "session")
	require.NoError(t, err)

	result, err := d.Search(ctx, "boston,   ma", 5000, "session")
	require.NoError(t, err)

	assert.Equal(t, DataModeCache, result.DataMode)
	assert.Equal(t, 1, geocoder.calls, "normalized query must hit the geocode cache")
	assert.Equal(t, 1, places.calls)
}

func TestDiscoveryProviderFailureFallsBackToSeed(t *testing.T) {
	ctx := context.Background()

	geocoder := &fakeGeocoder{err: errors.New("boom")}
	d := NewDiscovery(geocoder, &fakePlaces{}, cache.New(storage.NewMemory()), looseLimits(), &fakeUpserter{})

	result, err := d.Search(ctx, "Boston, MA", 5000, "session")
	require.NoError(t, err)

	assert.Equal(t, DataModeSeed, result.DataMode)
	assert.Equal(t, seedAttribution, result.Attribution)
	assert.NotEmpty(t, result.Stores)
	assert.Contains(t, result.Warnings, "GEOCODER_UNAVAILABLE")
}

func TestDiscoveryRateLimitedServedFromFreshCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(storage.NewMemory())

	geocoder := &fakeGeocoder{coord: &provider.Coordinate{Lat: 42.36, Lon: -71.06}}
	places := &fakePlaces{places: []provider.Place{
		{ExternalID: "node/1", Name: "Mart", Lat: 42.36, Lon: -71.06},
	}}

	d := NewDiscovery(geocoder, places, c, looseLimits(), &fakeUpserter{})
	_, err := d.Search(ctx, "Boston, MA", 5000, "session")
	require.NoError(t, err)

	// Same cache, but the limiter now denies everything.
	d = NewDiscovery(geocoder, places, c, drainedLimits(), &fakeUpserter{})

	result, err := d.Search(ctx, "Boston, MA", 5000, "session")
	require.NoError(t, err)

	assert.Equal(t, DataModeCache, result.DataMode)
	assert.Equal(t, 1, geocoder.calls)
	require.Len(t, result.Stores, 1)
	assert.Equal(t, "Mart", result.Stores[0].Name)
}

func TestDiscoveryRateLimitedFallsBackToStaleCache(t *testing.T) {
	ctx := context.Background()
	c := cache.New(storage.NewMemory())

	// Pre-expired entries: strict reads miss them, the stale path does not.
	coord, err := json.Marshal(provider.Coordinate{Lat: 42.36, Lon: -71.06})
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, "geocode:"+hashKey("boston, ma"), coord, -time.Second))

	poiKey := "poi:" + hashKey(fmt.Sprintf("%.4f:%.4f:%d", 42.36, -71.06, 5000))
	placesPayload, err := json.Marshal([]provider.Place{
		{ExternalID: "node/1", Name: "Stale Mart", Lat: 42.36, Lon: -71.06},
	})
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, poiKey, placesPayload, -time.Second))

	d := NewDiscovery(&fakeGeocoder{err: errors.New("down")}, &fakePlaces{err: errors.New("down")},
		c, drainedLimits(), &fakeUpserter{})

	result, err := d.Search(ctx, "Boston, MA", 5000, "session")
	require.NoError(t, err)

	assert.Equal(t, DataModeCache, result.DataMode)
	assert.Contains(t, result.Warnings, "RATE_LIMITED")
	require.Len(t, result.Stores, 1)
	assert.Equal(t, "Stale Mart", result.Stores[0].Name)
}

func TestDiscoveryRateLimitedWithoutCacheFallsBackToSeed(t *testing.T) {
	ctx := context.Background()

	geocoder := &fakeGeocoder{coord: &provider.Coordinate{Lat: 42.36, Lon: -71.06}}
	d := NewDiscovery(geocoder, &fakePlaces{}, cache.New(storage.NewMemory()), drainedLimits(), &fakeUpserter{})

	result, err := d.Search(ctx, "Boston, MA", 5000, "session")
	require.NoError(t, err)

	assert.Equal(t, DataModeSeed, result.DataMode)
	assert.Zero(t, geocoder.calls)
	assert.Contains(t, result.Warnings, "RATE_LIMITED")
	assert.NotEmpty(t, result.Stores)
}

func TestHaversineMeters(t *testing.T) {
	// Boston Common to the Bunker Hill Monument, roughly 3km.
	d := haversineMeters(42.3551, -71.0657, 42.3764, -71.0608)
	assert.InDelta(t, 2400, d, 300)

	assert.Zero(t, haversineMeters(42.0, -71.0, 42.0, -71.0))
}

func TestNormalizeQuery(t *testing.T) {
	assert.Equal(t, "boston, ma", normalizeQuery("  Boston,   MA "))
	assert.Equal(t, normalizeQuery("Boston, MA"), normalizeQuery("boston,  ma"))
}
