package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/httpclient"
	"github.com/shopscout/shopscout/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreaker() *circuitbreaker.Breaker {
	return circuitbreaker.New(storage.NewMemory(), circuitbreaker.Config{TripAfter: 3, OpenFor: time.Minute})
}

func testHTTPClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{Attempts: 1, Timeout: 2 * time.Second})
}

func newFastRetryClient() *httpclient.Client {
	return httpclient.New(httpclient.Config{
		Attempts:  2,
		Timeout:   2 * time.Second,
		BaseDelay: time.Millisecond,
	})
}

func TestGeocoderParsesResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Boston, MA", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "shopscout-test", r.Header.Get("User-Agent"))
		w.Write([]byte(`[{"lat":"42.3554334","lon":"-71.060511","display_name":"Boston, Suffolk County"}]`))
	}))
	defer server.Close()

	g := NewGeocoder(testHTTPClient(), testBreaker(), server.URL, "shopscout-test")

	coord, err := g.Geocode(context.Background(), "Boston, MA")
	require.NoError(t, err)
	assert.InDelta(t, 42.3554, coord.Lat, 0.001)
	assert.InDelta(t, -71.0605, coord.Lon, 0.001)
	assert.Equal(t, "Boston, Suffolk County", coord.Label)
}

func TestGeocoderEmptyResultIsSchemaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	g := NewGeocoder(testHTTPClient(), testBreaker(), server.URL, "ua")

	_, err := g.Geocode(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrSchema)
}

func TestGeocoderBadCoordinatesIsSchemaError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat":"not-a-number","lon":"-71.06"}]`))
	}))
	defer server.Close()

	g := NewGeocoder(testHTTPClient(), testBreaker(), server.URL, "ua")

	_, err := g.Geocode(context.Background(), "Boston")
	assert.ErrorIs(t, err, ErrSchema)
}

func TestGeocoderOpenCircuitShortCircuits(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	breaker := circuitbreaker.New(storage.NewMemory(), circuitbreaker.Config{TripAfter: 1, OpenFor: time.Minute})
	require.NoError(t, breaker.RecordFailure(context.Background(), NameGeocoder))

	g := NewGeocoder(testHTTPClient(), breaker, server.URL, "ua")

	_, err := g.Geocode(context.Background(), "Boston")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Zero(t, hits)
}

func TestGeocoderFailuresTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := circuitbreaker.New(storage.NewMemory(), circuitbreaker.Config{TripAfter: 2, OpenFor: time.Minute})
	g := NewGeocoder(testHTTPClient(), breaker, server.URL, "ua")

	ctx := context.Background()
	_, err := g.Geocode(ctx, "Boston")
	require.Error(t, err)
	_, err = g.Geocode(ctx, "Boston")
	require.Error(t, err)

	open, err := breaker.IsOpen(ctx, NameGeocoder)
	require.NoError(t, err)
	assert.True(t, open)

	// The next call is rejected without touching the provider.
	_, err = g.Geocode(ctx, "Boston")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestGeocoderSuccessClosesBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"lat":"42.0","lon":"-71.0"}]`))
	}))
	defer server.Close()

	breaker := testBreaker()
	ctx := context.Background()
	require.NoError(t, breaker.RecordFailure(ctx, NameGeocoder))
	require.NoError(t, breaker.RecordFailure(ctx, NameGeocoder))

	g := NewGeocoder(testHTTPClient(), breaker, server.URL, "ua")

	_, err := g.Geocode(ctx, "Boston")
	require.NoError(t, err)

	failures, err := breaker.Failures(ctx, NameGeocoder)
	require.NoError(t, err)
	assert.Zero(t, failures)
}
