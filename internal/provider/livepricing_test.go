package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopscout/shopscout/internal/cache"
	"github.com/shopscout/shopscout/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPricingFixture(t *testing.T, handler http.HandlerFunc) (*LivePricing, *httptest.Server, *int32) {
	t.Helper()

	var tokenFetches int32
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenFetches, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Contains(t, r.Header.Get("Authorization"), "Basic ")
		w.Write([]byte(`{"access_token":"opaque-token","expires_in":1800}`))
	})
	mux.HandleFunc("/", handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	c := cache.New(storage.NewMemory())
	tokens := NewTokenSource(testHTTPClient(), c, server.URL+"/oauth/token", "id", "secret", "product.compact")
	pricing := NewLivePricing(testHTTPClient(), testBreaker(), tokens, server.URL)

	return pricing, server, &tokenFetches
}

func TestLocationsNearParsesAndAuthenticates(t *testing.T) {
	pricing, _, tokenFetches := newPricingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/locations", r.URL.Path)
		assert.Equal(t, "Bearer opaque-token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.URL.Query().Get("filter.lat.near"))

		w.Write([]byte(`{"data":[
			{"locationId":"01400943","name":"Market St","geolocation":{"latitude":42.36,"longitude":-71.06}},
			{"name":"no id, skipped"}
		]}`))
	})

	locations, err := pricing.LocationsNear(context.Background(), 42.36, -71.06)
	require.NoError(t, err)
	require.Len(t, locations, 1)

	assert.Equal(t, "01400943", locations[0].ID)
	assert.Equal(t, "Market St", locations[0].Name)
	assert.InDelta(t, 42.36, locations[0].Lat, 0.001)
	assert.EqualValues(t, 1, atomic.LoadInt32(tokenFetches))
}

func TestTokenIsCachedAcrossCalls(t *testing.T) {
	pricing, _, tokenFetches := newPricingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	ctx := context.Background()
	_, err := pricing.LocationsNear(ctx, 42.36, -71.06)
	require.NoError(t, err)
	_, err = pricing.LocationsNear(ctx, 42.36, -71.06)
	require.NoError(t, err)

	assert.EqualValues(t, 1, atomic.LoadInt32(tokenFetches))
}

func TestPriceForPrefersLowerPromo(t *testing.T) {
	pricing, _, _ := newPricingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/products", r.URL.Path)
		assert.Equal(t, "041220576463", r.URL.Query().Get("filter.term"))
		assert.Equal(t, "01400943", r.URL.Query().Get("filter.locationId"))

		w.Write([]byte(`{"data":[{"upc":"0004122057646","items":[{"price":{"regular":4.19,"promo":3.49}}]}]}`))
	})

	price, err := pricing.PriceFor(context.Background(), "01400943", "041220576463")
	require.NoError(t, err)
	require.NotNil(t, price)

	assert.EqualValues(t, 349, price.PriceCents)
	assert.True(t, price.Promo)
	assert.Equal(t, "0004122057646", price.UPC, "the provider's own upc wins when present")
	assert.Equal(t, "01400943", price.LocationID)
	assert.Equal(t, "USD", price.Currency)
}

func TestPriceForRegularOnly(t *testing.T) {
	pricing, _, _ := newPricingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"items":[{"price":{"regular":2.50,"promo":0}}]}]}`))
	})

	price, err := pricing.PriceFor(context.Background(), "loc", "00000000001")
	require.NoError(t, err)
	require.NotNil(t, price)

	assert.EqualValues(t, 250, price.PriceCents)
	assert.False(t, price.Promo)
	assert.Equal(t, "00000000001", price.UPC)
}

func TestPriceForNoDataIsNilNil(t *testing.T) {
	pricing, _, _ := newPricingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})

	price, err := pricing.PriceFor(context.Background(), "loc", "00000000001")
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestPriceForUnpricedListingIsNilNil(t *testing.T) {
	pricing, _, _ := newPricingFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"upc":"00000000001","items":[{}]}]}`))
	})

	price, err := pricing.PriceFor(context.Background(), "loc", "00000000001")
	require.NoError(t, err)
	assert.Nil(t, price)
}

func TestTokenJWTExpiryPreferred(t *testing.T) {
	// exp claim year 2286; expires_in says one second. The claim wins, so a
	// second call still uses the cached token.
	jwtToken := "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
		"eyJleHAiOjk5OTk5OTk5OTl9." +
		"signature"

	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Write([]byte(`{"access_token":"` + jwtToken + `","expires_in":1}`))
	}))
	defer server.Close()

	tokens := NewTokenSource(testHTTPClient(), cache.New(storage.NewMemory()), server.URL, "id", "secret", "")

	ctx := context.Background()
	got, err := tokens.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, jwtToken, got)

	_, err = tokens.Token(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetches))
}
