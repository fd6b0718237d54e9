package provider

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"

	"github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/httpclient"
)

// LivePricing talks to the retail pricing API: location search plus per-UPC
// price lookup, both behind the OAuth token source. The payload shapes drift
// the most of all providers, so extraction goes through JMESPath over the
// decoded document instead of rigid structs.
type LivePricing struct {
	client  *httpclient.Client
	breaker *circuitbreaker.Breaker
	tokens  *TokenSource
	baseURL string
}

func NewLivePricing(client *httpclient.Client, breaker *circuitbreaker.Breaker, tokens *TokenSource, baseURL string) *LivePricing {
	return &LivePricing{
		client:  client,
		breaker: breaker,
		tokens:  tokens,
		baseURL: baseURL,
	}
}

// LocationsNear returns the provider's own store locations around a point.
func (l *LivePricing) LocationsNear(ctx context.Context, lat, lon float64) ([]Location, error) {
	if err := l.breaker.Guard(ctx, NameLivePricing); err != nil {
		report(ctx, l.breaker, NameLivePricing, err)
		return nil, err
	}

	token, err := l.tokens.Token(ctx)
	if err != nil {
		report(ctx, l.breaker, NameLivePricing, err)
		return nil, err
	}

	params := url.Values{}
	params.Set("filter.lat.near", fmt.Sprintf("%f", lat))
	params.Set("filter.lon.near", fmt.Sprintf("%f", lon))
	params.Set("filter.limit", "10")

	resp, err := l.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v1/locations?%s", l.baseURL, params.Encode()),
		Header: bearer(token),
	})
	if err != nil {
		report(ctx, l.breaker, NameLivePricing, err)
		return nil, err
	}

	locations, err := parseLocationsResponse(resp.Body)
	report(ctx, l.breaker, NameLivePricing, err)
	if err != nil {
		return nil, err
	}
	return locations, nil
}

// PriceFor fetches the live price for one UPC at one provider location.
// Returns (nil, nil) when the location does not carry the product.
func (l *LivePricing) PriceFor(ctx context.Context, locationID, upc string) (*Price, error) {
	if err := l.breaker.Guard(ctx, NameLivePricing); err != nil {
		report(ctx, l.breaker, NameLivePricing, err)
		return nil, err
	}

	token, err := l.tokens.Token(ctx)
	if err != nil {
		report(ctx, l.breaker, NameLivePricing, err)
		return nil, err
	}

	params := url.Values{}
	params.Set("filter.term", upc)
	params.Set("filter.locationId", locationID)
	params.Set("filter.limit", "1")

	resp, err := l.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/v1/products?%s", l.baseURL, params.Encode()),
		Header: bearer(token),
	})
	if err != nil {
		report(ctx, l.breaker, NameLivePricing, err)
		return nil, err
	}

	price, err := parsePriceResponse(resp.Body, locationID, upc)
	report(ctx, l.breaker, NameLivePricing, err)
	if err != nil {
		return nil, err
	}
	return price, nil
}

func parseLocationsResponse(body []byte) ([]Location, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	raw, err := jmespath.Search("data", doc)
	if err != nil || raw == nil {
		return nil, fmt.Errorf("%w: data", ErrSchema)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: data", ErrSchema)
	}

	locations := make([]Location, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}

		id := stringAt(entry, "locationId")
		if id == "" {
			continue
		}

		locations = append(locations, Location{
			ID:   id,
			Name: stringAt(entry, "name"),
			Lat:  floatAt(entry, "geolocation.latitude"),
			Lon:  floatAt(entry, "geolocation.longitude"),
		})
	}

	return locations, nil
}

func parsePriceResponse(body []byte, locationID, upc string) (*Price, error) {
	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	raw, err := jmespath.Search("data[0]", doc)
	if err != nil {
		return nil, fmt.Errorf("%w: data", ErrSchema)
	}
	if raw == nil {
		// Provider answered but does not carry this product here.
		return nil, nil
	}
	entry, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: data[0]", ErrSchema)
	}

	if got := stringAt(entry, "upc"); got != "" {
		upc = got
	}

	promo := floatAt(entry, "items[0].price.promo")
	regular := floatAt(entry, "items[0].price.regular")

	dollars := regular
	isPromo := false
	if promo > 0 && (regular == 0 || promo < regular) {
		dollars = promo
		isPromo = true
	}
	if dollars <= 0 {
		// Product listed without a price; treat as no data.
		return nil, nil
	}

	return &Price{
		UPC:        upc,
		LocationID: locationID,
		PriceCents: int64(math.Round(dollars * 100)),
		Currency:   "USD",
		Promo:      isPromo,
	}, nil
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func stringAt(doc map[string]any, expression string) string {
	v, err := jmespath.Search(expression, doc)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func floatAt(doc map[string]any, expression string) float64 {
	v, err := jmespath.Search(expression, doc)
	if err != nil {
		return 0
	}
	f, _ := v.(float64)
	return f
}
