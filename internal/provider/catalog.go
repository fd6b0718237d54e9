package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/httpclient"
)

// Catalog looks up and searches products through an Open Food Facts style
// API.
type Catalog struct {
	client    *httpclient.Client
	breaker   *circuitbreaker.Breaker
	baseURL   string
	userAgent string
}

func NewCatalog(client *httpclient.Client, breaker *circuitbreaker.Breaker, baseURL, userAgent string) *Catalog {
	return &Catalog{
		client:    client,
		breaker:   breaker,
		baseURL:   baseURL,
		userAgent: userAgent,
	}
}

type catalogLookupResponse struct {
	Status  int            `json:"status"`
	Product catalogProduct `json:"product"`
}

type catalogSearchResponse struct {
	Count    int              `json:"count"`
	Products []catalogProduct `json:"products"`
}

// catalogProduct is a permissive view of the upstream record. Only code is
// required; every other field drifts freely.
type catalogProduct struct {
	Code        string `json:"code"`
	ProductName string `json:"product_name"`
	Brands      string `json:"brands"`
	Quantity    string `json:"quantity"`
	ImageURL    string `json:"image_url"`
}

// Lookup returns the catalog record for a UPC, or (nil, nil) when the
// catalog knows nothing about it.
func (c *Catalog) Lookup(ctx context.Context, upc string) (*CatalogProduct, error) {
	if err := c.breaker.Guard(ctx, NameCatalog); err != nil {
		report(ctx, c.breaker, NameCatalog, err)
		return nil, err
	}

	requestURL := fmt.Sprintf("%s/api/v2/product/%s.json", c.baseURL, url.PathEscape(upc))

	resp, err := c.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    requestURL,
		Header: http.Header{"User-Agent": []string{c.userAgent}},
	})
	if err != nil {
		report(ctx, c.breaker, NameCatalog, err)
		return nil, err
	}

	var parsed catalogLookupResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrSchema, err)
		report(ctx, c.breaker, NameCatalog, wrapped)
		return nil, wrapped
	}

	report(ctx, c.breaker, NameCatalog, nil)

	if parsed.Status != 1 {
		// The provider answered; the product simply is not in the catalog.
		return nil, nil
	}
	if parsed.Product.Code == "" {
		parsed.Product.Code = upc
	}

	return c.normalize(parsed.Product, resp.Body), nil
}

// Search runs a paged text search.
func (c *Catalog) Search(ctx context.Context, query string, page, pageSize int) ([]CatalogProduct, int, error) {
	if err := c.breaker.Guard(ctx, NameCatalog); err != nil {
		report(ctx, c.breaker, NameCatalog, err)
		return nil, 0, err
	}

	params := url.Values{}
	params.Set("search_terms", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	params.Set("json", "1")

	resp, err := c.client.Do(ctx, httpclient.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/cgi/search.pl?%s", c.baseURL, params.Encode()),
		Header: http.Header{"User-Agent": []string{c.userAgent}},
	})
	if err != nil {
		report(ctx, c.breaker, NameCatalog, err)
		return nil, 0, err
	}

	var parsed catalogSearchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		wrapped := fmt.Errorf("%w: %v", ErrSchema, err)
		report(ctx, c.breaker, NameCatalog, wrapped)
		return nil, 0, wrapped
	}

	report(ctx, c.breaker, NameCatalog, nil)

	products := make([]CatalogProduct, 0, len(parsed.Products))
	for _, p := range parsed.Products {
		// Best-effort mapping: a record without its identifying code is
		// dropped rather than failing the page.
		if p.Code == "" {
			continue
		}
		products = append(products, *c.normalize(p, nil))
	}

	return products, parsed.Count, nil
}

func (c *Catalog) normalize(p catalogProduct, raw []byte) *CatalogProduct {
	return &CatalogProduct{
		UPC:       p.Code,
		Name:      p.ProductName,
		Brand:     p.Brands,
		Quantity:  p.Quantity,
		ImageURL:  p.ImageURL,
		SourceURL: fmt.Sprintf("%s/product/%s", c.baseURL, url.PathEscape(p.Code)),
		Raw:       raw,
	}
}
