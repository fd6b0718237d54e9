package provider

// Provider names used for breaker state and outcome logging.
const (
	NameGeocoder    = "geocoder"
	NamePOISearch   = "poi_search"
	NameCatalog     = "catalog"
	NameLivePricing = "live_pricing"
)

// Coordinate is a geocoded point.
type Coordinate struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Label string  `json:"label,omitempty"`
}

// Place is a normalized POI result.
type Place struct {
	ExternalID string            `json:"external_id"`
	Name       string            `json:"name"`
	Lat        float64           `json:"lat"`
	Lon        float64           `json:"lon"`
	Tags       map[string]string `json:"tags,omitempty"`
}

// CatalogProduct is a normalized catalog record. Raw carries the provider
// payload for content hashing.
type CatalogProduct struct {
	UPC       string `json:"upc"`
	Name      string `json:"name"`
	Brand     string `json:"brand,omitempty"`
	Quantity  string `json:"quantity,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	SourceURL string `json:"source_url,omitempty"`
	Raw       []byte `json:"-"`
}

// Location is a pricing provider's own store location.
type Location struct {
	ID   string  `json:"id"`
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Price is a single live price observation for a UPC at a location.
type Price struct {
	UPC        string `json:"upc"`
	LocationID string `json:"location_id"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency"`
	Promo      bool   `json:"promo,omitempty"`
}
