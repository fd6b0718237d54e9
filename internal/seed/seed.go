package seed

import (
	_ "embed"
	"sync"

	"github.com/goccy/go-yaml"
)

//go:embed stores.yml
var storesYAML []byte

//go:embed products.yml
var productsYAML []byte

// Store is a static fallback store used when live discovery is unavailable.
type Store struct {
	ExternalID string            `yaml:"external_id"`
	Name       string            `yaml:"name"`
	Lat        float64           `yaml:"lat"`
	Lon        float64           `yaml:"lon"`
	Tags       map[string]string `yaml:"tags"`
}

// Product is a static fallback catalog row.
type Product struct {
	UPC      string `yaml:"upc"`
	Name     string `yaml:"name"`
	Brand    string `yaml:"brand"`
	Quantity string `yaml:"quantity"`
}

var (
	once     sync.Once
	stores   []Store
	products []Product
	loadErr  error
)

func load() {
	if err := yaml.Unmarshal(storesYAML, &stores); err != nil {
		loadErr = err
		return
	}
	loadErr = yaml.Unmarshal(productsYAML, &products)
}

// Stores returns the embedded seed stores.
func Stores() ([]Store, error) {
	once.Do(load)
	return stores, loadErr
}

// Products returns the embedded seed products.
func Products() ([]Product, error) {
	once.Do(load)
	return products, loadErr
}

// Center returns the mean coordinate of the seed stores, the fallback center
// when geocoding is unavailable.
func Center() (lat, lon float64, ok bool) {
	once.Do(load)
	if loadErr != nil || len(stores) == 0 {
		return 0, 0, false
	}
	for _, s := range stores {
		lat += s.Lat
		lon += s.Lon
	}
	n := float64(len(stores))
	return lat / n, lon / n, true
}
