package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/middleware"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/service"
	"github.com/shopscout/shopscout/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEvidence struct {
	snapshots []models.PriceSnapshot
}

func (s *stubEvidence) LatestSnapshots(ctx context.Context, storeIDs []uuid.UUID, upcs []string) ([]models.PriceSnapshot, error) {
	return s.snapshots, nil
}

type stubStores struct {
	stores []models.Store
}

func (s *stubStores) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Store, error) {
	return s.stores, nil
}

func (s *stubStores) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	for i := range s.stores {
		if s.stores[i].ID == id {
			return &s.stores[i], nil
		}
	}
	return nil, nil
}

type stubPrices struct {
	inserted []*models.PriceSnapshot
}

func (s *stubPrices) Insert(ctx context.Context, snapshot *models.PriceSnapshot) error {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	s.inserted = append(s.inserted, snapshot)
	return nil
}

func (s *stubPrices) RecentPrices(ctx context.Context, storeID uuid.UUID, upc string, limit int) ([]int64, error) {
	return nil, nil
}

func (s *stubPrices) FindDuplicate(ctx context.Context, storeID uuid.UUID, upc string, priceCents int64, since time.Time) (*models.PriceSnapshot, error) {
	return nil, nil
}

type stubProducts struct {
	product *models.Product
}

func (s *stubProducts) FindByUPC(ctx context.Context, upc string) (*models.Product, error) {
	return s.product, nil
}

func newQuoteRouter(store models.Store, kv storage.KeyValue, snapshots []models.PriceSnapshot) *gin.Engine {
	gin.SetMode(gin.TestMode)

	quotes := service.NewQuoteService(
		&stubEvidence{snapshots: snapshots},
		&stubStores{stores: []models.Store{store}},
		nil,
	)

	router := gin.New()
	router.Use(middleware.Session())
	router.POST("/carts/quote", NewQuoteHandler(quotes, service.NewKVCartSource(kv)).Quote)
	return router
}

func postJSON(router *gin.Engine, path string, body any, session string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(middleware.HeaderSessionID, session)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQuoteEndpoint(t *testing.T) {
	store := models.Store{ID: uuid.New(), Name: "Store A"}
	snapshots := []models.PriceSnapshot{{
		ID:         uuid.New(),
		StoreID:    store.ID,
		UPC:        "00000000001",
		PriceCents: 399,
		ObservedAt: time.Now().Add(-time.Hour),
		Source:     "community",
	}}

	router := newQuoteRouter(store, storage.NewMemory(), snapshots)

	w := postJSON(router, "/carts/quote", gin.H{
		"store_ids": []string{store.ID.String()},
		"lines":     []gin.H{{"upc": "00000000001", "quantity": 2}},
	}, "alice")

	require.Equal(t, http.StatusOK, w.Code)

	var result service.QuoteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Stores, 1)
	assert.EqualValues(t, 798, result.Stores[0].RawTotalCents)
	require.NotNil(t, result.CheapestStoreID)
	assert.Equal(t, store.ID, *result.CheapestStoreID)
}

func TestQuoteEndpointFallsBackToStoredCart(t *testing.T) {
	store := models.Store{ID: uuid.New(), Name: "Store A"}
	snapshots := []models.PriceSnapshot{{
		ID:         uuid.New(),
		StoreID:    store.ID,
		UPC:        "00000000001",
		PriceCents: 250,
		ObservedAt: time.Now(),
		Source:     "community",
	}}

	kv := storage.NewMemory()
	cart, _ := json.Marshal([]service.CartLine{{UPC: "00000000001", Quantity: 3}})
	require.NoError(t, kv.Set(context.Background(), "cart:alice", string(cart), 0))

	router := newQuoteRouter(store, kv, snapshots)

	w := postJSON(router, "/carts/quote", gin.H{
		"store_ids": []string{store.ID.String()},
	}, "alice")

	require.Equal(t, http.StatusOK, w.Code)

	var result service.QuoteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.Len(t, result.Stores, 1)
	assert.EqualValues(t, 750, result.Stores[0].RawTotalCents)
}

func TestQuoteEndpointRejectsBadStoreID(t *testing.T) {
	router := newQuoteRouter(models.Store{ID: uuid.New()}, storage.NewMemory(), nil)

	w := postJSON(router, "/carts/quote", gin.H{
		"store_ids": []string{"not-a-uuid"},
	}, "alice")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_STORE_ID")
}

func newPriceRouter(store models.Store, prices *stubPrices, product *models.Product) *gin.Engine {
	gin.SetMode(gin.TestMode)

	submit := service.NewSubmitService(prices, &stubStores{stores: []models.Store{store}}, &stubProducts{product: product})

	router := gin.New()
	router.Use(middleware.Session())
	router.POST("/prices", NewPriceHandler(submit).Submit)
	return router
}

func TestSubmitPriceEndpoint(t *testing.T) {
	store := models.Store{ID: uuid.New(), Name: "Store A"}
	prices := &stubPrices{}

	router := newPriceRouter(store, prices, &models.Product{UPC: "00000000001", Name: "Milk"})

	w := postJSON(router, "/prices", gin.H{
		"store_id":      store.ID.String(),
		"upc":           "00000000001",
		"price_cents":   499,
		"evidence_type": "receipt_text",
	}, "alice")

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, prices.inserted, 1)
	assert.Equal(t, "alice", prices.inserted[0].SubmitterSession)
	assert.Contains(t, w.Body.String(), "snapshot_id")
}

func TestSubmitPriceEndpointMapsDomainErrors(t *testing.T) {
	store := models.Store{ID: uuid.New()}

	// No product row: the submission must 404 with a stable code.
	router := newPriceRouter(store, &stubPrices{}, nil)

	w := postJSON(router, "/prices", gin.H{
		"store_id":    store.ID.String(),
		"upc":         "00000000001",
		"price_cents": 499,
	}, "alice")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "PRODUCT_NOT_FOUND")
}

func TestSubmitPriceEndpointRejectsBadBody(t *testing.T) {
	router := newPriceRouter(models.Store{ID: uuid.New()}, &stubPrices{}, nil)

	w := postJSON(router, "/prices", gin.H{"upc": "00000000001"}, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_BODY")
}
