package service

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/apperr"
	"github.com/shopscout/shopscout/internal/models"
)

const (
	// Submissions observed more than this far in the future are rejected.
	futureSkewAllowance = 24 * time.Hour

	// An identical store+upc+price within this window is the same
	// observation; return the existing id.
	duplicateWindow = time.Hour

	// Median outlier guard over the most recent history.
	medianHistorySize = 25
	outlierLowFactor  = 0.3
	outlierHighFactor = 3.0
)

// Confidence by evidence type: receipt-derived beats free-text entry.
var evidenceConfidence = map[string]float64{
	"receipt_text": 0.8,
	"manual":       0.6,
}

type PriceWriter interface {
	Insert(ctx context.Context, snapshot *models.PriceSnapshot) error
	RecentPrices(ctx context.Context, storeID uuid.UUID, upc string, limit int) ([]int64, error)
	FindDuplicate(ctx context.Context, storeID uuid.UUID, upc string, priceCents int64, since time.Time) (*models.PriceSnapshot, error)
}

type StoreReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
}

type ProductReader interface {
	FindByUPC(ctx context.Context, upc string) (*models.Product, error)
}

// SubmitService is the write path feeding the price evidence log.
type SubmitService struct {
	prices   PriceWriter
	stores   StoreReader
	products ProductReader

	now func() time.Time
}

func NewSubmitService(prices PriceWriter, stores StoreReader, products ProductReader) *SubmitService {
	return &SubmitService{
		prices:   prices,
		stores:   stores,
		products: products,
		now:      time.Now,
	}
}

type Submission struct {
	StoreID      uuid.UUID
	UPC          string
	PriceCents   int64
	EvidenceType string     // "manual" or "receipt_text"
	ObservedAt   *time.Time // nil means now
	SessionID    string
}

// Submit validates and appends a community price observation. Duplicate
// submissions inside the window return the existing snapshot id.
func (s *SubmitService) Submit(ctx context.Context, sub Submission) (uuid.UUID, error) {
	if err := validateUPC(sub.UPC); err != nil {
		return uuid.Nil, err
	}
	if sub.PriceCents <= 0 {
		return uuid.Nil, apperr.ErrInvalidPrice
	}
	if _, ok := evidenceConfidence[sub.EvidenceType]; !ok {
		sub.EvidenceType = "manual"
	}

	store, err := s.stores.FindByID(ctx, sub.StoreID)
	if err != nil {
		return uuid.Nil, err
	}
	if store == nil {
		return uuid.Nil, apperr.ErrStoreNotFound
	}

	product, err := s.products.FindByUPC(ctx, sub.UPC)
	if err != nil {
		return uuid.Nil, err
	}
	if product == nil {
		return uuid.Nil, apperr.ErrProductNotFound
	}

	now := s.now()
	observedAt := now
	if sub.ObservedAt != nil {
		observedAt = *sub.ObservedAt
	}
	if observedAt.After(now.Add(futureSkewAllowance)) {
		return uuid.Nil, apperr.ErrObservedAtInFuture
	}

	existing, err := s.prices.FindDuplicate(ctx, sub.StoreID, sub.UPC, sub.PriceCents, now.Add(-duplicateWindow))
	if err != nil {
		return uuid.Nil, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	if err := s.checkOutlier(ctx, sub.StoreID, sub.UPC, sub.PriceCents); err != nil {
		return uuid.Nil, err
	}

	snapshot := &models.PriceSnapshot{
		StoreID:          sub.StoreID,
		UPC:              sub.UPC,
		PriceCents:       sub.PriceCents,
		Currency:         "USD",
		ObservedAt:       observedAt,
		Source:           "community",
		EvidenceType:     sub.EvidenceType,
		Confidence:       evidenceConfidence[sub.EvidenceType],
		SubmitterSession: sub.SessionID,
	}
	if err := s.prices.Insert(ctx, snapshot); err != nil {
		return uuid.Nil, err
	}

	return snapshot.ID, nil
}

// checkOutlier rejects prices outside a multiplicative band around the
// median of recent history. No history means nothing to compare against.
func (s *SubmitService) checkOutlier(ctx context.Context, storeID uuid.UUID, upc string, priceCents int64) error {
	history, err := s.prices.RecentPrices(ctx, storeID, upc, medianHistorySize)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	median := medianCents(history)
	low := int64(outlierLowFactor * float64(median))
	high := int64(outlierHighFactor * float64(median))

	if priceCents < low || priceCents > high {
		return apperr.ErrOutlierPrice
	}
	return nil
}

func medianCents(values []int64) int64 {
	sorted := make([]int64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
