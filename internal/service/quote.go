package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopscout/shopscout/internal/apperr"
	"github.com/shopscout/shopscout/internal/models"
)

// Freshness buckets classify a matched price by age.
const (
	FreshnessFresh  = "fresh"  // ≤ 2 days
	FreshnessRecent = "recent" // ≤ 7 days
	FreshnessStale  = "stale"  // ≤ 30 days
	FreshnessOld    = "old"    // > 30 days
)

// completenessFloor stops a store with many missing prices from looking
// artificially cheap: the adjusted total divides by at least this much.
const completenessFloor = 0.25

const maxLineQuantity = 99

type EvidenceSource interface {
	LatestSnapshots(ctx context.Context, storeIDs []uuid.UUID, upcs []string) ([]models.PriceSnapshot, error)
}

type StoreFinder interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Store, error)
}

// CartLine is one (upc, quantity) pair. Cart persistence belongs to the
// cart collaborator; the quote engine only consumes lines.
type CartLine struct {
	UPC      string `json:"upc"`
	Quantity int    `json:"quantity"`
}

// QuoteService joins cart lines against price evidence per candidate store,
// scores each store, and ranks them.
type QuoteService struct {
	evidence EvidenceSource
	stores   StoreFinder
	overlay  *Overlay // nil disables the live overlay

	now func() time.Time
}

func NewQuoteService(evidence EvidenceSource, stores StoreFinder, overlay *Overlay) *QuoteService {
	return &QuoteService{
		evidence: evidence,
		stores:   stores,
		overlay:  overlay,
		now:      time.Now,
	}
}

type QuoteLine struct {
	UPC            string    `json:"upc"`
	Quantity       int       `json:"quantity"`
	UnitPriceCents int64     `json:"unit_price_cents,omitempty"`
	ExtendedCents  int64     `json:"extended_cents,omitempty"`
	Missing        bool      `json:"missing,omitempty"`
	Freshness      string    `json:"freshness,omitempty"`
	Source         string    `json:"source,omitempty"`
	ObservedAt     time.Time `json:"observed_at,omitempty"`
}

type StoreQuote struct {
	StoreID            uuid.UUID   `json:"store_id"`
	StoreName          string      `json:"store_name"`
	Lines              []QuoteLine `json:"lines"`
	MatchedCount       int         `json:"matched_count"`
	Completeness       float64     `json:"completeness"`
	RawTotalCents      int64       `json:"raw_total_cents"`
	AdjustedTotalCents int64       `json:"adjusted_total_cents"`
}

type QuoteResult struct {
	Stores          []StoreQuote `json:"stores"`
	CheapestStoreID *uuid.UUID   `json:"cheapest_store_id,omitempty"`
	Warnings        []string     `json:"warnings,omitempty"`
}

// Quote computes the per-store comparison. Unknown store ids produce a
// warning, not an abort; the quote covers the resolvable subset.
func (q *QuoteService) Quote(ctx context.Context, sessionID string, lines []CartLine, storeIDs []uuid.UUID) (*QuoteResult, error) {
	for _, line := range lines {
		if err := validateUPC(line.UPC); err != nil {
			return nil, err
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return nil, apperr.ErrInvalidQuantity
		}
	}

	result := &QuoteResult{}

	stores, err := q.stores.FindByIDs(ctx, storeIDs)
	if err != nil {
		return nil, err
	}

	known := make(map[uuid.UUID]*models.Store, len(stores))
	for i := range stores {
		known[stores[i].ID] = &stores[i]
	}
	resolved := make([]uuid.UUID, 0, len(storeIDs))
	for _, id := range storeIDs {
		if _, ok := known[id]; ok {
			resolved = append(resolved, id)
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s:%s", apperr.ErrStoreNotFound.Code, id))
		}
	}

	upcs := make([]string, 0, len(lines))
	for _, line := range lines {
		upcs = append(upcs, line.UPC)
	}

	evidence := map[uuid.UUID]map[string]*models.PriceSnapshot{}
	if len(resolved) > 0 && len(upcs) > 0 {
		snapshots, err := q.evidence.LatestSnapshots(ctx, resolved, upcs)
		if err != nil {
			return nil, err
		}
		for i := range snapshots {
			snap := &snapshots[i]
			perStore, ok := evidence[snap.StoreID]
			if !ok {
				perStore = map[string]*models.PriceSnapshot{}
				evidence[snap.StoreID] = perStore
			}
			// LatestSnapshots already orders best-first per pair; keep the
			// first row seen.
			if _, exists := perStore[snap.UPC]; !exists {
				perStore[snap.UPC] = snap
			}
		}
	}

	now := q.now()
	for _, id := range resolved {
		store := known[id]
		perStore := evidence[id]

		// Live overlay entries supersede persisted evidence for the UPCs
		// they cover, since they are observed now.
		if q.overlay != nil && len(upcs) > 0 {
			live := q.overlay.PricesForStore(ctx, store, upcs, sessionID)
			result.Warnings = mergeWarnings(result.Warnings, live.Warnings)
			if len(live.Prices) > 0 && perStore == nil {
				perStore = map[string]*models.PriceSnapshot{}
			}
			for upc, price := range live.Prices {
				perStore[upc] = &models.PriceSnapshot{
					StoreID:    id,
					UPC:        upc,
					PriceCents: price.PriceCents,
					Currency:   price.Currency,
					ObservedAt: now,
					Source:     liveSourceName,
					Confidence: liveConfidence,
				}
			}
		}

		result.Stores = append(result.Stores, q.scoreStore(store, lines, perStore, now))
	}

	rankStores(result.Stores)

	if len(result.Stores) > 0 {
		cheapest := result.Stores[0].StoreID
		result.CheapestStoreID = &cheapest
	}

	return result, nil
}

func (q *QuoteService) scoreStore(store *models.Store, lines []CartLine, perStore map[string]*models.PriceSnapshot, now time.Time) StoreQuote {
	quote := StoreQuote{
		StoreID:   store.ID,
		StoreName: store.Name,
		Lines:     make([]QuoteLine, 0, len(lines)),
	}

	for _, line := range lines {
		ql := QuoteLine{UPC: line.UPC, Quantity: line.Quantity}

		snap := perStore[line.UPC]
		if snap == nil {
			ql.Missing = true
			quote.Lines = append(quote.Lines, ql)
			continue
		}

		ql.UnitPriceCents = snap.PriceCents
		ql.ExtendedCents = snap.PriceCents * int64(line.Quantity)
		ql.Source = snap.Source
		ql.ObservedAt = snap.ObservedAt
		ql.Freshness = freshnessBucket(now.Sub(snap.ObservedAt))

		quote.MatchedCount++
		quote.RawTotalCents += ql.ExtendedCents
		quote.Lines = append(quote.Lines, ql)
	}

	if len(lines) > 0 {
		quote.Completeness = float64(quote.MatchedCount) / float64(len(lines))
	}

	divisor := math.Max(completenessFloor, quote.Completeness)
	quote.AdjustedTotalCents = int64(math.Round(float64(quote.RawTotalCents) / divisor))

	return quote
}

// rankStores orders by completeness descending, then adjusted total
// ascending, then raw total ascending.
func rankStores(stores []StoreQuote) {
	sort.SliceStable(stores, func(i, j int) bool {
		if stores[i].Completeness != stores[j].Completeness {
			return stores[i].Completeness > stores[j].Completeness
		}
		if stores[i].AdjustedTotalCents != stores[j].AdjustedTotalCents {
			return stores[i].AdjustedTotalCents < stores[j].AdjustedTotalCents
		}
		return stores[i].RawTotalCents < stores[j].RawTotalCents
	})
}

func freshnessBucket(age time.Duration) string {
	days := age.Hours() / 24
	switch {
	case days <= 2:
		return FreshnessFresh
	case days <= 7:
		return FreshnessRecent
	case days <= 30:
		return FreshnessStale
	default:
		return FreshnessOld
	}
}

func mergeWarnings(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, w := range existing {
		seen[w] = true
	}
	for _, w := range incoming {
		if !seen[w] {
			existing = append(existing, w)
			seen[w] = true
		}
	}
	return existing
}
