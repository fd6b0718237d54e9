package healthcheck

import (
	"context"
	"testing"
	"time"

	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerReportsProviderStates(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	breaker := circuitbreaker.New(kv, circuitbreaker.Config{TripAfter: 1, OpenFor: time.Minute})

	checker := NewChecker()
	checker.Register("geocoder", breaker)
	checker.Register("catalog", breaker)

	assert.Equal(t, StatusHealthy, checker.Overall(ctx))

	require.NoError(t, breaker.RecordFailure(ctx, "geocoder"))

	assert.Equal(t, StatusDegraded, checker.Overall(ctx))

	report := checker.Report(ctx)
	require.Len(t, report, 2)

	byName := map[string]ProviderStatus{}
	for _, s := range report {
		byName[s.Provider] = s
	}
	assert.Equal(t, "open", byName["geocoder"].State)
	assert.Equal(t, 1, byName["geocoder"].ConsecutiveFailures)
	assert.Equal(t, "closed", byName["catalog"].State)
}
