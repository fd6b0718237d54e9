package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/httpclient"
	"github.com/shopscout/shopscout/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, OutcomeOK, Classify(nil))
	assert.Equal(t, OutcomeTimeout, Classify(&httpclient.TimeoutError{URL: "http://x"}))
	assert.Equal(t, OutcomeRateLimited, Classify(&httpclient.HTTPError{Status: 429}))
	assert.Equal(t, OutcomeHTTP5xx, Classify(&httpclient.HTTPError{Status: 503}))
	assert.Equal(t, OutcomeHTTP4xx, Classify(&httpclient.HTTPError{Status: 404}))
	assert.Equal(t, OutcomeParseError, Classify(fmt.Errorf("%w: lat/lon", ErrSchema)))
	assert.Equal(t, OutcomeCircuitOpen, Classify(fmt.Errorf("geocoder: %w", circuitbreaker.ErrCircuitOpen)))
	assert.Equal(t, OutcomeOther, Classify(errors.New("connection refused")))
}

func TestReportCircuitOpenIsNotAFailure(t *testing.T) {
	ctx := context.Background()
	breaker := circuitbreaker.New(storage.NewMemory(), circuitbreaker.Config{TripAfter: 3, OpenFor: time.Minute})

	report(ctx, breaker, "catalog", fmt.Errorf("catalog: %w", circuitbreaker.ErrCircuitOpen))

	failures, err := breaker.Failures(ctx, "catalog")
	require.NoError(t, err)
	assert.Zero(t, failures, "a rejected call must not count against the provider")
}

func TestReportFeedsBreaker(t *testing.T) {
	ctx := context.Background()
	breaker := circuitbreaker.New(storage.NewMemory(), circuitbreaker.Config{TripAfter: 3, OpenFor: time.Minute})

	report(ctx, breaker, "catalog", &httpclient.HTTPError{Status: 502})
	report(ctx, breaker, "catalog", &httpclient.TimeoutError{URL: "http://x"})

	failures, err := breaker.Failures(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, 2, failures)

	report(ctx, breaker, "catalog", nil)

	failures, err = breaker.Failures(ctx, "catalog")
	require.NoError(t, err)
	assert.Zero(t, failures)
}
