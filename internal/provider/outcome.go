package provider

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopscout/shopscout/internal/circuitbreaker"
	"github.com/shopscout/shopscout/internal/httpclient"
	"github.com/sirupsen/logrus"
)

// Outcome classifies a provider call result for observability.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeHTTP5xx     Outcome = "http_5xx"
	OutcomeHTTP4xx     Outcome = "http_4xx"
	OutcomeParseError  Outcome = "parse_error"
	OutcomeCircuitOpen Outcome = "circuit_open"
	OutcomeOther       Outcome = "other"
)

// ErrSchema marks a response missing a required identifying field.
// Optional fields are genuinely optional; only this fails the parse.
var ErrSchema = errors.New("provider response missing required field")

func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}

	var timeoutErr *httpclient.TimeoutError
	if errors.As(err, &timeoutErr) {
		return OutcomeTimeout
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.Status == http.StatusTooManyRequests:
			return OutcomeRateLimited
		case httpErr.Status >= 500:
			return OutcomeHTTP5xx
		case httpErr.Status >= 400:
			return OutcomeHTTP4xx
		}
	}

	if errors.Is(err, ErrSchema) {
		return OutcomeParseError
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return OutcomeCircuitOpen
	}
	return OutcomeOther
}

// report logs the classified outcome and feeds the circuit breaker. Breaker
// write errors are logged and swallowed; they must not mask the call result.
func report(ctx context.Context, breaker *circuitbreaker.Breaker, name string, err error) {
	outcome := Classify(err)

	if err == nil {
		if berr := breaker.RecordSuccess(ctx, name); berr != nil {
			logrus.WithError(berr).WithField("provider", name).Warn("breaker success write failed")
		}
		return
	}

	logrus.WithFields(logrus.Fields{
		"provider": name,
		"outcome":  outcome,
	}).WithError(err).Warn("provider call failed")

	// A rejected call never reached the provider, so it says nothing about
	// provider health.
	if outcome == OutcomeCircuitOpen {
		return
	}

	if berr := breaker.RecordFailure(ctx, name); berr != nil {
		logrus.WithError(berr).WithField("provider", name).Warn("breaker failure write failed")
	}
}
