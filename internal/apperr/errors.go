package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a coded error returned by the core services. The Code is stable
// and machine-readable; Message is for humans and may change.
type Error struct {
	Code    string
	Message string
	Status  int
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on the code so callers can compare against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func New(code string, status int, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

// Wrap attaches a cause while keeping the sentinel's code and status.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Message: sentinel.Message, Status: sentinel.Status, cause: cause}
}

// Wrapf attaches a cause and a specific message.
func Wrapf(sentinel *Error, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    sentinel.Code,
		Message: fmt.Sprintf(format, args...),
		Status:  sentinel.Status,
		cause:   cause,
	}
}

// Input errors - rejected synchronously, never retried.
var (
	ErrInvalidUPC      = New("INVALID_UPC", http.StatusBadRequest, "upc must be 8-14 digits")
	ErrInvalidQuantity = New("INVALID_QUANTITY", http.StatusBadRequest, "quantity out of range")
	ErrEmptyQuery      = New("EMPTY_QUERY", http.StatusBadRequest, "query must not be empty")
	ErrInvalidPrice    = New("INVALID_PRICE", http.StatusBadRequest, "price_cents must be positive")
)

// Rate limiting and provider health.
var (
	ErrRateLimited  = New("RATE_LIMITED", http.StatusTooManyRequests, "rate limit exceeded")
	ErrProviderOpen = New("PROVIDER_OPEN", http.StatusServiceUnavailable, "provider circuit is open")
)

// Transport-level outcomes surfaced at the orchestration layer.
var (
	ErrGeocoderUnavailable = New("GEOCODER_UNAVAILABLE", http.StatusBadGateway, "geocoding provider unavailable")
	ErrPOIUnavailable      = New("POI_UNAVAILABLE", http.StatusBadGateway, "poi provider unavailable")
	ErrCatalogUnavailable  = New("CATALOG_UNAVAILABLE", http.StatusBadGateway, "catalog provider unavailable")
	ErrPricingUnavailable  = New("PRICING_UNAVAILABLE", http.StatusBadGateway, "pricing provider unavailable")
)

// Domain-level rejections.
var (
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "not found")
	ErrStoreNotFound      = New("STORE_NOT_FOUND", http.StatusNotFound, "store not found")
	ErrProductNotFound    = New("PRODUCT_NOT_FOUND", http.StatusNotFound, "product not found")
	ErrOutlierPrice       = New("OUTLIER_PRICE", http.StatusUnprocessableEntity, "price is an outlier against recent history")
	ErrObservedAtInFuture = New("OBSERVED_AT_IN_FUTURE", http.StatusUnprocessableEntity, "observed_at is too far in the future")
)

// Code extracts the stable code from any error, defaulting to INTERNAL.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// Status maps an error to an HTTP status, defaulting to 500.
func Status(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}
