package healthcheck

type HealthStatus string

const (
	// StatusHealthy - storage reachable, all provider circuits closed
	StatusHealthy HealthStatus = "healthy"

	// StatusDegraded - a dependency is down or a provider circuit is open
	StatusDegraded HealthStatus = "degraded"
)

// ProviderStatus is one provider's circuit state for the health endpoint.
type ProviderStatus struct {
	Provider            string `json:"provider"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
}
