package healthcheck

import (
	"context"

	"github.com/shopscout/shopscout/internal/circuitbreaker"
)

// Checker reports provider circuit states. A pure read of persisted breaker
// state; there is no background polling.
type Checker struct {
	names    []string
	breakers map[string]*circuitbreaker.Breaker
}

func NewChecker() *Checker {
	return &Checker{breakers: make(map[string]*circuitbreaker.Breaker)}
}

func (c *Checker) Register(name string, breaker *circuitbreaker.Breaker) {
	if _, exists := c.breakers[name]; !exists {
		c.names = append(c.names, name)
	}
	c.breakers[name] = breaker
}

// Report returns each registered provider's state in registration order.
func (c *Checker) Report(ctx context.Context) []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(c.names))
	for _, name := range c.names {
		breaker := c.breakers[name]

		state, err := breaker.State(ctx, name)
		if err != nil {
			statuses = append(statuses, ProviderStatus{Provider: name, State: "unknown"})
			continue
		}
		failures, _ := breaker.Failures(ctx, name)

		statuses = append(statuses, ProviderStatus{
			Provider:            name,
			State:               state.String(),
			ConsecutiveFailures: failures,
		})
	}
	return statuses
}

// Overall is degraded when any provider circuit is open.
func (c *Checker) Overall(ctx context.Context) HealthStatus {
	for _, status := range c.Report(ctx) {
		if status.State == circuitbreaker.StateOpen.String() {
			return StatusDegraded
		}
	}
	return StatusHealthy
}
