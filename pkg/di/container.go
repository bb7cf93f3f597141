// Package di provides a small dependency injection container wiring the
// engine's collaborators (distance function registry, run ledger, status
// metrics) for the CLI entry point.
package di

import (
	"sync"

	"github.com/ssargent/freyja-knn/pkg/distance"
	"github.com/ssargent/freyja-knn/pkg/ledger"
	"github.com/ssargent/freyja-knn/pkg/statusapi"
)

// Container holds the dependencies the CLI layer assembles once and hands
// to the engine.
type Container struct {
	distanceRegistry func(name string) (distance.Func, error)
	ledgerFactory    func(path string) (*ledger.Ledger, error)

	metricsOnce sync.Once
	metrics     *statusapi.Metrics
}

// NewContainer creates a container wired to the real distance registry and
// ledger implementations. Metrics are registered with Prometheus lazily,
// on first use, so constructing a Container in a test that never exercises
// Metrics() does not register any collector.
func NewContainer() *Container {
	return &Container{
		distanceRegistry: distance.Lookup,
		ledgerFactory:    ledger.Open,
	}
}

// LookupDistance resolves a distance function by name.
func (c *Container) LookupDistance(name string) (distance.Func, error) {
	return c.distanceRegistry(name)
}

// OpenLedger opens the run ledger at path.
func (c *Container) OpenLedger(path string) (*ledger.Ledger, error) {
	return c.ledgerFactory(path)
}

// Metrics returns the container's shared Prometheus metrics instance,
// constructing (and registering) it on first use.
func (c *Container) Metrics() *statusapi.Metrics {
	c.metricsOnce.Do(func() {
		c.metrics = statusapi.NewMetrics()
	})
	return c.metrics
}

// SetDistanceRegistry allows overriding distance-function resolution (for
// testing).
func (c *Container) SetDistanceRegistry(fn func(name string) (distance.Func, error)) {
	c.distanceRegistry = fn
}

// SetLedgerFactory allows overriding ledger construction (for testing).
func (c *Container) SetLedgerFactory(fn func(path string) (*ledger.Ledger, error)) {
	c.ledgerFactory = fn
}
