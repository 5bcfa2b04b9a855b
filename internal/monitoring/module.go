package monitoring

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultCheckTimeout = 2 * time.Second

// Options configure a Module.
type Options struct {
	// Namespace prefixes every metric. Defaults to "crmhub".
	Namespace string
	// CheckTimeout bounds one health evaluation.
	CheckTimeout time.Duration
}

// Module owns the CRM instruments, their in-process summary and the health
// checks. Runtime and pkg/metrics series stay on the default registry; the
// module's handler gathers both.
type Module struct {
	registry *prometheus.Registry
	metrics  *instruments
	stats    *stats
	health   *Health
}

// NewModule builds a module with a private registry.
func NewModule(opts Options) (*Module, error) {
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "crmhub"
	}
	timeout := opts.CheckTimeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	registry := prometheus.NewRegistry()
	metrics := newInstruments(namespace)
	if err := metrics.register(registry); err != nil {
		return nil, fmt.Errorf("monitoring: register instruments: %w", err)
	}

	return &Module{
		registry: registry,
		metrics:  metrics,
		stats:    newStats(),
		health:   NewHealth(timeout),
	}, nil
}

// Registry exposes the module registry.
func (m *Module) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the module's series together with the default registry.
func (m *Module) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	gatherers := prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}
	return promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}

// Health returns the check registry.
func (m *Module) Health() *Health {
	if m == nil {
		return nil
	}
	return m.health
}

var current atomic.Pointer[Module]

// SetModule installs module for the package-level Record helpers. Nil is
// ignored.
func SetModule(module *Module) {
	if module != nil {
		current.Store(module)
	}
}

// CurrentModule returns the installed module, if any.
func CurrentModule() *Module {
	return current.Load()
}

func withModule(fn func(m *Module)) {
	if m := current.Load(); m != nil {
		fn(m)
	}
}
