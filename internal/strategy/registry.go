// Package strategy contains the built-in signal strategies and the
// registry the backtest runner resolves them from.
package strategy

import (
	"fmt"
	"sort"

	"github.com/saygoodluck/trading-bot/internal/ports"
)

// Factory builds a strategy from string-keyed parameters. Parameters are
// only stringly-typed at this boundary; each factory converts them into
// its own typed config and validates before construction.
type Factory func(params map[string]string, logger ports.Logger) (ports.Strategy, error)

// Registry maps strategy names to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with every built-in strategy registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("smarsi", NewSMARSIFromParams)
	r.Register("macross", NewMACrossFromParams)
	return r
}

// Register adds a factory under a name, replacing any previous entry.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// Create builds the named strategy. Unknown names fail with
// ports.ErrStrategyNotFound.
func (r *Registry) Create(name string, params map[string]string, logger ports.Logger) (ports.Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ports.ErrStrategyNotFound, name, r.Names())
	}
	return f(params, logger)
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
