// Package stops owns per-symbol protective stop-loss state and the ratchet
// arithmetic. Enforcement against bars is the executor's responsibility;
// this package only stores and tightens levels.
package stops

import (
	"math"

	"github.com/saygoodluck/trading-bot/internal/domain"
)

// Stop is the protective stop attached to one symbol. Its lifecycle is
// strictly subordinate to the owning position: it is cleared whenever the
// position reaches zero or flips.
type Stop struct {
	Side        domain.PositionSide
	Price       float64
	NeverLoosen bool
}

// Manager stores protective stops per symbol and applies the ratchet rule.
// It is not safe for concurrent use; the single-writer bar loop is the only
// mutator (see the serialization requirement on bar processing).
type Manager struct {
	stops map[string]Stop
}

// NewManager creates an empty stop manager.
func NewManager() *Manager {
	return &Manager{stops: make(map[string]Stop)}
}

// Set installs or tightens the protective stop for a symbol.
//
// A missing stop, a side change, or neverLoosen=false replaces the stop
// unconditionally. With neverLoosen=true and an unchanged side the stop
// only ever moves toward the market: max(existing, price) for long,
// min(existing, price) for short. Non-finite prices are ignored.
func (m *Manager) Set(symbol string, side domain.PositionSide, price float64, neverLoosen bool) {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}

	cur, ok := m.stops[symbol]
	if !ok || cur.Side != side || !neverLoosen {
		m.stops[symbol] = Stop{Side: side, Price: price, NeverLoosen: neverLoosen}
		return
	}

	if side == domain.Long {
		price = math.Max(cur.Price, price)
	} else {
		price = math.Min(cur.Price, price)
	}
	m.stops[symbol] = Stop{Side: side, Price: price, NeverLoosen: true}
}

// Clear removes the stop for a symbol. Clearing an absent stop is a no-op.
func (m *Manager) Clear(symbol string) {
	delete(m.stops, symbol)
}

// Get returns the stop for a symbol and whether one exists.
func (m *Manager) Get(symbol string) (Stop, bool) {
	s, ok := m.stops[symbol]
	return s, ok
}
