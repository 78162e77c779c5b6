package backend

import (
	"crypto/rand"
	"encoding/binary"
)

// Strategy selects one instance among a service's healthy instances.
type Strategy int

const (
	// StrategyRoundRobin cycles through healthy instances in order.
	StrategyRoundRobin Strategy = iota
	// StrategyWeighted picks randomly in proportion to instance weights.
	StrategyWeighted
	// StrategyLeastConnections picks the instance with the fewest
	// dispatched requests, ties broken by encounter order.
	StrategyLeastConnections
	// StrategyRandom picks uniformly over healthy instances.
	StrategyRandom
)

// Strategy names accepted by ParseStrategy.
const (
	strategyNameRoundRobin = "round-robin"
	strategyNameWeighted   = "weighted"
	strategyNameLeastConn  = "least-connections"
	strategyNameRandom     = "random"
)

// ParseStrategy maps a configuration string to a Strategy. Unknown or
// empty names degrade to round-robin rather than failing; this is the
// single boundary where external strategy configuration is interpreted.
func ParseStrategy(name string) Strategy {
	switch name {
	case strategyNameWeighted:
		return StrategyWeighted
	case strategyNameLeastConn:
		return StrategyLeastConnections
	case strategyNameRandom:
		return StrategyRandom
	default:
		return StrategyRoundRobin
	}
}

// String returns the canonical name of the strategy.
func (s Strategy) String() string {
	switch s {
	case StrategyWeighted:
		return strategyNameWeighted
	case StrategyLeastConnections:
		return strategyNameLeastConn
	case StrategyRandom:
		return strategyNameRandom
	default:
		return strategyNameRoundRobin
	}
}

// secureRandomInt returns a cryptographically secure random int in [0, n).
func secureRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	// Safe conversion: result of modulo is always < n, which fits in int
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n)) //nolint:gosec // bounds checked
}
