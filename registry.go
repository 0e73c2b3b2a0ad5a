package t402

import "sync"

// SchemeRegistry is the three-level map (protocol version -> network
// pattern-or-concrete -> scheme name -> handler) shared by client, server,
// and facilitator roles. Registration is idempotent: the first handler
// registered under a given (version, network, scheme) triple is
// authoritative, and later registrations of the same triple are no-ops.
// This is the only polymorphism the core needs: one lookup implementation
// shared by the client, server, and facilitator roles.
type SchemeRegistry[T any] struct {
	mu      sync.RWMutex
	entries map[ProtocolVersion]map[Network]map[string]T
	// order preserves insertion order per version, used only as the final
	// tie-break when specificity is equal.
	order map[ProtocolVersion][]Network
}

func NewSchemeRegistry[T any]() *SchemeRegistry[T] {
	return &SchemeRegistry[T]{
		entries: make(map[ProtocolVersion]map[Network]map[string]T),
		order:   make(map[ProtocolVersion][]Network),
	}
}

// Register adds handler under (version, network, scheme) if and only if no
// handler is already registered there.
func (r *SchemeRegistry[T]) Register(version ProtocolVersion, network Network, scheme string, handler T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byNetwork, ok := r.entries[version]
	if !ok {
		byNetwork = make(map[Network]map[string]T)
		r.entries[version] = byNetwork
	}
	byScheme, ok := byNetwork[network]
	if !ok {
		byScheme = make(map[string]T)
		byNetwork[network] = byScheme
		r.order[version] = append(r.order[version], network)
	}
	if _, exists := byScheme[scheme]; exists {
		return // first registration wins
	}
	byScheme[scheme] = handler
}

// Lookup resolves a concrete (version, network, scheme) triple. It first
// tries an exact network match, then scans pattern entries in the same
// family, preferring the most specific (non-wildcard) reference, then
// insertion order.
func (r *SchemeRegistry[T]) Lookup(version ProtocolVersion, network Network, scheme string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	byNetwork, ok := r.entries[version]
	if !ok {
		return zero, false
	}

	if byScheme, ok := byNetwork[network]; ok {
		if h, ok := byScheme[scheme]; ok {
			return h, true
		}
	}

	var best T
	found := false
	bestSpecificity := -1
	for _, candidate := range r.order[version] {
		if candidate == network {
			continue // already tried as exact match above
		}
		if !network.MatchesPattern(candidate) {
			continue
		}
		byScheme := byNetwork[candidate]
		h, ok := byScheme[scheme]
		if !ok {
			continue
		}
		spec := candidate.specificity()
		if spec > bestSpecificity {
			best, bestSpecificity, found = h, spec, true
		}
	}
	return best, found
}

// SchemesForNetwork returns every scheme handler registered for networks
// that match the given concrete network under the given version, keyed by
// scheme name. Used for facilitator fallback iteration (4.6) and support
// enumeration.
func (r *SchemeRegistry[T]) SchemesForNetwork(version ProtocolVersion, network Network) map[string]T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]T)
	byNetwork, ok := r.entries[version]
	if !ok {
		return result
	}
	for candidate, byScheme := range byNetwork {
		if candidate != network && !network.MatchesPattern(candidate) {
			continue
		}
		for scheme, h := range byScheme {
			if _, already := result[scheme]; !already {
				result[scheme] = h
			}
		}
	}
	return result
}

// Enumerate returns every registered (version, network, scheme) -> handler
// triple, for diagnostics and for building a Supported Response.
func (r *SchemeRegistry[T]) Enumerate() []RegistryEntry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []RegistryEntry[T]
	for version, byNetwork := range r.entries {
		for network, byScheme := range byNetwork {
			for scheme, handler := range byScheme {
				out = append(out, RegistryEntry[T]{
					Version: version,
					Network: network,
					Scheme:  scheme,
					Handler: handler,
				})
			}
		}
	}
	return out
}

type RegistryEntry[T any] struct {
	Version ProtocolVersion
	Network Network
	Scheme  string
	Handler T
}
