package t402

import "strings"

// Network is a CAIP-2-style identifier, "family:reference" (eip155:8453,
// solana:5eykt...), or under v1 a legacy short name (base-sepolia) that is
// never parsed into family/reference form.
type Network string

// WildcardReference matches any reference within a family, e.g. "eip155:*".
const WildcardReference = "*"

// split returns the family and reference halves of a v2 network identifier.
// ok is false if the identifier has no ":" separator (e.g. a v1 legacy name
// passed here by mistake).
func (n Network) split() (family, reference string, ok bool) {
	idx := strings.IndexByte(string(n), ':')
	if idx < 0 {
		return "", "", false
	}
	return string(n)[:idx], string(n)[idx+1:], true
}

// IsPattern reports whether this network identifier is a wildcard pattern
// ("eip155:*") rather than a concrete network.
func (n Network) IsPattern() bool {
	_, ref, ok := n.split()
	return ok && ref == WildcardReference
}

// MatchesPattern reports whether the concrete network n is matched by
// pattern, per the Network Pattern Matcher algorithm: families must be
// equal, and either the references are equal or the pattern reference is
// the wildcard.
func (n Network) MatchesPattern(pattern Network) bool {
	nFamily, nRef, nOk := n.split()
	pFamily, pRef, pOk := pattern.split()
	if !nOk || !pOk {
		return n == pattern
	}
	if nFamily != pFamily {
		return false
	}
	return nRef == pRef || pRef == WildcardReference
}

// specificity ranks a pattern higher when its reference is concrete rather
// than a wildcard. Used to break ties among multiple matching registry
// entries: "the more specific reference wins".
func (n Network) specificity() int {
	if n.IsPattern() {
		return 0
	}
	return 1
}
