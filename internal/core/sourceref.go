package core

import "strings"

// Payment sources can be addressed through composite identifiers: a canonical
// id, or a canonical id plus a linked payment-app label. The linked view is a
// display identity only and never owns a balance. The separator is "::",
// which cannot occur inside a UUID canonical id, so resolution is a pattern
// match rather than string surgery on ambiguous input.
const (
	linkedSep = "::"
	routeSep  = "->"
)

// SourceRef is the resolved form of a possibly-composite source identifier.
// App is empty for a canonical reference.
type SourceRef struct {
	Canonical string
	App       string
}

// ParseSourceRef resolves an identifier into its canonical owner and optional
// linked-app label. A canonical id parses to itself; malformed ids fail soft
// by being treated as their own canonical id.
func ParseSourceRef(id string) SourceRef {
	id = strings.TrimSpace(id)
	before, after, found := strings.Cut(id, linkedSep)
	if !found || before == "" {
		return SourceRef{Canonical: id}
	}
	return SourceRef{Canonical: before, App: after}
}

// CanonicalID strips any linked-app suffix and returns the id that owns the
// balance. Resolving a canonical id is the identity function.
func CanonicalID(id string) string {
	return ParseSourceRef(id).Canonical
}

func (r SourceRef) IsLinked() bool {
	return r.App != ""
}

// String rebuilds the composite identifier.
func (r SourceRef) String() string {
	if r.App == "" {
		return r.Canonical
	}
	return r.Canonical + linkedSep + r.App
}

// LinkedID builds the composite identifier for a linked-app view of a
// canonical source.
func LinkedID(canonicalID, app string) string {
	if app == "" {
		return canonicalID
	}
	return canonicalID + linkedSep + app
}

// TransferRoute encodes both legs of a transfer into the record's display
// source field: debited source first, credited destination second.
func TransferRoute(fromID, toID string) string {
	return fromID + routeSep + toID
}

// ParseTransferRoute splits a transfer route back into its two canonical leg
// ids. ok is false when the value is not a route.
func ParseTransferRoute(route string) (fromID, toID string, ok bool) {
	before, after, found := strings.Cut(route, routeSep)
	if !found || before == "" || after == "" {
		return "", "", false
	}
	return before, after, true
}
