package model

import "strings"

// Point is a screen coordinate reported by the view driver, in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one entry of the remote tree as returned by a single enumeration
// pass. Nodes have no identity across passes: after any activation every
// Node previously returned must be treated as stale, and callers re-enumerate
// or re-locate by Text instead.
type Node struct {
	// Text is the trimmed display text of the node. It doubles as the node's
	// name for de-duplication and resume routing.
	Text string `json:"text"`

	// Location is where the node was rendered when it was enumerated.
	Location Point `json:"location"`

	// Target is the explicit navigation target (usually an href), if any.
	// Many tree nodes have none and only react to activation.
	Target string `json:"target,omitempty"`

	// Handle is driver-private state (for example a DOM element reference).
	// It is only valid until the next activation.
	Handle any `json:"-"`
}

// HasExplicitTarget reports whether the node carries a navigation target.
func (n Node) HasExplicitTarget() bool {
	return n.Target != ""
}

// Location is where the remote view currently is.
type Location struct {
	// URL is the current document URL.
	URL string `json:"url"`

	// Title is the current document title.
	Title string `json:"title"`
}

// Extractable reports whether the location carries both a URL and a
// non-blank title. Visits without one are skipped without a record.
func (l Location) Extractable() bool {
	return l.URL != "" && strings.TrimSpace(l.Title) != ""
}
