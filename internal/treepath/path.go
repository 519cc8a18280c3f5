package treepath

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Separator joins path components in the serialized form ("1-2-1").
const Separator = "-"

var (
	// ErrEmptyPath is returned when a path has no components.
	ErrEmptyPath = errors.New("empty path")

	// ErrInvalidComponent is returned when a component is not a positive integer.
	ErrInvalidComponent = errors.New("invalid path component: must be a positive integer")
)

// Path is the dotted-integer address of a node in the discovered tree.
// Index i holds the 1-based sibling position at level i, so a Path of
// length n addresses a node at level n-1.
//
// A Path is a value: every method that derives a new Path returns a fresh
// slice and never writes through the receiver.
type Path []int

// Allocate returns the path of the siblingIndex-th node discovered under
// parent. A nil parent addresses the root level. siblingIndex is 1-based and
// follows the order of the current enumeration pass.
func Allocate(parent Path, siblingIndex int) Path {
	p := make(Path, len(parent), len(parent)+1)
	copy(p, parent)
	return append(p, siblingIndex)
}

// Parse reads the serialized form produced by String.
// Surrounding whitespace is ignored.
func Parse(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyPath
	}

	parts := strings.Split(s, Separator)
	p := make(Path, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: %q in %q", ErrInvalidComponent, part, s)
		}
		p = append(p, n)
	}
	return p, nil
}

// String serializes the path as "1-2-1". The empty path serializes to "".
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, n := range p {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, Separator)
}

// Validate reports whether p is non-empty and every component is positive.
func (p Path) Validate() error {
	if len(p) == 0 {
		return ErrEmptyPath
	}
	for _, n := range p {
		if n <= 0 {
			return fmt.Errorf("%w: %d", ErrInvalidComponent, n)
		}
	}
	return nil
}

// Level returns the 0-based tree level addressed by p, or -1 for the empty path.
func (p Path) Level() int {
	return len(p) - 1
}

// Last returns the sibling index of the addressed node, or 0 for the empty path.
func (p Path) Last() int {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1]
}

// Parent returns the path of the parent node. Root-level paths have a nil parent.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return nil
	}
	return p.Clone()[:len(p)-1]
}

// NextSibling returns p with its last component incremented.
func (p Path) NextSibling() Path {
	if len(p) == 0 {
		return Path{1}
	}
	next := p.Clone()
	next[len(next)-1]++
	return next
}

// FirstChild returns p with 1 appended.
func (p Path) FirstChild() Path {
	return Allocate(p, 1)
}

// Prefixes returns every non-empty prefix of p, shortest first.
// The last element equals p.
func (p Path) Prefixes() []Path {
	out := make([]Path, 0, len(p))
	for i := 1; i <= len(p); i++ {
		prefix := make(Path, i)
		copy(prefix, p[:i])
		out = append(out, prefix)
	}
	return out
}

// HasPrefix reports whether prefix is a (not necessarily proper) prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether p and other address the same position.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// MarshalText encodes p in its serialized form, so JSON and YAML see "1-2-1".
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes the serialized form. An empty input yields a nil Path.
func (p *Path) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*p = nil
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Clone returns a copy of p that shares no memory with it.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	c := make(Path, len(p))
	copy(c, p)
	return c
}
