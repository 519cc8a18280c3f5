// Package viewtest provides an in-memory tree view that satisfies the
// traversal driver interfaces. It renders folders the way a documentation
// sidebar does: activating a node opens its document and expands it.
package viewtest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/nao1215/treewalk/internal/model"
)

// BaseURL prefixes the default document URL of every node.
const BaseURL = "https://docs.example.com/wiki/"

// ErrEnumerate is returned by EnumerateVisibleNodes when failure is injected.
var ErrEnumerate = errors.New("viewtest: enumeration failed")

// Node is one item of the fake tree.
type Node struct {
	Name     string
	Children []*Node

	// URL and Title override the defaults (BaseURL+Name and Name).
	URL   string
	Title string

	// Content is the HTML returned by PageContent while the node is open.
	Content string

	// Target is exposed as the node's explicit navigation target.
	Target string

	// NoTitle makes the opened document report an empty title.
	NoTitle bool

	// Refuse makes Activate return false.
	Refuse bool

	// Err makes Activate return this error.
	Err error
}

// Leaf returns a node without children.
func Leaf(name string) *Node {
	return &Node{Name: name}
}

// Folder returns a node with children.
func Folder(name string, children ...*Node) *Node {
	return &Node{Name: name, Children: children}
}

// Tree is the fake view. It is safe for concurrent use.
type Tree struct {
	mu sync.Mutex

	roots    []*Node
	chrome   []string
	expanded map[*Node]bool
	current  *Node
	toggle   bool

	enumerateErr  error
	afterActivate map[string]func(*Tree)

	activations  map[string]int
	enumerations int
	locates      int
	readyWaits   int
}

// New returns a collapsed tree showing roots.
func New(roots ...*Node) *Tree {
	return &Tree{
		roots:         roots,
		expanded:      make(map[*Node]bool),
		afterActivate: make(map[string]func(*Tree)),
		activations:   make(map[string]int),
	}
}

// WithChrome adds non-tree entries (search boxes, menu labels) that are
// listed before the tree items on every enumeration.
func (t *Tree) WithChrome(labels ...string) *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chrome = append(t.chrome, labels...)
	return t
}

// WithToggle makes activating an expanded folder collapse it, as sidebars
// with disclosure triangles do. By default activation only expands.
func (t *Tree) WithToggle() *Tree {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toggle = true
	return t
}

// Expand shows the children of the named folders without activating them,
// leaving the view as an earlier session would have.
func (t *Tree) Expand(names ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, name := range names {
		n := find(t.roots, name)
		if n == nil {
			return fmt.Errorf("viewtest: no node %q", name)
		}
		t.expanded[n] = true
	}
	return nil
}

// FailEnumeration makes every following enumeration return err.
// A nil err restores normal behavior.
func (t *Tree) FailEnumeration(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enumerateErr = err
}

// AfterActivate registers fn to run, with the tree unlocked, after the
// named node was activated successfully. It simulates view mutation.
func (t *Tree) AfterActivate(name string, fn func(*Tree)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.afterActivate[name] = fn
}

// AddChild appends child under the node named parent, or at the root level
// when parent is empty.
func (t *Tree) AddChild(parent string, child *Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if parent == "" {
		t.roots = append(t.roots, child)
		return nil
	}
	n := find(t.roots, parent)
	if n == nil {
		return fmt.Errorf("viewtest: no node %q", parent)
	}
	n.Children = append(n.Children, child)
	return nil
}

// Remove deletes the named node and its subtree. It reports whether the
// node existed.
func (t *Tree) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	var remove func(list []*Node) ([]*Node, bool)
	remove = func(list []*Node) ([]*Node, bool) {
		for i, n := range list {
			if n.Name == name {
				return append(list[:i:i], list[i+1:]...), true
			}
			if children, ok := remove(n.Children); ok {
				n.Children = children
				return list, true
			}
		}
		return list, false
	}

	roots, ok := remove(t.roots)
	t.roots = roots
	return ok
}

// Reset collapses every folder and closes the open document, as a fresh
// browser session would.
func (t *Tree) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expanded = make(map[*Node]bool)
	t.current = nil
}

// ResetCounters clears call counters.
func (t *Tree) ResetCounters() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.activations = make(map[string]int)
	t.enumerations = 0
	t.locates = 0
	t.readyWaits = 0
}

// Activations returns how often the named node was activated.
func (t *Tree) Activations(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activations[name]
}

// TotalActivations returns the number of Activate calls.
func (t *Tree) TotalActivations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, n := range t.activations {
		total += n
	}
	return total
}

// Calls returns the total number of driver calls of any kind.
func (t *Tree) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := t.enumerations + t.locates + t.readyWaits
	for _, n := range t.activations {
		total += n
	}
	return total
}

// Enumerations returns the number of EnumerateVisibleNodes calls.
func (t *Tree) Enumerations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enumerations
}

// EnumerateVisibleNodes lists chrome entries, then visible tree items in
// pre-order.
func (t *Tree) EnumerateVisibleNodes(_ context.Context) ([]model.Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.enumerations++
	if t.enumerateErr != nil {
		return nil, t.enumerateErr
	}
	return t.visibleLocked(), nil
}

// LocateByName returns the visible node whose name equals name.
func (t *Tree) LocateByName(_ context.Context, name string) (model.Node, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.locates++
	for _, n := range t.visibleLocked() {
		if n.Text == name {
			return n, true, nil
		}
	}
	return model.Node{}, false, nil
}

// Activate opens the node's document and expands it. In toggle mode an
// expanded folder collapses instead.
func (t *Tree) Activate(_ context.Context, node model.Node) (bool, error) {
	t.mu.Lock()

	n, ok := node.Handle.(*Node)
	if !ok || n == nil {
		t.mu.Unlock()
		return false, nil
	}
	t.activations[n.Name]++

	if n.Err != nil {
		t.mu.Unlock()
		return false, n.Err
	}
	if n.Refuse {
		t.mu.Unlock()
		return false, nil
	}

	t.current = n
	if t.toggle && t.expanded[n] && len(n.Children) > 0 {
		delete(t.expanded, n)
	} else {
		t.expanded[n] = true
	}
	hook := t.afterActivate[n.Name]
	t.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return true, nil
}

// CurrentLocation reports the open document.
func (t *Tree) CurrentLocation(_ context.Context) (model.Location, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return model.Location{URL: BaseURL, Title: "Workspace"}, nil
	}
	return locationOf(t.current), nil
}

// WaitReady counts the call and returns immediately.
func (t *Tree) WaitReady(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readyWaits++
	return nil
}

// PageContent returns the open document's HTML.
func (t *Tree) PageContent(_ context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return "<html><body></body></html>", nil
	}
	if t.current.Content != "" {
		return t.current.Content, nil
	}
	return "<html><body><h1>" + t.current.Name + "</h1></body></html>", nil
}

func (t *Tree) visibleLocked() []model.Node {
	nodes := make([]model.Node, 0, len(t.chrome)+len(t.roots))
	for _, label := range t.chrome {
		nodes = append(nodes, model.Node{
			Text:     label,
			Location: model.Point{X: 8, Y: float64(len(nodes) * 24)},
		})
	}

	var walk func(list []*Node, depth int)
	walk = func(list []*Node, depth int) {
		for _, n := range list {
			nodes = append(nodes, model.Node{
				Text:     n.Name,
				Location: model.Point{X: float64(16 + depth*16), Y: float64(len(nodes) * 24)},
				Target:   n.Target,
				Handle:   n,
			})
			if t.expanded[n] {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(t.roots, 0)
	return nodes
}

func locationOf(n *Node) model.Location {
	loc := model.Location{URL: n.URL, Title: n.Title}
	if loc.URL == "" {
		loc.URL = BaseURL + url.PathEscape(n.Name)
	}
	if loc.Title == "" {
		loc.Title = n.Name
	}
	if n.NoTitle {
		loc.Title = ""
	}
	return loc
}

func find(list []*Node, name string) *Node {
	for _, n := range list {
		if n.Name == name {
			return n
		}
		if c := find(n.Children, name); c != nil {
			return c
		}
	}
	return nil
}
