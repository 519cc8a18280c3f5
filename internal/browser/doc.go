// Package browser drives a Chrome tab through the DevTools protocol with
// go-rod. Session attaches to the operator's browser (or launches one), and
// Driver exposes the sidebar tree of the working tab to the traversal engine.
package browser
