// Package classify holds the two classifiers of the traversal engine.
//
// NodeClassifier decides whether a visible element is a navigable tree item
// or page chrome (search boxes, menus, expand toggles). AccessClassifier
// decides whether the page reached after an activation is readable or shows
// a login/permission barrier; it fails open.
//
// Both compare text after NFKC normalization and Unicode case folding
// (golang.org/x/text), and AccessClassifier reads page text through
// golang.org/x/net/html.
package classify
