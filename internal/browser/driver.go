package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/treewalk/internal/model"
)

// Driver defaults.
const (
	// DefaultSelector matches the content element of a sidebar tree item.
	DefaultSelector = ".workspace-tree-view-node-content"

	// DefaultMaxItemX is the right edge of the sidebar in CSS pixels.
	// Matches further right belong to the document body.
	DefaultMaxItemX = 400

	// DefaultReadyTimeout bounds the wait for a document load event.
	DefaultReadyTimeout = 10 * time.Second
)

// errNoHandle is returned when a node did not come from this driver.
var errNoHandle = errors.New("node has no element handle")

// Driver implements the traversal driver interfaces on a rod page.
type Driver struct {
	page         *rod.Page
	selector     string
	maxItemX     float64
	readyTimeout time.Duration
	logger       *slog.Logger
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithSelector sets the CSS selector of tree items.
func WithSelector(selector string) DriverOption {
	return func(d *Driver) {
		if selector != "" {
			d.selector = selector
		}
	}
}

// WithMaxItemX sets the sidebar's right edge.
func WithMaxItemX(x float64) DriverOption {
	return func(d *Driver) {
		if x > 0 {
			d.maxItemX = x
		}
	}
}

// WithReadyTimeout sets the load-event wait bound.
func WithReadyTimeout(timeout time.Duration) DriverOption {
	return func(d *Driver) {
		if timeout > 0 {
			d.readyTimeout = timeout
		}
	}
}

// WithLogger sets the driver logger.
func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

// NewDriver returns a driver for page.
func NewDriver(page *rod.Page, opts ...DriverOption) *Driver {
	d := &Driver{
		page:         page,
		selector:     DefaultSelector,
		maxItemX:     DefaultMaxItemX,
		readyTimeout: DefaultReadyTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// EnumerateVisibleNodes lists visible sidebar items in document order.
func (d *Driver) EnumerateVisibleNodes(ctx context.Context) ([]model.Node, error) {
	elements, err := d.page.Context(ctx).Elements(d.selector)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", d.selector, err)
	}

	nodes := make([]model.Node, 0, len(elements))
	for _, el := range elements {
		node, ok := d.inspect(ctx, el)
		if ok {
			nodes = append(nodes, node)
		}
	}
	return nodes, nil
}

// inspect reads one element. Elements that vanished while being read are
// dropped, as are hidden ones and those outside the sidebar.
func (d *Driver) inspect(ctx context.Context, el *rod.Element) (model.Node, bool) {
	el = el.Context(ctx)

	visible, err := el.Visible()
	if err != nil || !visible {
		return model.Node{}, false
	}

	text, err := el.Text()
	if err != nil {
		return model.Node{}, false
	}
	text = strings.TrimSpace(text)

	shape, err := el.Shape()
	if err != nil {
		return model.Node{}, false
	}
	box := shape.Box()
	if box == nil {
		return model.Node{}, false
	}
	if !inSidebar(text, box.X, d.maxItemX) {
		return model.Node{}, false
	}

	return model.Node{
		Text:     text,
		Location: model.Point{X: box.X, Y: box.Y},
		Target:   d.target(el),
		Handle:   el,
	}, true
}

// target returns the href of the closest enclosing link, if any.
func (d *Driver) target(el *rod.Element) string {
	res, err := el.Eval(`() => { const a = this.closest('a'); return a ? a.href : '' }`)
	if err != nil || res == nil {
		return ""
	}
	return res.Value.Str()
}

// LocateByName returns the first visible item whose text equals name.
func (d *Driver) LocateByName(ctx context.Context, name string) (model.Node, bool, error) {
	nodes, err := d.EnumerateVisibleNodes(ctx)
	if err != nil {
		return model.Node{}, false, err
	}
	for _, n := range nodes {
		if n.Text == name {
			return n, true, nil
		}
	}
	return model.Node{}, false, nil
}

// Activate clicks the node, falling back to a scripted click and then to a
// click on the parent element. It returns false when every strategy failed.
func (d *Driver) Activate(ctx context.Context, node model.Node) (bool, error) {
	el, ok := node.Handle.(*rod.Element)
	if !ok || el == nil {
		return false, errNoHandle
	}
	el = el.Context(ctx)

	ok, errs := activateWith(clickStrategies(el))
	for _, err := range errs {
		d.logger.Debug("click strategy failed", "name", node.Text, "error", err)
	}
	if !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
	}
	return ok, nil
}

// CurrentLocation reads the tab's URL and title.
func (d *Driver) CurrentLocation(ctx context.Context) (model.Location, error) {
	info, err := d.page.Context(ctx).Info()
	if err != nil {
		return model.Location{}, fmt.Errorf("failed to read page info: %w", err)
	}
	return model.Location{URL: info.URL, Title: info.Title}, nil
}

// WaitReady waits for the load event, bounded by the ready timeout.
func (d *Driver) WaitReady(ctx context.Context) error {
	return d.page.Context(ctx).Timeout(d.readyTimeout).WaitLoad()
}

// PageContent returns the tab's current HTML.
func (d *Driver) PageContent(ctx context.Context) (string, error) {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to read page html: %w", err)
	}
	return html, nil
}

// strategy is one way of activating an element.
type strategy struct {
	name string
	do   func() error
}

func clickStrategies(el *rod.Element) []strategy {
	return []strategy{
		{name: "native click", do: func() error {
			if err := el.ScrollIntoView(); err != nil {
				return err
			}
			return el.Click(proto.InputMouseButtonLeft, 1)
		}},
		{name: "script click", do: func() error {
			_, err := el.Eval(`() => this.click()`)
			return err
		}},
		{name: "parent click", do: func() error {
			parent, err := el.Parent()
			if err != nil {
				return err
			}
			return parent.Click(proto.InputMouseButtonLeft, 1)
		}},
	}
}

// activateWith runs strategies in order until one succeeds.
func activateWith(strategies []strategy) (bool, []error) {
	var errs []error
	for _, s := range strategies {
		err := s.do()
		if err == nil {
			return true, errs
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return false, errs
}

// inSidebar reports whether an element with text at x belongs to the tree.
func inSidebar(text string, x, maxX float64) bool {
	return text != "" && x < maxX
}

// NormalizeRemoteAddr trims addr and falls back to DefaultRemoteAddr.
func NormalizeRemoteAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return DefaultRemoteAddr
	}
	return addr
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func sameHost(a, b string) bool {
	ha, hb := hostOf(a), hostOf(b)
	return ha != "" && strings.EqualFold(ha, hb)
}
