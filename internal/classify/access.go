package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nao1215/treewalk/internal/model"
)

// Access is the verdict of an access check.
type Access int

const (
	// Allowed means the page looks readable.
	Allowed Access = iota
	// Denied means the page shows a permission or login barrier.
	Denied
)

// String returns "allowed" or "denied".
func (a Access) String() string {
	if a == Denied {
		return "denied"
	}
	return "allowed"
}

// Verdict is the result of AccessClassifier.Classify.
type Verdict struct {
	// Access is Allowed or Denied.
	Access Access

	// Marker is the marker that matched, empty when Allowed.
	Marker string

	// Source names where the marker matched: "url", "title" or "content".
	Source string
}

// IsDenied reports whether the verdict is Denied.
func (v Verdict) IsDenied() bool {
	return v.Access == Denied
}

// Default marker sets. URL and content markers cover English and Chinese.
var (
	DefaultURLMarkers = []string{
		"login", "signin", "auth", "403", "forbidden", "denied",
	}

	DefaultTitleMarkers = []string{
		"登录", "login", "错误", "error", "403",
	}

	DefaultContentMarkers = []string{
		"403", "forbidden", "权限不足", "登录", "login", "需要权限",
		"access denied", "无权访问", "权限错误", "permission denied",
		"未授权", "unauthorized",
	}
)

// ContentSource yields the current page's HTML.
type ContentSource interface {
	PageContent(ctx context.Context) (string, error)
}

// AccessClassifier inspects a location for permission-denial signatures.
// Any internal error classifies as Allowed.
type AccessClassifier struct {
	urlMarkers     []string
	titleMarkers   []string
	contentMarkers []string
	logger         *slog.Logger
}

// AccessOption configures an AccessClassifier.
type AccessOption func(*AccessClassifier)

// WithURLMarkers adds URL markers to the defaults.
func WithURLMarkers(markers ...string) AccessOption {
	return func(c *AccessClassifier) {
		c.urlMarkers = append(c.urlMarkers, normalizeAll(markers)...)
	}
}

// WithTitleMarkers adds title markers to the defaults.
func WithTitleMarkers(markers ...string) AccessOption {
	return func(c *AccessClassifier) {
		c.titleMarkers = append(c.titleMarkers, normalizeAll(markers)...)
	}
}

// WithContentMarkers adds content markers to the defaults.
func WithContentMarkers(markers ...string) AccessOption {
	return func(c *AccessClassifier) {
		c.contentMarkers = append(c.contentMarkers, normalizeAll(markers)...)
	}
}

// WithAccessLogger sets the logger used for fail-open warnings.
func WithAccessLogger(logger *slog.Logger) AccessOption {
	return func(c *AccessClassifier) {
		c.logger = logger
	}
}

// NewAccessClassifier returns a classifier with the default marker sets.
func NewAccessClassifier(opts ...AccessOption) *AccessClassifier {
	c := &AccessClassifier{
		urlMarkers:     normalizeAll(DefaultURLMarkers),
		titleMarkers:   normalizeAll(DefaultTitleMarkers),
		contentMarkers: normalizeAll(DefaultContentMarkers),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Classify checks the URL, then the title, then (when src is non-nil) the
// visible page text. A failure to read or parse the content, or a panic in
// src, yields Allowed.
func (c *AccessClassifier) Classify(ctx context.Context, loc model.Location, src ContentSource) (verdict Verdict) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("access check failed, assuming allowed",
				"url", loc.URL,
				"error", fmt.Sprint(r),
			)
			verdict = Verdict{Access: Allowed}
		}
	}()

	if m, ok := firstContained(normalize(loc.URL), c.urlMarkers); ok {
		return Verdict{Access: Denied, Marker: m, Source: "url"}
	}
	if m, ok := firstContained(normalize(loc.Title), c.titleMarkers); ok {
		return Verdict{Access: Denied, Marker: m, Source: "title"}
	}
	if src == nil {
		return Verdict{Access: Allowed}
	}

	content, err := src.PageContent(ctx)
	if err != nil {
		c.logger.Warn("could not read page content, assuming allowed",
			"url", loc.URL,
			"error", err,
		)
		return Verdict{Access: Allowed}
	}

	text, err := VisibleText(strings.NewReader(content))
	if err != nil {
		c.logger.Warn("could not parse page content, assuming allowed",
			"url", loc.URL,
			"error", err,
		)
		return Verdict{Access: Allowed}
	}

	if m, ok := firstContained(normalize(text), c.contentMarkers); ok {
		return Verdict{Access: Denied, Marker: m, Source: "content"}
	}
	return Verdict{Access: Allowed}
}
