package classify

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Limits applied to raw node text.
const (
	// DefaultMaxTextLength is the longest accepted node text, in runes.
	// Longer text is usually a whole content block, not a tree label.
	DefaultMaxTextLength = 100

	// DefaultMaxLineBreaks is the most line breaks a label may contain.
	DefaultMaxLineBreaks = 3

	// DefaultMinTextLength is the shortest accepted node text, in runes.
	DefaultMinTextLength = 1
)

// DefaultDenyLabels are chrome labels that are never tree items.
// They are compared against the whole normalized text, not as substrings,
// so "Background" or "Homework" remain navigable.
var DefaultDenyLabels = []string{
	// English
	"search", "menu", "home", "settings", "profile", "login", "logout",
	"back", "close", "expand", "collapse", "toggle",
	// Chinese
	"搜索", "菜单", "首页", "设置", "个人资料", "登录", "登出",
	"目录", "返回", "关闭", "展开", "收起",
}

// excludedTargetPatterns disqualify an explicit http(s) target.
var excludedTargetPatterns = []string{
	"javascript:", "mailto:", "tel:",
	"/login", "/logout", "/settings", "/profile",
	"/search", "/help", "/support", "?tab=",
}

// NodeClassifier decides whether raw node text belongs to the navigable tree.
// It rejects known chrome and accepts everything else, including nodes that
// have no explicit navigation target.
type NodeClassifier struct {
	deny          map[string]struct{}
	minRunes      int
	maxRunes      int
	maxLineBreaks int
	allowedHosts  []string
}

// NodeOption configures a NodeClassifier.
type NodeOption func(*NodeClassifier)

// WithDenyLabels adds labels to the default deny list.
func WithDenyLabels(labels ...string) NodeOption {
	return func(c *NodeClassifier) {
		for _, l := range normalizeAll(labels) {
			c.deny[l] = struct{}{}
		}
	}
}

// WithMinTextLength sets the shortest accepted text in runes.
// Values below 1 are ignored.
func WithMinTextLength(n int) NodeOption {
	return func(c *NodeClassifier) {
		if n > 0 {
			c.minRunes = n
		}
	}
}

// WithAllowedHosts restricts explicit http(s) targets to hosts containing
// one of the given fragments (for example "feishu" or "lark").
// An empty list allows every host.
func WithAllowedHosts(hosts ...string) NodeOption {
	return func(c *NodeClassifier) {
		c.allowedHosts = normalizeAll(hosts)
	}
}

// NewNodeClassifier returns a classifier with the default limits and deny list.
func NewNodeClassifier(opts ...NodeOption) *NodeClassifier {
	c := &NodeClassifier{
		deny:          make(map[string]struct{}, len(DefaultDenyLabels)),
		minRunes:      DefaultMinTextLength,
		maxRunes:      DefaultMaxTextLength,
		maxLineBreaks: DefaultMaxLineBreaks,
	}
	for _, l := range normalizeAll(DefaultDenyLabels) {
		c.deny[l] = struct{}{}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsNavigableItem reports whether a node with the given text and optional
// explicit target should be traversed.
func (c *NodeClassifier) IsNavigableItem(rawText, target string) bool {
	text := strings.TrimSpace(rawText)
	if text == "" {
		return false
	}

	runes := utf8.RuneCountInString(text)
	if runes < c.minRunes || runes > c.maxRunes {
		return false
	}

	if strings.Count(text, "\n") > c.maxLineBreaks {
		return false
	}

	if _, denied := c.deny[normalize(text)]; denied {
		return false
	}

	if isHTTPTarget(target) {
		return c.isDocumentLink(target)
	}
	return true
}

// isDocumentLink applies the host allow list and pattern deny list to an
// explicit http(s) target.
func (c *NodeClassifier) isDocumentLink(target string) bool {
	lower := strings.ToLower(target)
	for _, p := range excludedTargetPatterns {
		if strings.Contains(lower, p) {
			return false
		}
	}

	if len(c.allowedHosts) == 0 {
		return true
	}

	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range c.allowedHosts {
		if strings.Contains(host, h) {
			return true
		}
	}
	return false
}

func isHTTPTarget(target string) bool {
	lower := strings.ToLower(strings.TrimSpace(target))
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
