package config

import (
	"net/url"
	"strings"
	"time"
)

// Profile holds per-workspace settings. Workspaces differ in sidebar markup
// and in how they tell a visitor access is denied.
type Profile struct {
	// Selector overrides the item selector.
	Selector string `yaml:"selector,omitempty"`

	// MaxItemX overrides the sidebar's right edge.
	MaxItemX float64 `yaml:"maxItemX,omitempty"`

	// MaxDepth overrides the depth limit.
	MaxDepth int `yaml:"maxDepth,omitempty"`

	// DenyLabels are added to the built-in chrome labels.
	DenyLabels []string `yaml:"denyLabels,omitempty"`

	// AllowedHosts restricts explicit link targets.
	AllowedHosts []string `yaml:"allowedHosts,omitempty"`

	URLMarkers     []string `yaml:"urlMarkers,omitempty"`
	TitleMarkers   []string `yaml:"titleMarkers,omitempty"`
	ContentMarkers []string `yaml:"contentMarkers,omitempty"`
}

// BrowserSection configures how Chrome is reached.
type BrowserSection struct {
	Remote   string `yaml:"remote,omitempty"`
	Launch   bool   `yaml:"launch,omitempty"`
	Headless bool   `yaml:"headless,omitempty"`
	Stealth  bool   `yaml:"stealth,omitempty"`
	StartURL string `yaml:"startURL,omitempty"`
}

// TimingSection holds delays and waits. Values are Go durations ("2s").
type TimingSection struct {
	MinDelay     time.Duration `yaml:"minDelay,omitempty"`
	MaxDelay     time.Duration `yaml:"maxDelay,omitempty"`
	SettleWait   time.Duration `yaml:"settleWait,omitempty"`
	RecountWait  time.Duration `yaml:"recountWait,omitempty"`
	ExpandWait   time.Duration `yaml:"expandWait,omitempty"`
	ProbeWait    time.Duration `yaml:"probeWait,omitempty"`
	ReadyTimeout time.Duration `yaml:"readyTimeout,omitempty"`
}

// OutputSection configures run files.
type OutputSection struct {
	Dir      string `yaml:"dir,omitempty"`
	Markdown bool   `yaml:"markdown,omitempty"`

	// History is a pointer so an explicit false can disable the default.
	History *bool `yaml:"history,omitempty"`
}

// File represents the structure of the .treewalk configuration file.
type File struct {
	Browser BrowserSection `yaml:"browser,omitempty"`
	Timing  TimingSection  `yaml:"timing,omitempty"`
	Output  OutputSection  `yaml:"output,omitempty"`

	// Defaults applies to every workspace.
	Defaults Profile `yaml:"defaults,omitempty"`

	// Profiles maps a host (e.g. "acme.feishu.cn" or "feishu.cn") to its
	// overrides. A key also matches its subdomains.
	Profiles map[string]Profile `yaml:"profiles,omitempty"`
}

// Profile returns the defaults merged with the profile matching host.
// An exact key wins; otherwise the longest key that host is a subdomain of.
func (cf *File) Profile(host string) Profile {
	result := cf.Defaults
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return result
	}

	best, bestLen := "", 0
	for key := range cf.Profiles {
		k := strings.ToLower(key)
		switch {
		case k == host:
			return mergeProfile(result, cf.Profiles[key])
		case strings.HasSuffix(host, "."+k) && len(k) > bestLen:
			best, bestLen = key, len(k)
		}
	}
	if best != "" {
		return mergeProfile(result, cf.Profiles[best])
	}
	return result
}

// mergeProfile overlays override on defaults. Scalars replace; deny labels
// and markers accumulate; allowed hosts replace.
func mergeProfile(defaults, override Profile) Profile {
	result := defaults
	if override.Selector != "" {
		result.Selector = override.Selector
	}
	if override.MaxItemX > 0 {
		result.MaxItemX = override.MaxItemX
	}
	if override.MaxDepth > 0 {
		result.MaxDepth = override.MaxDepth
	}
	if len(override.AllowedHosts) > 0 {
		result.AllowedHosts = override.AllowedHosts
	}
	result.DenyLabels = concat(defaults.DenyLabels, override.DenyLabels)
	result.URLMarkers = concat(defaults.URLMarkers, override.URLMarkers)
	result.TitleMarkers = concat(defaults.TitleMarkers, override.TitleMarkers)
	result.ContentMarkers = concat(defaults.ContentMarkers, override.ContentMarkers)
	return result
}

func concat(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	out := make([]string, 0, len(a)+len(b))
	out = append(out, a...)
	return append(out, b...)
}

// HostOf returns the lowercase host of rawURL, or "" when it has none.
func HostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
