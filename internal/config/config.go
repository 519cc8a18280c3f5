package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "treewalk"

	// DefaultRemoteAddr is the DevTools endpoint of a Chrome started with
	// --remote-debugging-port=9222. The operator logs in to the workspace in
	// that browser before the walk, so attaching is the default.
	DefaultRemoteAddr = "127.0.0.1:9222"

	// DefaultMinDelay and DefaultMaxDelay bound the randomized pause between
	// activations. Workspaces rate limit sidebar clicks that arrive at a
	// machine-regular cadence.
	DefaultMinDelay = 2 * time.Second
	DefaultMaxDelay = 5 * time.Second

	// DefaultMaxDepth is the deepest level the walk recurses into.
	DefaultMaxDepth = 10

	// DefaultSettleWait is the pause after an activation before the view is
	// read again. Sidebars animate expansion.
	DefaultSettleWait = 2 * time.Second

	// DefaultRecountWait is the pause before recounting visible items.
	DefaultRecountWait = 1 * time.Second

	// DefaultExpandWait is the pause after expanding a route step on resume.
	DefaultExpandWait = 2 * time.Second

	// DefaultProbeWait is the pause after probing the resume target.
	DefaultProbeWait = 1 * time.Second

	// DefaultReadyTimeout bounds the wait for a page load event.
	DefaultReadyTimeout = 10 * time.Second

	// DefaultSelector matches the content element of a sidebar tree item.
	DefaultSelector = ".workspace-tree-view-node-content"

	// DefaultMaxItemX is the right edge of the sidebar in CSS pixels.
	DefaultMaxItemX = 400.0
)

// Config holds all configuration options for a walk.
// It is populated from defaults, then the config file, then CLI flags, and
// passed down explicitly rather than through global state.
type Config struct {
	// ConfigFilePath is the path to the configuration file.
	// If empty, .treewalk is searched in the current and home directories.
	ConfigFilePath string

	// Verbose enables debug output on the console.
	Verbose bool

	// JSONLog switches console and file logs to JSON lines.
	JSONLog bool

	// RemoteAddr is the DevTools address of the operator's Chrome.
	RemoteAddr string

	// Launch starts a private Chrome instead of attaching to RemoteAddr.
	Launch bool

	// Headless hides the launched Chrome window.
	Headless bool

	// Stealth patches the launched tab against automation detection.
	Stealth bool

	// StartURL is opened before the walk when the tab is elsewhere.
	StartURL string

	// OutputDir receives the checkpoint, logs and summaries.
	OutputDir string

	// MinDelay and MaxDelay bound the pause between activations.
	MinDelay time.Duration
	MaxDelay time.Duration

	// MaxDepth is the deepest level recursed into.
	MaxDepth int

	SettleWait   time.Duration
	RecountWait  time.Duration
	ExpandWait   time.Duration
	ProbeWait    time.Duration
	ReadyTimeout time.Duration

	// Selector is the CSS selector of sidebar items.
	Selector string

	// MaxItemX drops matches right of the sidebar.
	MaxItemX float64

	// DenyLabels are extra chrome labels that are never tree items.
	DenyLabels []string

	// AllowedHosts restricts explicit link targets to matching hosts.
	AllowedHosts []string

	// Extra access-denied markers, added to the built-in ones.
	URLMarkers     []string
	TitleMarkers   []string
	ContentMarkers []string

	// MarkdownReport writes traverse_report.md after the walk.
	MarkdownReport bool

	// SaveHistory stores the run in the history database under DBDir.
	SaveHistory bool
	DBDir       string

	// Resume continues from the checkpoint without asking.
	// Fresh discards it without asking. Neither means ask.
	Resume bool
	Fresh  bool

	// WaitForStart holds the walk until an operator Start.
	WaitForStart bool

	// ControlFile enables the control file listener at this path.
	ControlFile string

	// StdinControl enables line commands on standard input.
	StdinControl bool

	// File is the loaded configuration file, if any.
	File *File
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		RemoteAddr:   DefaultRemoteAddr,
		OutputDir:    DefaultOutputDir(),
		MinDelay:     DefaultMinDelay,
		MaxDelay:     DefaultMaxDelay,
		MaxDepth:     DefaultMaxDepth,
		SettleWait:   DefaultSettleWait,
		RecountWait:  DefaultRecountWait,
		ExpandWait:   DefaultExpandWait,
		ProbeWait:    DefaultProbeWait,
		ReadyTimeout: DefaultReadyTimeout,
		Selector:     DefaultSelector,
		MaxItemX:     DefaultMaxItemX,
		SaveHistory:  true,
		DBDir:        XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for treewalk.
// On Linux: ~/.local/share/treewalk
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for treewalk.
// On Linux: ~/.config/treewalk
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultOutputDir is where run files go when no directory is given.
func DefaultOutputDir() string {
	return filepath.Join(XDGDataDir(), "output")
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 {
		return ErrInvalidDelay
	}
	if c.MinDelay > c.MaxDelay {
		return ErrDelayRange
	}
	if c.MaxDepth < 1 {
		return ErrInvalidMaxDepth
	}
	for _, d := range []time.Duration{c.SettleWait, c.RecountWait, c.ExpandWait, c.ProbeWait, c.ReadyTimeout} {
		if d < 0 {
			return ErrInvalidWait
		}
	}
	if c.Selector == "" {
		return ErrEmptySelector
	}
	if c.MaxItemX <= 0 {
		return ErrInvalidMaxItemX
	}
	if c.Resume && c.Fresh {
		return ErrConflictingResumeFlags
	}
	if c.SaveHistory && c.DBDir == "" {
		return ErrNoDBDir
	}
	return nil
}

// ApplyFile copies the browser, timing and output sections of f over c.
// Zero values in f leave c unchanged. Profiles are applied separately
// because they depend on the start URL.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.File = f

	b := f.Browser
	if b.Remote != "" {
		c.RemoteAddr = b.Remote
	}
	c.Launch = c.Launch || b.Launch
	c.Headless = c.Headless || b.Headless
	c.Stealth = c.Stealth || b.Stealth
	if b.StartURL != "" {
		c.StartURL = b.StartURL
	}

	t := f.Timing
	setDuration(&c.MinDelay, t.MinDelay)
	setDuration(&c.MaxDelay, t.MaxDelay)
	setDuration(&c.SettleWait, t.SettleWait)
	setDuration(&c.RecountWait, t.RecountWait)
	setDuration(&c.ExpandWait, t.ExpandWait)
	setDuration(&c.ProbeWait, t.ProbeWait)
	setDuration(&c.ReadyTimeout, t.ReadyTimeout)

	o := f.Output
	if o.Dir != "" {
		c.OutputDir = o.Dir
	}
	c.MarkdownReport = c.MarkdownReport || o.Markdown
	if o.History != nil {
		c.SaveHistory = *o.History
	}
}

// ApplyProfile copies the non-zero fields of p over c.
func (c *Config) ApplyProfile(p Profile) {
	if p.Selector != "" {
		c.Selector = p.Selector
	}
	if p.MaxItemX > 0 {
		c.MaxItemX = p.MaxItemX
	}
	if p.MaxDepth > 0 {
		c.MaxDepth = p.MaxDepth
	}
	c.DenyLabels = append(c.DenyLabels, p.DenyLabels...)
	if len(p.AllowedHosts) > 0 {
		c.AllowedHosts = p.AllowedHosts
	}
	c.URLMarkers = append(c.URLMarkers, p.URLMarkers...)
	c.TitleMarkers = append(c.TitleMarkers, p.TitleMarkers...)
	c.ContentMarkers = append(c.ContentMarkers, p.ContentMarkers...)
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
