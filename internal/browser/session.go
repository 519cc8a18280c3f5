package browser

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultRemoteAddr is the DevTools address of a Chrome started with
// --remote-debugging-port=9222.
const DefaultRemoteAddr = "127.0.0.1:9222"

// Options selects how a Session reaches Chrome.
type Options struct {
	// RemoteAddr is the DevTools address ("host:port", http or ws URL) of
	// an operator-controlled Chrome. It is ignored when Launch is set.
	RemoteAddr string

	// Launch starts a private Chrome instead of attaching to one.
	Launch bool

	// Headless runs the launched Chrome without a window.
	Headless bool

	// Stealth opens the working tab with anti-automation patches.
	// Only used with Launch; an attached session reuses the operator's tab.
	Stealth bool

	// StartURL is opened before the traversal. When attaching, an existing
	// tab on the same host is preferred over navigating.
	StartURL string

	// Logger receives connection events.
	Logger *slog.Logger
}

// Session owns the rod connection and the tab the traversal drives.
type Session struct {
	browser  *rod.Browser
	lnch     *launcher.Launcher
	page     *rod.Page
	attached bool
	logger   *slog.Logger
}

// Open connects to or launches Chrome and selects the working tab.
func Open(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{logger: logger, attached: !opts.Launch}

	wsURL, err := s.controlURL(opts)
	if err != nil {
		return nil, err
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		s.cleanupLauncher()
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	s.browser = b

	if err := b.IgnoreCertErrors(true); err != nil {
		logger.Warn("failed to ignore certificate errors", "error", err)
	}

	page, err := s.selectPage(opts)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.page = page

	if opts.StartURL != "" && !sameHost(pageURL(page), opts.StartURL) {
		logger.Info("opening start url", "url", opts.StartURL)
		if err := page.Context(ctx).Navigate(opts.StartURL); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to navigate to %s: %w", opts.StartURL, err)
		}
		if err := page.Context(ctx).WaitLoad(); err != nil {
			logger.Warn("start page did not finish loading", "url", opts.StartURL, "error", err)
		}
	}

	return s, nil
}

// Page returns the working tab.
func (s *Session) Page() *rod.Page {
	return s.page
}

// Reload reloads the working tab so the sidebar is back in its collapsed
// state. The walk command calls it before resuming in the same process.
func (s *Session) Reload(ctx context.Context) error {
	p := s.page.Context(ctx)
	if err := p.Reload(); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		s.logger.Warn("reloaded page did not finish loading", "error", err)
	}
	return nil
}

// Close releases the session. An attached browser belongs to the operator
// and is left running; a launched one is shut down.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}

	var err error
	if !s.attached {
		err = s.browser.Close()
	}
	s.browser = nil
	s.cleanupLauncher()
	return err
}

func (s *Session) controlURL(opts Options) (string, error) {
	if opts.Launch {
		l := launcher.New().
			Headless(opts.Headless).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return "", fmt.Errorf("failed to launch chrome: %w", err)
		}
		s.lnch = l
		s.logger.Info("launched local chrome", "headless", opts.Headless, "stealth", opts.Stealth)
		return u, nil
	}

	addr := NormalizeRemoteAddr(opts.RemoteAddr)
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		return addr, nil
	}

	u, err := launcher.ResolveURL(addr)
	if err != nil {
		return "", fmt.Errorf("failed to reach chrome devtools at %s: %w", addr, err)
	}
	s.logger.Info("attaching to chrome", "addr", addr)
	return u, nil
}

func (s *Session) selectPage(opts Options) (*rod.Page, error) {
	if !s.attached {
		if opts.Stealth {
			page, err := stealth.Page(s.browser)
			if err != nil {
				return nil, fmt.Errorf("failed to create stealth tab: %w", err)
			}
			return page, nil
		}
		page, err := s.browser.Page(proto.TargetCreateTarget{URL: ""})
		if err != nil {
			return nil, fmt.Errorf("failed to create tab: %w", err)
		}
		return page, nil
	}

	pages, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list tabs: %w", err)
	}
	if host := hostOf(opts.StartURL); host != "" {
		if page, err := pages.FindByURL(regexp.QuoteMeta(host)); err == nil {
			return page, nil
		}
	}
	if page := pages.First(); page != nil {
		return page, nil
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("failed to create tab: %w", err)
	}
	return page, nil
}

func (s *Session) cleanupLauncher() {
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil || info == nil {
		return ""
	}
	return info.URL
}
