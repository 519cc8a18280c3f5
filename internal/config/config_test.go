package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies that NewConfig returns a Config with the documented defaults.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default RemoteAddr is 127.0.0.1:9222", func(t *testing.T) {
		t.Parallel()
		if cfg.RemoteAddr != "127.0.0.1:9222" {
			t.Errorf("expected RemoteAddr to be '127.0.0.1:9222', got '%s'", cfg.RemoteAddr)
		}
	})

	t.Run("default delays are 2s to 5s", func(t *testing.T) {
		t.Parallel()
		if cfg.MinDelay != 2*time.Second || cfg.MaxDelay != 5*time.Second {
			t.Errorf("expected 2s-5s, got %v-%v", cfg.MinDelay, cfg.MaxDelay)
		}
	})

	t.Run("default MaxDepth is 10", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxDepth != 10 {
			t.Errorf("expected MaxDepth to be 10, got %d", cfg.MaxDepth)
		}
	})

	t.Run("default sidebar detection", func(t *testing.T) {
		t.Parallel()
		if cfg.Selector != ".workspace-tree-view-node-content" {
			t.Errorf("unexpected selector %q", cfg.Selector)
		}
		if cfg.MaxItemX != 400 {
			t.Errorf("expected MaxItemX 400, got %v", cfg.MaxItemX)
		}
	})

	t.Run("history is on and attach is the default", func(t *testing.T) {
		t.Parallel()
		if !cfg.SaveHistory {
			t.Error("expected SaveHistory to be true")
		}
		if cfg.Launch {
			t.Error("expected Launch to be false")
		}
		if !strings.HasSuffix(cfg.OutputDir, filepath.Join(AppName, "output")) {
			t.Errorf("unexpected default output dir %q", cfg.OutputDir)
		}
	})

	t.Run("defaults are valid", func(t *testing.T) {
		t.Parallel()
		if err := NewConfig().Validate(); err != nil {
			t.Errorf("expected defaults to validate, got %v", err)
		}
	})
}

// TestConfigValidate tests the Validate method, one rule per case.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{name: "empty output dir", mutate: func(c *Config) { c.OutputDir = "" }, wantErr: ErrNoOutputDir},
		{name: "negative min delay", mutate: func(c *Config) { c.MinDelay = -time.Second }, wantErr: ErrInvalidDelay},
		{name: "negative max delay", mutate: func(c *Config) { c.MaxDelay = -time.Second }, wantErr: ErrInvalidDelay},
		{name: "min above max", mutate: func(c *Config) { c.MinDelay = 6 * time.Second }, wantErr: ErrDelayRange},
		{name: "zero delays allowed", mutate: func(c *Config) { c.MinDelay, c.MaxDelay = 0, 0 }, wantErr: nil},
		{name: "zero depth", mutate: func(c *Config) { c.MaxDepth = 0 }, wantErr: ErrInvalidMaxDepth},
		{name: "negative settle wait", mutate: func(c *Config) { c.SettleWait = -1 }, wantErr: ErrInvalidWait},
		{name: "negative ready timeout", mutate: func(c *Config) { c.ReadyTimeout = -1 }, wantErr: ErrInvalidWait},
		{name: "empty selector", mutate: func(c *Config) { c.Selector = "" }, wantErr: ErrEmptySelector},
		{name: "zero max item x", mutate: func(c *Config) { c.MaxItemX = 0 }, wantErr: ErrInvalidMaxItemX},
		{name: "resume and fresh", mutate: func(c *Config) { c.Resume, c.Fresh = true, true }, wantErr: ErrConflictingResumeFlags},
		{name: "history without dir", mutate: func(c *Config) { c.DBDir = "" }, wantErr: ErrNoDBDir},
		{name: "no history without dir", mutate: func(c *Config) { c.DBDir, c.SaveHistory = "", false }, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestFileProfile tests profile lookup and merging.
func TestFileProfile(t *testing.T) {
	t.Parallel()

	file := &File{
		Defaults: Profile{
			MaxItemX:   360,
			DenyLabels: []string{"Trash"},
			URLMarkers: []string{"/forbidden"},
		},
		Profiles: map[string]Profile{
			"feishu.cn": {
				Selector:   ".tree-node",
				DenyLabels: []string{"Shared with me"},
			},
			"acme.feishu.cn": {
				MaxDepth:     4,
				AllowedHosts: []string{"acme.feishu.cn"},
			},
			"docs.example.com": {
				MaxItemX:       520,
				ContentMarkers: []string{"ask the owner"},
			},
		},
	}

	t.Run("unknown host gets defaults", func(t *testing.T) {
		t.Parallel()

		p := file.Profile("other.org")
		if p.MaxItemX != 360 || p.Selector != "" {
			t.Errorf("expected defaults, got %+v", p)
		}
	})

	t.Run("exact match", func(t *testing.T) {
		t.Parallel()

		p := file.Profile("docs.example.com")
		if p.MaxItemX != 520 {
			t.Errorf("expected MaxItemX 520, got %v", p.MaxItemX)
		}
		if len(p.ContentMarkers) != 1 || len(p.URLMarkers) != 1 {
			t.Errorf("expected markers to accumulate, got %+v", p)
		}
	})

	t.Run("exact match beats suffix", func(t *testing.T) {
		t.Parallel()

		p := file.Profile("ACME.feishu.cn")
		if p.MaxDepth != 4 {
			t.Errorf("expected MaxDepth 4, got %d", p.MaxDepth)
		}
		if p.Selector != "" {
			t.Errorf("expected only the exact profile, got selector %q", p.Selector)
		}
	})

	t.Run("subdomain match", func(t *testing.T) {
		t.Parallel()

		p := file.Profile("team.feishu.cn")
		if p.Selector != ".tree-node" {
			t.Errorf("expected suffix profile selector, got %q", p.Selector)
		}
		if strings.Join(p.DenyLabels, ",") != "Trash,Shared with me" {
			t.Errorf("expected deny labels to accumulate, got %v", p.DenyLabels)
		}
	})

	t.Run("merge does not alias defaults", func(t *testing.T) {
		t.Parallel()

		_ = file.Profile("team.feishu.cn")
		if len(file.Defaults.DenyLabels) != 1 {
			t.Errorf("defaults were modified: %v", file.Defaults.DenyLabels)
		}
	})

	t.Run("empty host", func(t *testing.T) {
		t.Parallel()

		if p := file.Profile(""); p.MaxItemX != 360 {
			t.Errorf("expected defaults, got %+v", p)
		}
	})
}

// TestConfigApplyFile tests that file sections override defaults.
func TestConfigApplyFile(t *testing.T) {
	t.Parallel()

	off := false
	cfg := NewConfig()
	cfg.ApplyFile(&File{
		Browser: BrowserSection{Remote: "10.0.0.5:9333", Launch: true, StartURL: "https://docs.example.com/wiki/"},
		Timing:  TimingSection{MinDelay: 500 * time.Millisecond, MaxDelay: time.Second},
		Output:  OutputSection{Dir: "/tmp/walk", Markdown: true, History: &off},
	})

	if cfg.RemoteAddr != "10.0.0.5:9333" || !cfg.Launch {
		t.Errorf("browser section not applied: %+v", cfg)
	}
	if cfg.StartURL != "https://docs.example.com/wiki/" {
		t.Errorf("unexpected start url %q", cfg.StartURL)
	}
	if cfg.MinDelay != 500*time.Millisecond || cfg.MaxDelay != time.Second {
		t.Errorf("timing not applied: %v-%v", cfg.MinDelay, cfg.MaxDelay)
	}
	if cfg.SettleWait != DefaultSettleWait {
		t.Errorf("expected unset wait to keep default, got %v", cfg.SettleWait)
	}
	if cfg.OutputDir != "/tmp/walk" || !cfg.MarkdownReport || cfg.SaveHistory {
		t.Errorf("output section not applied: %+v", cfg)
	}
	if cfg.File == nil {
		t.Error("expected File to be kept")
	}

	cfg.ApplyFile(nil)
	if cfg.OutputDir != "/tmp/walk" {
		t.Error("nil file changed the config")
	}
}

// TestConfigApplyProfile tests profile application.
func TestConfigApplyProfile(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.ApplyProfile(Profile{
		Selector:     ".tree-node",
		MaxDepth:     3,
		DenyLabels:   []string{"Trash"},
		AllowedHosts: []string{"feishu"},
		TitleMarkers: []string{"No access"},
	})

	if cfg.Selector != ".tree-node" || cfg.MaxDepth != 3 {
		t.Errorf("scalars not applied: %+v", cfg)
	}
	if cfg.MaxItemX != DefaultMaxItemX {
		t.Errorf("expected unset MaxItemX to keep default, got %v", cfg.MaxItemX)
	}
	if len(cfg.DenyLabels) != 1 || len(cfg.AllowedHosts) != 1 || len(cfg.TitleMarkers) != 1 {
		t.Errorf("lists not applied: %+v", cfg)
	}
}

// TestHostOf tests host extraction.
func TestHostOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "https://Docs.Example.com/wiki/a", want: "docs.example.com"},
		{in: "https://acme.feishu.cn:8443/drive", want: "acme.feishu.cn"},
		{in: "", want: ""},
		{in: "not a url", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := HostOf(tt.in); got != tt.want {
				t.Errorf("HostOf(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.treewalk")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".treewalk")
		content := `browser:
  remote: 127.0.0.1:9333
  startURL: https://acme.feishu.cn/drive/home/
timing:
  minDelay: 1s
  maxDelay: 3500ms
output:
  markdown: true
  history: false
defaults:
  maxItemX: 380
  denyLabels:
    - Trash
profiles:
  acme.feishu.cn:
    selector: ".tree-node"
    maxDepth: 6
    titleMarkers:
      - "Request access"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if cfg.Browser.Remote != "127.0.0.1:9333" {
			t.Errorf("unexpected remote %q", cfg.Browser.Remote)
		}
		if cfg.Timing.MinDelay != time.Second || cfg.Timing.MaxDelay != 3500*time.Millisecond {
			t.Errorf("unexpected timing %+v", cfg.Timing)
		}
		if cfg.Output.History == nil || *cfg.Output.History {
			t.Error("expected history to be explicitly false")
		}
		if cfg.Defaults.MaxItemX != 380 {
			t.Errorf("expected default maxItemX 380, got %v", cfg.Defaults.MaxItemX)
		}
		p, ok := cfg.Profiles["acme.feishu.cn"]
		if !ok {
			t.Fatal("expected acme.feishu.cn in profiles")
		}
		if p.Selector != ".tree-node" || p.MaxDepth != 6 || len(p.TitleMarkers) != 1 {
			t.Errorf("unexpected profile %+v", p)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".treewalk")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})

	t.Run("initializes nil Profiles map", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".treewalk")
		if err := os.WriteFile(configPath, []byte("defaults:\n  maxDepth: 5\n"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Profiles == nil {
			t.Error("expected Profiles map to be initialized")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("defaults: {}"), 0600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	for name, dir := range map[string]string{"data": XDGDataDir(), "config": XDGConfigDir()} {
		if dir == "" {
			t.Errorf("expected non-empty %s dir", name)
		}
		if filepath.Base(dir) != AppName {
			t.Errorf("expected %s dir to end with %s, got %s", name, AppName, dir)
		}
	}
}
