package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// SettingsFileNames are looked up, in order, in every directory while walking
// up from the start directory.
var SettingsFileNames = []string{"loom.yaml", "loom.yml", "loom.toml"}

// Settings is the runtime configuration of an embedding session.
type Settings struct {
	// Roots are extra directories searched for bare (non-relative) module
	// specifiers, after the importing module's own directory.
	Roots []string `yaml:"roots,omitempty" toml:"roots"`

	Remote   RemoteSettings  `yaml:"remote,omitempty" toml:"remote"`
	Bindings BindingSettings `yaml:"bindings,omitempty" toml:"bindings"`
	Log      LogSettings     `yaml:"log,omitempty" toml:"log"`

	// Dir is the directory the settings were loaded from.
	Dir string `yaml:"-" toml:"-"`
}

// RemoteSettings configures fetching of http(s) module specifiers.
type RemoteSettings struct {
	// Allow enables remote specifiers. Defaults to true.
	Allow *bool `yaml:"allow,omitempty" toml:"allow"`

	// Timeout is a Go duration string ("10s"). Defaults to 30s.
	Timeout string `yaml:"timeout,omitempty" toml:"timeout"`

	// CachePath is the sqlite file caching fetched sources. Empty disables
	// the cache. Relative paths are resolved against Dir.
	CachePath string `yaml:"cache_path,omitempty" toml:"cache_path"`
}

// BindingSettings configures the native binding generator.
type BindingSettings struct {
	// Mode is "map" (default) or "type".
	Mode string `yaml:"mode,omitempty" toml:"mode"`

	// Backend is "table" (default) or "tcc".
	Backend string `yaml:"backend,omitempty" toml:"backend"`
}

// LogSettings configures commonlog.
type LogSettings struct {
	Verbosity int    `yaml:"verbosity,omitempty" toml:"verbosity"`
	Path      string `yaml:"path,omitempty" toml:"path"`
}

const defaultRemoteTimeout = 30 * time.Second

// DefaultSettings returns settings with every default applied.
func DefaultSettings() *Settings {
	s := &Settings{}
	s.setDefaults()
	return s
}

// LoadSettings reads a yaml or toml settings file, chosen by extension.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}
	s, err := ParseSettings(data, path)
	if err != nil {
		return nil, err
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		s.Dir = abs
	}
	return s, nil
}

// ParseSettings parses settings content. The path selects the format and is
// used in error messages.
func ParseSettings(data []byte, path string) (*Settings, error) {
	var s Settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("%s: unsupported settings format", path)
	}
	if err := s.validate(path); err != nil {
		return nil, err
	}
	s.setDefaults()
	return &s, nil
}

// FindSettings searches for a settings file starting from dir and walking up
// to parent directories. It returns "" and a nil error when none exists.
func FindSettings(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range SettingsFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

func (s *Settings) validate(path string) error {
	if s.Remote.Timeout != "" {
		d, err := time.ParseDuration(s.Remote.Timeout)
		if err != nil {
			return fmt.Errorf("%s: remote.timeout: %w", path, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: remote.timeout must be positive", path)
		}
	}
	switch s.Bindings.Mode {
	case "", BindModeMap, BindModeType:
	default:
		return fmt.Errorf("%s: bindings.mode: unknown mode %q (want %s or %s)", path, s.Bindings.Mode, BindModeMap, BindModeType)
	}
	switch s.Bindings.Backend {
	case "", BackendTable, BackendTCC:
	default:
		return fmt.Errorf("%s: bindings.backend: unknown backend %q (want %s or %s)", path, s.Bindings.Backend, BackendTable, BackendTCC)
	}
	if s.Log.Verbosity < -4 || s.Log.Verbosity > 2 {
		return fmt.Errorf("%s: log.verbosity must be between -4 and 2", path)
	}
	return nil
}

func (s *Settings) setDefaults() {
	if s.Remote.Allow == nil {
		allow := true
		s.Remote.Allow = &allow
	}
	if s.Remote.Timeout == "" {
		s.Remote.Timeout = defaultRemoteTimeout.String()
	}
	if s.Bindings.Mode == "" {
		s.Bindings.Mode = BindModeMap
	}
	if s.Bindings.Backend == "" {
		s.Bindings.Backend = BackendTable
	}
}

// RemoteTimeout returns the parsed remote fetch timeout.
func (s *Settings) RemoteTimeout() time.Duration {
	d, err := time.ParseDuration(s.Remote.Timeout)
	if err != nil || d <= 0 {
		return defaultRemoteTimeout
	}
	return d
}

// RemoteAllowed reports whether http(s) specifiers may be fetched.
func (s *Settings) RemoteAllowed() bool {
	return s.Remote.Allow == nil || *s.Remote.Allow
}

// ResolvedCachePath returns the absolute cache path, or "" when disabled.
func (s *Settings) ResolvedCachePath() string {
	p := s.Remote.CachePath
	if p == "" || filepath.IsAbs(p) || s.Dir == "" {
		return p
	}
	return filepath.Join(s.Dir, p)
}

// ResolvedRoots returns Roots made absolute against Dir.
func (s *Settings) ResolvedRoots() []string {
	out := make([]string, 0, len(s.Roots))
	for _, r := range s.Roots {
		if !filepath.IsAbs(r) && s.Dir != "" {
			r = filepath.Join(s.Dir, r)
		}
		out = append(out, r)
	}
	return out
}
