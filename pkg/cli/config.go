package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

const (
	// DefaultBaseDir is the configuration directory under the home directory.
	DefaultBaseDir = ".v8cffi"
	// DefaultConfigFile is the configuration filename.
	DefaultConfigFile = "config.yaml"
	// DefaultProfile is used when no profile is selected.
	DefaultProfile = "default"
)

// Store kinds.
const (
	StoreLocal = "local"
	StoreDB    = "db"
	StoreS3    = "s3"
)

// Config is the CLI configuration file.
type Config struct {
	// CurrentProfile is the profile used when none is named.
	CurrentProfile string `yaml:"current_profile,omitempty"`

	// Profiles maps names to engine settings.
	Profiles map[string]*Profile `yaml:"profiles,omitempty"`

	configPath string
}

// Profile is one set of engine settings.
type Profile struct {
	Name string `yaml:"name"`

	// Library is the native library name (embedded, v8cffi).
	Library string `yaml:"library,omitempty"`

	// NativesPath and SnapshotPath locate the startup blobs in the store.
	NativesPath  string `yaml:"natives_path,omitempty"`
	SnapshotPath string `yaml:"snapshot_path,omitempty"`

	// Workers bounds concurrent async runs. Zero means twice the CPU count.
	Workers int `yaml:"workers,omitempty"`

	// Output is the default output format (raw, json, yaml).
	Output string `yaml:"output,omitempty"`

	// MaxOutput caps result size for the embedded library, in bytes.
	MaxOutput int `yaml:"max_output,omitempty"`

	// Store selects where sources and blobs are read from.
	Store *StoreConfig `yaml:"store,omitempty"`
}

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	// Kind is "local" (default), "db" or "s3".
	Kind string `yaml:"kind,omitempty"`

	// Root is the local store root or the db directory. For local stores
	// an empty root reads host paths as given.
	Root string `yaml:"root,omitempty"`

	S3 *S3Config `yaml:"s3,omitempty"`
}

// S3Config configures an S3-compatible store.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix,omitempty"`
	Region          string `yaml:"region,omitempty"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
}

// DefaultConfigPath returns ~/.v8cffi/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultBaseDir, DefaultConfigFile), nil
}

// LoadConfig loads configuration from path, or from DefaultConfigPath when
// path is empty. A missing file yields an empty configuration; nothing is
// written until Save.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := &Config{
		Profiles:   make(map[string]*Profile),
		configPath: path,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	for name, p := range cfg.Profiles {
		p.Name = name
	}
	cfg.configPath = path
	return cfg, nil
}

// Save writes the configuration, creating its directory if needed.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.configPath
}

// SetProfile adds or replaces a profile and saves.
func (c *Config) SetProfile(name string, p *Profile) error {
	p.Name = name
	c.Profiles[name] = p
	return c.Save()
}

// DeleteProfile removes a profile and saves.
func (c *Config) DeleteProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	delete(c.Profiles, name)
	if c.CurrentProfile == name {
		c.CurrentProfile = ""
	}
	return c.Save()
}

// UseProfile selects the current profile and saves.
func (c *Config) UseProfile(name string) error {
	if _, ok := c.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	c.CurrentProfile = name
	return c.Save()
}

// ResolveProfile returns the named profile, else the current one. With
// neither set it returns an empty default profile.
func (c *Config) ResolveProfile(name string) (*Profile, error) {
	if name == "" {
		name = c.CurrentProfile
	}
	if name == "" {
		if p, ok := c.Profiles[DefaultProfile]; ok {
			return p, nil
		}
		return &Profile{Name: DefaultProfile}, nil
	}
	p, ok := c.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("profile %q not found", name)
	}
	return p, nil
}

// ListProfiles returns profile names, sorted.
func (c *Config) ListProfiles() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StoreKind returns the profile's store kind, defaulting to local.
func (p *Profile) StoreKind() string {
	if p.Store == nil || p.Store.Kind == "" {
		return StoreLocal
	}
	return p.Store.Kind
}

// Validate checks the profile for settings that cannot work.
func (p *Profile) Validate() error {
	if p.Workers < 0 {
		return fmt.Errorf("profile %q: workers must not be negative", p.Name)
	}
	if _, err := ParseFormat(p.Output); err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}
	switch p.StoreKind() {
	case StoreLocal:
	case StoreDB:
		if p.Store.Root == "" {
			return fmt.Errorf("profile %q: db store needs a root directory", p.Name)
		}
	case StoreS3:
		if p.Store.S3 == nil || p.Store.S3.Bucket == "" {
			return fmt.Errorf("profile %q: s3 store needs a bucket", p.Name)
		}
	default:
		return fmt.Errorf("profile %q: unknown store kind %q", p.Name, p.Store.Kind)
	}
	return nil
}

// MaskSecret masks a credential for display.
func MaskSecret(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
