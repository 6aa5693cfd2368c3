package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Environment overrides.
const (
	EnvPrismicToken = "SKETCHWEB_PRISMIC_TOKEN"
	EnvRedisURL     = "SKETCHWEB_REDIS_URL"
)

const samplePlaceholderDir = "/home/user/.local/share/sketchweb"

type Config struct {
	Prismic PrismicConfig `toml:"prismic"`
	Gallery GalleryConfig `toml:"gallery"`
	Web     WebConfig     `toml:"web"`
	Mirror  MirrorConfig  `toml:"mirror"`
	Cache   CacheConfig   `toml:"cache"`
}

type PrismicConfig struct {
	Endpoint          string   `toml:"endpoint"`
	AccessToken       string   `toml:"access_token"`
	DocumentType      string   `toml:"document_type"`
	PageSize          int      `toml:"page_size"`
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

type GalleryConfig struct {
	TargetRowHeight float64 `toml:"target_row_height"`
	Margin          float64 `toml:"margin"`
	ContainerWidth  float64 `toml:"container_width"`
}

type WebConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	SiteName string `toml:"site_name"`
}

type MirrorConfig struct {
	Enabled          bool     `toml:"enabled"`
	Path             string   `toml:"path"`
	SyncInterval     Duration `toml:"sync_interval"`
	OptimizeInterval Duration `toml:"optimize_interval"`
}

type CacheConfig struct {
	RedisURL string   `toml:"redis_url"`
	TTL      Duration `toml:"ttl"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func defaultConfig() Config {
	return Config{
		Prismic: PrismicConfig{
			Endpoint:     "https://sketchplanations.cdn.prismic.io/api/v2",
			DocumentType: "sketchplanation",
			PageSize:     100,
			Timeout:      Duration{10 * time.Second},
		},
		Gallery: GalleryConfig{
			TargetRowHeight: 400,
			Margin:          16,
			ContainerWidth:  1000,
		},
		Web: WebConfig{
			Host:     "localhost",
			Port:     8080,
			SiteName: "Sketchplanations",
		},
		Mirror: MirrorConfig{
			OptimizeInterval: Duration{time.Hour},
		},
		Cache: CacheConfig{
			TTL: Duration{5 * time.Minute},
		},
	}
}

func GetDefaultConfig() (*Config, error) {
	cfg := defaultConfig()
	if err := cfg.fillPaths(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return &cfg, nil
}

// LoadConfig reads configPath over the defaults. A missing file yields the
// defaults. Environment overrides are applied last.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := defaultConfig()
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := config.fillPaths(); err != nil {
		return nil, err
	}
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) fillPaths() error {
	if c.Mirror.Path == "" {
		dbPath, err := GetDefaultDBPath()
		if err != nil {
			return fmt.Errorf("getting default mirror path: %w", err)
		}
		c.Mirror.Path = dbPath
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPrismicToken); v != "" {
		c.Prismic.AccessToken = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.Cache.RedisURL = v
	}
}

// Validate rejects values no component can work with.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Prismic.Endpoint, "http://") && !strings.HasPrefix(c.Prismic.Endpoint, "https://") {
		return fmt.Errorf("prismic.endpoint %q must be an http(s) URL", c.Prismic.Endpoint)
	}
	if c.Prismic.PageSize <= 0 || c.Prismic.PageSize > 100 {
		return fmt.Errorf("prismic.page_size must be between 1 and 100")
	}
	if c.Prismic.RequestsPerSecond < 0 {
		return fmt.Errorf("prismic.requests_per_second must not be negative")
	}
	if c.Gallery.TargetRowHeight <= 0 || c.Gallery.ContainerWidth <= 0 {
		return fmt.Errorf("gallery.target_row_height and gallery.container_width must be positive")
	}
	if c.Gallery.Margin < 0 || c.Gallery.Margin >= c.Gallery.ContainerWidth {
		return fmt.Errorf("gallery.margin must be between 0 and gallery.container_width")
	}
	if c.Mirror.SyncInterval.Duration < 0 || c.Mirror.OptimizeInterval.Duration < 0 {
		return fmt.Errorf("mirror intervals must not be negative")
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", c.Web.Port)
	}
	return nil
}

// Address is the host:port the web server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplateConfig writes the commented sample config, pointing the mirror
// at this user's data directory.
func SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return fmt.Errorf("getting default storage directory: %w", err)
	}
	template := strings.Replace(configTemplate, samplePlaceholderDir, storageDir, 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

// GetDefaultStorageDir returns the data directory, creating it if needed.
func GetDefaultStorageDir() (string, error) {
	// Use XDG_DATA_HOME if set, otherwise use ~/.local/share
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "sketchweb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}
	return dir, nil
}

// GetDefaultDBPath returns the default mirror database path.
func GetDefaultDBPath() (string, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(storageDir, "mirror.db"), nil
}

// GetConfigDir returns the configuration directory, creating it if needed.
func GetConfigDir() (string, error) {
	// Use XDG_CONFIG_HOME if set, otherwise use ~/.config
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "sketchweb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
