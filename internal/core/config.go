package core

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/jo-hoe/bunnyclock/internal/backend/database"
	"github.com/jo-hoe/bunnyclock/internal/backend/storage"
	"gopkg.in/yaml.v3"
)

const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"

	defaultPort               = 8080
	defaultFaceSize           = 500
	defaultFallbackCreditText = "The bunnies aren't here but they will always be in your heart."
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
	// SeedFile optionally names a YAML list of time images loaded once at startup.
	SeedFile string `yaml:"seedFile"`
}

type Cache struct {
	Enabled  bool          `yaml:"enabled"`
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// HelpLink is a charity shown in the "Bunnies to help" panel of the clock page.
type HelpLink struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type ServiceConfig struct {
	Port               int            `yaml:"port"`
	Timezone           string         `yaml:"timezone"`
	Theme              string         `yaml:"theme"`
	FallbackCreditText string         `yaml:"fallbackCreditText"`
	FaceSize           int            `yaml:"faceSize"`
	HelpLinks          []HelpLink     `yaml:"helpLinks"`
	Database           Database       `yaml:"database"`
	Cache              Cache          `yaml:"cache"`
	Storage            storage.Config `yaml:"storage"`
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}

	return &config, nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.Theme == "" {
		c.Theme = ThemeSystem
	}
	if c.FallbackCreditText == "" {
		c.FallbackCreditText = defaultFallbackCreditText
	}
	if c.FaceSize == 0 {
		c.FaceSize = defaultFaceSize
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.ConnectionString == "" && c.Database.Type == "sqlite" {
		c.Database.ConnectionString = "bunnyclock.db"
	}
}

func (c *ServiceConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port out of range: %d", c.Port)
	}
	switch c.Theme {
	case ThemeLight, ThemeDark, ThemeSystem:
	default:
		return fmt.Errorf("unknown theme %q (want %s, %s or %s)", c.Theme, ThemeLight, ThemeDark, ThemeSystem)
	}
	if c.FaceSize < 64 || c.FaceSize > 4096 {
		return fmt.Errorf("faceSize must be between 64 and 4096, got %d", c.FaceSize)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for i, link := range c.HelpLinks {
		if link.Name == "" || link.URL == "" {
			return fmt.Errorf("helpLinks[%d] needs both name and url", i)
		}
	}
	if c.Cache.Enabled && c.Cache.Address == "" {
		return fmt.Errorf("cache is enabled but no address is set")
	}
	return nil
}

// Location resolves the configured timezone used to bucket wall-clock time.
func (c *ServiceConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// LoadSeedFile reads a YAML list of time images.
func LoadSeedFile(path string) ([]database.TimeImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	var seeds []database.TimeImage
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	for i, s := range seeds {
		if s.Hour < 0 || s.Hour > 23 || s.Minute < 0 || s.Minute > 59 {
			return nil, fmt.Errorf("seed %d: time %02d:%02d out of range", i, s.Hour, s.Minute)
		}
		if !s.IsPreview() && BucketMinute(s.Minute) != s.Minute {
			return nil, fmt.Errorf("seed %d: live image at %02d:%02d is not on a %d-minute boundary", i, s.Hour, s.Minute, bucketMinutes)
		}
		if s.Scale <= 0 {
			return nil, fmt.Errorf("seed %d: scale must be positive, got %v", i, s.Scale)
		}
	}
	return seeds, nil
}
