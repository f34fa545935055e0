// Package config handles configuration loading for the Spatial Lens viewer.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Server ServerConfig `yaml:"server"`
	Map    MapConfig    `yaml:"map"`
	Data   DataConfig   `yaml:"data"`
}

// APIConfig describes the external Spatial Lens backend API.
type APIConfig struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ServerConfig contains local HTTP server settings.
type ServerConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	WebDir string `yaml:"web_dir"`
}

// MapConfig contains map viewer defaults.
type MapConfig struct {
	Center        [2]float64 `yaml:"center"` // [lng, lat]
	Zoom          float64    `yaml:"zoom"`
	FitPadding    int        `yaml:"fit_padding"`
	TileExtension string     `yaml:"tile_extension"` // ".mvt" or ".pbf"
}

// DataConfig contains local state settings.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = "http://localhost:8080"
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 15
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8086
	}
	if cfg.Server.WebDir == "" {
		cfg.Server.WebDir = "web"
	}
	if cfg.Map.Center == [2]float64{} {
		cfg.Map.Center = [2]float64{106.8, -6.6}
	}
	if cfg.Map.Zoom == 0 {
		cfg.Map.Zoom = 8
	}
	if cfg.Map.FitPadding <= 0 {
		cfg.Map.FitPadding = 40
	}
	if cfg.Map.TileExtension == "" {
		cfg.Map.TileExtension = ".mvt"
	}
	if cfg.Data.Dir == "" {
		cfg.Data.Dir = ".data"
	}
}
