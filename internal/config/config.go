package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"parking-floor/internal/parking"
)

const envPrefix = "PF_"

type Config struct {
	Mode        string          `json:"mode"`
	Environment string          `json:"environment"`
	Log         LogConfig       `json:"log"`
	Server      ServerConfig    `json:"server"`
	Floor       FloorConfig     `json:"floor"`
	Telemetry   TelemetryConfig `json:"telemetry"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type ServerConfig struct {
	Port string `json:"port"`
}

// FloorConfig describes the floor created at startup. Spots of zero leaves
// creation to the shell or the HTTP API.
type FloorConfig struct {
	Spots      int   `json:"spots"`
	FeePerSpot int64 `json:"fee_per_spot"`
}

type TelemetryConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"service_name"`
	Endpoint    string `json:"endpoint"`
}

// Load reads the optional config file at path, then applies PF_ prefixed
// environment overrides (PF_SERVER__PORT sets server.port).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(defaultsProvider(), nil); err != nil {
		return nil, err
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultsProvider() *confmap.Confmap {
	return confmap.Provider(map[string]any{
		"mode":              "cli",
		"environment":       "development",
		"log.level":         "info",
		"server.port":       "8080",
		"telemetry.enabled": true,
	}, ".")
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}

// SetDefaults fills empty fields. The OTEL_* variables are honoured the same
// way the OpenTelemetry SDK reads them.
func (c *Config) SetDefaults() {
	if c.Mode == "" {
		c.Mode = "cli"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = getEnv("OTEL_SERVICE_NAME", "parking-floor-service")
	}
	if c.Telemetry.Endpoint == "" {
		c.Telemetry.Endpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318")
	}
}

func (c *Config) Validate() error {
	switch c.Mode {
	case "cli", "server", "both":
	default:
		return fmt.Errorf("invalid mode: %s. Must be cli, server, or both", c.Mode)
	}
	if c.Floor.Spots < 0 || c.Floor.Spots > parking.MaxSpots {
		return fmt.Errorf("floor.spots must be between 0 and %d", parking.MaxSpots)
	}
	if c.Floor.FeePerSpot < 0 {
		return fmt.Errorf("floor.fee_per_spot must not be negative")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}
