// Package config loads eventsim settings from a TOML file, a .env file and
// EVENTSIM_* environment variables, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/danielpatrickdp/eventsim/internal/decay"
	"github.com/danielpatrickdp/eventsim/internal/develop"
	"github.com/danielpatrickdp/eventsim/internal/engine"
	"github.com/danielpatrickdp/eventsim/internal/state"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// #region types
type DatabaseConfig struct {
	Path string `toml:"path" validate:"required"`
}

type ServerConfig struct {
	HTTPAddr        string `toml:"http_addr" validate:"required"`
	GRPCAddr        string `toml:"grpc_addr"`
	ShutdownSeconds int    `toml:"shutdown_seconds" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"oneof=debug info warn error"`
	Format string `toml:"format" validate:"oneof=text json"`
}

// DecayConfig overrides acute half-lives per dimension name, as Go durations
// ("6h", "336h").
type DecayConfig struct {
	ChronicFactor float64           `toml:"chronic_factor" validate:"gte=1"`
	HalfLives     map[string]string `toml:"half_lives"`
}

// DevelopConfig overrides the base-shift pipeline constants. The lifetime cap may
// be lowered but never raised above 1.
type DevelopConfig struct {
	MaxRaw          float64            `toml:"max_raw" validate:"gt=0,lte=0.3"`
	Cap             float64            `toml:"cap" validate:"gt=0,lte=1"`
	SevereThreshold float64            `toml:"severe_threshold" validate:"gte=0"`
	RetainFraction  float64            `toml:"retain_fraction" validate:"gte=0,lte=1"`
	RecoveryDays    int                `toml:"recovery_days" validate:"gte=0"`
	Stability       map[string]float64 `toml:"stability" validate:"dive,gte=0.6,lte=0.85"`
}

type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
	Decay    DecayConfig    `toml:"decay"`
	Develop  DevelopConfig  `toml:"develop"`
}

// #endregion types

// #region load
// Default returns the built-in configuration.
func Default() *Config {
	dc := develop.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "eventsim.db"},
		Server:   ServerConfig{HTTPAddr: ":8080", GRPCAddr: ":9090", ShutdownSeconds: 10},
		Log:      LogConfig{Level: "info", Format: "text"},
		Decay:    DecayConfig{ChronicFactor: decay.DefaultChronicFactor},
		Develop: DevelopConfig{
			MaxRaw:          dc.MaxRaw,
			Cap:             dc.Cap,
			SevereThreshold: dc.SevereThreshold,
			RetainFraction:  dc.RetainFraction,
			RecoveryDays:    int(dc.RecoveryWindow / (24 * time.Hour)),
		},
	}
}

// Load reads path over the defaults, applies .env and environment overrides, and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Database.Path = envOr("EVENTSIM_DB", c.Database.Path)
	c.Server.HTTPAddr = envOr("EVENTSIM_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = envOr("EVENTSIM_GRPC_ADDR", c.Server.GRPCAddr)
	c.Log.Level = envOr("EVENTSIM_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("EVENTSIM_LOG_FORMAT", c.Log.Format)
}

// Validate checks struct constraints and that every named dimension and trait exists.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.DecayModel(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.DevelopConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// #endregion load

// #region builders
// DecayModel builds the decay model with half-life overrides applied.
func (c *Config) DecayModel() (*decay.Model, error) {
	hl := decay.DefaultHalfLives()
	for name, raw := range c.Decay.HalfLives {
		d, err := state.ParseDimension(name)
		if err != nil {
			return nil, fmt.Errorf("decay.half_lives: %w", err)
		}
		if d == state.AcquiredCapability {
			return nil, fmt.Errorf("decay.half_lives: %s does not decay", d)
		}
		dur, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("decay.half_lives.%s: %w", name, err)
		}
		hl[d] = dur
	}
	return decay.NewModel(hl, c.Decay.ChronicFactor)
}

// DevelopConfig builds the base-shift pipeline constants with overrides applied.
func (c *Config) DevelopConfig() (develop.Config, error) {
	dc := develop.DefaultConfig()
	dc.MaxRaw = c.Develop.MaxRaw
	dc.Cap = c.Develop.Cap
	dc.SevereThreshold = c.Develop.SevereThreshold
	dc.RetainFraction = c.Develop.RetainFraction
	dc.RecoveryWindow = time.Duration(c.Develop.RecoveryDays) * 24 * time.Hour
	for name, v := range c.Develop.Stability {
		tr, err := state.ParseTrait(name)
		if err != nil {
			return develop.Config{}, fmt.Errorf("develop.stability: %w", err)
		}
		dc.Stability[tr] = v
	}
	return dc, nil
}

// EngineOptions builds the engine calibration from the decay and develop sections.
func (c *Config) EngineOptions() (engine.Options, error) {
	m, err := c.DecayModel()
	if err != nil {
		return engine.Options{}, err
	}
	dc, err := c.DevelopConfig()
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{Decay: m, Develop: develop.NewPipeline(dc)}, nil
}

// #endregion builders

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
