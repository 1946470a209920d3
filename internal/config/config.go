package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Morpho     MorphoConfig     `yaml:"morpho" mapstructure:"morpho"`
	Buildings  BuildingsConfig  `yaml:"buildings" mapstructure:"buildings"`
	Profile    ProfileConfig    `yaml:"profile" mapstructure:"profile"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PathsConfig locates boundary input and exported results.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir" mapstructure:"data_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// MorphoConfig selects the metric set and bounds a city's size.
type MorphoConfig struct {
	Full            bool `yaml:"full" mapstructure:"full"`
	MaxPolygons     int  `yaml:"max_polygons" mapstructure:"max_polygons"`
	CanvasPx        int  `yaml:"canvas_px" mapstructure:"canvas_px"`
	OrientationBins int  `yaml:"orientation_bins" mapstructure:"orientation_bins"`
}

// BuildingsConfig tunes footprint preprocessing and tessellation.
type BuildingsConfig struct {
	MinArea            float64 `yaml:"min_area" mapstructure:"min_area"`
	Simplify           float64 `yaml:"simplify" mapstructure:"simplify"`
	Buffer             float64 `yaml:"buffer" mapstructure:"buffer"`
	MaxCells           int     `yaml:"max_cells" mapstructure:"max_cells"`
	NetworkMaxDistance float64 `yaml:"network_max_distance" mapstructure:"network_max_distance"`
}

// ProfileConfig tunes street profile sampling.
type ProfileConfig struct {
	TickSpacing float64 `yaml:"tick_spacing" mapstructure:"tick_spacing"`
	TickLength  float64 `yaml:"tick_length" mapstructure:"tick_length"`
}

// OverpassConfig configures the OSM Overpass client.
type OverpassConfig struct {
	Endpoint         string  `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit        float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours    int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RetryAttempts    int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffSecs int     `yaml:"retry_backoff_secs" mapstructure:"retry_backoff_secs"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldown  int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// ServerConfig configures the read-only API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// MonitoringConfig configures run health checks and alerting.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MORPHO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "morpho.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.data_dir", "data/boundaries")
	v.SetDefault("paths.output_dir", "data/results")
	v.SetDefault("morpho.full", false)
	v.SetDefault("morpho.max_polygons", 200)
	v.SetDefault("morpho.canvas_px", 1200)
	v.SetDefault("morpho.orientation_bins", 36)
	v.SetDefault("buildings.min_area", 30)
	v.SetDefault("buildings.simplify", 0.5)
	v.SetDefault("buildings.buffer", 100)
	v.SetDefault("buildings.max_cells", 4_000_000)
	v.SetDefault("buildings.network_max_distance", 100)
	v.SetDefault("profile.tick_spacing", 10)
	v.SetDefault("profile.tick_length", 50)
	v.SetDefault("overpass.endpoint", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 180)
	v.SetDefault("overpass.rate_limit", 1)
	v.SetDefault("overpass.cache_ttl_hours", 168)
	v.SetDefault("overpass.retry_attempts", 4)
	v.SetDefault("overpass.retry_backoff_secs", 2)
	v.SetDefault("overpass.breaker_threshold", 5)
	v.SetDefault("overpass.breaker_cooldown_secs", 120)
	v.SetDefault("batch.workers", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "run", "serve" and "read" (concat, status, export).
func (c *Config) Validate(mode string) error {
	if err := c.validateStore(); err != nil {
		return err
	}
	switch mode {
	case "run":
		return c.validateRun()
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return eris.Errorf("config: server.port out of range: %d", c.Server.Port)
		}
		return nil
	case "read":
		return nil
	}
	return eris.Errorf("config: unknown mode %q", mode)
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DatabaseURL == "" {
		return eris.New("config: store.database_url is required")
	}
	return nil
}

func (c *Config) validateRun() error {
	if c.Paths.DataDir == "" {
		return eris.New("config: paths.data_dir is required")
	}
	if c.Morpho.MaxPolygons <= 0 {
		return eris.Errorf("config: morpho.max_polygons must be positive, got %d", c.Morpho.MaxPolygons)
	}
	if c.Morpho.CanvasPx < 64 {
		return eris.Errorf("config: morpho.canvas_px must be at least 64, got %d", c.Morpho.CanvasPx)
	}
	if c.Buildings.Buffer <= 0 {
		return eris.Errorf("config: buildings.buffer must be positive, got %g", c.Buildings.Buffer)
	}
	if c.Buildings.MaxCells <= 0 {
		return eris.Errorf("config: buildings.max_cells must be positive, got %d", c.Buildings.MaxCells)
	}
	if c.Profile.TickSpacing <= 0 || c.Profile.TickLength <= 0 {
		return eris.New("config: profile.tick_spacing and profile.tick_length must be positive")
	}
	if c.Overpass.Endpoint == "" {
		return eris.New("config: overpass.endpoint is required")
	}
	if c.Batch.Workers < 1 {
		return eris.Errorf("config: batch.workers must be at least 1, got %d", c.Batch.Workers)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
