package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration. It is constructed
// once and passed by reference into each pipeline stage.
type Config struct {
	RunName string       `yaml:"run_name" mapstructure:"run_name"`
	Data    DataConfig   `yaml:"data" mapstructure:"data"`
	Args    ArgsConfig   `yaml:"args" mapstructure:"args"`
	Cache   CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Store   StoreConfig  `yaml:"store" mapstructure:"store"`
	Server  ServerConfig `yaml:"server" mapstructure:"server"`
	Log     LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the input tables and the results directory.
type DataConfig struct {
	HouseholdsFile     string   `yaml:"households_file" mapstructure:"households_file"`
	VillageCentersFile string   `yaml:"village_centers_file" mapstructure:"village_centers_file"`
	BaselineFile       string   `yaml:"baseline_file" mapstructure:"baseline_file"`
	AdmCols            []string `yaml:"adm_cols" mapstructure:"adm_cols"`
	IDCol              string   `yaml:"id_col" mapstructure:"id_col"`
	ResultsDir         string   `yaml:"results_dir" mapstructure:"results_dir"`
}

// HasBaseline reports whether a baseline facility table was supplied.
func (d DataConfig) HasBaseline() bool {
	return d.BaselineFile != ""
}

// ArgsConfig holds the scientific parameters of the pipeline.
type ArgsConfig struct {
	ClusterCountPerRegion  int     `yaml:"cluster_count_per_region" mapstructure:"cluster_count_per_region"`
	FacilityCountPerRegion int     `yaml:"facility_count_per_region" mapstructure:"facility_count_per_region"`
	DistanceMetricOrder    float64 `yaml:"distance_metric_order" mapstructure:"distance_metric_order"`
	SmallVillageThreshold  int     `yaml:"small_village_threshold" mapstructure:"small_village_threshold"`
	RandomSeed             int64   `yaml:"random_seed" mapstructure:"random_seed"`
	Restarts               int     `yaml:"restarts" mapstructure:"restarts"`
	Workers                int     `yaml:"workers" mapstructure:"workers"`
}

// CacheConfig configures the computation cache.
type CacheConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// StoreConfig configures the run-record store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the result viewer server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("SITEPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("run_name", "siteplan")
	v.SetDefault("data.adm_cols", []string{"adm1", "adm2", "adm3"})
	v.SetDefault("data.id_col", "hh_id")
	v.SetDefault("data.results_dir", "results")
	v.SetDefault("args.cluster_count_per_region", 20)
	v.SetDefault("args.facility_count_per_region", 3)
	v.SetDefault("args.distance_metric_order", 1.54)
	v.SetDefault("args.small_village_threshold", 30)
	v.SetDefault("args.random_seed", 42)
	v.SetDefault("args.restarts", 10)
	v.SetDefault("args.workers", 4)
	v.SetDefault("cache.dir", ".siteplan-cache")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "siteplan.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the scientific parameters. Any violation here is a
// configuration error and aborts the run before region processing
// begins.
func (c *Config) Validate() error {
	a := c.Args
	if a.ClusterCountPerRegion <= 0 {
		return eris.Errorf("config: cluster_count_per_region must be positive, got %d", a.ClusterCountPerRegion)
	}
	if a.FacilityCountPerRegion <= 0 {
		return eris.Errorf("config: facility_count_per_region must be positive, got %d", a.FacilityCountPerRegion)
	}
	if a.DistanceMetricOrder < 1 {
		return eris.Errorf("config: distance_metric_order must be >= 1, got %g", a.DistanceMetricOrder)
	}
	if a.SmallVillageThreshold < 0 {
		return eris.Errorf("config: small_village_threshold must be non-negative, got %d", a.SmallVillageThreshold)
	}
	if a.Restarts <= 0 {
		return eris.Errorf("config: restarts must be positive, got %d", a.Restarts)
	}
	if a.Workers <= 0 {
		return eris.Errorf("config: workers must be positive, got %d", a.Workers)
	}
	if len(c.Data.AdmCols) == 0 {
		return eris.New("config: data.adm_cols must not be empty")
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
