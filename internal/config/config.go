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
	Catalog  CatalogConfig  `yaml:"catalog" mapstructure:"catalog"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// CatalogConfig selects and configures the scene catalog backend.
type CatalogConfig struct {
	// Driver is one of "dir", "stac", "postgres".
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	Dir         string     `yaml:"dir" mapstructure:"dir"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	STAC        STACConfig `yaml:"stac" mapstructure:"stac"`
}

// STACConfig configures the STAC API catalog backend.
type STACConfig struct {
	BaseURL           string            `yaml:"base_url" mapstructure:"base_url"`
	Collection        string            `yaml:"collection" mapstructure:"collection"`
	BandAssets        map[string]string `yaml:"band_assets" mapstructure:"band_assets"`
	RequestsPerSecond float64           `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PipelineConfig configures the analysis defaults; flags override these per
// run.
type PipelineConfig struct {
	NDVIThreshold    float64 `yaml:"ndvi_threshold" mapstructure:"ndvi_threshold"`
	MaxCloudCover    float64 `yaml:"max_cloud_cover" mapstructure:"max_cloud_cover"`
	Concurrency      int     `yaml:"concurrency" mapstructure:"concurrency"`
	FetchTimeoutSecs int     `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	Unit             string  `yaml:"unit" mapstructure:"unit"`
}

// OutputConfig configures where results are written.
type OutputConfig struct {
	CompositePath string `yaml:"composite_path" mapstructure:"composite_path"`
	SummaryPath   string `yaml:"summary_path" mapstructure:"summary_path"`
}

// StoreConfig configures the local run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP server.
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
	v.SetEnvPrefix("NDVI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("catalog.driver", "dir")
	v.SetDefault("catalog.dir", "./scenes")
	v.SetDefault("catalog.stac.base_url", "https://earth-search.aws.element84.com/v1")
	v.SetDefault("catalog.stac.collection", "sentinel-2-l2a")
	v.SetDefault("catalog.stac.band_assets", map[string]string{"nir": "nir", "red": "red"})
	v.SetDefault("catalog.stac.requests_per_second", 5.0)
	v.SetDefault("pipeline.ndvi_threshold", 0.3)
	v.SetDefault("pipeline.max_cloud_cover", 0.2)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.fetch_timeout_secs", 120)
	v.SetDefault("pipeline.unit", "ha")
	v.SetDefault("store.path", "ndvi.db")
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
