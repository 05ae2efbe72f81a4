package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default stage parameters, as the dashboard sends them.
var DefaultPreprocessingSteps = []string{"数据清洗", "格式标准化", "特征提取"}

type Config struct {
	Backend struct {
		BaseURL   string        `mapstructure:"base_url"`
		Token     string        `mapstructure:"token"`
		Timeout   time.Duration `mapstructure:"timeout"`
		RateLimit int           `mapstructure:"rate_limit"` // requests per second, 0 disables limiting
	} `mapstructure:"backend"`

	Pipeline PipelineConfig `mapstructure:"pipeline"`

	Catalog struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"catalog"`

	Database struct {
		Driver string `mapstructure:"driver"` // "sqlite", "postgres" or "none"
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Server struct {
		Addr string `mapstructure:"addr"`
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "text" or "json"
	} `mapstructure:"log"`
}

type PipelineConfig struct {
	SampleSize int `mapstructure:"sample_size"`

	Preprocessing struct {
		Steps             []string `mapstructure:"steps"`
		CleaningThreshold float64  `mapstructure:"cleaning_threshold"`
		StandardFormat    string   `mapstructure:"standard_format"`
		FeatureCount      int      `mapstructure:"feature_count"`
	} `mapstructure:"preprocessing"`

	Classification struct {
		BatchSize           int     `mapstructure:"batch_size"`
		Threshold           float64 `mapstructure:"threshold"`
		EnablePreprocessing bool    `mapstructure:"enable_preprocessing"`
	} `mapstructure:"classification"`

	Intervals struct {
		Extraction     time.Duration `mapstructure:"extraction"`
		Preprocessing  time.Duration `mapstructure:"preprocessing"`
		Classification time.Duration `mapstructure:"classification"`
	} `mapstructure:"intervals"`

	// MaxPollDuration bounds every poll loop; zero polls until a terminal state.
	MaxPollDuration    time.Duration `mapstructure:"max_poll_duration"`
	MaxPollAttempts    uint64        `mapstructure:"max_poll_attempts"` // 0 means no attempt bound
	StopAbandonedTasks bool          `mapstructure:"stop_abandoned_tasks"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("backend.rate_limit", 0)

	v.SetDefault("pipeline.sample_size", 1000)
	v.SetDefault("pipeline.preprocessing.steps", DefaultPreprocessingSteps)
	v.SetDefault("pipeline.preprocessing.cleaning_threshold", 0.8)
	v.SetDefault("pipeline.preprocessing.standard_format", "json")
	v.SetDefault("pipeline.preprocessing.feature_count", 100)
	v.SetDefault("pipeline.classification.batch_size", 32)
	v.SetDefault("pipeline.classification.threshold", 0.8)
	v.SetDefault("pipeline.classification.enable_preprocessing", false)
	v.SetDefault("pipeline.intervals.extraction", 500*time.Millisecond)
	v.SetDefault("pipeline.intervals.preprocessing", time.Second)
	v.SetDefault("pipeline.intervals.classification", 100*time.Millisecond)
	v.SetDefault("pipeline.max_poll_duration", 10*time.Minute)
	v.SetDefault("pipeline.max_poll_attempts", 0)
	v.SetDefault("pipeline.stop_abandoned_tasks", false)

	v.SetDefault("catalog.cache_ttl", 5*time.Minute)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "bigscreen.db")

	v.SetDefault("server.addr", "localhost")
	v.SetDefault("server.port", "8080")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads config.yaml from the working directory, or configFile when
// it is set. A missing config.yaml is fine; defaults and env vars still apply.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// BIGSCREEN_BACKEND_BASE_URL -> backend.base_url
	v.SetEnvPrefix("BIGSCREEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("backend.token", "BIGSCREEN_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &cfg, nil
}
