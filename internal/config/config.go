package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Site   SiteConfig   `mapstructure:"site"`
	Images ImagesConfig `mapstructure:"images"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SiteConfig describes the page under management
type SiteConfig struct {
	Page           string `mapstructure:"page"`
	SiteURL        string `mapstructure:"site_url"`
	Inbox          string `mapstructure:"inbox"`
	InsertSelector string `mapstructure:"insert_selector"`
}

// ImagesConfig holds the loading, retry and fallback policy
type ImagesConfig struct {
	MaxRetries           int           `mapstructure:"max_retries"`
	RetryDelayBase       time.Duration `mapstructure:"retry_delay_base"`
	ProbeTimeout         time.Duration `mapstructure:"probe_timeout"`
	HealthCheckInterval  time.Duration `mapstructure:"health_check_interval"`
	RetryAllStagger      time.Duration `mapstructure:"retry_all_stagger"`
	MaxRequestsPerSecond int           `mapstructure:"max_requests_per_second"`
	MaxParallelChecks    int           `mapstructure:"max_parallel_checks"`
	UserAgent            string        `mapstructure:"user_agent"`
	Proxies              []string      `mapstructure:"proxies"`

	// Lazy loading waits for the viewport; otherwise every image loads at once.
	Lazy           bool `mapstructure:"lazy"`
	RootMargin     int  `mapstructure:"root_margin"`
	ViewportHeight int  `mapstructure:"viewport_height"`
	RowHeight      int  `mapstructure:"row_height"`

	AutoAssign bool                `mapstructure:"auto_assign"`
	Categories map[string][]string `mapstructure:"categories"`
	Fallbacks  map[string][]string `mapstructure:"fallbacks"`
}

// RedisConfig holds Redis connection details
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Password  string `mapstructure:"password"`
	Database  int    `mapstructure:"database"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from path, or from config.yaml in the current
// directory when path is empty, with environment variable overrides. A
// missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("imageguard")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	if c.Images.MaxRetries < 0 {
		return fmt.Errorf("images.max_retries must not be negative, got %d", c.Images.MaxRetries)
	}
	if c.Images.ProbeTimeout <= 0 {
		return fmt.Errorf("images.probe_timeout must be positive, got %v", c.Images.ProbeTimeout)
	}
	if c.Images.HealthCheckInterval <= 0 {
		return fmt.Errorf("images.health_check_interval must be positive, got %v", c.Images.HealthCheckInterval)
	}
	if len(c.Images.Fallbacks) == 0 {
		return errors.New("images.fallbacks must not be empty")
	}
	return nil
}

const cdn = "https://zhiyan-ai-agent-with-1258344702.cos.ap-guangzhou.tencentcos.cn/with/"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "localhost")

	v.SetDefault("site.page", "index.html")
	v.SetDefault("site.site_url", "")
	v.SetDefault("site.inbox", "")
	v.SetDefault("site.insert_selector", "body")

	v.SetDefault("images.max_retries", 2)
	v.SetDefault("images.retry_delay_base", time.Second)
	v.SetDefault("images.probe_timeout", 5*time.Second)
	v.SetDefault("images.health_check_interval", 30*time.Second)
	v.SetDefault("images.retry_all_stagger", 500*time.Millisecond)
	v.SetDefault("images.max_requests_per_second", 10)
	v.SetDefault("images.max_parallel_checks", 4)
	v.SetDefault("images.user_agent", "imageguard/1.0")
	v.SetDefault("images.proxies", []string{})
	v.SetDefault("images.lazy", true)
	v.SetDefault("images.root_margin", 50)
	v.SetDefault("images.viewport_height", 900)
	v.SetDefault("images.row_height", 400)
	v.SetDefault("images.auto_assign", true)
	v.SetDefault("images.categories", map[string][]string{
		"sunrise": {
			cdn + "d9e716ba-389a-4395-ade8-a13fdcf9d03f/image_1754616767_3_1.jpg",
			cdn + "dc84ed5b-46f4-496f-a940-697c5f3f0b1c/image_1754616767_4_1.jpg",
			cdn + "354ae1b3-d38d-4ef8-a59b-dcd4bf01761a/image_1754616767_5_1.jpg",
		},
		"seafood": {
			cdn + "cf41abea-0a8e-4cee-995c-3f6173754c1b/image_1754616775_6_1.png",
			cdn + "629fb330-4d01-4e1b-9f46-6d64fd1ba204/image_1754616775_2_1.jpg",
			cdn + "e7b6949b-a321-4f04-9d02-49c8f03d8170/image_1754616775_1_1.png",
		},
		"fisherman": {
			cdn + "1530caa9-c3ae-4347-915d-c36c892a49fa/image_1754616784_1_1.png",
			cdn + "9c9d1680-4b7e-4390-adf2-8cc896e4f440/image_1754616784_4_1.png",
		},
	})
	v.SetDefault("images.fallbacks", map[string][]string{
		"landscape": {
			"/images/fallback-sunrise.svg",
			"/images/fallback-landscape.svg",
			"/images/fallback-fisherman.svg",
		},
		"food": {
			"/images/fallback-seafood.svg",
		},
	})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.database", 0)
	v.SetDefault("redis.key_prefix", "imageguard:")

	v.SetDefault("log.level", "info")
}
