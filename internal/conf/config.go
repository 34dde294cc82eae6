package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/cloudvault/cloudvault-backend/internal/pkg/database"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/logger"
	"github.com/cloudvault/cloudvault-backend/internal/pkg/redis"
)

type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database database.Config `mapstructure:"database"`
	Redis    redis.Config    `mapstructure:"redis"`
	Log      logger.Config   `mapstructure:"log"`
	Auth     AuthConfig      `mapstructure:"auth"`
	Upload   UploadConfig    `mapstructure:"upload"`
	Quota    QuotaConfig     `mapstructure:"quota"`
	Health   HealthConfig    `mapstructure:"health"`
	SMTP     SMTPConfig      `mapstructure:"smtp"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// UploadConfig is the admission validation policy
type UploadConfig struct {
	MaxFileSize      int64    `mapstructure:"max_file_size"` // bytes, 0 = unlimited
	AllowedMIMETypes []string `mapstructure:"allowed_mime_types"`
}

type QuotaConfig struct {
	DefaultLimit  int64   `mapstructure:"default_limit"`  // bytes per owner
	WarnThreshold float64 `mapstructure:"warn_threshold"` // fraction of limit that triggers a warning event
}

// HealthConfig drives the probe scheduler and the registry health state machine
type HealthConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	MaxConcurrent      int           `mapstructure:"max_concurrent"`
	HealthyThreshold   int           `mapstructure:"healthy_threshold"`
	UnhealthyThreshold int           `mapstructure:"unhealthy_threshold"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	FromAddr string `mapstructure:"from_addr"`
	FromName string `mapstructure:"from_name"`
	Enabled  bool   `mapstructure:"enabled"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.setDefaults()
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Quota.DefaultLimit == 0 {
		c.Quota.DefaultLimit = 10 << 30 // 10 GiB
	}
	if c.Quota.WarnThreshold == 0 {
		c.Quota.WarnThreshold = 0.9
	}
	if c.Health.Interval == 0 {
		c.Health.Interval = 60 * time.Second
	}
	if c.Health.MaxConcurrent == 0 {
		c.Health.MaxConcurrent = 4
	}
	if c.Health.HealthyThreshold == 0 {
		c.Health.HealthyThreshold = 2
	}
	if c.Health.UnhealthyThreshold == 0 {
		c.Health.UnhealthyThreshold = 3
	}
	if c.Upload.MaxFileSize == 0 {
		c.Upload.MaxFileSize = 5 << 30 // 5 GiB
	}
}
