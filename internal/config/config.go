package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "EVENTRELAY"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "eventrelay.db"
	defaultLogLevel        = "info"
	defaultUploadDir       = "uploads"
	defaultToleranceMillis = 300000
	defaultShutdownGraceS  = 5
)

// AppConfig captures runtime configuration for the relay server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	AdminPubkey        string
	AdminEmail         string
	DefaultPermissions int64
	TimeTolerance      time.Duration
	UploadDir          string
	ShutdownGrace      time.Duration
	LogLevel           string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("files.upload_dir", defaultUploadDir)
	configViper.SetDefault("relay.time_tolerance_ms", defaultToleranceMillis)
	configViper.SetDefault("relay.default_permissions", 0)
	configViper.SetDefault("relay.shutdown_grace_s", defaultShutdownGraceS)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		AdminPubkey:        configViper.GetString("admin.pubkey"),
		AdminEmail:         configViper.GetString("admin.email"),
		DefaultPermissions: configViper.GetInt64("relay.default_permissions"),
		TimeTolerance:      time.Duration(configViper.GetInt64("relay.time_tolerance_ms")) * time.Millisecond,
		UploadDir:          configViper.GetString("files.upload_dir"),
		ShutdownGrace:      time.Duration(configViper.GetInt64("relay.shutdown_grace_s")) * time.Second,
		LogLevel:           configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AdminPubkey) == "" {
		return fmt.Errorf("admin.pubkey is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TimeTolerance <= 0 {
		return fmt.Errorf("relay.time_tolerance_ms must be positive")
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("relay.shutdown_grace_s must be positive")
	}
	return nil
}
