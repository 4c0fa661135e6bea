package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "BACKLOG"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "backlog.db"
	defaultGuestStorePath = "backlog-guest.json"
	defaultLogLevel       = "info"
	defaultTokenTTL       = 60
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	GuestStorePath string
	LogLevel       string
	SigningSecret  string
	TokenTTL       time.Duration
	CatalogAPIKey  string
	CatalogBaseURL string
	ArtworkAPIKey  string
	ArtworkBaseURL string
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
	configViper.SetDefault("guest.store_path", defaultGuestStorePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTL)
	configViper.SetDefault("rawg.base_url", "")
	configViper.SetDefault("steamgriddb.base_url", "")
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		GuestStorePath: configViper.GetString("guest.store_path"),
		LogLevel:       configViper.GetString("log.level"),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		TokenTTL:       time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		CatalogAPIKey:  configViper.GetString("rawg.api_key"),
		CatalogBaseURL: configViper.GetString("rawg.base_url"),
		ArtworkAPIKey:  configViper.GetString("steamgriddb.api_key"),
		ArtworkBaseURL: configViper.GetString("steamgriddb.base_url"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.GuestStorePath) == "" {
		return fmt.Errorf("guest.store_path is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl_minutes must be positive")
	}
	return nil
}
