// Package config provides Viper-based configuration for the wacrm client and server
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wacrm/internal/auth"
)

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ClientConfig is read by the wacrm CLI and TUI
type ClientConfig struct {
	Server  RemoteConfig  `mapstructure:"server"`
	Auth    ClientAuth    `mapstructure:"auth"`
	List    ListConfig    `mapstructure:"list"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type RemoteConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxTries uint          `mapstructure:"max_tries"`
}

// ClientAuth selects where the API token comes from. The first non-empty
// of Token, TokenFile and TokenEnv wins.
type ClientAuth struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
	TokenEnv  string `mapstructure:"token_env"`
}

type ListConfig struct {
	PageSize int `mapstructure:"page_size"`
}

// ServerConfig is read by wacrm-server
type ServerConfig struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Database DatabaseConfig `mapstructure:"database"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Campaign CampaignConfig `mapstructure:"campaign"`
	Auth     ServerAuth     `mapstructure:"auth"`
	API      APIConfig      `mapstructure:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type WhatsAppConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	SessionPath string `mapstructure:"session_path"`
}

// CampaignConfig paces campaign sending. Each message waits a random delay
// between MinDelay and MaxDelay after the previous one.
type CampaignConfig struct {
	MinDelay     time.Duration `mapstructure:"min_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	SendTimeout  time.Duration `mapstructure:"send_timeout"`
}

type ServerAuth struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type APIConfig struct {
	MaxPageSize int `mapstructure:"max_page_size"`
}

func newViper(cfgFile, name string) *viper.Viper {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/wacrm")
	}

	// WACRM_SERVER_URL overrides server.url
	v.SetEnvPrefix("WACRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func read(v *viper.Viper, out any) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	return nil
}

// LoadClient reads .wacrm.yaml and WACRM_* environment variables
func LoadClient(cfgFile string) (*ClientConfig, error) {
	v := newViper(cfgFile, ".wacrm")

	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.timeout", 30*time.Second)
	v.SetDefault("server.max_tries", 3)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.token_file", "")
	v.SetDefault("auth.token_env", "WACRM_API_TOKEN")
	v.SetDefault("list.page_size", 30)
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")

	var cfg ClientConfig
	if err := read(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	u, err := url.Parse(c.Server.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server.url: %q", c.Server.URL)
	}
	if c.List.PageSize < 1 || c.List.PageSize > 200 {
		return fmt.Errorf("list.page_size must be between 1 and 200, got %d", c.List.PageSize)
	}
	if c.Server.MaxTries < 1 {
		return fmt.Errorf("server.max_tries must be at least 1")
	}
	return validateLogging(c.Logging)
}

// Credentials returns the token provider the config selects.
func (c *ClientConfig) Credentials() auth.CredentialProvider {
	switch {
	case c.Auth.Token != "":
		return auth.StaticToken(c.Auth.Token)
	case c.Auth.TokenFile != "":
		return auth.FileToken(c.Auth.TokenFile)
	default:
		return auth.EnvToken(c.Auth.TokenEnv)
	}
}

// LoadServer reads wacrm-server.yaml and WACRM_* environment variables
func LoadServer(cfgFile string) (*ServerConfig, error) {
	v := newViper(cfgFile, "wacrm-server")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 30*time.Second)
	v.SetDefault("database.path", "wacrm.db")
	v.SetDefault("whatsapp.enabled", true)
	v.SetDefault("whatsapp.session_path", "whatsapp.db")
	v.SetDefault("campaign.min_delay", 10*time.Second)
	v.SetDefault("campaign.max_delay", 15*time.Second)
	v.SetDefault("campaign.poll_interval", 500*time.Millisecond)
	v.SetDefault("campaign.send_timeout", 30*time.Second)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "wacrm")
	v.SetDefault("api.max_page_size", 200)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	var cfg ServerConfig
	if err := read(v, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("auth.jwt_secret must be set to at least 16 characters (WACRM_AUTH_JWT_SECRET)")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.WhatsApp.Enabled && c.WhatsApp.SessionPath == "" {
		return fmt.Errorf("whatsapp.session_path is required when whatsapp is enabled")
	}
	if c.WhatsApp.SessionPath != "" && c.WhatsApp.SessionPath == c.Database.Path {
		return fmt.Errorf("whatsapp.session_path must differ from database.path")
	}
	if c.API.MaxPageSize < 1 {
		return fmt.Errorf("api.max_page_size must be positive")
	}
	if c.Campaign.MinDelay < 0 || c.Campaign.MaxDelay < c.Campaign.MinDelay {
		return fmt.Errorf("campaign delays must satisfy 0 <= min_delay <= max_delay, got %s and %s",
			c.Campaign.MinDelay, c.Campaign.MaxDelay)
	}
	if c.Campaign.PollInterval <= 0 || c.Campaign.SendTimeout <= 0 {
		return fmt.Errorf("campaign.poll_interval and campaign.send_timeout must be positive")
	}
	return validateLogging(c.Logging)
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", l.Level)
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("invalid logging format: %s (must be console or json)", l.Format)
	}
	return nil
}
