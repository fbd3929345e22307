// Package config loads the service configuration from environment variables
// and an optional config file, and validates that the remote store
// credentials are present before the service starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the loaded service configuration.
type Config struct {
	ServiceName string

	Server Server
	Drive  Drive
	Flow   Flow
}

// Server configures the http listener.
type Server struct {
	Host  string
	Port  int
	Debug bool
}

// Drive configures the remote store client: service credentials and the
// target drive.
type Drive struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// principal whose drive receives the uploads
	User string

	// optional overrides; empty means the client defaults
	Scope   string
	BaseURL string

	Timeout time.Duration
}

// Flow configures intake behavior.
type Flow struct {
	// remote folder all submission folders are created under
	BaseFolder string

	// idle session lifetime
	SessionTTL time.Duration
}

// Load reads configuration from the environment (FOLIOFOTOS_ prefix, eg
// FOLIOFOTOS_DRIVE_CLIENT_SECRET) and from foliofotos.yaml in the working
// directory when present. Missing credentials fail the load.
func Load(serviceName string) (*Config, error) {

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("drive.timeout", 30*time.Second)
	v.SetDefault("flow.base_folder", "fotos_cotizaciones")
	v.SetDefault("flow.session_ttl", 2*time.Hour)

	v.SetEnvPrefix("FOLIOFOTOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("foliofotos")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		// a config file is optional; anything else is a real failure
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
	}

	cfg := &Config{
		ServiceName: serviceName,
		Server: Server{
			Host:  v.GetString("server.host"),
			Port:  v.GetInt("server.port"),
			Debug: v.GetBool("server.debug"),
		},
		Drive: Drive{
			TenantID:     v.GetString("drive.tenant_id"),
			ClientID:     v.GetString("drive.client_id"),
			ClientSecret: v.GetString("drive.client_secret"),
			User:         v.GetString("drive.user"),
			Scope:        v.GetString("drive.scope"),
			BaseURL:      v.GetString("drive.base_url"),
			Timeout:      v.GetDuration("drive.timeout"),
		},
		Flow: Flow{
			BaseFolder: v.GetString("flow.base_folder"),
			SessionTTL: v.GetDuration("flow.session_ttl"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks the fields the service cannot run without.
func (c *Config) validate() error {

	missing := make([]string, 0, 4)

	if c.Drive.TenantID == "" {
		missing = append(missing, "drive.tenant_id")
	}
	if c.Drive.ClientID == "" {
		missing = append(missing, "drive.client_id")
	}
	if c.Drive.ClientSecret == "" {
		missing = append(missing, "drive.client_secret")
	}
	if c.Drive.User == "" {
		missing = append(missing, "drive.user")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	return nil
}
