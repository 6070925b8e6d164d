package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"drudge/forum"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	log "github.com/sirupsen/logrus"
)

// Duration lets TOML files use strings like "5s" and "720h"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// TomlPush configures the push channel subscription
type TomlPush struct {
	Endpoints  []string `toml:"endpoints"`
	Namespace  string   `toml:"namespace"`
	MaxBackoff Duration `toml:"max_backoff"`
}

// TomlForum configures the discussion index
type TomlForum struct {
	BaseURL       string   `toml:"base_url"`
	LookupTimeout Duration `toml:"lookup_timeout"`
	UserAgent     string   `toml:"user_agent"`
}

type TomlPipeline struct {
	Workers     int  `toml:"workers"`
	EagerLookup bool `toml:"eager_lookup"`
}

type TomlServer struct {
	Host         string   `toml:"host"`
	Port         int      `toml:"port"`
	AllowOrigins []string `toml:"allow_origins"`
}

// TomlArchive configures the optional Postgres snapshot archive
type TomlArchive struct {
	Enabled   bool     `toml:"enabled"`
	Host      string   `toml:"host"`
	Port      int      `toml:"port"`
	User      string   `toml:"user"`
	Password  string   `toml:"password"`
	Name      string   `toml:"name"`
	Retention Duration `toml:"retention"`
}

type TomlLog struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Push     TomlPush     `toml:"push"`
	Forum    TomlForum    `toml:"forum"`
	Pipeline TomlPipeline `toml:"pipeline"`
	Server   TomlServer   `toml:"server"`
	Archive  TomlArchive  `toml:"archive"`
	Log      TomlLog      `toml:"log"`
}

const appName = "drudge"

// Defaults returns a configuration that runs without a config file
func Defaults() *TomlConfig {
	return &TomlConfig{
		Push: TomlPush{
			Endpoints:  []string{"http://localhost:4000"},
			Namespace:  "/",
			MaxBackoff: Duration{30 * time.Second},
		},
		Forum: TomlForum{
			BaseURL:       forum.DefaultBaseURL,
			LookupTimeout: Duration{5 * time.Second},
			UserAgent:     appName,
		},
		Pipeline: TomlPipeline{
			Workers: 8,
		},
		Server: TomlServer{
			Host:         "0.0.0.0",
			Port:         3000,
			AllowOrigins: []string{"*"},
		},
		Archive: TomlArchive{
			Host:      "localhost",
			Port:      5432,
			User:      appName,
			Password:  appName,
			Name:      appName,
			Retention: Duration{30 * 24 * time.Hour},
		},
		Log: TomlLog{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath is the XDG config location, e.g. ~/.config/drudge/config.toml
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.toml")
}

// LoadConfig reads path on top of Defaults. An empty path falls back to
// DefaultPath, and a missing default file is not an error.
func LoadConfig(path string) (*TomlConfig, error) {
	config := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			log.WithFields(log.Fields{
				"path": path,
			}).Debug("No config file found, using defaults")
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return config, nil
}

// Validate reports every problem in the configuration at once
func (c *TomlConfig) Validate() error {
	var errs []error

	if len(c.Push.Endpoints) == 0 {
		errs = append(errs, errors.New("push.endpoints must not be empty"))
	}
	for _, endpoint := range c.Push.Endpoints {
		if err := validateURL(endpoint, "http", "https", "ws", "wss"); err != nil {
			errs = append(errs, fmt.Errorf("push.endpoints: %w", err))
		}
	}
	if err := validateURL(c.Forum.BaseURL, "http", "https"); err != nil {
		errs = append(errs, fmt.Errorf("forum.base_url: %w", err))
	}
	if c.Forum.LookupTimeout.Duration <= 0 {
		errs = append(errs, errors.New("forum.lookup_timeout must be positive"))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be at least 1"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Archive.Enabled {
		if c.Archive.Host == "" || c.Archive.Name == "" {
			errs = append(errs, errors.New("archive.host and archive.name are required when the archive is enabled"))
		}
		if c.Archive.Retention.Duration <= 0 {
			errs = append(errs, errors.New("archive.retention must be positive"))
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func validateURL(raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	for _, scheme := range schemes {
		if strings.EqualFold(u.Scheme, scheme) && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%q must be an absolute %s URL", raw, strings.Join(schemes, "/"))
}
