// Package conf handles loading and accessing application settings.
// Settings come from an optional YAML config file, environment variables
// with the SENTINEL_ prefix, and command line flags bound through viper.
package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the full runtime configuration of the dashboard backend.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Server struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"server"`

	Persistence struct {
		// BaseURL is the root of the remote persistence service,
		// e.g. http://localhost:8090
		BaseURL string        `mapstructure:"baseurl"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"persistence"`

	Geolocation struct {
		// Endpoint is the one-shot device location service.
		Endpoint string        `mapstructure:"endpoint"`
		Timeout  time.Duration `mapstructure:"timeout"`
	} `mapstructure:"geolocation"`

	Map struct {
		DefaultLat        float64       `mapstructure:"defaultlat"`
		DefaultLng        float64       `mapstructure:"defaultlng"`
		DefaultZoom       float64       `mapstructure:"defaultzoom"`
		FocusZoom         float64       `mapstructure:"focuszoom"`
		DeviceZoom        float64       `mapstructure:"devicezoom"`
		AnimationDuration time.Duration `mapstructure:"animationduration"`
	} `mapstructure:"map"`

	PersistD struct {
		// Path of the sqlite database file used by the reference
		// persistence daemon. ":memory:" is accepted for tests.
		Database string `mapstructure:"database"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
	} `mapstructure:"persistd"`
}

// setDefaults registers default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("persistence.baseurl", "http://localhost:8090")
	v.SetDefault("persistence.timeout", 15*time.Second)
	v.SetDefault("geolocation.endpoint", "https://ipapi.co/json/")
	v.SetDefault("geolocation.timeout", 10*time.Second)
	v.SetDefault("map.defaultlat", 20.0)
	v.SetDefault("map.defaultlng", 0.0)
	v.SetDefault("map.defaultzoom", 2)
	v.SetDefault("map.focuszoom", 15)
	v.SetDefault("map.devicezoom", 13)
	v.SetDefault("map.animationduration", 1500*time.Millisecond)
	v.SetDefault("persistd.database", "sentinel.db")
	v.SetDefault("persistd.host", "0.0.0.0")
	v.SetDefault("persistd.port", 8090)
}

// Load reads settings from the config file (if present), environment and
// defaults. A missing config file is not an error; a malformed one is.
func Load() (*Settings, error) {
	v := viper.GetViper()
	return load(v)
}

func load(v *viper.Viper) (*Settings, error) {
	setDefaults(v)

	v.SetConfigName("sentinel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/sentinel")
	v.AddConfigPath("/etc/sentinel")

	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return settings, nil
}

// LoadWith loads settings into a fresh viper instance, used by tests to avoid
// touching the shared global state.
func LoadWith(configure func(*viper.Viper)) (*Settings, error) {
	v := viper.New()
	if configure != nil {
		configure(v)
	}
	return load(v)
}
