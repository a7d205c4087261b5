// Package config holds the framework options and loads them from file and
// environment. Options are resolved once at startup and treated as immutable
// afterwards.
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/junction-api/junction/internal/jsonapierr"
)

// Options represents the framework configuration
type Options struct {
	// MaxIncludeDepth caps the length of inclusion chains; 0 means unlimited
	MaxIncludeDepth int `mapstructure:"max_include_depth"`

	// DefaultPageSize applies when page[size] is absent
	DefaultPageSize int `mapstructure:"default_page_size"`

	// MaxPageSize caps page[size]; 0 means uncapped
	MaxPageSize int `mapstructure:"max_page_size"`

	// AllowUnknownQueryStringParameters silently ignores parameters no
	// reader claims instead of rejecting the request
	AllowUnknownQueryStringParameters bool `mapstructure:"allow_unknown_query_string_parameters"`

	// EnableLegacyFilterNotation accepts filter[attr]=value bracket syntax
	EnableLegacyFilterNotation bool `mapstructure:"enable_legacy_filter_notation"`

	// SerializeNullValues controls whether null attributes appear in output
	// unless a request overrides it with omitNull
	SerializeNullValues bool `mapstructure:"serialize_null_values"`

	// SerializeDefaultValues controls whether zero-valued attributes appear
	// in output unless a request overrides it with omitDefault
	SerializeDefaultValues bool `mapstructure:"serialize_default_values"`

	Server ServerOptions `mapstructure:"server"`
}

// ServerOptions represents the example server configuration
type ServerOptions struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Default returns the options used when no configuration file is present
func Default() *Options {
	return &Options{
		MaxIncludeDepth:     3,
		DefaultPageSize:     10,
		MaxPageSize:         100,
		SerializeNullValues: true,
		Server:              ServerOptions{Host: "localhost", Port: 8080},
	}
}

// Load loads the configuration from junction.yml or junction.yaml
func Load() (*Options, error) {
	v := viper.New()

	defaults := Default()
	v.SetDefault("max_include_depth", defaults.MaxIncludeDepth)
	v.SetDefault("default_page_size", defaults.DefaultPageSize)
	v.SetDefault("max_page_size", defaults.MaxPageSize)
	v.SetDefault("serialize_null_values", defaults.SerializeNullValues)
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)

	v.SetConfigName("junction")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("junction")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var options Options
	if err := v.Unmarshal(&options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := options.Validate(); err != nil {
		return nil, err
	}

	return &options, nil
}

// Validate rejects inconsistent option combinations at startup
func (o *Options) Validate() error {
	if o.MaxIncludeDepth < 0 {
		return &jsonapierr.InvalidConfigurationError{Detail: "max_include_depth cannot be negative"}
	}
	if o.DefaultPageSize < 1 {
		return &jsonapierr.InvalidConfigurationError{Detail: "default_page_size must be positive"}
	}
	if o.MaxPageSize < 0 {
		return &jsonapierr.InvalidConfigurationError{Detail: "max_page_size cannot be negative"}
	}
	if o.MaxPageSize > 0 && o.DefaultPageSize > o.MaxPageSize {
		return &jsonapierr.InvalidConfigurationError{Detail: "default_page_size cannot exceed max_page_size"}
	}
	return nil
}
