// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads minhtml configuration from a YAML file,
// MINHTML_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dchest/minhtml/filewriter"
	"github.com/dchest/minhtml/middleware"
	"github.com/dchest/minhtml/transformers"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by all validation errors.
var ErrInvalid = errors.New("invalid configuration")

const (
	// DefaultFileName is looked up in the working directory when no
	// config file is given.
	DefaultFileName = "minhtml"
	EnvPrefix       = "MINHTML"
)

// Doctype probe modes.
const (
	ProbeRequest  = middleware.ProbeRequest
	ProbeResponse = middleware.ProbeResponse
	ProbeOff      = middleware.ProbeOff
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	// Transformers lists pipeline entries in order. Each entry is a
	// transformer name or a list of name followed by its arguments.
	Transformers []interface{} `mapstructure:"transformers" yaml:"transformers"`
	DoctypeProbe string        `mapstructure:"doctype_probe" yaml:"doctype_probe"`
	Log          LogConfig     `mapstructure:"log" yaml:"log"`
	Server       ServerConfig  `mapstructure:"server" yaml:"server"`
	Cache        CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Build        BuildConfig   `mapstructure:"build" yaml:"build"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

type ServerConfig struct {
	Listen      string `mapstructure:"listen" yaml:"listen"`
	Root        string `mapstructure:"root" yaml:"root"`
	Upstream    string `mapstructure:"upstream" yaml:"upstream"`
	Metrics     bool   `mapstructure:"metrics" yaml:"metrics"`
	MetricsPath string `mapstructure:"metrics_path" yaml:"metrics_path"`
}

type CacheConfig struct {
	Backend    string      `mapstructure:"backend" yaml:"backend"`
	MaxEntries int         `mapstructure:"max_entries" yaml:"max_entries"`
	Redis      RedisConfig `mapstructure:"redis" yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	TTL      string `mapstructure:"ttl" yaml:"ttl"`
}

type BuildConfig struct {
	Extensions []string                  `mapstructure:"extensions" yaml:"extensions"`
	Workers    int                       `mapstructure:"workers" yaml:"workers"`
	Compress   filewriter.CompressConfig `mapstructure:"compress" yaml:"compress"`
}

// Default returns the built-in configuration.
func Default() *Config {
	ts := make([]interface{}, len(transformers.DefaultNames))
	for i, n := range transformers.DefaultNames {
		ts[i] = n
	}
	return &Config{
		Transformers: ts,
		DoctypeProbe: ProbeRequest,
		Log:          LogConfig{Level: "info"},
		Server: ServerConfig{
			Listen:      ":8080",
			Root:        ".",
			Metrics:     true,
			MetricsPath: "/metrics",
		},
		Cache: CacheConfig{
			Backend:    CacheMemory,
			MaxEntries: 1024,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "minhtml:",
				TTL:    "1h",
			},
		},
		Build: BuildConfig{
			Extensions: []string{".html", ".htm"},
			Compress: filewriter.CompressConfig{
				Methods:    []string{},
				Extensions: []string{"html", "htm", "css", "js", "svg", "xml"},
			},
		},
	}
}

// SetDefaults registers the default value of every key with v, so that
// environment variables can override keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("transformers", d.Transformers)
	v.SetDefault("doctype_probe", d.DoctypeProbe)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.root", d.Server.Root)
	v.SetDefault("server.upstream", d.Server.Upstream)
	v.SetDefault("server.metrics", d.Server.Metrics)
	v.SetDefault("server.metrics_path", d.Server.MetricsPath)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.max_entries", d.Cache.MaxEntries)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.redis.prefix", d.Cache.Redis.Prefix)
	v.SetDefault("cache.redis.ttl", d.Cache.Redis.TTL)
	v.SetDefault("build.extensions", d.Build.Extensions)
	v.SetDefault("build.workers", d.Build.Workers)
	v.SetDefault("build.compress.methods", d.Build.Compress.Methods)
	v.SetDefault("build.compress.extensions", d.Build.Compress.Extensions)
}

// NewViper returns a viper instance with defaults and environment
// binding set up, reading the given config file. With an empty file
// name, ./minhtml.yaml is read if it exists.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		return v, nil
	}
	v.AddConfigPath(".")
	v.SetConfigName(DefaultFileName)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Load is NewViper followed by Decode.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.Specs(); err != nil {
		return err
	}
	switch c.DoctypeProbe {
	case ProbeRequest, ProbeResponse, ProbeOff:
	default:
		return invalid("doctype_probe: %q is not one of request, response, off", c.DoctypeProbe)
	}
	if c.Server.Listen == "" {
		return invalid("server.listen is empty")
	}
	if c.Server.Metrics && !strings.HasPrefix(c.Server.MetricsPath, "/") {
		return invalid("server.metrics_path: %q must start with /", c.Server.MetricsPath)
	}
	switch c.Cache.Backend {
	case "", CacheNone:
	case CacheMemory:
		if c.Cache.MaxEntries < 0 {
			return invalid("cache.max_entries: %d is negative", c.Cache.MaxEntries)
		}
	case CacheRedis:
		if c.Cache.Redis.Addr == "" {
			return invalid("cache.redis.addr is empty")
		}
		if _, err := c.Cache.Redis.TTLDuration(); err != nil {
			return invalid("cache.redis.ttl: %v", err)
		}
	default:
		return invalid("cache.backend: %q is not one of none, memory, redis", c.Cache.Backend)
	}
	if len(c.Build.Extensions) == 0 {
		return invalid("build.extensions is empty")
	}
	for _, m := range c.Build.Compress.Methods {
		if m != "gzip" && m != "br" {
			return invalid("build.compress.methods: unknown method %q", m)
		}
	}
	return nil
}

// Specs parses the transformer entries.
func (c *Config) Specs() ([]transformers.Spec, error) {
	specs, err := transformers.ParseSpecs(c.Transformers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	known := make(map[string]bool)
	for _, n := range transformers.Names() {
		known[n] = true
	}
	for i, s := range specs {
		if !known[s.Name] {
			return nil, fmt.Errorf("%w: transformers[%d]: %w %q", ErrInvalid, i, transformers.ErrUnknownTransformer, s.Name)
		}
	}
	return specs, nil
}

// Pipeline builds the configured transformer pipeline.
func (c *Config) Pipeline() (*transformers.Pipeline, error) {
	specs, err := c.Specs()
	if err != nil {
		return nil, err
	}
	return transformers.New(specs)
}

// TTLDuration parses TTL. Empty means no expiration.
func (r RedisConfig) TTLDuration() (time.Duration, error) {
	if r.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.TTL)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", r.TTL)
	}
	return d, nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
