// Package appconf defines the application configuration and loads it from a
// YAML or JSON file.
package appconf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// ParseEnvironment maps a config string to an Environment.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "development", "dev":
		return Development, nil
	case "test":
		return Test, nil
	case "production", "prod":
		return Production, nil
	}
	return Development, fmt.Errorf("unknown environment %q", s)
}

// Strict reports whether invariant violations should panic instead of being
// logged and skipped.
func (e Environment) Strict() bool {
	return e != Production
}

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the runtime configuration for the API server and the engine.
type Config struct {
	Port           int
	Env            Environment
	ApiKeys        []string
	ExemptApiKeys  []string
	RateLimit      int
	Verbose        bool
	RequestTimeout time.Duration

	DataPath string
	GtfsPath string

	Upstream UpstreamConfig
}

// UpstreamConfig describes the live transit API (TAGO).
type UpstreamConfig struct {
	BaseURL         string
	ServiceKey      string
	CityCode        string
	Timeout         time.Duration
	RequestsPerSec  int
	MaxRetries      int
	TimetableLimit  int
	DisableLiveFeed bool
}

// Defaults returns the configuration used when no file or flag overrides a value.
func Defaults() Config {
	return Config{
		Port:           4000,
		Env:            Development,
		RateLimit:      100,
		RequestTimeout: 5 * time.Second,
		DataPath:       "./reroute.db",
		Upstream: UpstreamConfig{
			BaseURL:        "https://apis.data.go.kr/1613000",
			Timeout:        3 * time.Second,
			RequestsPerSec: 10,
			MaxRetries:     2,
			TimetableLimit: 3,
		},
	}
}

// FileConfig is the on-disk representation. JSON is accepted too since it
// parses as YAML.
type FileConfig struct {
	Port           int      `yaml:"port" validate:"gte=0,lte=65535"`
	Env            string   `yaml:"env" validate:"omitempty,oneof=development dev test production prod"`
	ApiKeys        []string `yaml:"api-keys" validate:"dive,required"`
	ExemptApiKeys  []string `yaml:"exempt-api-keys"`
	RateLimit      int      `yaml:"rate-limit" validate:"gte=0"`
	Verbose        bool     `yaml:"verbose"`
	RequestTimeout string   `yaml:"request-timeout"`
	DataPath       string   `yaml:"data-path"`
	GtfsPath       string   `yaml:"gtfs-path"`

	Upstream FileUpstreamConfig `yaml:"upstream"`
}

type FileUpstreamConfig struct {
	BaseURL         string `yaml:"base-url" validate:"omitempty,url"`
	ServiceKey      string `yaml:"service-key"`
	CityCode        string `yaml:"city-code"`
	Timeout         string `yaml:"timeout"`
	RequestsPerSec  int    `yaml:"requests-per-second" validate:"gte=0"`
	MaxRetries      int    `yaml:"max-retries" validate:"gte=0,lte=10"`
	TimetableLimit  int    `yaml:"timetable-limit" validate:"gte=0"`
	DisableLiveFeed bool   `yaml:"disable-live-feed"`
}

// LoadFromFile reads and validates a config file.
func LoadFromFile(path string) (*FileConfig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

// Validate checks struct tags and the duration fields.
func (fc *FileConfig) Validate() error {
	v := validator.New()
	if err := v.Struct(fc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for name, raw := range map[string]string{
		"request-timeout":  fc.RequestTimeout,
		"upstream.timeout": fc.Upstream.Timeout,
	} {
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return fmt.Errorf("%w: %s must be a positive duration, got %q", ErrInvalidConfig, name, raw)
		}
	}
	return nil
}

// ToAppConfig overlays the file values on Defaults().
func (fc *FileConfig) ToAppConfig() Config {
	cfg := Defaults()

	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if env, err := ParseEnvironment(fc.Env); err == nil {
		cfg.Env = env
	}
	if fc.ApiKeys != nil {
		cfg.ApiKeys = fc.ApiKeys
	}
	cfg.ExemptApiKeys = fc.ExemptApiKeys
	if fc.RateLimit != 0 {
		cfg.RateLimit = fc.RateLimit
	}
	cfg.Verbose = fc.Verbose
	if d, err := time.ParseDuration(fc.RequestTimeout); err == nil && d > 0 {
		cfg.RequestTimeout = d
	}
	if fc.DataPath != "" {
		cfg.DataPath = fc.DataPath
	}
	cfg.GtfsPath = fc.GtfsPath

	up := fc.Upstream
	if up.BaseURL != "" {
		cfg.Upstream.BaseURL = strings.TrimRight(up.BaseURL, "/")
	}
	cfg.Upstream.ServiceKey = up.ServiceKey
	cfg.Upstream.CityCode = up.CityCode
	if d, err := time.ParseDuration(up.Timeout); err == nil && d > 0 {
		cfg.Upstream.Timeout = d
	}
	if up.RequestsPerSec != 0 {
		cfg.Upstream.RequestsPerSec = up.RequestsPerSec
	}
	if up.MaxRetries != 0 {
		cfg.Upstream.MaxRetries = up.MaxRetries
	}
	if up.TimetableLimit != 0 {
		cfg.Upstream.TimetableLimit = up.TimetableLimit
	}
	cfg.Upstream.DisableLiveFeed = up.DisableLiveFeed

	return cfg
}
