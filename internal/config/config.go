/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type ProviderConfig struct {
	BaseURL           string `yaml:"base_url"`
	Model             string `yaml:"model"`
	Width             int    `yaml:"width"`
	Height            int    `yaml:"height"`
	TimeoutMs         int    `yaml:"timeout_ms"`
	RequestsPerMinute int    `yaml:"requests_per_minute"` // 0 disables limiting
	MaxParallel       int    `yaml:"max_parallel"`
	CancelSuperseded  bool   `yaml:"cancel_superseded"`
	// The API key is not stored on disk; it lives in the OS keychain.
}

type LibraryConfig struct {
	Driver string `yaml:"driver"` // "sqlite" | "postgres"
	DSN    string `yaml:"dsn"`    // postgres DSN
	Path   string `yaml:"path"`   // sqlite file; empty means <config dir>/library.sqlite
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int            `yaml:"config_version"`
	General       GeneralConfig  `yaml:"general"`
	Provider      ProviderConfig `yaml:"provider"`
	Library       LibraryConfig  `yaml:"library"`
	Logging       LoggingConfig  `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Provider: ProviderConfig{
			BaseURL:           "https://api.runware.ai/v1",
			Model:             "runware:100@1",
			Width:             1024,
			Height:            1024,
			TimeoutMs:         60000,
			RequestsPerMinute: 30,
			MaxParallel:       4,
		},
		Library: LibraryConfig{Driver: "sqlite"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigDir        = "CS_CONFIG_DIR"
	EnvProviderURL      = "CS_PROVIDER_URL"
	EnvProviderModel    = "CS_PROVIDER_MODEL"
	EnvProviderTimeout  = "CS_PROVIDER_TIMEOUT_MS"
	EnvProviderRPM      = "CS_PROVIDER_RPM"
	EnvLibraryDriver    = "CS_LIBRARY_DRIVER"
	EnvLibraryDSN       = "CS_LIBRARY_DSN"
	EnvTelemetryOptIn   = "CS_TELEMETRY_OPT_IN"
	EnvLogLevel         = "CS_LOG_LEVEL"
	EnvLogFormat        = "CS_LOG_FORMAT"
	EnvLogSource        = "CS_LOG_SOURCE"
	EnvLogFile          = "CS_LOG_FILE"
	EnvAPIKey           = "RUNWARE_API_KEY"
	defaultConfigFolder = "comicstudio"
)

// envOverrides mirrors the overridable keys; nil means the variable is unset.
type envOverrides struct {
	ProviderURL     *string `env:"CS_PROVIDER_URL"`
	ProviderModel   *string `env:"CS_PROVIDER_MODEL"`
	ProviderTimeout *int    `env:"CS_PROVIDER_TIMEOUT_MS"`
	ProviderRPM     *int    `env:"CS_PROVIDER_RPM"`
	LibraryDriver   *string `env:"CS_LIBRARY_DRIVER"`
	LibraryDSN      *string `env:"CS_LIBRARY_DSN"`
	TelemetryOptIn  *bool   `env:"CS_TELEMETRY_OPT_IN"`
	LogLevel        *string `env:"CS_LOG_LEVEL"`
	LogFormat       *string `env:"CS_LOG_FORMAT"`
	LogSource       *bool   `env:"CS_LOG_SOURCE"`
	LogFile         *string `env:"CS_LOG_FILE"`
}

// overrideKeys maps config keys to the env var that overrides them.
var overrideKeys = map[string]string{
	"provider.base_url":            EnvProviderURL,
	"provider.model":               EnvProviderModel,
	"provider.timeout_ms":          EnvProviderTimeout,
	"provider.requests_per_minute": EnvProviderRPM,
	"library.driver":               EnvLibraryDriver,
	"library.dsn":                  EnvLibraryDSN,
	"general.telemetry_opt_in":     EnvTelemetryOptIn,
	"logging.level":                EnvLogLevel,
	"logging.format":               EnvLogFormat,
	"logging.source":               EnvLogSource,
	"logging.file":                 EnvLogFile,
}

// Service/keys for OS keyring.
const (
	keyringService = "ComicStudio"
	keyringAPIKey  = "provider_api_key"
)

// Dir returns the per-user config directory. CS_CONFIG_DIR replaces it when set.
func Dir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "ComicStudio")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ComicStudio")
	default: // linux and others
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, defaultConfigFolder)
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", defaultConfigFolder)
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// LibraryPath returns the sqlite library file, defaulting into the config directory.
func (c AppConfig) LibraryPath() (string, error) {
	if p := strings.TrimSpace(c.Library.Path); p != "" {
		return p, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "library.sqlite"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A malformed file is reported, not ignored; a missing one is not an error.
func Load() (AppConfig, error) {
	cfg, err := LoadFile()
	if err != nil {
		return cfg, err
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile is Load without environment overrides. Use it before Save so
// overridden values are not written back to disk.
func LoadFile() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// unmarshal over defaults so keys absent from the file keep their default
		fileCfg := Defaults()
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.Provider.CancelSuperseded = src.Provider.CancelSuperseded

	if v := strings.TrimSpace(src.Provider.BaseURL); v != "" {
		dst.Provider.BaseURL = v
	}
	if v := strings.TrimSpace(src.Provider.Model); v != "" {
		dst.Provider.Model = v
	}
	if src.Provider.Width > 0 {
		dst.Provider.Width = src.Provider.Width
	}
	if src.Provider.Height > 0 {
		dst.Provider.Height = src.Provider.Height
	}
	if src.Provider.TimeoutMs > 0 {
		dst.Provider.TimeoutMs = src.Provider.TimeoutMs
	}
	if src.Provider.RequestsPerMinute >= 0 {
		dst.Provider.RequestsPerMinute = src.Provider.RequestsPerMinute
	}
	if src.Provider.MaxParallel > 0 {
		dst.Provider.MaxParallel = src.Provider.MaxParallel
	}
	if v := strings.ToLower(strings.TrimSpace(src.Library.Driver)); v != "" {
		dst.Library.Driver = v
	}
	if v := strings.TrimSpace(src.Library.DSN); v != "" {
		dst.Library.DSN = v
	}
	if v := strings.TrimSpace(src.Library.Path); v != "" {
		dst.Library.Path = v
	}
	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

func applyEnvOverrides(cfg *AppConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setString(&cfg.Provider.BaseURL, o.ProviderURL)
	setString(&cfg.Provider.Model, o.ProviderModel)
	if o.ProviderTimeout != nil {
		cfg.Provider.TimeoutMs = *o.ProviderTimeout
	}
	if o.ProviderRPM != nil {
		cfg.Provider.RequestsPerMinute = *o.ProviderRPM
	}
	setString(&cfg.Library.Driver, o.LibraryDriver)
	setString(&cfg.Library.DSN, o.LibraryDSN)
	if o.TelemetryOptIn != nil {
		cfg.General.TelemetryOptIn = *o.TelemetryOptIn
	}
	setString(&cfg.Logging.Level, o.LogLevel)
	setString(&cfg.Logging.Format, o.LogFormat)
	if o.LogSource != nil {
		cfg.Logging.Source = *o.LogSource
	}
	setString(&cfg.Logging.File, o.LogFile)
	cfg.Library.Driver = strings.ToLower(cfg.Library.Driver)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Logging.Format = strings.ToLower(cfg.Logging.Format)
	return nil
}

func setString(dst *string, v *string) {
	if v == nil {
		return
	}
	if s := strings.TrimSpace(*v); s != "" {
		*dst = s
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := overrideKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Set assigns a value by dotted key, e.g. "provider.model".
func (c *AppConfig) Set(key, value string) error {
	value = strings.TrimSpace(value)
	var err error
	switch key {
	case "provider.base_url":
		c.Provider.BaseURL = value
	case "provider.model":
		c.Provider.Model = value
	case "provider.width":
		c.Provider.Width, err = positiveInt(value)
	case "provider.height":
		c.Provider.Height, err = positiveInt(value)
	case "provider.timeout_ms":
		c.Provider.TimeoutMs, err = positiveInt(value)
	case "provider.requests_per_minute":
		c.Provider.RequestsPerMinute, err = strconv.Atoi(value)
	case "provider.max_parallel":
		c.Provider.MaxParallel, err = positiveInt(value)
	case "provider.cancel_superseded":
		c.Provider.CancelSuperseded, err = strconv.ParseBool(value)
	case "library.driver":
		v := strings.ToLower(value)
		if v != "sqlite" && v != "postgres" {
			return fmt.Errorf("library.driver must be sqlite or postgres, got %q", value)
		}
		c.Library.Driver = v
	case "library.dsn":
		c.Library.DSN = value
	case "library.path":
		c.Library.Path = value
	case "general.telemetry_opt_in":
		c.General.TelemetryOptIn, err = strconv.ParseBool(value)
	case "logging.level":
		c.Logging.Level = strings.ToLower(value)
	case "logging.format":
		c.Logging.Format = strings.ToLower(value)
	case "logging.source":
		c.Logging.Source, err = strconv.ParseBool(value)
	case "logging.file":
		c.Logging.File = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}

// Timeout returns the provider call bound.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutMs <= 0 {
		return time.Duration(Defaults().Provider.TimeoutMs) * time.Millisecond
	}
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

// APIKey returns the image provider credential: RUNWARE_API_KEY first, then the OS keyring.
// A missing key is not an error; callers decide whether generation can proceed.
func APIKey() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		return v, nil
	}
	v, err := keyring.Get(keyringService, keyringAPIKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read api key from keyring: %w", err)
	}
	return v, nil
}

// SaveAPIKey stores the provider credential in the OS keyring.
func SaveAPIKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("api key is empty")
	}
	return keyring.Set(keyringService, keyringAPIKey, key)
}

// DeleteAPIKey removes the stored credential; deleting a missing key is not an error.
func DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringAPIKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
