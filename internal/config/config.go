/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type CatalogConfig struct {
	BaseURL     string `yaml:"base_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	TLSInsecure bool   `yaml:"tls_insecure"`
	// DSN is used by "hltaskit serve"; clients only need BaseURL.
	DSN    string `yaml:"dsn"`
	Listen string `yaml:"listen"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool `yaml:"telemetry_opt_in"`
	BackupsKeep    int  `yaml:"backups_keep"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// ScriptConfig holds what "hltaskit new" writes into a fresh script and
// where the catalog index lives.
type ScriptConfig struct {
	Frametime  string            `yaml:"frametime"`
	Properties map[string]string `yaml:"properties"`
	IndexDir   string            `yaml:"index_dir"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Logging       LoggingConfig `yaml:"logging"`
	Script        ScriptConfig  `yaml:"script"`
	Catalog       CatalogConfig `yaml:"catalog"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, BackupsKeep: 10},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		Script: ScriptConfig{
			Frametime:  "0.010000001",
			Properties: map[string]string{"frametime0ms": "0.0000000001"},
			IndexDir:   ".hltas-index",
		},
		Catalog: CatalogConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000, Listen: ":8080"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "HLTAS_CONFIG"
	EnvCatalogURL       = "HLTAS_CATALOG_URL"
	EnvCatalogTimeoutMs = "HLTAS_CATALOG_TIMEOUT_MS"
	EnvCatalogTLSInsec  = "HLTAS_TLS_INSECURE"
	EnvCatalogDSN       = "HLTAS_DB_DSN"
	EnvCatalogListen    = "HLTAS_LISTEN"
	EnvTelemetryOptIn   = "HLTAS_TELEMETRY_OPT_IN"
	EnvBackupsKeep      = "HLTAS_BACKUPS_KEEP"
	EnvIndexDir         = "HLTAS_INDEX_DIR"
	EnvLogLevel         = "HLTAS_LOG_LEVEL"
	EnvLogFormat        = "HLTAS_LOG_FORMAT"
	EnvLogSource        = "HLTAS_LOG_SOURCE"
	EnvLogFile          = "HLTAS_LOG_FILE"
)

// envKeys maps dotted config keys to the env var that overrides them.
var envKeys = map[string]string{
	"catalog.base_url":         EnvCatalogURL,
	"catalog.timeout_ms":       EnvCatalogTimeoutMs,
	"catalog.tls_insecure":     EnvCatalogTLSInsec,
	"catalog.dsn":              EnvCatalogDSN,
	"catalog.listen":           EnvCatalogListen,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"general.backups_keep":     EnvBackupsKeep,
	"script.index_dir":         EnvIndexDir,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// Service/keys for OS keyring.
const (
	keyringService = "hltaskit"
	keyringToken   = "catalog_token"
)

// TokenStore abstracts the keyring so tests can stub it.
type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

var tokenStore TokenStore = osKeyring{}

// SetTokenStore replaces the token backend and returns the previous one.
func SetTokenStore(ts TokenStore) TokenStore {
	old := tokenStore
	tokenStore = ts
	return old
}

// ConfigPath returns the per-user config file path. HLTAS_CONFIG wins.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "hltaskit")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "hltaskit")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "hltaskit")
		} else if h := os.Getenv("HOME"); h != "" {
			base = filepath.Join(h, ".config", "hltaskit")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// The catalog token is read from the keyring and returned separately; a missing token is not an error.
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("config: parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("config: read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return fmt.Errorf("config: store token: %w", err)
		}
	}
	return nil
}

// DeleteToken removes the catalog token from the keyring.
func DeleteToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	if src.General.BackupsKeep != 0 {
		dst.General.BackupsKeep = src.General.BackupsKeep
	}
	if src.Catalog.BaseURL != "" {
		dst.Catalog.BaseURL = src.Catalog.BaseURL
	}
	if src.Catalog.TimeoutMs != 0 {
		dst.Catalog.TimeoutMs = src.Catalog.TimeoutMs
	}
	dst.Catalog.TLSInsecure = src.Catalog.TLSInsecure
	if src.Catalog.DSN != "" {
		dst.Catalog.DSN = src.Catalog.DSN
	}
	if src.Catalog.Listen != "" {
		dst.Catalog.Listen = src.Catalog.Listen
	}
	if strings.TrimSpace(src.Script.Frametime) != "" {
		dst.Script.Frametime = strings.TrimSpace(src.Script.Frametime)
	}
	if src.Script.Properties != nil {
		dst.Script.Properties = maps.Clone(src.Script.Properties)
	}
	if strings.TrimSpace(src.Script.IndexDir) != "" {
		dst.Script.IndexDir = strings.TrimSpace(src.Script.IndexDir)
	}
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	for _, key := range slices.Sorted(maps.Keys(envKeys)) {
		if v := strings.TrimSpace(os.Getenv(envKeys[key])); v != "" {
			_ = Set(cfg, key, v)
		}
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// Keys lists the dotted keys understood by Get and Set.
func Keys() []string {
	return []string{
		"general.telemetry_opt_in", "general.backups_keep",
		"logging.level", "logging.format", "logging.source", "logging.file",
		"script.frametime", "script.index_dir",
		"catalog.base_url", "catalog.timeout_ms", "catalog.tls_insecure", "catalog.dsn", "catalog.listen",
	}
}

// ErrUnknownKey is returned by Get and Set for keys not listed by Keys.
var ErrUnknownKey = errors.New("config: unknown key")

// Get returns the value of a dotted key as text.
func Get(cfg AppConfig, key string) (string, error) {
	switch key {
	case "general.telemetry_opt_in":
		return strconv.FormatBool(cfg.General.TelemetryOptIn), nil
	case "general.backups_keep":
		return strconv.Itoa(cfg.General.BackupsKeep), nil
	case "logging.level":
		return cfg.Logging.Level, nil
	case "logging.format":
		return cfg.Logging.Format, nil
	case "logging.source":
		return strconv.FormatBool(cfg.Logging.Source), nil
	case "logging.file":
		return cfg.Logging.File, nil
	case "script.frametime":
		return cfg.Script.Frametime, nil
	case "script.index_dir":
		return cfg.Script.IndexDir, nil
	case "catalog.base_url":
		return cfg.Catalog.BaseURL, nil
	case "catalog.timeout_ms":
		return strconv.Itoa(cfg.Catalog.TimeoutMs), nil
	case "catalog.tls_insecure":
		return strconv.FormatBool(cfg.Catalog.TLSInsecure), nil
	case "catalog.dsn":
		return cfg.Catalog.DSN, nil
	case "catalog.listen":
		return cfg.Catalog.Listen, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
}

// Set assigns a dotted key from text.
func Set(cfg *AppConfig, key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case "general.telemetry_opt_in":
		cfg.General.TelemetryOptIn = truthy(value)
	case "general.backups_keep":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		cfg.General.BackupsKeep = n
	case "logging.level":
		cfg.Logging.Level = strings.ToLower(value)
	case "logging.format":
		cfg.Logging.Format = strings.ToLower(value)
	case "logging.source":
		cfg.Logging.Source = truthy(value)
	case "logging.file":
		cfg.Logging.File = value
	case "script.frametime":
		cfg.Script.Frametime = value
	case "script.index_dir":
		cfg.Script.IndexDir = value
	case "catalog.base_url":
		cfg.Catalog.BaseURL = value
	case "catalog.timeout_ms":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		cfg.Catalog.TimeoutMs = n
	case "catalog.tls_insecure":
		cfg.Catalog.TLSInsecure = truthy(value)
	case "catalog.dsn":
		cfg.Catalog.DSN = value
	case "catalog.listen":
		cfg.Catalog.Listen = value
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// EffectiveTimeout returns the catalog request timeout.
func (c CatalogConfig) EffectiveTimeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return time.Duration(Defaults().Catalog.TimeoutMs) * time.Millisecond
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
