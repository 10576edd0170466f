/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	return dir
}

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg != Defaults() {
		t.Fatalf("expected defaults, got %#v", cfg)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := isolate(t)
	yml := "provider:\n  model: runware:101@1\n  requests_per_minute: 0\nlibrary:\n  driver: Postgres\n  dsn: postgres://x\nlogging:\n  level: DEBUG\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.Model != "runware:101@1" || cfg.Provider.RequestsPerMinute != 0 {
		t.Fatalf("provider not merged: %#v", cfg.Provider)
	}
	if cfg.Provider.BaseURL != Defaults().Provider.BaseURL || cfg.Provider.Width != 1024 {
		t.Fatalf("absent keys lost their defaults: %#v", cfg.Provider)
	}
	if cfg.Library.Driver != "postgres" || cfg.Library.DSN != "postgres://x" || cfg.Logging.Level != "debug" {
		t.Fatalf("library/logging not merged: %#v %#v", cfg.Library, cfg.Logging)
	}
}

func TestLoadReportsMalformedFile(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("provider: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestSaveThenLoad(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.General.TelemetryOptIn = true
	cfg.Provider.CancelSuperseded = true
	cfg.Provider.MaxParallel = 2
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != cfg {
		t.Fatalf("round trip mismatch:\n got %#v\nwant %#v", got, cfg)
	}
}

func TestEnvOverridesProvider(t *testing.T) {
	isolate(t)
	t.Setenv(EnvProviderURL, "https://example.test/v1")
	t.Setenv(EnvProviderRPM, "12")
	t.Setenv(EnvProviderTimeout, "1500")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.BaseURL != "https://example.test/v1" || cfg.Provider.RequestsPerMinute != 12 {
		t.Fatalf("provider overrides not applied: %#v", cfg.Provider)
	}
	if cfg.Provider.Timeout() != 1500*time.Millisecond {
		t.Fatalf("Timeout() = %v", cfg.Provider.Timeout())
	}
}

func TestLoadFileIgnoresEnv(t *testing.T) {
	isolate(t)
	t.Setenv(EnvProviderModel, "env-model")
	cfg, err := LoadFile()
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if cfg.Provider.Model != Defaults().Provider.Model {
		t.Fatalf("LoadFile applied env override: %q", cfg.Provider.Model)
	}
}

func TestEnvOverridesTelemetryAndLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	t.Setenv(EnvLogLevel, "ERROR")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/cs.log")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/cs.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestInvalidEnvOverrideFailsLoad(t *testing.T) {
	isolate(t)
	t.Setenv(EnvProviderRPM, "lots")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-numeric %s", EnvProviderRPM)
	}
}

func TestEnvOverrideFor(t *testing.T) {
	t.Setenv(EnvLibraryDSN, "postgres://env")
	if name, ok := EnvOverrideFor("library.dsn"); !ok || name != EnvLibraryDSN {
		t.Fatalf("EnvOverrideFor(library.dsn) = %q, %v", name, ok)
	}
	t.Setenv(EnvProviderModel, "")
	if _, ok := EnvOverrideFor("provider.model"); ok {
		t.Fatalf("empty variable should not count as override")
	}
	if _, ok := EnvOverrideFor("nope"); ok {
		t.Fatalf("unknown key should not be overridden")
	}
}

func TestSetByKey(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Set("provider.max_parallel", "8"); err != nil || cfg.Provider.MaxParallel != 8 {
		t.Fatalf("Set max_parallel: %v %d", err, cfg.Provider.MaxParallel)
	}
	if err := cfg.Set("library.driver", "POSTGRES"); err != nil || cfg.Library.Driver != "postgres" {
		t.Fatalf("Set driver: %v %q", err, cfg.Library.Driver)
	}
	if err := cfg.Set("library.driver", "mysql"); err == nil {
		t.Fatalf("expected driver validation error")
	}
	if err := cfg.Set("provider.width", "-1"); err == nil {
		t.Fatalf("expected positive int validation error")
	}
	if err := cfg.Set("general.telemetry_opt_in", "maybe"); err == nil {
		t.Fatalf("expected bool parse error")
	}
	if err := cfg.Set("no.such.key", "x"); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestLibraryPathDefaultsIntoConfigDir(t *testing.T) {
	dir := isolate(t)
	p, err := Defaults().LibraryPath()
	if err != nil {
		t.Fatalf("LibraryPath: %v", err)
	}
	if p != filepath.Join(dir, "library.sqlite") {
		t.Fatalf("LibraryPath = %q", p)
	}
	cfg := Defaults()
	cfg.Library.Path = "/data/lib.sqlite"
	if p, _ := cfg.LibraryPath(); p != "/data/lib.sqlite" {
		t.Fatalf("explicit path ignored: %q", p)
	}
}

func TestAPIKeyPrefersEnvThenKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv(EnvAPIKey, "")

	key, err := APIKey()
	if err != nil || key != "" {
		t.Fatalf("missing key should be empty without error, got %q %v", key, err)
	}
	if err := SaveAPIKey("  from-keyring "); err != nil {
		t.Fatalf("SaveAPIKey: %v", err)
	}
	if key, _ := APIKey(); key != "from-keyring" {
		t.Fatalf("APIKey from keyring = %q", key)
	}
	t.Setenv(EnvAPIKey, "from-env")
	if key, _ := APIKey(); key != "from-env" {
		t.Fatalf("env should win, got %q", key)
	}
	if err := DeleteAPIKey(); err != nil {
		t.Fatalf("DeleteAPIKey: %v", err)
	}
	if err := DeleteAPIKey(); err != nil {
		t.Fatalf("second DeleteAPIKey: %v", err)
	}
	if err := SaveAPIKey(" "); err == nil {
		t.Fatalf("expected error for blank key")
	}
}
