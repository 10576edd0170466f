/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"comicstudio/internal/backend"
	"comicstudio/internal/characters"
	"comicstudio/internal/config"
	"comicstudio/internal/domain"
	"comicstudio/internal/imaging"
	applog "comicstudio/internal/log"
	"comicstudio/internal/session"
	"comicstudio/internal/storage"
	"comicstudio/internal/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

// app carries what every command needs. The function fields are replaced in tests.
type app struct {
	cfg    config.AppConfig
	log    *slog.Logger
	tel    *telemetry.Client
	stdout io.Writer
	stdin  io.Reader

	loadConfig  func() (config.AppConfig, error)
	apiKey      func() (string, error)
	newProvider func(config.ProviderConfig) imaging.Provider
	openLibrary func(context.Context, config.AppConfig) (storage.Library, error)
}

func newApp() *app {
	return &app{
		stdout:      os.Stdout,
		stdin:       os.Stdin,
		loadConfig:  config.Load,
		apiKey:      config.APIKey,
		newProvider: runwareProvider,
		openLibrary: openLibrary,
	}
}

func runwareProvider(pc config.ProviderConfig) imaging.Provider {
	return imaging.NewRunwareProvider(imaging.RunwareConfig{
		BaseURL: pc.BaseURL,
		Model:   pc.Model,
		Width:   pc.Width,
		Height:  pc.Height,
		Timeout: pc.Timeout(),
	})
}

func openLibrary(ctx context.Context, cfg config.AppConfig) (storage.Library, error) {
	switch cfg.Library.Driver {
	case "postgres":
		dsn := cfg.Library.DSN
		if dsn == "" {
			dsn = backend.DefaultDSN
		}
		return backend.Open(ctx, dsn)
	case "", "sqlite":
		path, err := cfg.LibraryPath()
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		return storage.OpenSQLiteLibrary(path)
	default:
		return nil, fmt.Errorf("unknown library driver %q", cfg.Library.Driver)
	}
}

// setup runs before every command: config, logging and telemetry.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
	a.log = applog.WithComponent("cli")

	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	a.tel = telemetry.NewDefault(tcfg)
	a.log.Debug("command start", slog.String("cmd", cmd.CommandPath()))
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) {
	if a.tel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	a.tel.Flush(ctx)
	a.tel.Close()
}

// project is an opened project directory bound to a session.
type project struct {
	ph   *storage.ProjectHandle
	sess *session.Session
}

// openProject loads dir and adopts its script into a fresh session.
// gen may be nil for commands that never generate.
func (a *app) openProject(dir string, gen session.Generator) (*project, error) {
	ph, err := openHandle(dir)
	if err != nil {
		return nil, err
	}
	return a.bind(ph, gen), nil
}

func openHandle(dir string) (*storage.ProjectHandle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return storage.Open(abs)
}

func (a *app) bind(ph *storage.ProjectHandle, gen session.Generator) *project {
	sess := session.New(gen, session.Options{
		OnChange: func(s *domain.Script) { ph.Manifest.Script = s },
		Event:    a.event,
	})
	sess.Load(ph.Manifest.Script, ph.Manifest.Selection)
	return &project{ph: ph, sess: sess}
}

func (a *app) event(name string, props map[string]any) {
	if a.tel != nil {
		a.tel.Event(name, props)
	}
}

// save writes the session state back to the manifest.
func (p *project) save() error {
	p.ph.Manifest.Script = p.sess.Script()
	p.ph.Manifest.Selection = p.sess.Selection()
	return storage.Save(p.ph)
}

func (p *project) characters() (*characters.Collection, error) {
	return characters.Load(p.ph.CharactersPath())
}

// coordinator builds the image coordinator from provider config.
func (a *app) coordinator(chars imaging.Describer) *imaging.Coordinator {
	pc := a.cfg.Provider
	opts := imaging.Options{
		CancelSuperseded: pc.CancelSuperseded,
		Timeout:          pc.Timeout(),
		MaxParallel:      pc.MaxParallel,
	}
	if pc.RequestsPerMinute > 0 {
		opts.Limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(pc.RequestsPerMinute)), 1)
	}
	if a.tel != nil {
		opts.Observe = a.tel.ObserveGeneration
	}
	return imaging.NewCoordinator(a.newProvider(pc), chars, opts)
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("panel index %q is not a number", s)
	}
	return n, nil
}

// exitCode maps error categories onto process exit codes.
func exitCode(err error) int {
	switch domain.CodeOf(err) {
	case "":
		return 0
	case domain.CodeValidation, domain.CodeIndex, domain.CodePermutation, domain.CodeNoScript:
		return 2
	case domain.CodeCredential:
		return 3
	case domain.CodeGeneration:
		return 4
	}
	if errors.Is(err, storage.ErrNotFound) {
		return 5
	}
	return 1
}
