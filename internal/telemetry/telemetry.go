/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry provides a tiny, privacy‑respecting, opt‑in event sender
// for anonymous usage metrics and optional crash uploads.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"comicstudio/internal/domain"
	applog "comicstudio/internal/log"
	"comicstudio/internal/version"

	"github.com/caarlos0/env/v11"
)

// Config holds runtime configuration for telemetry and crash uploads.
// All telemetry is strictly opt‑in and disabled by default.
// If no URLs are set, events are dropped (no‑ops), even if opt‑in is true.
type Config struct {
	OptIn        bool          `env:"CS_TELEMETRY_OPT_IN"`
	EventsURL    string        `env:"CS_TELEMETRY_URL"`
	CrashURL     string        `env:"CS_CRASH_UPLOAD_URL"`
	TimeoutMs    int           `env:"CS_TELEMETRY_TIMEOUT_MS" envDefault:"1500"`
	DebugLogging bool          `env:"CS_TELEMETRY_DEBUG"`
	Timeout      time.Duration
}

// FromEnv reads CS_TELEMETRY_* variables. Unparseable values leave telemetry off.
func FromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		applog.WithComponent("telemetry").Warn("ignoring telemetry env", slog.Any("err", err))
		return Config{Timeout: 1500 * time.Millisecond}
	}
	cfg.EventsURL = strings.TrimSpace(cfg.EventsURL)
	cfg.CrashURL = strings.TrimSpace(cfg.CrashURL)
	cfg.Timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
	return cfg
}

// Client is a minimal async sender; it drops events silently on errors.
// It never blocks callers; the queue is bounded.
type Client struct {
	cfg     Config
	log     *slog.Logger
	cli     *http.Client
	q       chan map[string]any
	pending atomic.Int64
	once    sync.Once
	closed  chan struct{}
}

var (
	defaultMu     sync.Mutex
	defaultClient *Client
)

// InitDefault initializes the package‑level default client from env when first used.
func InitDefault() *Client {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultClient == nil {
		defaultClient = New(FromEnv())
	}
	return defaultClient
}

// NewDefault creates and installs the default client with cfg, closing the previous one.
func NewDefault(cfg Config) *Client {
	c := New(cfg)
	defaultMu.Lock()
	prev := defaultClient
	defaultClient = c
	defaultMu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return c
}

// New constructs a client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:    cfg,
		log:    applog.WithComponent("telemetry"),
		cli:    &http.Client{Timeout: cfg.Timeout},
		q:      make(chan map[string]any, 64),
		closed: make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether anonymous telemetry is enabled and an endpoint is configured.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Enabled reports whether anonymous telemetry is enabled using the default client.
func Enabled() bool { return InitDefault().Enabled() }

// Event queues a small JSON event if enabled. Safe to call from anywhere.
// props must not carry script text or character descriptions.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	payload := map[string]any{
		"name":    name,
		"ts":      time.Now().UTC().Format(time.RFC3339Nano),
		"version": version.String(),
		"os":      runtime.GOOS,
		"arch":    runtime.GOARCH,
	}
	for k, v := range props {
		payload[k] = v
	}
	c.pending.Add(1)
	select {
	case c.q <- payload:
	default:
		c.pending.Add(-1)
	}
}

// Event using default client.
func Event(name string, props map[string]any) { InitDefault().Event(name, props) }

// ObserveGeneration reports one finished panel generation: success, duration and error code.
// Its signature fits imaging.Options.Observe.
func (c *Client) ObserveGeneration(out domain.Outcome, elapsed time.Duration) {
	props := map[string]any{
		"ok":          out.Succeeded(),
		"duration_ms": elapsed.Milliseconds(),
	}
	if out.Err != nil {
		props["code"] = string(domain.CodeOf(out.Err))
	}
	c.Event("panel_generation", props)
}

// Flush waits until queued events were sent, ctx ends, or 2 seconds pass.
func (c *Client) Flush(ctx context.Context) {
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for c.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			return
		case <-tick.C:
		}
	}
}

// Close stops the background goroutine. Queued events are dropped.
func (c *Client) Close() { c.once.Do(func() { close(c.closed) }) }

func (c *Client) loop() {
	for {
		select {
		case <-c.closed:
			return
		case item := <-c.q:
			c.send(item)
			c.pending.Add(-1)
		}
	}
}

func (c *Client) send(item map[string]any) {
	buf, err := json.Marshal(item)
	if err != nil {
		return
	}
	c.post(c.cfg.EventsURL, "application/json", buf, "telemetry event")
}

func (c *Client) post(url, contentType string, body []byte, what string) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.cli.Do(req)
	if err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug(what+" failed", slog.Any("err", err))
		}
		return
	}
	_ = resp.Body.Close()
	if c.cfg.DebugLogging {
		c.log.Debug(what+" sent", slog.Int("status", resp.StatusCode))
	}
}

// UploadCrash posts an already‑serialized crash report to the configured crash URL if opt‑in.
// It blocks at most for the client timeout; crash handling exits right after.
func (c *Client) UploadCrash(report []byte) {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return
	}
	c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report, "crash upload")
}

// UploadCrash using default client.
func UploadCrash(report []byte) { InitDefault().UploadCrash(report) }
