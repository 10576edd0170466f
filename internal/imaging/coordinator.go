/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"comicstudio/internal/domain"
	applog "comicstudio/internal/log"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrSuperseded is the failure cause of a request cancelled by a newer one for the same panel.
var ErrSuperseded = errors.New("superseded by a newer request")

// Options tunes a Coordinator. The zero value is usable.
type Options struct {
	// Limiter throttles provider calls across all panels. Nil disables throttling.
	Limiter *rate.Limiter
	// CancelSuperseded cancels an in-flight request when a newer one for the same panel
	// is dispatched. Off by default: overlapping requests all complete and the caller
	// applies them in completion order.
	CancelSuperseded bool
	// Timeout bounds a single provider call. Zero means no extra bound.
	Timeout time.Duration
	// MaxParallel bounds RegenerateAll fan-out. Zero means 4.
	MaxParallel int
	// StatusTTL is how long finished statuses stay visible. Zero means 10 minutes.
	StatusTTL time.Duration
	// Observe, when set, is called once per finished job from the job's goroutine.
	Observe func(domain.Outcome, time.Duration)
}

// Coordinator dispatches independent per-panel generation requests.
// It holds no script; the caller passes the current script at dispatch time.
type Coordinator struct {
	provider Provider
	chars    Describer
	opts     Options
	status   *tracker
	log      *slog.Logger

	mu     sync.Mutex
	latest map[string]*Job // newest job per panel id
	active int
	idle   chan struct{} // closed when active drops to zero
}

// NewCoordinator wires a provider and the character collection used for prompts.
func NewCoordinator(p Provider, chars Describer, opts Options) *Coordinator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	return &Coordinator{
		provider: p,
		chars:    chars,
		opts:     opts,
		status:   newTracker(opts.StatusTTL),
		log:      applog.WithComponent("imaging"),
		latest:   make(map[string]*Job),
	}
}

// Job is a single in-flight generation keyed by panel id.
type Job struct {
	PanelID string
	Request Request
	Started time.Time

	cancel context.CancelFunc
	done   chan struct{}
	out    domain.Outcome
}

// Done is closed once the outcome is available.
func (j *Job) Done() <-chan struct{} { return j.done }

// Outcome returns the result if the job has finished.
func (j *Job) Outcome() (domain.Outcome, bool) {
	select {
	case <-j.done:
		return j.out, true
	default:
		return domain.Outcome{}, false
	}
}

// Wait blocks until the job finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) (domain.Outcome, error) {
	select {
	case <-j.done:
		return j.out, nil
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}

// Cancel aborts the provider call. The job still finishes, with a failure outcome.
func (j *Job) Cancel() { j.cancel() }

// Dispatch starts regenerating the panel at index of s and returns without waiting.
// An empty credential fails with *domain.CredentialError and no request is issued.
// The panel id, prompt and parameters are captured now, so later edits to the script
// do not change what is requested or where the result belongs.
func (c *Coordinator) Dispatch(ctx context.Context, s *domain.Script, index int, credential string) (*Job, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, &domain.CredentialError{}
	}
	if s == nil {
		return nil, domain.ErrNoScript
	}
	if index < 0 || index >= len(s.Panels) {
		return nil, &domain.IndexError{Op: "regenerate", Index: index, Len: len(s.Panels)}
	}
	panel := s.Panels[index]

	jctx, cancel := context.WithCancel(ctx)
	job := &Job{
		PanelID: panel.ID,
		Request: NewRequest(s.Tone, panel, c.chars),
		Started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	c.mu.Lock()
	if prev := c.latest[panel.ID]; prev != nil && c.opts.CancelSuperseded {
		prev.cancel()
	}
	c.latest[panel.ID] = job
	if c.active == 0 {
		c.idle = make(chan struct{})
	}
	c.active++
	c.mu.Unlock()

	c.status.started(panel.ID)
	jctx = applog.WithPanelID(applog.WithScriptID(jctx, s.ID), panel.ID)
	c.log.InfoContext(jctx, "panel generation dispatched", slog.Int("index", index))

	go c.run(jctx, job, credential)
	return job, nil
}

func (c *Coordinator) run(ctx context.Context, job *Job, credential string) {
	var (
		res Result
		err error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("provider panic: %v", r)
			}
		}()
		if c.opts.Limiter != nil {
			if werr := c.opts.Limiter.Wait(ctx); werr != nil {
				err = fmt.Errorf("wait for rate limiter: %w", werr)
				return
			}
		}
		callCtx := ctx
		if c.opts.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
			defer cancel()
		}
		res, err = c.provider.Generate(callCtx, credential, job.Request)
		if err == nil && res.ImageURL == "" {
			err = ErrNoImage
		}
	}()

	c.mu.Lock()
	superseded := c.latest[job.PanelID] != job
	if !superseded {
		delete(c.latest, job.PanelID)
	}
	c.mu.Unlock()

	if err != nil && superseded && c.opts.CancelSuperseded && errors.Is(err, context.Canceled) {
		err = fmt.Errorf("%w: %w", ErrSuperseded, err)
	}

	elapsed := time.Since(job.Started)
	if err != nil {
		job.out = domain.Outcome{PanelID: job.PanelID, Err: &domain.GenerationFailure{PanelID: job.PanelID, Err: err}}
		c.log.WarnContext(ctx, "panel generation failed", slog.Duration("duration", elapsed), slog.Any("err", err))
	} else {
		job.out = domain.Outcome{PanelID: job.PanelID, ImageURL: res.ImageURL}
		c.log.InfoContext(ctx, "panel generation completed", slog.Duration("duration", elapsed))
	}
	c.status.finished(job.PanelID, res.ImageURL, err)
	job.cancel()
	close(job.done)

	if c.opts.Observe != nil {
		c.opts.Observe(job.out, elapsed)
	}

	c.mu.Lock()
	c.active--
	if c.active == 0 {
		close(c.idle)
	}
	c.mu.Unlock()
}

// RegenerateAll regenerates every panel of s with at most MaxParallel requests waiting
// on the provider at once. One panel failing never stops the others. onOutcome, when set,
// is called as each job finishes, in completion order. Outcomes are returned in panel order.
func (c *Coordinator) RegenerateAll(ctx context.Context, s *domain.Script, credential string, onOutcome func(domain.Outcome)) ([]domain.Outcome, error) {
	if strings.TrimSpace(credential) == "" {
		return nil, &domain.CredentialError{}
	}
	if s == nil {
		return nil, domain.ErrNoScript
	}
	outcomes := make([]domain.Outcome, len(s.Panels))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(c.opts.MaxParallel)
	for i := range s.Panels {
		g.Go(func() error {
			job, err := c.Dispatch(ctx, s, i, credential)
			if err != nil {
				outcomes[i] = domain.Outcome{PanelID: s.Panels[i].ID, Err: err}
				return nil
			}
			out, err := job.Wait(ctx)
			if err != nil {
				job.Cancel()
				<-job.Done()
				out, _ = job.Outcome()
			}
			outcomes[i] = out
			if onOutcome != nil {
				mu.Lock()
				onOutcome(out)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// Status reports the transient generation state of a panel.
func (c *Coordinator) Status(panelID string) Status { return c.status.get(panelID) }

// InFlight counts requests that have not finished yet.
func (c *Coordinator) InFlight() int { return c.status.inFlight() }

// Forget drops the finished status of a panel, e.g. after it was deleted.
func (c *Coordinator) Forget(panelID string) { c.status.forget(panelID) }

// CancelPanel cancels the newest in-flight request for panelID, if any.
func (c *Coordinator) CancelPanel(panelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j := c.latest[panelID]; j != nil {
		j.cancel()
	}
}

// Wait blocks until every dispatched job has finished or ctx ends.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	if c.active == 0 {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
