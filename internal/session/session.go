/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session holds the one current Script and is its only writer.
// Every edit runs engine transitions under a single lock in arrival order, and
// generation outcomes come back through the same lock in completion order.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"comicstudio/internal/domain"
	"comicstudio/internal/draft"
	"comicstudio/internal/engine"
	"comicstudio/internal/imaging"
	applog "comicstudio/internal/log"
	"comicstudio/internal/undo"
)

// ErrNoGenerator is returned by regeneration on a session built without a Generator.
var ErrNoGenerator = errors.New("no image generator configured")

// Generator is the part of the image coordinator a session needs.
type Generator interface {
	Dispatch(ctx context.Context, s *domain.Script, index int, credential string) (*imaging.Job, error)
	RegenerateAll(ctx context.Context, s *domain.Script, credential string, onOutcome func(domain.Outcome)) ([]domain.Outcome, error)
	Forget(panelID string)
}

// DraftInput carries the drafting form values.
type DraftInput struct {
	Theme       string
	Tone        string
	KeyElements string
	Characters  []string
}

// Options tunes a Session. The zero value is usable.
type Options struct {
	// History configures undo depth; zero means undo.DefaultConfig without coalescing.
	History undo.Config
	// NotificationBuffer sizes the notification channel. Zero means 32.
	NotificationBuffer int
	// OnChange is called under the session lock after every state change.
	// It must not call back into the session.
	OnChange func(*domain.Script)
	// Event reports named events for telemetry.
	Event func(name string, props map[string]any)
}

// Session is the state cell owning the current Script.
type Session struct {
	gen     Generator
	opts    Options
	history *undo.Manager
	log     *slog.Logger

	mu        sync.Mutex
	script    *domain.Script
	selection []string
	notes     chan Notification
	closed    bool

	pmu     sync.Mutex
	pending int
	idle    chan struct{}
}

// New returns an empty session; gen may be nil when no generation is needed.
func New(gen Generator, opts Options) *Session {
	if opts.NotificationBuffer <= 0 {
		opts.NotificationBuffer = 32
	}
	hc := opts.History
	if hc == (undo.Config{}) {
		hc = undo.DefaultConfig()
		hc.MinInterval = 0
	}
	return &Session{
		gen:     gen,
		opts:    opts,
		history: undo.NewManager(hc),
		log:     applog.WithComponent("session"),
		notes:   make(chan Notification, opts.NotificationBuffer),
	}
}

// Draft replaces the current script with a freshly drafted one.
// On validation failure the current script is kept.
func (s *Session) Draft(in DraftInput) (*domain.Script, error) {
	next, err := draft.Generate(in.Theme, in.Tone, in.KeyElements, in.Characters)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script != nil {
		s.history.Clear(s.script.ID)
	}
	s.selection = domain.CloneIDs(in.Characters)
	s.swapLocked(next)
	s.notifyLocked(Notification{Kind: ScriptDrafted, Message: "Comic script generated successfully"})
	s.event("draft_created", map[string]any{"panels": next.Len(), "characters": len(s.selection)})
	return next.Clone(), nil
}

// Load adopts an existing script, e.g. one read from disk.
// selection becomes the character set for AddPanel.
func (s *Session) Load(script *domain.Script, selection []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script != nil {
		s.history.Clear(s.script.ID)
	}
	s.script = script.Clone()
	s.selection = domain.CloneIDs(selection)
}

// Script returns a copy of the current script, or nil.
func (s *Session) Script() *domain.Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script.Clone()
}

// Selection returns the character ids new panels start with.
func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneIDs(s.selection)
}

// SetSelection changes the character ids new panels start with.
func (s *Session) SetSelection(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = domain.CloneIDs(ids)
}

// AddPanel appends an empty panel carrying the current selection.
func (s *Session) AddPanel() (*domain.Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script == nil {
		return nil, domain.ErrNoScript
	}
	next := engine.AddPanel(s.script, s.selection)
	s.commitLocked(next)
	s.notifyLocked(Notification{Kind: PanelAdded, PanelID: next.Panels[len(next.Panels)-1].ID, Message: "New panel added"})
	return next.Clone(), nil
}

// UpdatePanel applies patch to the panel at index.
func (s *Session) UpdatePanel(index int, patch engine.PanelPatch) (*domain.Script, error) {
	return s.edit(func(cur *domain.Script) (*domain.Script, error) {
		return engine.UpdatePanel(cur, index, patch)
	}, nil)
}

// DeletePanel removes the panel at index. A generation still running for it is
// left alone; its outcome is discarded on arrival.
func (s *Session) DeletePanel(index int) (*domain.Script, error) {
	var removed string
	next, err := s.edit(func(cur *domain.Script) (*domain.Script, error) {
		if index >= 0 && index < cur.Len() {
			removed = cur.Panels[index].ID
		}
		return engine.DeletePanel(cur, index)
	}, func(next *domain.Script) Notification {
		return Notification{Kind: PanelDeleted, PanelID: removed, Message: "Panel deleted"}
	})
	if err == nil && s.gen != nil {
		s.gen.Forget(removed)
	}
	return next, err
}

// Reorder installs a new panel order given as a permutation of the current panels.
func (s *Session) Reorder(order []domain.Panel) (*domain.Script, error) {
	return s.edit(func(cur *domain.Script) (*domain.Script, error) {
		return engine.Reorder(cur, order)
	}, reordered)
}

// ReorderByID installs a new panel order given as panel ids.
func (s *Session) ReorderByID(ids []string) (*domain.Script, error) {
	return s.edit(func(cur *domain.Script) (*domain.Script, error) {
		return engine.ReorderByID(cur, ids)
	}, reordered)
}

// MovePanel moves the panel at from so it ends up at to.
func (s *Session) MovePanel(from, to int) (*domain.Script, error) {
	return s.edit(func(cur *domain.Script) (*domain.Script, error) {
		return engine.MovePanel(cur, from, to)
	}, reordered)
}

func reordered(*domain.Script) Notification {
	return Notification{Kind: PanelsReordered, Message: "Panels reordered"}
}

// edit runs one engine transition against the current script and commits it.
func (s *Session) edit(fn func(*domain.Script) (*domain.Script, error), note func(*domain.Script) Notification) (*domain.Script, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script == nil {
		return nil, domain.ErrNoScript
	}
	next, err := fn(s.script)
	if err != nil {
		return nil, err
	}
	s.commitLocked(next)
	if note != nil {
		s.notifyLocked(note(next))
	}
	return next.Clone(), nil
}

// Regenerate starts image generation for the panel at index and returns at once.
// The outcome is applied to whichever script is current when it arrives.
func (s *Session) Regenerate(ctx context.Context, index int, credential string) (*imaging.Job, error) {
	if s.gen == nil {
		return nil, ErrNoGenerator
	}
	s.mu.Lock()
	cur := s.script
	if cur == nil {
		s.mu.Unlock()
		return nil, domain.ErrNoScript
	}
	job, err := s.gen.Dispatch(ctx, cur, index, credential)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.begin()
	go func() {
		defer s.end()
		<-job.Done()
		out, _ := job.Outcome()
		s.Reconcile(out)
	}()
	return job, nil
}

// RegenerateAll regenerates every panel of the current script and blocks until all
// requests finished. Each outcome is applied as it arrives.
func (s *Session) RegenerateAll(ctx context.Context, credential string) ([]domain.Outcome, error) {
	if s.gen == nil {
		return nil, ErrNoGenerator
	}
	s.mu.Lock()
	cur := s.script
	s.mu.Unlock()
	if cur == nil {
		return nil, domain.ErrNoScript
	}
	s.begin()
	defer s.end()
	return s.gen.RegenerateAll(ctx, cur, credential, s.Reconcile)
}

// Reconcile applies one generation outcome. Outcomes for panels that no longer
// exist, and requests cancelled by a newer one for the same panel, are dropped without notice.
func (s *Session) Reconcile(out domain.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script.IndexOf(out.PanelID) < 0 {
		s.log.Debug("outcome for missing panel discarded", slog.String("panel_id", out.PanelID))
		return
	}
	if !out.Succeeded() {
		if errors.Is(out.Err, imaging.ErrSuperseded) {
			s.log.Debug("superseded outcome discarded", slog.String("panel_id", out.PanelID))
			return
		}
		s.notifyLocked(Notification{Kind: PanelGenerationFailed, PanelID: out.PanelID, Message: "Failed to generate image", Err: out.Err})
		s.event("panel_generation_failed", map[string]any{"code": string(domain.CodeOf(out.Err))})
		return
	}
	next := engine.ApplyGenerationResult(s.script, out)
	if next != s.script {
		s.swapLocked(next)
	}
	s.notifyLocked(Notification{Kind: PanelGenerated, PanelID: out.PanelID, Message: "Image generated successfully"})
	s.event("panel_generated", nil)
}

// Undo restores the script as it was before the last edit.
func (s *Session) Undo() (*domain.Script, bool) {
	return s.restore(s.history.Undo)
}

// Redo reapplies the last undone edit.
func (s *Session) Redo() (*domain.Script, bool) {
	return s.restore(s.history.Redo)
}

// CanUndo reports whether Undo would change the script.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script != nil && s.history.CanUndo(s.script.ID)
}

// CanRedo reports whether Redo would change the script.
func (s *Session) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.script != nil && s.history.CanRedo(s.script.ID)
}

func (s *Session) restore(step func(string, undo.Snapshot) (undo.Snapshot, bool)) (*domain.Script, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.script == nil {
		return nil, false
	}
	cur, err := s.snapshotLocked()
	if err != nil {
		s.log.Error("encode undo snapshot", slog.Any("err", err))
		return nil, false
	}
	snap, ok := step(s.script.ID, cur)
	if !ok {
		return nil, false
	}
	prev, err := domain.DecodeSnapshot(snap.Blob)
	if err != nil {
		s.log.Error("decode undo snapshot", slog.Any("err", err))
		return nil, false
	}
	// images are not history: keep the newest one of every panel that still exists
	for i := range prev.Panels {
		if p, ok := s.script.PanelByID(prev.Panels[i].ID); ok {
			prev.Panels[i].GeneratedImage = p.GeneratedImage
		}
	}
	s.swapLocked(prev)
	return prev.Clone(), true
}

// commitLocked records the current script in history and installs next.
func (s *Session) commitLocked(next *domain.Script) {
	if next == s.script {
		return
	}
	if snap, err := s.snapshotLocked(); err == nil {
		s.history.Push(snap)
	} else {
		s.log.Error("encode undo snapshot", slog.Any("err", err))
	}
	s.swapLocked(next)
}

func (s *Session) snapshotLocked() (undo.Snapshot, error) {
	b, err := domain.EncodeSnapshot(s.script)
	if err != nil {
		return undo.Snapshot{}, err
	}
	return undo.Snapshot{Key: s.script.ID, Blob: b, TS: time.Now()}, nil
}

func (s *Session) swapLocked(next *domain.Script) {
	s.script = next
	if s.opts.OnChange != nil {
		s.opts.OnChange(next.Clone())
	}
}

func (s *Session) event(name string, props map[string]any) {
	if s.opts.Event != nil {
		s.opts.Event(name, props)
	}
}

func (s *Session) begin() {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	if s.pending == 0 {
		s.idle = make(chan struct{})
	}
	s.pending++
}

func (s *Session) end() {
	s.pmu.Lock()
	defer s.pmu.Unlock()
	s.pending--
	if s.pending == 0 {
		close(s.idle)
	}
}

// Wait blocks until every started regeneration has been reconciled or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	s.pmu.Lock()
	if s.pending == 0 {
		s.pmu.Unlock()
		return nil
	}
	idle := s.idle
	s.pmu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
