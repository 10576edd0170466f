/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package engine holds the pure state transitions over a script.
//
// Every function takes the current *domain.Script and returns the next one. The input is
// never modified; a returned script shares no mutable state with it. A nil input script
// means "no script held" and every transition on it is a no-op returning nil.
package engine

import (
	"fmt"
	"log/slog"

	"comicstudio/internal/domain"
	applog "comicstudio/internal/log"
)

// PanelPatch carries the panel fields an update replaces. Nil fields are kept.
type PanelPatch struct {
	Scene        *string
	Dialogue     *string
	Characters   *[]string
	DialogueSize *int
}

// WithScene returns a copy of p that replaces the scene text.
func (p PanelPatch) WithScene(v string) PanelPatch {
	p.Scene = &v
	return p
}

// WithDialogue returns a copy of p that replaces the dialogue text.
func (p PanelPatch) WithDialogue(v string) PanelPatch {
	p.Dialogue = &v
	return p
}

// WithDialogueSize returns a copy of p that replaces the dialogue font size.
// UpdatePanel rejects sizes outside [1, domain.MaxDialogueSize].
func (p PanelPatch) WithDialogueSize(v int) PanelPatch {
	p.DialogueSize = &v
	return p
}

// WithCharacters returns a copy of p that replaces the character set.
func (p PanelPatch) WithCharacters(ids []string) PanelPatch {
	c := domain.CloneIDs(ids)
	p.Characters = &c
	return p
}

// Empty reports whether the patch changes nothing.
func (p PanelPatch) Empty() bool {
	return p.Scene == nil && p.Dialogue == nil && p.Characters == nil && p.DialogueSize == nil
}

// AddPanel appends a blank panel with a fresh id referencing initialCharacters.
func AddPanel(s *domain.Script, initialCharacters []string) *domain.Script {
	if s == nil {
		return nil
	}
	next := s.Clone()
	next.Panels = append(next.Panels, domain.Panel{
		ID:         domain.NewID(),
		Characters: domain.CloneIDs(initialCharacters),
	})
	return next
}

// UpdatePanel merges patch into the panel at index. The panel keeps its id and image.
func UpdatePanel(s *domain.Script, index int, patch PanelPatch) (*domain.Script, error) {
	if s == nil {
		return nil, nil
	}
	if err := checkIndex("update panel", s, index); err != nil {
		return s, err
	}
	if patch.DialogueSize != nil {
		if err := ValidateDialogueSize(*patch.DialogueSize); err != nil {
			return s, err
		}
	}
	next := s.Clone()
	p := &next.Panels[index]
	if patch.Scene != nil {
		p.Scene = *patch.Scene
	}
	if patch.Dialogue != nil {
		p.Dialogue = *patch.Dialogue
	}
	if patch.Characters != nil {
		p.Characters = domain.CloneIDs(*patch.Characters)
	}
	if patch.DialogueSize != nil {
		p.DialogueSize = *patch.DialogueSize
	}
	return next, nil
}

// ValidateDialogueSize reports a *domain.FieldError for sizes outside [1, domain.MaxDialogueSize].
func ValidateDialogueSize(size int) error {
	if size >= 1 && size <= domain.MaxDialogueSize {
		return nil
	}
	return &domain.FieldError{
		Field:  "dialogue size",
		Value:  fmt.Sprint(size),
		Reason: fmt.Sprintf("must be between 1 and %d", domain.MaxDialogueSize),
	}
}

// DeletePanel removes exactly the panel at index. Outstanding generation results for it
// become stale and are discarded by ApplyGenerationResult.
func DeletePanel(s *domain.Script, index int) (*domain.Script, error) {
	if s == nil {
		return nil, nil
	}
	if err := checkIndex("delete panel", s, index); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Panels = append(next.Panels[:index], next.Panels[index+1:]...)
	return next, nil
}

// Reorder replaces the panel sequence with newOrder, which must be a permutation of the
// current panels by id. Panel contents are taken from s, so a reorder list built before
// a generation result landed cannot roll that result back.
//
// A list that is not a permutation is a caller bug: it is logged at ERROR and s is
// returned unchanged together with a *domain.PermutationError.
func Reorder(s *domain.Script, newOrder []domain.Panel) (*domain.Script, error) {
	ids := make([]string, len(newOrder))
	for i, p := range newOrder {
		ids[i] = p.ID
	}
	return ReorderByID(s, ids)
}

// ReorderByID is Reorder keyed by panel ids only.
func ReorderByID(s *domain.Script, ids []string) (*domain.Script, error) {
	if s == nil {
		return nil, nil
	}
	if err := checkPermutation(s, ids); err != nil {
		applog.WithOperation(applog.WithComponent("engine"), "reorder").Error("rejected reorder",
			slog.String("script_id", s.ID),
			slog.Int("panels", len(s.Panels)),
			slog.Int("received", len(ids)),
			slog.Any("err", err),
		)
		return s, err
	}
	next := s.Clone()
	byID := make(map[string]domain.Panel, len(next.Panels))
	for _, p := range next.Panels {
		byID[p.ID] = p
	}
	for i, id := range ids {
		next.Panels[i] = byID[id]
	}
	return next, nil
}

// MovePanel takes the panel at from out of the sequence and inserts it at to,
// the way a drag gesture computes its resulting order.
func MovePanel(s *domain.Script, from, to int) (*domain.Script, error) {
	if s == nil {
		return nil, nil
	}
	if err := checkIndex("move panel", s, from); err != nil {
		return s, err
	}
	if err := checkIndex("move panel", s, to); err != nil {
		return s, err
	}
	ids := s.PanelIDs()
	moved := ids[from]
	ids = append(ids[:from], ids[from+1:]...)
	ids = append(ids[:to], append([]string{moved}, ids[to:]...)...)
	return ReorderByID(s, ids)
}

// ApplyGenerationResult records a successful outcome as the panel's image.
// Failures leave the script untouched, and so do outcomes for panels that no longer
// exist. In both no-op cases the same pointer is returned.
func ApplyGenerationResult(s *domain.Script, out domain.Outcome) *domain.Script {
	if s == nil || !out.Succeeded() {
		return s
	}
	i := s.IndexOf(out.PanelID)
	if i < 0 {
		return s
	}
	if s.Panels[i].GeneratedImage == out.ImageURL {
		return s
	}
	next := s.Clone()
	next.Panels[i].GeneratedImage = out.ImageURL
	return next
}

func checkIndex(op string, s *domain.Script, index int) error {
	if index < 0 || index >= len(s.Panels) {
		return &domain.IndexError{Op: op, Index: index, Len: len(s.Panels)}
	}
	return nil
}

func checkPermutation(s *domain.Script, ids []string) error {
	if len(ids) != len(s.Panels) {
		return &domain.PermutationError{Reason: fmt.Sprintf("got %d panels, script has %d", len(ids), len(s.Panels))}
	}
	current := make(map[string]bool, len(s.Panels))
	for _, p := range s.Panels {
		current[p.ID] = false
	}
	for _, id := range ids {
		seen, ok := current[id]
		if !ok {
			return &domain.PermutationError{Reason: fmt.Sprintf("unknown panel id %q", id)}
		}
		if seen {
			return &domain.PermutationError{Reason: fmt.Sprintf("duplicate panel id %q", id)}
		}
		current[id] = true
	}
	return nil
}
