/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// This file defines the data model for a comic script and its ordered panels.
// Values of these types are treated as immutable once published: every
// transition builds a new Script (see package engine) and never edits one in place.

// DefaultDialogueSize is the font scale used when a panel carries no explicit size.
const DefaultDialogueSize = 16

// MaxDialogueSize bounds explicit dialogue sizes.
const MaxDialogueSize = 200

// Panel is one narrative beat of a script.
// ID is assigned once and is the only identity key; position in Script.Panels
// is never used to identify a panel.
type Panel struct {
	ID         string   `json:"id"`
	Scene      string   `json:"scene"`
	Dialogue   string   `json:"dialogue"`
	Characters []string `json:"characters"`
	// GeneratedImage references the most recent successful generation. Empty means absent.
	GeneratedImage string `json:"generatedImage,omitempty"`
	// DialogueSize is presentation only. Zero means DefaultDialogueSize.
	DialogueSize int `json:"dialogueSize,omitempty"`
}

// HasImage reports whether a generated artifact is attached.
func (p Panel) HasImage() bool { return p.GeneratedImage != "" }

// EffectiveDialogueSize returns DialogueSize or the default when unset.
func (p Panel) EffectiveDialogueSize() int {
	if p.DialogueSize <= 0 {
		return DefaultDialogueSize
	}
	return p.DialogueSize
}

// Clone returns a deep copy of the panel.
func (p Panel) Clone() Panel {
	p.Characters = CloneIDs(p.Characters)
	return p
}

// Script is the ordered panel collection plus its creation metadata.
// Theme, Tone and KeyElements are fixed once the script exists.
type Script struct {
	ID          string    `json:"id"`
	Theme       string    `json:"theme"`
	Tone        string    `json:"tone"`
	KeyElements string    `json:"keyElements"`
	CreatedAt   time.Time `json:"createdAt"`
	Panels      []Panel   `json:"panels"`
}

// Clone returns a deep copy. A nil script clones to nil.
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	out := *s
	out.Panels = make([]Panel, len(s.Panels))
	for i, p := range s.Panels {
		out.Panels[i] = p.Clone()
	}
	return &out
}

// Len returns the number of panels; nil-safe.
func (s *Script) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Panels)
}

// IndexOf returns the current position of the panel with id, or -1.
func (s *Script) IndexOf(id string) int {
	if s == nil {
		return -1
	}
	for i := range s.Panels {
		if s.Panels[i].ID == id {
			return i
		}
	}
	return -1
}

// PanelByID looks a panel up by identity.
func (s *Script) PanelByID(id string) (Panel, bool) {
	i := s.IndexOf(id)
	if i < 0 {
		return Panel{}, false
	}
	return s.Panels[i], true
}

// PanelIDs lists panel ids in display order.
func (s *Script) PanelIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.Panels))
	for i, p := range s.Panels {
		ids[i] = p.ID
	}
	return ids
}

// NewID allocates a fresh opaque identifier for scripts and panels.
func NewID() string { return uuid.NewString() }

// CloneIDs copies a character id set, dropping duplicates and keeping first occurrence order.
// A nil or empty input yields an empty, non-nil slice so JSON encodes as [].
func CloneIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Outcome is the result of one image generation request for a panel.
// Err == nil with a non-empty ImageURL is a success; anything else is a failure.
type Outcome struct {
	PanelID  string
	ImageURL string
	Err      error
}

// Succeeded reports whether the outcome carries a usable image reference.
func (o Outcome) Succeeded() bool { return o.Err == nil && o.ImageURL != "" }
