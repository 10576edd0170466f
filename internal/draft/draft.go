/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package draft synthesizes the initial script from the creation form inputs.
// Drafting is purely templated: it never calls the image provider and never blocks.
package draft

import (
	"fmt"
	"strings"
	"time"

	"comicstudio/internal/domain"
)

// Required field names reported in domain.ValidationError.
const (
	FieldTheme       = "theme"
	FieldKeyElements = "keyElements"
	FieldCharacters  = "characters"
)

type seed struct {
	scene    string // fmt verb receives keyElements
	dialogue string
}

var templates = []seed{
	{scene: "Opening scene in %s", dialogue: `Character: "Our story begins..."`},
	{scene: "Action sequence in %s", dialogue: `Character: "We must hurry!"`},
}

// TemplatePanelCount is the number of panels every fresh draft starts with.
var TemplatePanelCount = len(templates)

// now is replaced in tests.
var now = time.Now

// Generate validates the inputs and builds a new script with seeded panels.
// Theme, tone and keyElements are stored verbatim. Every panel references the full
// character selection and has no generated image.
func Generate(theme, tone, keyElements string, selected []string) (*domain.Script, error) {
	if err := Validate(theme, keyElements, selected); err != nil {
		return nil, err
	}
	chars := domain.CloneIDs(selected)
	s := &domain.Script{
		ID:          domain.NewID(),
		Theme:       theme,
		Tone:        tone,
		KeyElements: keyElements,
		CreatedAt:   now().UTC(),
		Panels:      make([]domain.Panel, 0, len(templates)),
	}
	for _, t := range templates {
		s.Panels = append(s.Panels, domain.Panel{
			ID:         domain.NewID(),
			Scene:      fmt.Sprintf(t.scene, keyElements),
			Dialogue:   t.dialogue,
			Characters: domain.CloneIDs(chars),
		})
	}
	return s, nil
}

// Validate reports every missing required input at once.
// Whitespace-only text counts as missing.
func Validate(theme, keyElements string, selected []string) error {
	var missing []string
	if strings.TrimSpace(theme) == "" {
		missing = append(missing, FieldTheme)
	}
	if strings.TrimSpace(keyElements) == "" {
		missing = append(missing, FieldKeyElements)
	}
	if len(selected) == 0 {
		missing = append(missing, FieldCharacters)
	}
	if len(missing) > 0 {
		return &domain.ValidationError{Fields: missing}
	}
	return nil
}
