/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"testing"
	"time"

	"comicstudio/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePanels(t *testing.T) {
	input := `; pirates / adventure
# Panel 1
Scene: Opening scene in a stormy sea
@c1 @c2
Character: "Our story begins..."
  and goes on.

PANEL 2
The deck at night.
Scene: Rain everywhere.
ANNE: Hold on!
BOB: I am!
Size: 22
`
	panels, errs := Parse(input)
	require.Empty(t, errs)
	require.Len(t, panels, 2)

	p0 := panels[0]
	assert.Equal(t, "Opening scene in a stormy sea", p0.Scene)
	assert.Equal(t, []string{"c1", "c2"}, p0.Characters)
	assert.Equal(t, "Character: \"Our story begins...\"\nand goes on.", p0.Dialogue)
	assert.Equal(t, 2, p0.LineNo)

	p1 := panels[1]
	assert.Equal(t, "The deck at night. Rain everywhere.", p1.Scene)
	assert.Equal(t, "ANNE: Hold on!\nBOB: I am!", p1.Dialogue)
	assert.Equal(t, 22, p1.DialogueSize)
	assert.Equal(t, []string{}, p1.Characters)
}

func TestParseImplicitFirstPanel(t *testing.T) {
	panels, errs := Parse("A cold open.\nCAPTION: Meanwhile...")
	require.Empty(t, errs)
	require.Len(t, panels, 1)
	assert.Equal(t, "A cold open.", panels[0].Scene)
	assert.Equal(t, "CAPTION: Meanwhile...", panels[0].Dialogue)
}

func TestParseReportsProblems(t *testing.T) {
	input := `# One
  dangling continuation
Scene: fine
Size: huge
# Two
; only a note
`
	panels, errs := Parse(input)
	require.Len(t, panels, 1)
	assert.Equal(t, "fine", panels[0].Scene)
	assert.Zero(t, panels[0].DialogueSize)

	require.Len(t, errs, 3)
	assert.Equal(t, 2, errs[0].Line)
	assert.Equal(t, "continuation without dialogue", errs[0].Message)
	assert.Equal(t, 4, errs[1].Line)
	assert.Equal(t, 5, errs[2].Line)
	assert.Equal(t, "empty panel", errs[2].Message)
	assert.Contains(t, errs[2].Error(), "line 5")
}

func TestFormatParsesBack(t *testing.T) {
	s := &domain.Script{
		ID: "s1", Theme: "pirates", Tone: "adventure", KeyElements: "a stormy sea", CreatedAt: time.Now(),
		Panels: []domain.Panel{
			{ID: "a", Scene: "Opening scene in a stormy sea", Dialogue: `Character: "Our story begins..."`, Characters: []string{"c1"}},
			{ID: "b", Scene: "Scene: tricky", Dialogue: "no speaker here\nANNE: second", Characters: []string{}, DialogueSize: 18},
			{ID: "c", Dialogue: "Size: also tricky", Characters: []string{"c1", "c2"}},
		},
	}
	text := Format(s)
	panels, errs := Parse(text)
	require.Empty(t, errs, text)
	require.Len(t, panels, 3)
	for i, p := range s.Panels {
		assert.Equal(t, p.Scene, panels[i].Scene, "scene %d", i)
		assert.Equal(t, p.Dialogue, panels[i].Dialogue, "dialogue %d", i)
		assert.Equal(t, p.Characters, panels[i].Characters, "characters %d", i)
		assert.Equal(t, p.DialogueSize, panels[i].DialogueSize, "size %d", i)
	}
	assert.Empty(t, Format(nil))
}
