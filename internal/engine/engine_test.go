/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package engine

import (
	"errors"
	"math/rand"
	"testing"

	"comicstudio/internal/domain"
	"comicstudio/internal/draft"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threePanels() *domain.Script {
	return &domain.Script{
		ID:          "s",
		Theme:       "pirates",
		Tone:        "adventure",
		KeyElements: "sea",
		Panels: []domain.Panel{
			{ID: "a", Scene: "sa", Dialogue: "da", Characters: []string{"c1"}},
			{ID: "b", Scene: "sb", Dialogue: "db", Characters: []string{"c1", "c2"}, GeneratedImage: "img://b"},
			{ID: "c", Scene: "sc", Dialogue: "dc", Characters: []string{}},
		},
	}
}

func TestNilScriptIsNoOp(t *testing.T) {
	assert.Nil(t, AddPanel(nil, []string{"c1"}))
	s, err := UpdatePanel(nil, 0, PanelPatch{}.WithScene("x"))
	assert.Nil(t, s)
	assert.NoError(t, err)
	s, err = DeletePanel(nil, 0)
	assert.Nil(t, s)
	assert.NoError(t, err)
	s, err = ReorderByID(nil, []string{"a"})
	assert.Nil(t, s)
	assert.NoError(t, err)
	assert.Nil(t, ApplyGenerationResult(nil, domain.Outcome{PanelID: "a", ImageURL: "img://x"}))
}

func TestAddPanelAppendsBlankPanel(t *testing.T) {
	s := threePanels()
	next := AddPanel(s, []string{"c2", "c2", "c3"})

	require.Len(t, next.Panels, 4)
	require.Len(t, s.Panels, 3, "input must not change")
	p := next.Panels[3]
	assert.NotEmpty(t, p.ID)
	assert.Empty(t, p.Scene)
	assert.Empty(t, p.Dialogue)
	assert.Equal(t, []string{"c2", "c3"}, p.Characters)
	assert.False(t, p.HasImage())
	assert.Equal(t, s.PanelIDs(), next.PanelIDs()[:3])
}

func TestUpdatePanelDialogueOnly(t *testing.T) {
	s := threePanels()
	next, err := UpdatePanel(s, 1, PanelPatch{}.WithDialogue("X"))
	require.NoError(t, err)

	want := s.Clone()
	want.Panels[1].Dialogue = "X"
	assert.Equal(t, want, next)
	assert.Equal(t, "db", s.Panels[1].Dialogue, "input must not change")
}

func TestUpdatePanelAllFields(t *testing.T) {
	s := threePanels()
	patch := PanelPatch{}.WithScene("new scene").WithDialogue("new").WithCharacters([]string{"c9"}).WithDialogueSize(24)
	next, err := UpdatePanel(s, 1, patch)
	require.NoError(t, err)
	p := next.Panels[1]
	assert.Equal(t, "b", p.ID)
	assert.Equal(t, "new scene", p.Scene)
	assert.Equal(t, "new", p.Dialogue)
	assert.Equal(t, []string{"c9"}, p.Characters)
	assert.Equal(t, 24, p.DialogueSize)
	assert.Equal(t, "img://b", p.GeneratedImage, "image survives content edits")
}

func TestUpdatePanelRejectsDialogueSizeOutOfRange(t *testing.T) {
	s := threePanels()
	for _, size := range []int{0, -3, domain.MaxDialogueSize + 1} {
		next, err := UpdatePanel(s, 1, PanelPatch{}.WithDialogueSize(size).WithDialogue("EDITED"))
		var fe *domain.FieldError
		require.True(t, errors.As(err, &fe), "size %d: %v", size, err)
		assert.True(t, domain.IsCode(err, domain.CodeValidation))
		assert.Same(t, s, next, "rejected patch must leave the script unchanged")
	}
	assert.Equal(t, threePanels(), s)

	next, err := UpdatePanel(s, 1, PanelPatch{}.WithDialogueSize(domain.MaxDialogueSize))
	require.NoError(t, err)
	assert.Equal(t, domain.MaxDialogueSize, next.Panels[1].DialogueSize)
}

func TestStructuralOpsRejectBadIndex(t *testing.T) {
	s := threePanels()
	for _, idx := range []int{-1, 3, 99} {
		next, err := UpdatePanel(s, idx, PanelPatch{}.WithScene("x"))
		var ie *domain.IndexError
		require.True(t, errors.As(err, &ie), "update %d: %v", idx, err)
		assert.Equal(t, idx, ie.Index)
		assert.Same(t, s, next)

		next, err = DeletePanel(s, idx)
		require.True(t, errors.As(err, &ie), "delete %d: %v", idx, err)
		assert.Same(t, s, next)
	}
	assert.Equal(t, threePanels(), s)
}

func TestDeletePanelShifts(t *testing.T) {
	s := threePanels()
	next, err := DeletePanel(s, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, next.PanelIDs())
	assert.Len(t, s.Panels, 3)
}

func TestDeleteLastPanelLeavesEmptyScript(t *testing.T) {
	s := &domain.Script{ID: "s", Panels: []domain.Panel{{ID: "only"}}}
	next, err := DeletePanel(s, 0)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Empty(t, next.Panels)
}

func TestReorderMatchesPermutation(t *testing.T) {
	s := threePanels()
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 25; i++ {
		ids := s.PanelIDs()
		rng.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })

		next, err := ReorderByID(s, ids)
		require.NoError(t, err)
		assert.Equal(t, ids, next.PanelIDs())
		assert.ElementsMatch(t, s.PanelIDs(), next.PanelIDs())
		for _, p := range next.Panels {
			orig, _ := s.PanelByID(p.ID)
			assert.Equal(t, orig, p)
		}
	}
}

func TestReorderUsesCurrentPanelContent(t *testing.T) {
	s := threePanels()
	stale := []domain.Panel{s.Panels[2], s.Panels[0], s.Panels[1]}
	stale[2].GeneratedImage = ""
	stale[0].Scene = "edited in the gesture layer"

	next, err := Reorder(s, stale)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, next.PanelIDs())
	assert.Equal(t, "img://b", next.Panels[2].GeneratedImage)
	assert.Equal(t, "sc", next.Panels[0].Scene)
}

func TestReorderRejectsNonPermutation(t *testing.T) {
	s := threePanels()
	cases := map[string][]string{
		"short":     {"a", "b"},
		"long":      {"a", "b", "c", "a"},
		"duplicate": {"a", "a", "b"},
		"foreign":   {"a", "b", "z"},
	}
	for name, ids := range cases {
		t.Run(name, func(t *testing.T) {
			next, err := ReorderByID(s, ids)
			var pe *domain.PermutationError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Same(t, s, next)
		})
	}
}

func TestMovePanel(t *testing.T) {
	s := threePanels()
	next, err := MovePanel(s, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "a"}, next.PanelIDs())

	next, err = MovePanel(s, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, next.PanelIDs())

	next, err = MovePanel(s, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, s.PanelIDs(), next.PanelIDs())

	_, err = MovePanel(s, 0, 3)
	assert.True(t, domain.IsCode(err, domain.CodeIndex))
}

func TestApplyGenerationResult(t *testing.T) {
	s := threePanels()

	next := ApplyGenerationResult(s, domain.Outcome{PanelID: "a", ImageURL: "img://new"})
	assert.Equal(t, "img://new", next.Panels[0].GeneratedImage)
	assert.False(t, s.Panels[0].HasImage(), "input must not change")
	want := s.Clone()
	want.Panels[0].GeneratedImage = "img://new"
	assert.Equal(t, want, next)

	overwritten := ApplyGenerationResult(next, domain.Outcome{PanelID: "a", ImageURL: "img://newer"})
	assert.Equal(t, "img://newer", overwritten.Panels[0].GeneratedImage)

	failed := ApplyGenerationResult(s, domain.Outcome{PanelID: "b", Err: errors.New("provider down")})
	assert.Same(t, s, failed)
	assert.Equal(t, "img://b", failed.Panels[1].GeneratedImage)
}

func TestApplyAfterDeleteIsNoOp(t *testing.T) {
	s := threePanels()
	deleted, err := DeletePanel(s, 0)
	require.NoError(t, err)
	snapshot := deleted.Clone()

	after := ApplyGenerationResult(deleted, domain.Outcome{PanelID: "a", ImageURL: "img://late"})
	assert.Same(t, deleted, after)
	assert.Equal(t, snapshot, after)
}

func TestApplyFollowsPanelAcrossReorder(t *testing.T) {
	s := threePanels()
	moved, err := ReorderByID(s, []string{"c", "b", "a"})
	require.NoError(t, err)
	next := ApplyGenerationResult(moved, domain.Outcome{PanelID: "a", ImageURL: "img://a"})
	assert.Equal(t, "img://a", next.Panels[2].GeneratedImage)
	assert.False(t, next.Panels[0].HasImage())
}

func TestAddThenDeleteFirst(t *testing.T) {
	s, err := draft.Generate("pirates", "adventure", "a stormy sea", []string{"c1"})
	require.NoError(t, err)
	second := s.Panels[1].ID

	added := AddPanel(s, []string{"c1"})
	newID := added.Panels[2].ID
	next, err := DeletePanel(added, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{second, newID}, next.PanelIDs())
}
