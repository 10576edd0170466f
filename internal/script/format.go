/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"strconv"
	"strings"

	"comicstudio/internal/domain"
)

// Format writes the panels of s in the text format read by Parse.
// Parse(Format(s)) yields the same dialogue, characters and size per panel, and the
// same scene up to whitespace. Blank dialogue lines are dropped.
func Format(s *domain.Script) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("; ")
	b.WriteString(s.Theme)
	b.WriteString(" / ")
	b.WriteString(s.Tone)
	b.WriteString(" / ")
	b.WriteString(s.KeyElements)
	b.WriteByte('\n')
	for i, p := range s.Panels {
		b.WriteString("\n# Panel ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		if p.Scene != "" {
			b.WriteString("Scene: ")
			b.WriteString(oneLine(p.Scene))
			b.WriteByte('\n')
		}
		if len(p.Characters) > 0 {
			for j, id := range p.Characters {
				if j > 0 {
					b.WriteByte(' ')
				}
				b.WriteByte('@')
				b.WriteString(id)
			}
			b.WriteByte('\n')
		}
		if p.Dialogue != "" {
			writeDialogue(&b, p.Dialogue)
		}
		if p.DialogueSize > 0 {
			b.WriteString("Size: ")
			b.WriteString(strconv.Itoa(p.DialogueSize))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// writeDialogue keeps the first line of every speaker turn flush and indents the rest.
// Lines that would not parse as "NAME: text" are prefixed with "Dialogue:".
func writeDialogue(b *strings.Builder, d string) {
	lines := strings.Split(d, "\n")
	first := true
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		switch {
		case first && !isSpeakerLine(l):
			b.WriteString("Dialogue: ")
			b.WriteString(l)
		case first:
			b.WriteString(l)
		default:
			b.WriteString("  ")
			b.WriteString(l)
		}
		b.WriteByte('\n')
		first = false
	}
}

func isSpeakerLine(l string) bool {
	m := reKeyed.FindStringSubmatch(l)
	if m == nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(m[1])) {
	case "scene", "size", "dialogue":
		return false
	}
	return true
}

func oneLine(s string) string { return strings.Join(strings.Fields(s), " ") }
