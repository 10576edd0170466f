/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"fmt"
	"io"
	"strings"

	"comicstudio/internal/characters"
	"comicstudio/internal/domain"
)

// printScript writes a human readable listing. Character ids are shown with
// their names when the collection knows them.
func printScript(w io.Writer, s *domain.Script, coll *characters.Collection) {
	if s == nil {
		fmt.Fprintln(w, "(no script)")
		return
	}
	fmt.Fprintf(w, "Script %s\n", s.ID)
	fmt.Fprintf(w, "  theme: %s\n  tone: %s\n  key elements: %s\n", s.Theme, s.Tone, s.KeyElements)
	fmt.Fprintf(w, "Panels (%d)\n", s.Len())
	for i, p := range s.Panels {
		fmt.Fprintf(w, "[%d] %s\n", i, p.ID)
		fmt.Fprintf(w, "    scene: %s\n", p.Scene)
		fmt.Fprintf(w, "    dialogue: %s (size %d)\n", p.Dialogue, p.EffectiveDialogueSize())
		fmt.Fprintf(w, "    characters: %s\n", characterNames(p.Characters, coll))
		img := "-"
		if p.HasImage() {
			img = p.GeneratedImage
		}
		fmt.Fprintf(w, "    image: %s\n", img)
	}
}

func characterNames(ids []string, coll *characters.Collection) string {
	if len(ids) == 0 {
		return "-"
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id
		if c, ok := coll.Lookup(id); ok && c.Name != "" {
			out[i] = fmt.Sprintf("%s (%s)", c.Name, id)
		}
	}
	return strings.Join(out, ", ")
}
