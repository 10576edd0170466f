/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"comicstudio/internal/domain"
)

var (
	reHeading = regexp.MustCompile(`^#+\s*(.*)$`)
	rePanel   = regexp.MustCompile(`^(?i)panel\s*\d*\s*$`)
	reKeyed   = regexp.MustCompile(`^([A-Za-z0-9_\- ]{1,64})\s*:\s*(.*)$`)
	reTag     = regexp.MustCompile(`^@([A-Za-z0-9_\-]+)$`)
)

// MaxDialogueSize bounds "Size:" values.
const MaxDialogueSize = domain.MaxDialogueSize

// Parse reads panels from text.
// Supported syntax:
//   - "# ..." headings and "PANEL n" lines start a new panel.
//   - "Scene: text" sets the scene; several scene lines are joined with a space.
//     Freeform lines are scene text too.
//   - A line made only of "@id" tags lists the panel characters.
//   - "NAME: text" is a dialogue line kept verbatim; "Dialogue: text" adds text without
//     a speaker. Lines indented by 2+ spaces continue the dialogue.
//   - "Size: n" sets the dialogue size.
//   - Lines starting with ';' are notes and ignored.
//
// Content before the first heading belongs to an implicit first panel.
// Panels without any content are dropped and reported.
func Parse(input string) ([]Panel, []Error) {
	var (
		out     []Panel
		errs    []Error
		cur     *Panel
		scene   []string
		dlg     []string
		lastDlg bool
		lineNo  int
	)
	flush := func() {
		if cur == nil {
			return
		}
		cur.Scene = strings.Join(scene, " ")
		cur.Dialogue = strings.Join(dlg, "\n")
		if cur.Characters == nil {
			cur.Characters = []string{}
		}
		if cur.Scene == "" && cur.Dialogue == "" && len(cur.Characters) == 0 && cur.DialogueSize == 0 {
			errs = append(errs, Error{Line: cur.LineNo, Column: 1, Message: "empty panel"})
		} else {
			out = append(out, *cur)
		}
		cur, scene, dlg, lastDlg = nil, nil, nil, false
	}
	start := func(line int) {
		flush()
		cur = &Panel{LineNo: line}
	}

	sc := bufio.NewScanner(strings.NewReader(input))
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r\n")

		if strings.HasPrefix(line, "  ") && strings.TrimSpace(line) != "" {
			if !lastDlg {
				errs = append(errs, Error{Line: lineNo, Column: 1, Message: "continuation without dialogue"})
				continue
			}
			dlg[len(dlg)-1] += "\n" + strings.TrimSpace(line)
			continue
		}

		trim := strings.TrimSpace(line)
		if trim == "" {
			lastDlg = false
			continue
		}
		if strings.HasPrefix(trim, ";") {
			lastDlg = false
			continue
		}
		if reHeading.MatchString(trim) || rePanel.MatchString(trim) {
			start(lineNo)
			continue
		}
		if cur == nil {
			start(lineNo)
		}

		if tags, ok := tagLine(trim); ok {
			cur.Characters = domain.CloneIDs(append(cur.Characters, tags...))
			lastDlg = false
			continue
		}
		if m := reKeyed.FindStringSubmatch(trim); m != nil {
			key := strings.TrimSpace(m[1])
			switch strings.ToLower(key) {
			case "scene":
				if v := strings.TrimSpace(m[2]); v != "" {
					scene = append(scene, v)
				}
				lastDlg = false
			case "dialogue":
				dlg = append(dlg, strings.TrimSpace(m[2]))
				lastDlg = true
			case "size":
				n, err := strconv.Atoi(strings.TrimSpace(m[2]))
				if err != nil || n <= 0 || n > MaxDialogueSize {
					errs = append(errs, Error{Line: lineNo, Column: len(m[1]) + 2, Message: "size must be a number between 1 and " + strconv.Itoa(MaxDialogueSize)})
				} else {
					cur.DialogueSize = n
				}
				lastDlg = false
			default:
				dlg = append(dlg, trim)
				lastDlg = true
			}
			continue
		}
		scene = append(scene, trim)
		lastDlg = false
	}
	flush()

	if err := sc.Err(); err != nil {
		errs = append(errs, Error{Line: lineNo, Column: 1, Message: err.Error()})
	}
	return out, errs
}

func tagLine(s string) ([]string, bool) {
	fields := strings.Fields(s)
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		m := reTag.FindStringSubmatch(f)
		if m == nil {
			return nil, false
		}
		ids = append(ids, m[1])
	}
	return ids, len(ids) > 0
}
