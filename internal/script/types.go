/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script reads and writes the plain-text panel format used by
// "comicstudio panel import" and the text export.
//
//	# Panel 1
//	Scene: Opening scene in a stormy sea
//	@c1 @c2
//	Character: "Our story begins..."
//	  a continuation line
//	Size: 20
//	; author note, ignored
package script

import "strconv"

// Panel is one parsed panel before it gets an identity.
type Panel struct {
	Scene        string
	Dialogue     string
	Characters   []string
	DialogueSize int
	LineNo       int // 1-based line of the panel heading or first content line
}

// Error represents a parse error with position context.
type Error struct {
	Line    int
	Column  int
	Message string
}

func (e Error) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Message
}
