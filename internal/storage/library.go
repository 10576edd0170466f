/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"time"

	"comicstudio/internal/domain"
)

// ErrNotFound is returned when a library holds no script with the requested id.
var ErrNotFound = errors.New("script not found")

// LibraryEntry summarizes a stored script.
type LibraryEntry struct {
	ID        string
	Theme     string
	Tone      string
	Panels    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HistoryEntry is an earlier stored version of a script.
type HistoryEntry struct {
	TS     time.Time
	Script *domain.Script
}

// Library stores whole scripts by id. Implementations keep the snapshot opaque:
// they persist domain.EncodeSnapshot output and return what DecodeSnapshot restores.
type Library interface {
	Put(ctx context.Context, s *domain.Script) error
	Get(ctx context.Context, id string) (*domain.Script, error)
	List(ctx context.Context) ([]LibraryEntry, error)
	Delete(ctx context.Context, id string) error
	// History returns earlier versions, newest first. limit <= 0 means 50.
	History(ctx context.Context, id string, limit int) ([]HistoryEntry, error)
	Close() error
}

// EntryFor builds the listing row of a script.
func EntryFor(s *domain.Script, updated time.Time) LibraryEntry {
	return LibraryEntry{
		ID:        s.ID,
		Theme:     s.Theme,
		Tone:      s.Tone,
		Panels:    s.Len(),
		CreatedAt: s.CreatedAt,
		UpdatedAt: updated,
	}
}
