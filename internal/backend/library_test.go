/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"comicstudio/internal/domain"
	"comicstudio/internal/storage"
)

func openPGForTest(t *testing.T) *PGLibrary {
	t.Helper()
	dsn := os.Getenv("CS_PG_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	lib, err := Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func pgScript() *domain.Script {
	return &domain.Script{
		ID:          domain.NewID(),
		Theme:       "pirates",
		Tone:        "adventure",
		KeyElements: "a stormy sea",
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		Panels: []domain.Panel{
			{ID: domain.NewID(), Scene: "deck", Dialogue: "Ahoy", Characters: []string{"c1"}},
		},
	}
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("migrations/0002_history_index.sql")
	if err != nil || v != 2 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("nodigits.sql"); err == nil {
		t.Fatalf("expected error for name without version prefix")
	}
	if _, err := parseVersion("abc_x.sql"); err == nil {
		t.Fatalf("expected error for non-numeric version")
	}
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	var last int64
	for _, e := range entries {
		v, err := parseVersion(e.Name())
		if err != nil {
			t.Fatalf("bad migration name %s: %v", e.Name(), err)
		}
		if v <= last {
			t.Fatalf("migration %s out of order", e.Name())
		}
		last = v
	}
	if last < 2 {
		t.Fatalf("expected at least two migrations, last=%d", last)
	}
}

func TestPGLibraryRoundTrip(t *testing.T) {
	lib := openPGForTest(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s := pgScript()
	t.Cleanup(func() { _ = lib.Delete(context.Background(), s.ID) })
	if err := lib.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s.Panels[0].GeneratedImage = "https://img/1.png"
	if err := lib.Put(ctx, s); err != nil {
		t.Fatalf("Put again: %v", err)
	}
	got, err := lib.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Panels[0].GeneratedImage != "https://img/1.png" {
		t.Fatalf("Get returned stale script: %+v", got.Panels[0])
	}
	hist, err := lib.History(ctx, s.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].Script.Panels[0].HasImage() {
		t.Fatalf("unexpected history: %+v", hist)
	}
	entries, err := lib.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var found bool
	for _, e := range entries {
		if e.ID == s.ID {
			found = e.Panels == 1 && e.CreatedAt.Equal(s.CreatedAt)
		}
	}
	if !found {
		t.Fatalf("script missing from list")
	}
}

func TestPGLibraryDelete(t *testing.T) {
	lib := openPGForTest(t)
	ctx := context.Background()
	s := pgScript()
	if err := lib.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := lib.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := lib.Get(ctx, s.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := lib.Delete(ctx, s.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

// TestLibraryParity checks that Postgres and SQLite libraries agree on the same sequence.
func TestLibraryParity(t *testing.T) {
	pg := openPGForTest(t)
	lite, err := storage.OpenSQLiteLibrary(t.TempDir() + "/" + storage.LibraryFileName)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer lite.Close()
	ctx := context.Background()

	s := pgScript()
	t.Cleanup(func() { _ = pg.Delete(context.Background(), s.ID) })
	for _, lib := range []storage.Library{pg, lite} {
		if err := lib.Put(ctx, s); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	a, err := pg.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("pg Get: %v", err)
	}
	b, err := lite.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("sqlite Get: %v", err)
	}
	if a.ID != b.ID || a.Theme != b.Theme || len(a.Panels) != len(b.Panels) || a.Panels[0].ID != b.Panels[0].ID {
		t.Fatalf("libraries disagree: %+v vs %+v", a, b)
	}
}
