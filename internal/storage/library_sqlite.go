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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"comicstudio/internal/domain"
	applog "comicstudio/internal/log"
	"comicstudio/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	LibraryFileName = "library.sqlite"

	// schemaVersion tracks the local SQLite schema of the library.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 2

	// DefaultKeepHistory is how many earlier versions Put keeps per script.
	DefaultKeepHistory = 20

	// tsLayout has a fixed width so stored timestamps sort as text.
	tsLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// language=SQL
// dialect=SQLite
const upsertScriptSQL = `INSERT INTO library_scripts(id, theme, tone, panels, blob, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET theme=excluded.theme, tone=excluded.tone, panels=excluded.panels,
	blob=excluded.blob, updated_at=excluded.updated_at`

// language=SQL
// dialect=SQLite
const selectScriptSQL = `SELECT blob FROM library_scripts WHERE id = ?`

// language=SQL
// dialect=SQLite
const listScriptsSQL = `SELECT id, theme, tone, panels, created_at, updated_at FROM library_scripts ORDER BY updated_at DESC, id`

// language=SQL
// dialect=SQLite
const insertScriptSnapshotSQL = `INSERT INTO script_snapshots(script_id, ts, blob) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const listScriptSnapshotsSQL = `SELECT ts, blob FROM script_snapshots WHERE script_id = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldScriptSnapshotsSQL = `DELETE FROM script_snapshots WHERE script_id = ? AND id NOT IN (
	SELECT id FROM script_snapshots WHERE script_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// SQLiteLibrary is the local, file-backed Library.
type SQLiteLibrary struct {
	db          *sql.DB
	path        string
	keepHistory int
	log         *slog.Logger
}

// OpenSQLiteLibrary opens (creating if needed) the library database at path, enables WAL mode,
// ensures the meta/version tables and runs migrations.
func OpenSQLiteLibrary(path string) (*SQLiteLibrary, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "library_open").With(
		slog.String("path", path),
	)
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("library path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		l.Error("create library dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create library dir: %w", err)
	}

	// Convert to forward slashes for the SQLite URI.
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureLibrarySchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure library schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Info("library ready")
	return &SQLiteLibrary{db: db, path: path, keepHistory: DefaultKeepHistory, log: applog.WithComponent("storage")}, nil
}

// SetKeepHistory changes how many earlier versions Put keeps per script. Zero or less keeps all.
func (l *SQLiteLibrary) SetKeepHistory(n int) { l.keepHistory = n }

// Path returns the database file.
func (l *SQLiteLibrary) Path() string { return l.path }

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the existing schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureLibrarySchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS library_scripts (
			id          TEXT PRIMARY KEY,
			theme       TEXT NOT NULL,
			tone        TEXT NOT NULL,
			panels      INTEGER NOT NULL,
			blob        BLOB NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS script_snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			script_id  TEXT NOT NULL,
			ts         TEXT NOT NULL,
			blob       BLOB NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create library schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		// Do not downgrade
		return nil
	}
	if cur == schemaVersion {
		// fresh databases skip the steps but still need what they add
		return ensureHistoryIndex(ctx, db)
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_script_snapshots_script_ts ON script_snapshots(script_id, ts);`,
				`CREATE INDEX IF NOT EXISTS idx_library_scripts_updated ON library_scripts(updated_at);`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
		}
		cur = next
	}
	return nil
}

func ensureHistoryIndex(ctx context.Context, db *sql.DB) error {
	for _, q := range []string{
		`CREATE INDEX IF NOT EXISTS idx_script_snapshots_script_ts ON script_snapshots(script_id, ts);`,
		`CREATE INDEX IF NOT EXISTS idx_library_scripts_updated ON library_scripts(updated_at);`,
	} {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Put stores s, replacing any earlier version with the same id. The replaced version is kept
// in the script's history.
func (l *SQLiteLibrary) Put(ctx context.Context, s *domain.Script) error {
	blob, err := domain.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev []byte
	err = tx.QueryRowContext(ctx, selectScriptSQL, s.ID).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read previous version: %w", err)
	default:
		if _, err := tx.ExecContext(ctx, insertScriptSnapshotSQL, s.ID, now.Format(tsLayout), prev); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
	}
	created := s.CreatedAt
	if created.IsZero() {
		created = now
	}
	if _, err := tx.ExecContext(ctx, upsertScriptSQL, s.ID, s.Theme, s.Tone, s.Len(), blob,
		created.UTC().Format(tsLayout), now.Format(tsLayout)); err != nil {
		return fmt.Errorf("store script: %w", err)
	}
	if l.keepHistory > 0 {
		if _, err := tx.ExecContext(ctx, pruneOldScriptSnapshotsSQL, s.ID, s.ID, l.keepHistory); err != nil {
			return fmt.Errorf("prune history: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	l.log.Debug("script stored", slog.String("script_id", s.ID), slog.Int("panels", s.Len()))
	return nil
}

// Get returns the stored script with id, or ErrNotFound.
func (l *SQLiteLibrary) Get(ctx context.Context, id string) (*domain.Script, error) {
	var blob []byte
	err := l.db.QueryRowContext(ctx, selectScriptSQL, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return domain.DecodeSnapshot(blob)
}

// List returns all stored scripts, most recently updated first.
func (l *SQLiteLibrary) List(ctx context.Context) ([]LibraryEntry, error) {
	rows, err := l.db.QueryContext(ctx, listScriptsSQL)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []LibraryEntry
	for rows.Next() {
		var (
			e                LibraryEntry
			created, updated string
		)
		if err := rows.Scan(&e.ID, &e.Theme, &e.Tone, &e.Panels, &created, &updated); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(tsLayout, created)
		e.UpdatedAt, _ = time.Parse(tsLayout, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes a script and its history.
func (l *SQLiteLibrary) Delete(ctx context.Context, id string) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `DELETE FROM library_scripts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM script_snapshots WHERE script_id = ?`, id); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return tx.Commit()
}

// History returns up to limit earlier versions of a script, newest first.
func (l *SQLiteLibrary) History(ctx context.Context, id string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, listScriptSnapshotsSQL, id, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []HistoryEntry
	for rows.Next() {
		var (
			tsStr string
			blob  []byte
		)
		if err := rows.Scan(&tsStr, &blob); err != nil {
			return nil, err
		}
		s, err := domain.DecodeSnapshot(blob)
		if err != nil {
			l.log.Warn("skip unreadable history entry", slog.String("script_id", id), slog.Any("err", err))
			continue
		}
		ts, _ := time.Parse(tsLayout, tsStr)
		out = append(out, HistoryEntry{TS: ts, Script: s})
	}
	return out, rows.Err()
}

// Close releases the database.
func (l *SQLiteLibrary) Close() error { return l.db.Close() }
