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

	applog "scriptdialogue/internal/log"
	"scriptdialogue/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	StoreFileName = "dialogues.sqlite"

	// schemaVersion tracks the local SQLite schema.
	// Bump this when you perform breaking schema changes and add migrations.
	schemaVersion = 3
)

// StorePath returns the full path to the store inside an output directory.
func StorePath(outDir string) string {
	return filepath.Join(outDir, StoreFileName)
}

// InitOrOpenStore ensures that <outDir>/dialogues.sqlite exists, opens it, enables WAL
// mode and brings the schema up to date. Callers close the returned *sql.DB.
func InitOrOpenStore(outDir string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "store_init").With(
		slog.String("dir", outDir),
	)
	if strings.TrimSpace(outDir) == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		l.Error("create output dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	path := StorePath(outDir)
	// Forward slashes for the SQLite URI.
	uriPath := filepath.ToSlash(path)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", uriPath)
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
	if err := ensureStoreSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure store schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}

	l.Debug("store ready", slog.String("path", path))
	return db, nil
}

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
		// Fresh databases start at 1 and migrate forward.
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// SchemaVersion reads the schema number recorded in the store.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return cur, nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	cur, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if cur > schemaVersion {
		// Never downgrade.
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			// Lookup indexes for the filters used by Search and CharacterCounts.
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_dialogues_film_character ON dialogues(film, character);`,
				`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if next == 3 {
			if err := rewriteRunTimestamps(ctx, tx); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		if next == 2 {
			// best-effort optimize; ignore errors
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_dialogues(fts_dialogues) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

// rewriteRunTimestamps converts run timestamps written with variable-width
// fractions into storeTimeFormat so that text order matches time order.
func rewriteRunTimestamps(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `SELECT id, started_at, finished_at FROM runs`)
	if err != nil {
		return fmt.Errorf("read run timestamps: %w", err)
	}
	type stamp struct{ id, started, finished string }
	var all []stamp
	for rows.Next() {
		var s stamp
		if err := rows.Scan(&s.id, &s.started, &s.finished); err != nil {
			_ = rows.Close()
			return err
		}
		all = append(all, s)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()
	for _, s := range all {
		if _, err := tx.ExecContext(ctx, `UPDATE runs SET started_at=?, finished_at=? WHERE id=?`,
			reformatStamp(s.started), reformatStamp(s.finished), s.id); err != nil {
			return fmt.Errorf("rewrite run %s: %w", s.id, err)
		}
	}
	return nil
}

// reformatStamp leaves values it cannot parse untouched.
func reformatStamp(v string) string {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return v
	}
	return formatStoreTime(t)
}

// ensureStoreSchema creates the run tables and the FTS structures if they do not exist.
func ensureStoreSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			app         TEXT,
			films_json  TEXT NOT NULL,
			diags_json  TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS dialogues (
			id        INTEGER PRIMARY KEY,
			run_id    TEXT    NOT NULL,
			seq       INTEGER NOT NULL,
			film      TEXT    NOT NULL,
			character TEXT    NOT NULL,
			dialogue  TEXT    NOT NULL,
			cleaned   TEXT    NOT NULL,
			FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_dialogues_run_seq ON dialogues(run_id, seq);`,

		// External-content FTS5 index over cleaned dialogue, fed via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_dialogues USING fts5(
			cleaned,
			content='dialogues',
			content_rowid='id',
			tokenize = 'unicode61'
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure store schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS dialogues_ai AFTER INSERT ON dialogues BEGIN
			INSERT INTO fts_dialogues(rowid, cleaned) VALUES (new.id, new.cleaned);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS dialogues_ad AFTER DELETE ON dialogues BEGIN
			INSERT INTO fts_dialogues(fts_dialogues, rowid, cleaned) VALUES ('delete', old.id, old.cleaned);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS dialogues_au AFTER UPDATE OF cleaned ON dialogues BEGIN
			INSERT INTO fts_dialogues(fts_dialogues, rowid, cleaned) VALUES ('delete', old.id, old.cleaned);
			INSERT INTO fts_dialogues(rowid, cleaned) VALUES (new.id, new.cleaned);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// CheckAndRepairStore runs an integrity check on the store. A store that cannot be
// opened or fails the check is backed up to <outDir>/backups and recreated empty.
// It returns true when the store was recreated.
func CheckAndRepairStore(ctx context.Context, outDir string) (bool, error) {
	path := StorePath(outDir)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	l := applog.WithOperation(applog.WithComponent("storage"), "store_check")
	db, err := InitOrOpenStore(outDir)
	needs := err != nil
	if err == nil {
		var chk string
		if qerr := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); qerr != nil || !strings.Contains(strings.ToLower(chk), "ok") {
			needs = true
		} else if _, perr := db.ExecContext(ctx, `SELECT 1 FROM dialogues LIMIT 1;`); perr != nil {
			needs = true
		}
		_ = db.Close()
	}
	if !needs {
		return false, nil
	}
	l.Warn("store damaged; recreating", slog.String("path", path), slog.Any("open_err", err))
	backupStoreFile(path)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(path + suffix)
	}
	db, err = InitOrOpenStore(outDir)
	if err != nil {
		return false, fmt.Errorf("recreate store: %w", err)
	}
	return true, db.Close()
}

// backupStoreFile copies the current store file into a timestamped backup in <outDir>/backups.
func backupStoreFile(storePath string) {
	bdir := filepath.Join(filepath.Dir(storePath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(storePath), stamp))
	if data, err := os.ReadFile(storePath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}
