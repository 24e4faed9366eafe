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
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scriptdialogue/internal/dataset"
	"scriptdialogue/internal/screenplay"
	"scriptdialogue/internal/version"
)

// ErrRunNotFound is returned when a run id is unknown to the store.
var ErrRunNotFound = errors.New("run not found")

// storeTimeFormat is fixed width so that run timestamps sort as text.
const storeTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatStoreTime(t time.Time) string { return t.UTC().Format(storeTimeFormat) }

// language=SQL
// dialect=SQLite
const insertRunSQL = `INSERT INTO runs(id, started_at, finished_at, app, films_json, diags_json) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const insertDialogueSQL = `INSERT INTO dialogues(run_id, seq, film, character, dialogue, cleaned) VALUES (?, ?, ?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listRunsSQL = `SELECT r.id, r.started_at, r.finished_at, COALESCE(r.app,''),
	(SELECT COUNT(*) FROM dialogues d WHERE d.run_id = r.id)
	FROM runs r ORDER BY r.started_at DESC, r.rowid DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const selectRunSQL = `SELECT started_at, finished_at, films_json, diags_json FROM runs WHERE id = ?`

// language=SQL
// dialect=SQLite
const selectRunDialoguesSQL = `SELECT film, character, dialogue, cleaned FROM dialogues WHERE run_id = ? ORDER BY seq`

// language=SQL
// dialect=SQLite
const pruneOldDialoguesSQL = `DELETE FROM dialogues WHERE run_id NOT IN (
	SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
)`

// language=SQL
// dialect=SQLite
const pruneOldRunsSQL = `DELETE FROM runs WHERE id NOT IN (
	SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
)`

// RunSummary is one row of the run history.
type RunSummary struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	App        string
	Records    int
}

// SaveRun persists a run and its cleaned dialogue table in one transaction.
func SaveRun(ctx context.Context, outDir string, run *dataset.Run) error {
	if run == nil {
		return errors.New("nil run")
	}
	films, err := json.Marshal(run.Films)
	if err != nil {
		return fmt.Errorf("marshal films: %w", err)
	}
	diags, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}
	db, err := InitOrOpenStore(outDir)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertRunSQL, run.ID,
		formatStoreTime(run.StartedAt), formatStoreTime(run.FinishedAt),
		version.String(), string(films), string(diags)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, insertDialogueSQL)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = ins.Close() }()
	for i, r := range run.Records {
		if _, err := ins.ExecContext(ctx, run.ID, i, r.Film, r.Character, r.Dialogue, r.CleanedDialogue); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert dialogue %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns up to limit most recent runs, newest first.
func ListRuns(ctx context.Context, outDir string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	db, err := InitOrOpenStore(outDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listRunsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var started, finished string
		if err := rows.Scan(&s.ID, &started, &finished, &s.App, &s.Records); err != nil {
			return nil, err
		}
		s.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		s.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestRunID returns the id of the most recent run, or ErrRunNotFound for an empty store.
func LatestRunID(ctx context.Context, outDir string) (string, error) {
	runs, err := ListRuns(ctx, outDir, 1)
	if err != nil {
		return "", err
	}
	if len(runs) == 0 {
		return "", ErrRunNotFound
	}
	return runs[0].ID, nil
}

// LoadRun restores a stored run with its records in their original order.
func LoadRun(ctx context.Context, outDir, runID string) (*dataset.Run, error) {
	db, err := InitOrOpenStore(outDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	run := &dataset.Run{ID: runID}
	var started, finished, films, diags string
	err = db.QueryRowContext(ctx, selectRunSQL, runID).Scan(&started, &finished, &films, &diags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	if err := json.Unmarshal([]byte(films), &run.Films); err != nil {
		return nil, fmt.Errorf("decode films: %w", err)
	}
	if err := json.Unmarshal([]byte(diags), &run.Diagnostics); err != nil {
		return nil, fmt.Errorf("decode diagnostics: %w", err)
	}

	rows, err := db.QueryContext(ctx, selectRunDialoguesSQL, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var r screenplay.CleanedDialogueRecord
		if err := rows.Scan(&r.Film, &r.Character, &r.Dialogue, &r.CleanedDialogue); err != nil {
			return nil, err
		}
		run.Records = append(run.Records, r)
	}
	return run, rows.Err()
}

// PruneOldRuns keeps at most keepLast runs and deletes older ones with their dialogue.
// It returns the number of runs removed.
func PruneOldRuns(ctx context.Context, outDir string, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	db, err := InitOrOpenStore(outDir)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, pruneOldDialoguesSQL, keepLast); err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	res, err := tx.ExecContext(ctx, pruneOldRunsSQL, keepLast)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
