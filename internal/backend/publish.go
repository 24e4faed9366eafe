/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"scriptdialogue/internal/dataset"
	applog "scriptdialogue/internal/log"
	"scriptdialogue/internal/version"
)

// PublishRun upserts a run and replaces its dialogue rows in one transaction.
// Publishing the same run twice leaves a single copy.
func PublishRun(ctx context.Context, db *sql.DB, run *dataset.Run) error {
	if db == nil || run == nil {
		return errors.New("db and run are required")
	}
	l := applog.WithRun(applog.WithOperation(applog.WithComponent("backend"), "publish"), run.ID)
	films, err := json.Marshal(run.Films)
	if err != nil {
		return fmt.Errorf("marshal films: %w", err)
	}
	diags, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshal diagnostics: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// dialect=PostgreSQL
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(id, started_at, finished_at, app, films, diagnostics)
		VALUES($1, $2, $3, $4, $5::jsonb, $6::jsonb)
		ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at, app = EXCLUDED.app,
			films = EXCLUDED.films, diagnostics = EXCLUDED.diagnostics, published_at = now()`,
		run.ID, run.StartedAt, run.FinishedAt, version.String(), string(films), string(diags)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("upsert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM dialogues WHERE run_id = $1`, run.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear dialogues: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, `INSERT INTO dialogues(run_id, seq, film, character, dialogue, cleaned) VALUES($1, $2, $3, $4, $5, $6)`)
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
	l.Info("run published", slog.Int("records", len(run.Records)))
	return nil
}
