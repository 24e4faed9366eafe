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
	"fmt"
	"strings"
)

// SearchQuery describes a dialogue search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT) and is
// matched against the cleaned dialogue. Film and Character are exact, case-insensitive
// filters. An empty RunID searches every stored run.
// Limit/Offset implement pagination; a default limit applies if zero.
type SearchQuery struct {
	Text      string
	Film      string
	Character string
	RunID     string
	Limit     int
	Offset    int
}

// SearchResult represents a single matching dialogue row.
// Snippet is a highlighted excerpt using [ ] markers when Text is set.
type SearchResult struct {
	RunID     string
	Seq       int
	Film      string
	Character string
	Dialogue  string
	Cleaned   string
	Snippet   string
}

// CharacterCount is the number of stored dialogue rows for one character of one film.
type CharacterCount struct {
	Film      string
	Character string
	Count     int
}

// Search performs full-text search with optional filters over the store.
// When q.Text is empty, it falls back to a plain scan with filters applied.
func Search(ctx context.Context, outDir string, q SearchQuery) ([]SearchResult, error) {
	db, err := InitOrOpenStore(outDir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	useFTS := strings.TrimSpace(q.Text) != ""
	if useFTS {
		sb.WriteString("SELECT d.run_id, d.seq, d.film, d.character, d.dialogue, d.cleaned, snippet(fts_dialogues, 0, '[', ']', '…', 10)\n")
		sb.WriteString("FROM fts_dialogues JOIN dialogues d ON fts_dialogues.rowid = d.id\n")
		sb.WriteString("WHERE fts_dialogues MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT d.run_id, d.seq, d.film, d.character, d.dialogue, d.cleaned, ''\n")
		sb.WriteString("FROM dialogues d\nWHERE 1=1\n")
	}
	if s := strings.TrimSpace(q.RunID); s != "" {
		sb.WriteString(" AND d.run_id = ?\n")
		args = append(args, s)
	}
	if s := strings.TrimSpace(q.Film); s != "" {
		sb.WriteString(" AND lower(d.film) = ?\n")
		args = append(args, strings.ToLower(s))
	}
	if s := strings.TrimSpace(q.Character); s != "" {
		sb.WriteString(" AND lower(d.character) = ?\n")
		args = append(args, strings.ToLower(s))
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY d.run_id, d.seq\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var sn sql.NullString
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Film, &r.Character, &r.Dialogue, &r.Cleaned, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CharacterCounts returns dialogue counts per (film, character) for one run, in film
// order of first appearance and descending count within a film.
func CharacterCounts(ctx context.Context, outDir, runID string) ([]CharacterCount, error) {
	db, err := InitOrOpenStore(outDir)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	q := `WITH firsts AS (
			SELECT film, MIN(seq) AS first_seq FROM dialogues WHERE run_id = ? GROUP BY film
		)
		SELECT d.film, d.character, COUNT(*) AS n
		FROM dialogues d JOIN firsts f ON f.film = d.film
		WHERE d.run_id = ?
		GROUP BY d.film, d.character
		ORDER BY MIN(f.first_seq), n DESC, d.character`
	rows, err := db.QueryContext(ctx, q, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("character counts: %w", err)
	}
	defer rows.Close()
	var out []CharacterCount
	for rows.Next() {
		var c CharacterCount
		if err := rows.Scan(&c.Film, &c.Character, &c.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
