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
	"fmt"
	"strings"

	"scriptdialogue/internal/storage"
)

// SearchPG executes a search over the Postgres dialogues table using tsvector and filters
// and returns results as storage.SearchResult to ease parity checks with the SQLite store.
func SearchPG(ctx context.Context, db *sql.DB, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	// Helper to add parameter and return placeholder like $n
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if strings.TrimSpace(q.Text) != "" {
		tq := place(q.Text)
		b.WriteString("SELECT d.run_id, d.seq, d.film, d.character, d.dialogue, d.cleaned, ")
		b.WriteString("COALESCE(ts_headline('simple', d.cleaned, plainto_tsquery('simple', " + tq + "), 'StartSel=[, StopSel=], MaxFragments=1, MaxWords=12'), '') ")
		b.WriteString("FROM dialogues d WHERE d.search_vector @@ plainto_tsquery('simple', " + tq + ") ")
	} else {
		b.WriteString("SELECT d.run_id, d.seq, d.film, d.character, d.dialogue, d.cleaned, '' ")
		b.WriteString("FROM dialogues d WHERE TRUE ")
	}
	if s := strings.TrimSpace(q.RunID); s != "" {
		b.WriteString(" AND d.run_id = " + place(s) + " ")
	}
	if s := strings.TrimSpace(q.Film); s != "" {
		b.WriteString(" AND lower(d.film) = " + place(strings.ToLower(s)) + " ")
	}
	if s := strings.TrimSpace(q.Character); s != "" {
		b.WriteString(" AND lower(d.character) = " + place(strings.ToLower(s)) + " ")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY d.run_id, d.seq ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var r storage.SearchResult
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Film, &r.Character, &r.Dialogue, &r.Cleaned, &r.Snippet); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
