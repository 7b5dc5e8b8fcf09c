/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"hltaskit/internal/storage"
)

// SearchPG runs q over the published frames using tsvector and the same
// filters as the local catalog, returning storage.SearchResult so the two
// can be compared. Script is the published name.
func SearchPG(ctx context.Context, db *sql.DB, q storage.SearchQuery) ([]storage.SearchResult, error) {
	var (
		args []any
		b    strings.Builder
	)
	place := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	b.WriteString("SELECT s.name, f.idx, f.kind, f.repeats, f.line, f.text ")
	b.WriteString("FROM script_frames f JOIN scripts s ON s.id = f.script_id WHERE TRUE ")
	text := strings.TrimSpace(q.Text)
	if text != "" {
		b.WriteString(" AND f.search_vector @@ plainto_tsquery('simple', " + place(text) + ") ")
	}
	if len(q.Kinds) > 0 {
		kinds := make([]string, 0, len(q.Kinds))
		for _, k := range q.Kinds {
			kinds = append(kinds, strings.ToLower(strings.TrimSpace(k)))
		}
		b.WriteString(" AND f.kind = ANY (" + place(kinds) + ") ")
	}
	if s := strings.TrimSpace(q.Script); s != "" {
		b.WriteString(" AND lower(s.name) LIKE " + place("%"+strings.ToLower(s)+"%") + " ")
	}
	if p := strings.TrimSpace(q.Property); p != "" {
		key, value, hasValue := strings.Cut(p, "=")
		if hasValue {
			b.WriteString(" AND EXISTS (SELECT 1 FROM script_properties p WHERE p.script_id = s.id AND p.key = " +
				place(strings.TrimSpace(key)) + " AND p.value = " + place(strings.TrimSpace(value)) + ") ")
		} else {
			b.WriteString(" AND EXISTS (SELECT 1 FROM script_properties p WHERE p.script_id = s.id AND p.key = " + place(key) + ") ")
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	b.WriteString(" ORDER BY s.name, f.idx ")
	b.WriteString(" LIMIT " + place(limit) + " OFFSET " + place(offset))

	rows, err := db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search pg query: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storage.SearchResult
	for rows.Next() {
		var (
			r       storage.SearchResult
			repeats int64
			body    string
		)
		if err := rows.Scan(&r.Script, &r.Index, &r.Kind, &repeats, &r.Line, &body); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Repeats = int(repeats)
		if text != "" {
			r.Snippet = storage.Snippet(body, text)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
