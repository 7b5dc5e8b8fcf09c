/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// SearchQuery describes a catalog search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT)
// and matches frame comments, save names and console commands.
// Kinds restricts to frame kinds such as bulk, save or target_yaw.
// Script keeps only scripts whose path contains it.
// Property filters on scripts carrying that property; "key" or "key=value".
// Limit/Offset implement pagination; reasonable defaults applied if zero.
type SearchQuery struct {
	Text     string
	Kinds    []string
	Script   string
	Property string
	Limit    int
	Offset   int
}

// SearchResult is one matching frame.
// Snippet is an excerpt with [ ] around the first matched term when Text is set.
type SearchResult struct {
	Script  string
	Index   int
	Kind    string
	Repeats int
	Line    string
	Snippet string
}

// Search runs q against the catalog of the scripts under root.
// When q.Text is empty the frames table is scanned with the filters only.
func Search(ctx context.Context, root string, q SearchQuery) ([]SearchResult, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("scripts root is required")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return searchDB(ctx, db, q)
}

func searchDB(ctx context.Context, db *sql.DB, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	sb.WriteString("SELECT s.path, f.idx, f.kind, f.repeats, f.line, COALESCE(f.text,'')\n")
	if text := strings.TrimSpace(q.Text); text != "" {
		sb.WriteString("FROM fts_frames JOIN frames f ON fts_frames.rowid = f.frame_id\n")
		sb.WriteString("JOIN scripts s ON s.script_id = f.script_id\n")
		sb.WriteString("WHERE fts_frames MATCH ?\n")
		args = append(args, text)
	} else {
		sb.WriteString("FROM frames f JOIN scripts s ON s.script_id = f.script_id\nWHERE 1=1\n")
	}
	if len(q.Kinds) > 0 {
		sb.WriteString(" AND f.kind IN (" + placeholders(len(q.Kinds)) + ")\n")
		for _, k := range q.Kinds {
			args = append(args, strings.ToLower(strings.TrimSpace(k)))
		}
	}
	if s := strings.TrimSpace(q.Script); s != "" {
		sb.WriteString(" AND lower(s.path) LIKE ?\n")
		args = append(args, likeContains(strings.ToLower(s)))
	}
	if p := strings.TrimSpace(q.Property); p != "" {
		key, value, hasValue := strings.Cut(p, "=")
		if hasValue {
			sb.WriteString(" AND EXISTS (SELECT 1 FROM properties p WHERE p.script_id = s.script_id AND p.key = ? AND p.value = ?)\n")
			args = append(args, strings.TrimSpace(key), strings.TrimSpace(value))
		} else {
			sb.WriteString(" AND EXISTS (SELECT 1 FROM properties p WHERE p.script_id = s.script_id AND p.key = ?)\n")
			args = append(args, key)
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
	sb.WriteString("ORDER BY s.path, f.idx\n")
	sb.WriteString("LIMIT ? OFFSET ?")
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	terms := queryTerms(q.Text)
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var text string
		if err := rows.Scan(&r.Script, &r.Index, &r.Kind, &r.Repeats, &r.Line, &text); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if len(terms) > 0 {
			r.Snippet = snippet(text, terms, 10)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Snippet returns the excerpt Search shows for a frame text matched by query.
func Snippet(text, query string) string {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return ""
	}
	return snippet(text, terms, 10)
}

// queryTerms extracts the plain words of an FTS query, dropping operators.
func queryTerms(q string) []string {
	var out []string
	for _, w := range strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		switch w {
		case "AND", "OR", "NOT", "NEAR":
			continue
		}
		out = append(out, strings.ToLower(w))
	}
	return out
}

// snippet returns up to width words around the first word matching a term,
// with the match wrapped in brackets. The FTS table is contentless, so
// SQLite's snippet() has nothing to work with.
func snippet(text string, terms []string, width int) string {
	words := strings.Fields(text)
	hit := -1
	for i, w := range words {
		lw := strings.ToLower(w)
		for _, t := range terms {
			if strings.HasPrefix(strings.TrimFunc(lw, func(r rune) bool {
				return !unicode.IsLetter(r) && !unicode.IsDigit(r)
			}), t) {
				hit = i
				break
			}
		}
		if hit >= 0 {
			break
		}
	}
	if hit < 0 {
		return ""
	}
	from := max(0, hit-width/2)
	to := min(len(words), from+width)
	parts := make([]string, 0, to-from+2)
	if from > 0 {
		parts = append(parts, "…")
	}
	for i := from; i < to; i++ {
		if i == hit {
			parts = append(parts, "["+words[i]+"]")
			continue
		}
		parts = append(parts, words[i])
	}
	if to < len(words) {
		parts = append(parts, "…")
	}
	return strings.Join(parts, " ")
}

func likeContains(s string) string { return "%" + s + "%" }

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
