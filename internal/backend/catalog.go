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
	"errors"
	"fmt"
	"time"

	"hltaskit/internal/hltas"
	"hltaskit/internal/storage"
)

// ErrScriptNotFound is returned when a catalog lookup finds nothing.
var ErrScriptNotFound = errors.New("script not found")

// ScriptInfo is the listing projection of a published script.
type ScriptInfo struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Version      int       `json:"version"`
	FrameCount   int       `json:"frame_count"`
	TotalRepeats int64     `json:"total_repeats"`
	Owner        string    `json:"owner"`
	Revision     int64     `json:"revision"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Script is a published script with its text.
type Script struct {
	ScriptInfo
	Properties map[string]string `json:"properties"`
	Text       string            `json:"text"`
}

// PublishScript stores doc under name, replacing an earlier revision.
func PublishScript(ctx context.Context, db *sql.DB, name, owner string, doc *hltas.Document) (ScriptInfo, error) {
	frames := doc.Frames()
	var total int64
	for _, f := range frames {
		if b, ok := f.Bulk(); ok {
			total += int64(b.Repeats())
		}
	}
	info := ScriptInfo{Name: name, Version: doc.Version(), FrameCount: len(frames), TotalRepeats: total, Owner: owner}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return ScriptInfo{}, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(err error) (ScriptInfo, error) {
		_ = tx.Rollback()
		return ScriptInfo{}, err
	}
	// dialect=PostgreSQL
	err = tx.QueryRowContext(ctx, `INSERT INTO scripts(name, version, body, frame_count, total_repeats, owner)
		VALUES($1,$2,$3,$4,$5,$6)
		ON CONFLICT (name) DO UPDATE SET version = EXCLUDED.version, body = EXCLUDED.body,
			frame_count = EXCLUDED.frame_count, total_repeats = EXCLUDED.total_repeats,
			owner = EXCLUDED.owner, revision = scripts.revision + 1, updated_at = now()
		RETURNING id, revision, updated_at`,
		name, info.Version, doc.String(), info.FrameCount, total, owner).Scan(&info.ID, &info.Revision, &info.UpdatedAt)
	if err != nil {
		return rollback(fmt.Errorf("upsert script: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM script_properties WHERE script_id = $1`, info.ID); err != nil {
		return rollback(fmt.Errorf("clear properties: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM script_frames WHERE script_id = $1`, info.ID); err != nil {
		return rollback(fmt.Errorf("clear frames: %w", err))
	}
	for k, v := range doc.Properties() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO script_properties(script_id, key, value) VALUES($1,$2,$3)`, info.ID, k, v); err != nil {
			return rollback(fmt.Errorf("insert property: %w", err))
		}
	}
	for i, f := range frames {
		var repeats uint32
		if b, ok := f.Bulk(); ok {
			repeats = b.Repeats()
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO script_frames(script_id, idx, kind, repeats, line, text) VALUES($1,$2,$3,$4,$5,$6)`,
			info.ID, i, f.Kind().String(), int64(repeats), f.String(), storage.SearchText(f)); err != nil {
			return rollback(fmt.Errorf("insert frame %d: %w", i, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return ScriptInfo{}, fmt.Errorf("commit: %w", err)
	}
	return info, nil
}

const scriptInfoColumns = `id, name, version, frame_count, total_repeats, owner, revision, updated_at`

func scanInfo(row interface{ Scan(...any) error }) (ScriptInfo, error) {
	var s ScriptInfo
	err := row.Scan(&s.ID, &s.Name, &s.Version, &s.FrameCount, &s.TotalRepeats, &s.Owner, &s.Revision, &s.UpdatedAt)
	return s, err
}

// ListScripts returns published scripts, most recently updated first.
func ListScripts(ctx context.Context, db *sql.DB) ([]ScriptInfo, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+scriptInfoColumns+` FROM scripts ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	list := []ScriptInfo{}
	for rows.Next() {
		s, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan script: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// GetScript loads one published script with its properties and text.
func GetScript(ctx context.Context, db *sql.DB, id int64) (*Script, error) {
	var (
		s    Script
		body string
	)
	row := db.QueryRowContext(ctx, `SELECT `+scriptInfoColumns+`, body FROM scripts WHERE id = $1`, id)
	err := row.Scan(&s.ID, &s.Name, &s.Version, &s.FrameCount, &s.TotalRepeats, &s.Owner, &s.Revision, &s.UpdatedAt, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrScriptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get script: %w", err)
	}
	s.Text = body
	s.Properties = map[string]string{}
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM script_properties WHERE script_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get properties: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		s.Properties[k] = v
	}
	return &s, rows.Err()
}

// DeleteScript removes a published script. Properties and frames cascade.
func DeleteScript(ctx context.Context, db *sql.DB, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM scripts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScriptNotFound
	}
	return nil
}
