/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"time"
)

// language=SQL
// dialect=SQLite
const insertScriptSnapshotSQL = `INSERT INTO script_snapshots(path, ts, text) VALUES (?, ?, ?)`

// language=SQL
// dialect=SQLite
const selectLatestScriptSnapshotSQL = `SELECT ts, text FROM script_snapshots WHERE path = ? ORDER BY ts DESC, id DESC LIMIT 1`

// language=SQL
// dialect=SQLite
const listScriptSnapshotsSQL = `SELECT ts, text FROM script_snapshots WHERE path = ? ORDER BY ts DESC, id DESC LIMIT ?`

// language=SQL
// dialect=SQLite
const pruneOldScriptSnapshotsSQL = `DELETE FROM script_snapshots WHERE path = ? AND id NOT IN (
	SELECT id FROM script_snapshots WHERE path = ? ORDER BY ts DESC, id DESC LIMIT ?
)`

// tsLayout is fixed width so timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Snapshot is one saved state of a script's text.
type Snapshot struct {
	TS   time.Time
	Text string
}

// snapshotDB opens the catalog living next to the script.
func snapshotDB(h *ScriptHandle) (*sql.DB, string, error) {
	if h == nil {
		return nil, "", errors.New("nil ScriptHandle")
	}
	root := h.Dir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, "", err
	}
	return db, filepath.Base(h.Path), nil
}

// SaveScriptSnapshot stores the full script text with a timestamp.
// The catalog is derived data; this history backs autosave and change tracking, not canonical storage.
func SaveScriptSnapshot(ctx context.Context, h *ScriptHandle, text string, ts time.Time) error {
	db, key, err := snapshotDB(h)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	_, err = db.ExecContext(ctx, insertScriptSnapshotSQL, key, ts.UTC().Format(tsLayout), text)
	return err
}

// LatestScriptSnapshot returns the newest snapshot of the script, or a zero Snapshot if none.
func LatestScriptSnapshot(ctx context.Context, h *ScriptHandle) (Snapshot, error) {
	db, key, err := snapshotDB(h)
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = db.Close() }()
	var tsStr, txt string
	err = db.QueryRowContext(ctx, selectLatestScriptSnapshotSQL, key).Scan(&tsStr, &txt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	ts, _ := time.Parse(tsLayout, tsStr)
	return Snapshot{TS: ts, Text: txt}, nil
}

// ListScriptSnapshots returns up to limit snapshots of the script, newest first.
func ListScriptSnapshots(ctx context.Context, h *ScriptHandle, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	db, key, err := snapshotDB(h)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, listScriptSnapshotsSQL, key, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Snapshot
	for rows.Next() {
		var tsStr, txt string
		if err := rows.Scan(&tsStr, &txt); err != nil {
			return nil, err
		}
		ts, _ := time.Parse(tsLayout, tsStr)
		out = append(out, Snapshot{TS: ts, Text: txt})
	}
	return out, rows.Err()
}

// PruneOldScriptSnapshots keeps at most keepLast snapshots of the script and deletes older ones.
func PruneOldScriptSnapshots(ctx context.Context, h *ScriptHandle, keepLast int) (int64, error) {
	if keepLast <= 0 {
		return 0, nil
	}
	db, key, err := snapshotDB(h)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()
	res, err := db.ExecContext(ctx, pruneOldScriptSnapshotsSQL, key, key, keepLast)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
