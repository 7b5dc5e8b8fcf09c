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
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"hltaskit/internal/hltas"
	applog "hltaskit/internal/log"
	"hltaskit/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName is the default folder, under the scripts root, holding the catalog.
	IndexDirName  = ".hltas-index"
	IndexFileName = "index.sqlite"

	// ScriptExt is the extension picked up when scanning a directory.
	ScriptExt = ".hltas"

	// schemaVersion tracks the local SQLite schema. Bump it together with a migration step.
	schemaVersion = 2
)

// indexDir can be overridden from config (script.index_dir).
var indexDir = IndexDirName

// SetIndexDir changes the catalog folder name used under a scripts root.
// An empty name restores the default.
func SetIndexDir(name string) {
	if strings.TrimSpace(name) == "" {
		name = IndexDirName
	}
	indexDir = name
}

// IndexPath returns the catalog database path for the scripts under root.
func IndexPath(root string) string {
	return filepath.Join(root, indexDir, IndexFileName)
}

// InitOrOpenIndex ensures the catalog database under root exists, opens it in
// WAL mode and brings its schema up to date.
func InitOrOpenIndex(root string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", root),
	)
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("scripts root is required")
	}
	if err := os.MkdirAll(filepath.Join(root, indexDir), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	path := IndexPath(root)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(path))
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
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON;"); err != nil {
		l.Warn("enable foreign_keys failed", slog.Any("err", err))
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
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
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A fresh database starts at schema 1 and migrates forward.
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

// SchemaVersion returns the schema number recorded in the catalog.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return cur, nil
}

// runMigrations applies incremental schema steps up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	cur, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if cur > schemaVersion {
		// written by a newer build; never downgrade
		return nil
	}
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_frames_kind ON frames(kind);`,
				`CREATE INDEX IF NOT EXISTS idx_properties_key ON properties(key);`,
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
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		if next == 2 {
			// best effort
			_, _ = db.ExecContext(ctx, `INSERT INTO fts_frames(fts_frames) VALUES('optimize')`)
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates the catalog tables and the FTS structures if missing.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS scripts (
			script_id     INTEGER PRIMARY KEY,
			path          TEXT    NOT NULL UNIQUE,
			version       INTEGER NOT NULL,
			frame_count   INTEGER NOT NULL,
			total_repeats INTEGER NOT NULL,
			indexed_at    TEXT    NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS properties (
			script_id INTEGER NOT NULL,
			key       TEXT    NOT NULL,
			value     TEXT    NOT NULL,
			PRIMARY KEY(script_id, key),
			FOREIGN KEY(script_id) REFERENCES scripts(script_id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS frames (
			frame_id  INTEGER PRIMARY KEY,
			script_id INTEGER NOT NULL,
			idx       INTEGER NOT NULL,
			kind      TEXT    NOT NULL,
			repeats   INTEGER NOT NULL,
			line      TEXT    NOT NULL,
			text      TEXT,
			FOREIGN KEY(script_id) REFERENCES scripts(script_id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_script ON frames(script_id, idx);`,
		`CREATE INDEX IF NOT EXISTS idx_frames_kind ON frames(kind);`,
		`CREATE INDEX IF NOT EXISTS idx_properties_key ON properties(key);`,

		// Contentless FTS5 index fed from frames via triggers.
		`CREATE VIRTUAL TABLE IF NOT EXISTS fts_frames USING fts5(
			text,
			content='',
			tokenize = 'unicode61'
		);`,

		`CREATE TABLE IF NOT EXISTS script_snapshots (
			id    INTEGER PRIMARY KEY,
			path  TEXT    NOT NULL,
			ts    TEXT    NOT NULL,
			text  TEXT    NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_script_snapshots_path_ts ON script_snapshots(path, ts);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS frames_ai AFTER INSERT ON frames BEGIN
			INSERT INTO fts_frames(rowid, text) VALUES (new.frame_id, new.text);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS frames_ad AFTER DELETE ON frames BEGIN
			INSERT INTO fts_frames(fts_frames, rowid, text) VALUES ('delete', old.frame_id, old.text);
		END;`,
	}
	for _, q := range triggers {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure fts triggers: %w", err)
		}
	}
	return nil
}

// DetectAndRebuildIndex checks the catalog for corruption or a missing schema
// and rebuilds it from the scripts under root when needed.
// It returns true when a rebuild was performed.
func DetectAndRebuildIndex(ctx context.Context, root string) (bool, error) {
	path := IndexPath(root)
	db, err := InitOrOpenIndex(root)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if _, rbErr := RebuildIndex(ctx, root); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM frames LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if _, err := RebuildIndex(ctx, root); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the catalog into a timestamped file in <index dir>/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), BackupsDirName)
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

func removeIndexFiles(indexPath string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(indexPath + suffix)
	}
}

// IndexScript replaces the catalog rows of the script at path with the content of doc.
// path is stored relative to root when it lies below it.
func IndexScript(ctx context.Context, db *sql.DB, root, path string, doc *hltas.Document) error {
	rel := relPath(root, path)
	frames := doc.Frames()
	var total int64
	for _, f := range frames {
		if b, ok := f.Bulk(); ok {
			total += int64(b.Repeats())
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	rollback := func(err error) error {
		_ = tx.Rollback()
		return err
	}
	// The frames delete trigger keeps the FTS table in step.
	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE script_id IN (SELECT script_id FROM scripts WHERE path=?)`, rel); err != nil {
		return rollback(fmt.Errorf("clear frames: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE script_id IN (SELECT script_id FROM scripts WHERE path=?)`, rel); err != nil {
		return rollback(fmt.Errorf("clear properties: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scripts WHERE path=?`, rel); err != nil {
		return rollback(fmt.Errorf("clear script: %w", err))
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO scripts(path, version, frame_count, total_repeats, indexed_at) VALUES(?,?,?,?,?)`,
		rel, doc.Version(), len(frames), total, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return rollback(fmt.Errorf("insert script: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return rollback(fmt.Errorf("script id: %w", err))
	}
	for k, v := range doc.Properties() {
		if _, err := tx.ExecContext(ctx, `INSERT INTO properties(script_id, key, value) VALUES(?,?,?)`, id, k, v); err != nil {
			return rollback(fmt.Errorf("insert property: %w", err))
		}
	}
	ins, err := tx.PrepareContext(ctx, `INSERT INTO frames(script_id, idx, kind, repeats, line, text) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return rollback(fmt.Errorf("prepare insert: %w", err))
	}
	defer ins.Close()
	for i, f := range frames {
		var repeats uint32
		if b, ok := f.Bulk(); ok {
			repeats = b.Repeats()
		}
		if _, err := ins.ExecContext(ctx, id, i, f.Kind().String(), repeats, f.String(), SearchText(f)); err != nil {
			return rollback(fmt.Errorf("insert frame: %w", err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SearchText is what the FTS index sees for a frame: its comments, the save
// name and the console commands.
func SearchText(f hltas.Frame) string {
	parts := make([]string, 0, 3)
	if c := strings.TrimSpace(f.Comments); c != "" {
		parts = append(parts, c)
	}
	switch b := f.Body.(type) {
	case hltas.Save:
		parts = append(parts, b.Name)
	default:
		if bulk, ok := f.Bulk(); ok && bulk.Commands != "" {
			parts = append(parts, bulk.Commands)
		}
	}
	return strings.Join(parts, " ")
}

// RemoveFromIndex drops the catalog rows for the script at path.
func RemoveFromIndex(ctx context.Context, db *sql.DB, root, path string) error {
	rel := relPath(root, path)
	if _, err := db.ExecContext(ctx, `DELETE FROM frames WHERE script_id IN (SELECT script_id FROM scripts WHERE path=?)`, rel); err != nil {
		return fmt.Errorf("remove frames: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM properties WHERE script_id IN (SELECT script_id FROM scripts WHERE path=?)`, rel); err != nil {
		return fmt.Errorf("remove properties: %w", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM scripts WHERE path=?`, rel); err != nil {
		return fmt.Errorf("remove script: %w", err)
	}
	return nil
}

// UpdateIndex refreshes the catalog entry of one open script.
func UpdateIndex(ctx context.Context, root string, h *ScriptHandle) error {
	if h == nil || h.Doc == nil {
		return errors.New("nil ScriptHandle")
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	defer db.Close()
	return IndexScript(ctx, db, root, h.Path, h.Doc)
}

// BuildIndexIfEmpty scans root when the catalog holds no scripts yet.
func BuildIndexIfEmpty(ctx context.Context, root string) error {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return err
	}
	var cnt int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM scripts;").Scan(&cnt)
	_ = db.Close()
	if err != nil {
		return fmt.Errorf("check scripts count: %w", err)
	}
	if cnt > 0 {
		return nil
	}
	_, err = RebuildIndex(ctx, root)
	return err
}

// RebuildIndex drops the catalog content and indexes every script found
// below root. Scripts that fail to parse are logged and skipped.
// It returns the number of indexed scripts. Snapshots are kept.
func RebuildIndex(ctx context.Context, root string) (int, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_rebuild").With(slog.String("root", root))
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	drops := []string{
		"DROP TRIGGER IF EXISTS frames_ai;",
		"DROP TRIGGER IF EXISTS frames_ad;",
		"DROP TABLE IF EXISTS frames;",
		"DROP TABLE IF EXISTS properties;",
		"DROP TABLE IF EXISTS scripts;",
		"DROP TABLE IF EXISTS fts_frames;",
	}
	for _, q := range drops {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("drop schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("drop commit: %w", err)
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		return 0, err
	}

	paths, err := FindScripts(root)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		doc, err := hltas.ReadFile(p)
		if err != nil {
			l.Warn("skipping script", slog.String("path", p), slog.Any("err", err))
			continue
		}
		if err := IndexScript(ctx, db, root, p, doc); err != nil {
			return n, err
		}
		n++
	}
	l.Info("index rebuilt", slog.Int("scripts", n))
	return n, nil
}

// FindScripts lists the .hltas files below root, skipping the catalog and backup folders.
func FindScripts(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && (d.Name() == indexDir || d.Name() == BackupsDirName) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(p), ScriptExt) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan scripts: %w", err)
	}
	return out, nil
}

// IndexedScript is one row of the scripts table.
type IndexedScript struct {
	Path         string
	Version      int
	FrameCount   int
	TotalRepeats int64
	IndexedAt    time.Time
}

// ListIndexed returns the scripts in the catalog ordered by path.
func ListIndexed(ctx context.Context, root string) ([]IndexedScript, error) {
	db, err := InitOrOpenIndex(root)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx, `SELECT path, version, frame_count, total_repeats, indexed_at FROM scripts ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()
	var out []IndexedScript
	for rows.Next() {
		var s IndexedScript
		var ts string
		if err := rows.Scan(&s.Path, &s.Version, &s.FrameCount, &s.TotalRepeats, &ts); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		s.IndexedAt, _ = time.Parse(time.RFC3339, ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}
