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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestInitOrOpenIndexCreatesSchema(t *testing.T) {
	root := t.TempDir()
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	for _, table := range []string{"scripts", "properties", "frames", "fts_frames", "script_snapshots", "version", "meta"} {
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name=?`, table).Scan(&n); err != nil || n != 1 {
			t.Fatalf("table %s missing (%v)", table, err)
		}
	}
	v, err := SchemaVersion(ctx, db)
	if err != nil || v != schemaVersion {
		t.Fatalf("schema = %d, %v", v, err)
	}
	if _, err := InitOrOpenIndex("  "); err == nil {
		t.Fatalf("expected error for empty root")
	}
}

func TestRebuildIndexScansScripts(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a.hltas", sampleScript)
	writeScript(t, root, "sub/b.hltas", "version 1\nhlstrafe_version 3\nframes\nseed 4\n")
	writeScript(t, root, "broken.hltas", "version 9\nframes\n")
	writeScript(t, root, "notes.txt", "not a script")
	writeScript(t, root, "backups/a.hltas.20240101-000000.000.bak", sampleScript)

	ctx := context.Background()
	n, err := RebuildIndex(ctx, root)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if n != 2 {
		t.Fatalf("indexed %d scripts, want 2", n)
	}
	list, err := ListIndexed(ctx, root)
	if err != nil {
		t.Fatalf("ListIndexed: %v", err)
	}
	if len(list) != 2 || list[0].Path != "a.hltas" || list[1].Path != "sub/b.hltas" {
		t.Fatalf("unexpected catalog %+v", list)
	}
	if list[0].FrameCount != 4 || list[0].TotalRepeats != 406 {
		t.Fatalf("a.hltas stats = %+v", list[0])
	}
	// rebuilding twice yields the same catalog
	if n, err := RebuildIndex(ctx, root); err != nil || n != 2 {
		t.Fatalf("second rebuild = %d, %v", n, err)
	}
}

func TestUpdateIndexReplacesRows(t *testing.T) {
	root := t.TempDir()
	p := writeScript(t, root, "a.hltas", sampleScript)
	h, err := OpenScript(p)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := UpdateIndex(ctx, root, h); err != nil {
		t.Fatalf("UpdateIndex: %v", err)
	}
	if err := h.Doc.RemoveFrame(0); err != nil {
		t.Fatal(err)
	}
	if err := UpdateIndex(ctx, root, h); err != nil {
		t.Fatalf("UpdateIndex again: %v", err)
	}
	list, err := ListIndexed(ctx, root)
	if err != nil || len(list) != 1 || list[0].FrameCount != 3 {
		t.Fatalf("catalog after update = %+v, %v", list, err)
	}
	res, err := Search(ctx, root, SearchQuery{Text: "timer"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 0 {
		t.Fatalf("removed frame still searchable: %+v", res)
	}
	db, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := RemoveFromIndex(ctx, db, root, p); err != nil {
		t.Fatalf("RemoveFromIndex: %v", err)
	}
	var cnt int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&cnt); err != nil || cnt != 0 {
		t.Fatalf("frames left after remove: %d, %v", cnt, err)
	}
}

func TestBuildIndexIfEmpty(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a.hltas", sampleScript)
	ctx := context.Background()
	if err := BuildIndexIfEmpty(ctx, root); err != nil {
		t.Fatalf("BuildIndexIfEmpty: %v", err)
	}
	writeScript(t, root, "b.hltas", sampleScript)
	// already populated, b.hltas is not picked up
	if err := BuildIndexIfEmpty(ctx, root); err != nil {
		t.Fatalf("BuildIndexIfEmpty again: %v", err)
	}
	list, _ := ListIndexed(ctx, root)
	if len(list) != 1 {
		t.Fatalf("expected 1 indexed script, got %d", len(list))
	}
}

func TestDetectAndRebuildIndexOnCorruption(t *testing.T) {
	root := t.TempDir()
	writeScript(t, root, "a.hltas", sampleScript)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := RebuildIndex(ctx, root); err != nil {
		t.Fatal(err)
	}
	rebuilt, err := DetectAndRebuildIndex(ctx, root)
	if err != nil || rebuilt {
		t.Fatalf("healthy index: rebuilt=%v err=%v", rebuilt, err)
	}
	idx := IndexPath(root)
	removeIndexFiles(idx)
	if err := os.WriteFile(idx, []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	rebuilt, err = DetectAndRebuildIndex(ctx, root)
	if err != nil {
		t.Fatalf("DetectAndRebuildIndex: %v", err)
	}
	if !rebuilt {
		t.Fatalf("expected rebuild to occur")
	}
	list, err := ListIndexed(ctx, root)
	if err != nil || len(list) != 1 {
		t.Fatalf("rebuilt catalog = %+v, %v", list, err)
	}
	entries, _ := os.ReadDir(filepath.Join(root, IndexDirName, BackupsDirName))
	if len(entries) == 0 {
		t.Fatalf("expected a backup of the corrupt index")
	}
}

// An older catalog at schema 1 is migrated and gains the kind/key indexes.
func TestMigrationsUpgradeV1ToV2(t *testing.T) {
	root := t.TempDir()
	idx := IndexPath(root)
	if err := os.MkdirAll(filepath.Dir(idx), 0o755); err != nil {
		t.Fatalf("mk index dir: %v", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)", filepath.ToSlash(idx))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL);`,
		`CREATE TABLE version (id INTEGER PRIMARY KEY CHECK(id=1), schema INTEGER NOT NULL, app TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL);`,
		`INSERT INTO version(id, schema, app, created_at, updated_at) VALUES(1, 1, 'test', '2020-01-01T00:00:00Z', '2020-01-01T00:00:00Z');`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			t.Fatalf("seed v1 schema: %v (q=%s)", err, q)
		}
	}
	db.Close()

	mdb, err := InitOrOpenIndex(root)
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	defer mdb.Close()
	v, err := SchemaVersion(ctx, mdb)
	if err != nil || v != 2 {
		t.Fatalf("schema after migration = %d, %v", v, err)
	}
	var cnt int
	if err := mdb.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name IN ('idx_frames_kind','idx_properties_key')`).Scan(&cnt); err != nil {
		t.Fatalf("query indexes: %v", err)
	}
	if cnt != 2 {
		t.Fatalf("expected 2 indexes after migration, got %d", cnt)
	}
}

func TestSetIndexDir(t *testing.T) {
	t.Cleanup(func() { SetIndexDir("") })
	SetIndexDir("catalog")
	root := t.TempDir()
	if got := IndexPath(root); got != filepath.Join(root, "catalog", IndexFileName) {
		t.Fatalf("IndexPath = %q", got)
	}
	writeScript(t, root, "catalog/ignored.hltas", sampleScript)
	writeScript(t, root, "a.hltas", sampleScript)
	paths, err := FindScripts(root)
	if err != nil || len(paths) != 1 {
		t.Fatalf("FindScripts = %v, %v", paths, err)
	}
}
