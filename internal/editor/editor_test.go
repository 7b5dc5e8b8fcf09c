/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hltaskit/internal/hltas"
	"hltaskit/internal/storage"
)

const script = `version 1
demo bhop
frames
save start
// first strafe
s03-------|------|------|0.001|90|-|400
----------|------|------|0.001|-|-|5|stop
`

func newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	p := filepath.Join(t.TempDir(), "run.hltas")
	if err := os.WriteFile(p, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := storage.OpenScript(p)
	if err != nil {
		t.Fatalf("OpenScript: %v", err)
	}
	return NewSession(h, nil, opts)
}

func apply(t *testing.T, s *Session, text string) error {
	t.Helper()
	op, err := ParseOp(text)
	if err != nil {
		t.Fatalf("ParseOp(%q): %v", text, err)
	}
	return s.Apply(context.Background(), op)
}

func TestEditOpsAndUndoRedo(t *testing.T) {
	s := newSession(t, Options{})
	doc := s.Handle().Doc
	original := doc.String()
	ctx := context.Background()

	for _, op := range []string{
		"set-prop frametime0ms 0.0000000001",
		"del-prop demo",
		"split 1 100",
		"repeats 3 7",
		"comment 0 route start\\nsecond line",
		"insert 4 seed 1337",
		"remove 2",
	} {
		if err := apply(t, s, op); err != nil {
			t.Fatalf("%s: %v", op, err)
		}
	}
	want := "version 1\n" +
		"frametime0ms 0.0000000001\n" +
		"frames\n" +
		"// route start\n" +
		"// second line\n" +
		"save start\n" +
		"// first strafe\n" +
		"s03-------|------|------|0.001|90|-|100|\n" +
		"----------|------|------|0.001|-|-|7|stop\n" +
		"seed 1337\n"
	if got := doc.String(); got != want {
		t.Fatalf("after edits:\n%s\nwant:\n%s", got, want)
	}
	if !s.Dirty() {
		t.Fatalf("session should be dirty")
	}

	// undo the remove and the insert
	if err := s.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if err := s.Undo(ctx); err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if doc.Len() != 4 {
		t.Fatalf("expected 4 frames after two undos, got %d", doc.Len())
	}
	if err := s.Redo(ctx); err != nil {
		t.Fatalf("Redo: %v", err)
	}
	f, _ := doc.Frame(4)
	if f.Body != (hltas.Seed{Value: 1337}) {
		t.Fatalf("redo should restore the inserted seed, got %#v", f.Body)
	}
	for {
		if err := s.Undo(ctx); err != nil {
			if !errors.Is(err, ErrNothingToUndo) {
				t.Fatalf("Undo: %v", err)
			}
			break
		}
	}
	if doc.String() != original {
		t.Fatalf("undoing everything should restore the original:\n%s", doc.String())
	}
	if err := s.Redo(ctx); err != nil {
		t.Fatalf("Redo after full undo: %v", err)
	}
	if v, _ := doc.Property("frametime0ms"); v != "0.0000000001" {
		t.Fatalf("first redo should re-set the property")
	}
}

func TestRejectedEditsLeaveNoHistory(t *testing.T) {
	s := newSession(t, Options{})
	before := s.Handle().Doc.String()
	for _, op := range []string{
		"split 0 1",     // save directive
		"split 1 400",   // offset out of range
		"repeats 0 2",   // not a bulk
		"repeats 2 0",   // zero repeats
		"remove 9",      // out of range
		"insert 0 save", // no save name
		"set-prop frames x",
		"del-prop missing",
	} {
		if err := apply(t, s, op); err == nil {
			t.Fatalf("%s: expected error", op)
		}
	}
	if s.Handle().Doc.String() != before {
		t.Fatalf("document changed by rejected edits")
	}
	if err := s.Undo(context.Background()); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("Undo = %v", err)
	}
	if s.Dirty() {
		t.Fatalf("rejected edits should not dirty the session")
	}
}

func TestEditKeepingScriptParseable(t *testing.T) {
	p := filepath.Join(t.TempDir(), "yaw.hltas")
	text := "version 1\nframes\n" +
		"s03-------|------|------|0.001|90|-|1\n" +
		"s03-------|------|------|0.001|-|-|5\n"
	if err := os.WriteFile(p, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := storage.OpenScript(p)
	if err != nil {
		t.Fatalf("OpenScript: %v", err)
	}
	s := NewSession(h, nil, Options{})
	err = apply(t, s, "remove 0")
	if !errors.Is(err, hltas.NoYaw) {
		t.Fatalf("remove 0 = %v, want NOYAW", err)
	}
	if got := hltas.Describe(err).Line; got != 3 {
		t.Fatalf("error line = %d, want 3", got)
	}
	if h.Doc.String() != text {
		t.Fatalf("document changed:\n%s", h.Doc.String())
	}
	if s.Dirty() {
		t.Fatalf("rolled back edit should not dirty the session")
	}
	if err := s.Undo(context.Background()); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("Undo = %v", err)
	}
	if err := apply(t, s, "remove 1"); err != nil {
		t.Fatalf("remove 1: %v", err)
	}
}

func TestSavePrunesAndRecordsHistory(t *testing.T) {
	s := newSession(t, Options{BackupsKeep: 1, History: true})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.SetProperty(ctx, "demo", "take"+string(rune('a'+i))); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(ctx); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if s.Dirty() {
		t.Fatalf("Save should clear dirty")
	}
	backups, err := storage.ListBackups(s.Handle().Path)
	if err != nil || len(backups) != 1 {
		t.Fatalf("backups = %v, %v", backups, err)
	}
	snap, err := storage.LatestScriptSnapshot(ctx, s.Handle())
	if err != nil || snap.Text != s.Handle().Doc.String() {
		t.Fatalf("history snapshot = %q, %v", snap.Text, err)
	}
	reopened, err := hltas.ReadFile(s.Handle().Path)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := reopened.Property("demo"); v != "takec" {
		t.Fatalf("saved demo = %q", v)
	}
}

func TestParseOp(t *testing.T) {
	op, err := ParseOp("insert 2 ----------|------|------|0.001|-|-|1|say  two  spaces")
	if err != nil {
		t.Fatalf("ParseOp: %v", err)
	}
	if op.index != 2 || op.Args[1] != "----------|------|------|0.001|-|-|1|say  two  spaces" {
		t.Fatalf("insert op = %+v", op)
	}
	bad := []string{"", "jump 1", "split 1", "split x 2", "split 1 -2", "remove -1", "undo now", "set-prop", "insert 3"}
	for _, text := range bad {
		if _, err := ParseOp(text); err == nil {
			t.Fatalf("ParseOp(%q) should fail", text)
		}
	}
	if _, err := ParseOp("comment 1"); err != nil {
		t.Fatalf("comment without text clears: %v", err)
	}
}
