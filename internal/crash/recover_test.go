/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package crash

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hltaskit/internal/hltas"
	"hltaskit/internal/storage"
)

func quietExit(t *testing.T) *int {
	t.Helper()
	code := -1
	oldExit, oldErr := exitFn, stderr
	exitFn = func(c int) { code = c }
	stderr = io.Discard
	t.Cleanup(func() { exitFn, stderr = oldExit, oldErr })
	return &code
}

func TestRecoverWritesReportAndSnapshot(t *testing.T) {
	code := quietExit(t)
	dir := t.TempDir()
	doc, err := hltas.Parse("version 1\nframes\nseed 5\n")
	if err != nil {
		t.Fatal(err)
	}
	h := &storage.ScriptHandle{Path: filepath.Join(dir, "run.hltas"), Doc: doc}

	func() {
		defer Recover(h)
		panic("boom")
	}()

	if *code != ExitCode {
		t.Fatalf("expected exit code %d, got %d", ExitCode, *code)
	}
	if !strings.Contains(doc.ErrorMessage(), "boom") {
		t.Fatalf("error message = %q", doc.ErrorMessage())
	}
	var found string
	files, _ := os.ReadDir(h.BackupsDir())
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "crash-") && strings.HasSuffix(f.Name(), ".log") {
			found = filepath.Join(h.BackupsDir(), f.Name())
		}
	}
	if found == "" {
		t.Fatalf("expected crash report under backups dir")
	}
	b, err := os.ReadFile(found)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !bytes.Contains(b, []byte("Panic: boom")) || !bytes.Contains(b, []byte("Frames: 1")) {
		t.Fatalf("unexpected report: %s", b)
	}
	snap, err := storage.LatestScriptSnapshot(context.Background(), h)
	if err != nil {
		t.Fatalf("LatestScriptSnapshot: %v", err)
	}
	if snap.Text != "version 1\nframes\nseed 5\n" {
		t.Fatalf("snapshot = %q", snap.Text)
	}
}

func TestRecoverWithoutPanicDoesNothing(t *testing.T) {
	code := quietExit(t)
	func() {
		defer Recover(nil)
	}()
	if *code != -1 {
		t.Fatalf("exit called without a panic")
	}
}

func TestRecoverWithoutScript(t *testing.T) {
	code := quietExit(t)
	func() {
		defer Recover(nil)
		panic("no script")
	}()
	if *code != ExitCode {
		t.Fatalf("exit code = %d", *code)
	}
}

func TestWriteReportFallsBackToTemp(t *testing.T) {
	path, err := writeReport(nil, "kaboom", []byte("stack"))
	if err != nil {
		t.Fatalf("writeReport: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	if filepath.Dir(path) != filepath.Clean(os.TempDir()) {
		t.Fatalf("report not in temp dir: %s", path)
	}
	b, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(b), "hltaskit crash report") {
		t.Fatalf("report header missing: %s", b)
	}
}
