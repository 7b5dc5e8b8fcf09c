/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic at the CLI boundary into a crash report, an
// autosave of the open script and a non-zero exit.
package crash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	applog "hltaskit/internal/log"
	"hltaskit/internal/storage"
	"hltaskit/internal/telemetry"
	"hltaskit/internal/version"
)

// ExitCode is used when a panic was recovered.
const ExitCode = 70

var (
	exitFn           = os.Exit
	stderr io.Writer = os.Stderr
)

// Recover captures a panic, logs it with the stack, writes a crash report,
// records the panic as the document's error message, stores a snapshot of
// the script and exits with ExitCode. h may be nil.
//
// Usage: defer crash.Recover(h)
func Recover(h *storage.ScriptHandle) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(h, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if h != nil && h.Doc != nil {
		h.Doc.SetErrorMessage(fmt.Sprintf("internal error: %v", r))
		if err := autosave(h); err != nil {
			l.Error("autosave crash snapshot failed", slog.Any("err", err))
		} else {
			l.Info("autosave crash snapshot written", slog.String("script", h.Path))
		}
	}

	_, _ = fmt.Fprintf(stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(ExitCode)
}

// autosave stores the in-memory script in the history table. Serializing a
// document left half-edited by the panic may itself panic; that is reported
// as an error.
func autosave(h *storage.ScriptHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("serialize script: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return storage.SaveScriptSnapshot(ctx, h, h.Doc.String(), time.Now())
}

func writeReport(h *storage.ScriptHandle, panicVal any, stack []byte) (string, error) {
	dir := os.TempDir()
	if h != nil && h.Path != "" {
		dir = h.BackupsDir()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			dir = os.TempDir()
		}
	}
	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "hltaskit crash report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if h != nil {
		_, _ = fmt.Fprintf(&buf, "Script: %s\n", h.Path)
		if h.Doc != nil {
			_, _ = fmt.Fprintf(&buf, "Frames: %d\n", h.Doc.Len())
		}
	}
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", stack)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	// Only the report is uploaded, never the script.
	telemetry.UploadCrash(buf.Bytes())
	return path, nil
}
