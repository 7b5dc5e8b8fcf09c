/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"hltaskit/internal/hltas"
	applog "hltaskit/internal/log"
)

const (
	BackupsDirName = "backups"

	backupStamp = "20060102-150405.000"
)

// ErrScriptExists is returned by CreateScript when the target file is already present.
var ErrScriptExists = errors.New("script already exists")

// ScriptHandle ties an in-memory document to its file on disk.
// Recovered is set when OpenScript had to fall back to a backup.
type ScriptHandle struct {
	Path      string
	Doc       *hltas.Document
	Recovered string
}

// Dir returns the directory holding the script.
func (h *ScriptHandle) Dir() string { return filepath.Dir(h.Path) }

// BackupsDir returns the backups folder next to the script.
func (h *ScriptHandle) BackupsDir() string { return filepath.Join(h.Dir(), BackupsDirName) }

// CreateScript writes doc to a new file at path. It refuses to overwrite.
func CreateScript(path string, doc *hltas.Document) (*ScriptHandle, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("script path is required")
	}
	if doc == nil {
		doc = hltas.New()
	}
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrScriptExists)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create script dir: %w", err)
	}
	h := &ScriptHandle{Path: path, Doc: doc}
	if err := Save(h); err != nil {
		return nil, err
	}
	return h, nil
}

// OpenScript loads the script at path.
// If the file cannot be read or parsed, the newest backup is tried instead.
// The returned error is the original failure when no backup helps.
func OpenScript(path string) (*ScriptHandle, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("path", path))
	doc, err := hltas.ReadFile(path)
	if err == nil {
		return &ScriptHandle{Path: path, Doc: doc}, nil
	}
	bdoc, bpath, berr := openFromLatestBackup(path)
	if berr != nil {
		l.Debug("no usable backup", slog.Any("err", berr))
		return nil, err
	}
	l.Warn("script recovered from backup", slog.String("backup", bpath), slog.Any("err", err))
	return &ScriptHandle{Path: path, Doc: bdoc, Recovered: bpath}, nil
}

// Save writes the handle's document to disk with a temp file and rename,
// after copying the previous contents into a timestamped backup.
func Save(h *ScriptHandle) error {
	if h == nil || h.Doc == nil {
		return errors.New("nil ScriptHandle")
	}
	if h.Path == "" {
		return errors.New("invalid ScriptHandle: missing path")
	}
	var buf bytes.Buffer
	if _, err := h.Doc.WriteTo(&buf); err != nil {
		return err
	}

	if _, statErr := os.Stat(h.Path); statErr == nil {
		bdir := h.BackupsDir()
		if err := os.MkdirAll(bdir, 0o755); err != nil {
			return fmt.Errorf("ensure backups dir: %w", err)
		}
		bname := fmt.Sprintf("%s.%s.bak", filepath.Base(h.Path), time.Now().Format(backupStamp))
		if cerr := copyFile(h.Path, filepath.Join(bdir, bname)); cerr != nil {
			return fmt.Errorf("backup current script: %w", cerr)
		}
	}

	dir := filepath.Dir(h.Path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", filepath.Base(h.Path), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, buf.Bytes()); werr != nil {
		_ = os.Remove(temp)
		return &hltas.Error{Code: hltas.FailOpen, Err: werr}
	}
	// Windows will not rename over an existing file.
	if _, err := os.Stat(h.Path); err == nil {
		_ = os.Remove(h.Path)
	}
	if rerr := os.Rename(temp, h.Path); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace script: %w", rerr)
	}
	h.Recovered = ""
	applog.WithComponent("storage").Debug("script saved", slog.String("path", h.Path), slog.Int("frames", h.Doc.Len()))
	return nil
}

// SaveAs points the handle at newPath and saves there.
func SaveAs(h *ScriptHandle, newPath string) error {
	if h == nil {
		return errors.New("nil ScriptHandle")
	}
	if newPath == "" {
		return errors.New("new path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0o755); err != nil {
		return fmt.Errorf("create target dir: %w", err)
	}
	h.Path = newPath
	return Save(h)
}

// ListBackups returns the backup files of the script at path, oldest first.
func ListBackups(path string) ([]string, error) {
	bdir := filepath.Join(filepath.Dir(path), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := filepath.Base(path) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	// The stamp in the name sorts lexicographically.
	sort.Strings(out)
	return out, nil
}

// PruneBackups keeps the newest keep backups of the script at path and
// removes the rest. keep <= 0 disables pruning.
func PruneBackups(path string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	all, err := ListBackups(path)
	if err != nil {
		return 0, err
	}
	if len(all) <= keep {
		return 0, nil
	}
	removed := 0
	for _, p := range all[:len(all)-keep] {
		if err := os.Remove(p); err != nil {
			return removed, fmt.Errorf("remove backup: %w", err)
		}
		removed++
	}
	return removed, nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies src over dst.
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}

// openFromLatestBackup walks the backups newest first and returns the first that parses.
func openFromLatestBackup(path string) (*hltas.Document, string, error) {
	candidates, err := ListBackups(path)
	if err != nil {
		return nil, "", err
	}
	if len(candidates) == 0 {
		return nil, "", errors.New("no backups found")
	}
	var lastErr error
	for i := len(candidates) - 1; i >= 0; i-- {
		doc, err := hltas.ReadFile(candidates[i])
		if err == nil {
			return doc, candidates[i], nil
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("parse latest backup: %w", lastErr)
}
