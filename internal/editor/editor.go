/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor applies edit operations to an open script with undo and redo.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"hltaskit/internal/hltas"
	applog "hltaskit/internal/log"
	"hltaskit/internal/storage"
	"hltaskit/internal/undo"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrBadProperty   = errors.New("invalid property")
	ErrUnknownOp     = errors.New("unknown edit operation")
	ErrOpArgs        = errors.New("wrong arguments for edit operation")
)

// Op names.
const (
	OpSetProp = "set-prop"
	OpDelProp = "del-prop"
	OpSplit   = "split"
	OpRemove  = "remove"
	OpInsert  = "insert"
	OpRepeats = "repeats"
	OpComment = "comment"
	OpUndo    = "undo"
	OpRedo    = "redo"
)

// Options tune a Session.
type Options struct {
	// BackupsKeep bounds the number of .bak files kept after Save; 0 keeps all.
	BackupsKeep int
	// History stores a snapshot in the script catalog on every Save.
	History bool
}

// Session edits one script. It is not safe for concurrent use; the
// underlying document is.
type Session struct {
	h     *storage.ScriptHandle
	undo  *undo.Manager
	opts  Options
	dirty bool
	now   func() time.Time
}

// NewSession starts editing h. m may be shared between sessions; history is
// kept per script path. A nil m gets a private manager.
func NewSession(h *storage.ScriptHandle, m *undo.Manager, opts Options) *Session {
	if m == nil {
		m = undo.NewManager(undo.Config{MaxPerKey: 100})
	}
	return &Session{h: h, undo: m, opts: opts, now: time.Now}
}

// Handle returns the script being edited.
func (s *Session) Handle() *storage.ScriptHandle { return s.h }

// Dirty reports whether there are unsaved edits.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) logger(ctx context.Context, op string) (context.Context, *slog.Logger) {
	return applog.WithScript(ctx, s.h.Path), applog.WithOperation(applog.WithComponent("editor"), op)
}

// edit runs fn with undo bookkeeping. fn must leave the document untouched
// when it fails. An edit whose result no longer parses, such as removing the
// only explicit yaw before a "-" yaw field, is rolled back.
func (s *Session) edit(ctx context.Context, op string, fn func(d *hltas.Document) error, attrs ...any) error {
	ctx, l := s.logger(ctx, op)
	before := s.h.Doc.String()
	if err := fn(s.h.Doc); err != nil {
		l.WarnContext(ctx, "edit rejected", append(attrs, slog.Any("err", err))...)
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := hltas.Parse(s.h.Doc.String()); err != nil {
		if rerr := s.h.Doc.Parse(before); rerr != nil {
			return fmt.Errorf("%s: restore: %w", op, rerr)
		}
		l.WarnContext(ctx, "edit rejected", append(attrs, slog.Any("err", err))...)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.undo.Record(undo.Snapshot{Key: s.h.Path, Label: op, Blob: []byte(before), TS: s.now()})
	s.dirty = true
	l.InfoContext(ctx, "edit applied", attrs...)
	return nil
}

// SetProperty sets a property. Keys are single words other than the
// section keywords; values stay on one line.
func (s *Session) SetProperty(ctx context.Context, key, value string) error {
	return s.edit(ctx, OpSetProp, func(d *hltas.Document) error {
		if err := checkProperty(key, value); err != nil {
			return err
		}
		d.SetProperty(key, value)
		return nil
	}, slog.String("key", key))
}

func checkProperty(key, value string) error {
	switch {
	case key == "" || strings.ContainsAny(key, " \t\r\n"):
		return fmt.Errorf("%w: key %q", ErrBadProperty, key)
	case key == "version" || key == "frames" || strings.HasPrefix(key, "//"):
		return fmt.Errorf("%w: reserved key %q", ErrBadProperty, key)
	case strings.ContainsAny(value, "\r\n") || strings.Contains(value, "//"):
		return fmt.Errorf("%w: value %q", ErrBadProperty, value)
	}
	return nil
}

// DeleteProperty removes a property. Removing a missing key is an error.
func (s *Session) DeleteProperty(ctx context.Context, key string) error {
	return s.edit(ctx, OpDelProp, func(d *hltas.Document) error {
		if _, ok := d.Property(key); !ok {
			return fmt.Errorf("%w: no property %q", ErrBadProperty, key)
		}
		d.RemoveProperty(key)
		return nil
	}, slog.String("key", key))
}

// Split splits the bulk at index after offset repeats.
func (s *Session) Split(ctx context.Context, index int, offset uint32) error {
	return s.edit(ctx, OpSplit, func(d *hltas.Document) error {
		return d.SplitBulk(index, offset)
	}, slog.Int("index", index), slog.Any("offset", offset))
}

// Remove deletes the frame at index.
func (s *Session) Remove(ctx context.Context, index int) error {
	return s.edit(ctx, OpRemove, func(d *hltas.Document) error {
		return d.RemoveFrame(index)
	}, slog.Int("index", index))
}

// Insert parses line as a frame and inserts it at index.
func (s *Session) Insert(ctx context.Context, index int, line string) error {
	return s.edit(ctx, OpInsert, func(d *hltas.Document) error {
		body, err := hltas.ParseFrameLine(line)
		if err != nil {
			return err
		}
		return d.InsertFrame(index, hltas.Frame{Body: body})
	}, slog.Int("index", index))
}

// SetRepeats changes the repeat count of the bulk at index.
func (s *Session) SetRepeats(ctx context.Context, index int, n uint32) error {
	return s.edit(ctx, OpRepeats, func(d *hltas.Document) error {
		f, err := d.Frame(index)
		if err != nil {
			return err
		}
		b, ok := f.Bulk()
		if !ok {
			return fmt.Errorf("%w: frame %d is %s", hltas.ErrNotBulk, index, f.Kind())
		}
		if err := b.SetRepeats(n); err != nil {
			return err
		}
		f.Body = b
		return d.SetFrame(index, f)
	}, slog.Int("index", index), slog.Any("repeats", n))
}

// SetComment replaces the comments above the frame at index. Each line of
// text becomes one comment line; empty text removes them.
func (s *Session) SetComment(ctx context.Context, index int, text string) error {
	return s.edit(ctx, OpComment, func(d *hltas.Document) error {
		f, err := d.Frame(index)
		if err != nil {
			return err
		}
		f.Comments = commentBlock(text)
		return d.SetFrame(index, f)
	}, slog.Int("index", index))
}

func commentBlock(text string) string {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if line != "" && !strings.HasPrefix(line, " ") {
			sb.WriteByte(' ')
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Undo reverts the last edit of this script.
func (s *Session) Undo(ctx context.Context) error {
	return s.step(ctx, OpUndo, s.undo.Undo, ErrNothingToUndo)
}

// Redo re-applies the last undone edit.
func (s *Session) Redo(ctx context.Context) error {
	return s.step(ctx, OpRedo, s.undo.Redo, ErrNothingToRedo)
}

func (s *Session) step(ctx context.Context, op string, pop func(string, []byte) (undo.Snapshot, bool), empty error) error {
	ctx, l := s.logger(ctx, op)
	snap, ok := pop(s.h.Path, []byte(s.h.Doc.String()))
	if !ok {
		return empty
	}
	if err := s.h.Doc.Parse(string(snap.Blob)); err != nil {
		// the stored text came from the serializer and must parse
		return fmt.Errorf("%s %s: %w", op, snap.Label, err)
	}
	s.dirty = true
	l.InfoContext(ctx, op+" applied", slog.String("edit", snap.Label))
	return nil
}

// Save writes the script, prunes old backups and records a history snapshot.
func (s *Session) Save(ctx context.Context) error {
	ctx, l := s.logger(ctx, "save")
	if err := storage.Save(s.h); err != nil {
		l.ErrorContext(ctx, "save failed", slog.Any("err", err))
		return err
	}
	s.dirty = false
	if n, err := storage.PruneBackups(s.h.Path, s.opts.BackupsKeep); err != nil {
		l.WarnContext(ctx, "prune backups failed", slog.Any("err", err))
	} else if n > 0 {
		l.DebugContext(ctx, "pruned backups", slog.Int("removed", n))
	}
	if s.opts.History {
		if err := storage.SaveScriptSnapshot(ctx, s.h, s.h.Doc.String(), s.now()); err != nil {
			l.WarnContext(ctx, "history snapshot failed", slog.Any("err", err))
		}
	}
	l.InfoContext(ctx, "script saved", slog.Int("frames", s.h.Doc.Len()))
	return nil
}

// Apply runs an operation returned by ParseOp.
func (s *Session) Apply(ctx context.Context, op Op) error {
	switch op.Name {
	case OpSetProp:
		return s.SetProperty(ctx, op.Args[0], strings.Join(op.Args[1:], " "))
	case OpDelProp:
		return s.DeleteProperty(ctx, op.Args[0])
	case OpSplit:
		return s.Split(ctx, op.index, op.count)
	case OpRemove:
		return s.Remove(ctx, op.index)
	case OpInsert:
		return s.Insert(ctx, op.index, strings.Join(op.Args[1:], " "))
	case OpRepeats:
		return s.SetRepeats(ctx, op.index, op.count)
	case OpComment:
		return s.SetComment(ctx, op.index, strings.ReplaceAll(strings.Join(op.Args[1:], " "), `\n`, "\n"))
	case OpUndo:
		return s.Undo(ctx)
	case OpRedo:
		return s.Redo(ctx)
	}
	return fmt.Errorf("%w: %q", ErrUnknownOp, op.Name)
}

// Op is one edit operation as written on the command line, e.g.
// "split 5 15" or "comment 2 route note".
type Op struct {
	Name string
	Args []string

	index int
	count uint32
}

// ParseOp parses an operation. Frame indexes are zero based.
func ParseOp(text string) (Op, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Op{}, fmt.Errorf("%w: empty", ErrUnknownOp)
	}
	op := Op{Name: fields[0], Args: fields[1:]}
	need := func(min int) error {
		if len(op.Args) < min {
			return fmt.Errorf("%w: %s needs %d", ErrOpArgs, op.Name, min)
		}
		return nil
	}
	switch op.Name {
	case OpUndo, OpRedo:
		if len(op.Args) != 0 {
			return Op{}, fmt.Errorf("%w: %s takes none", ErrOpArgs, op.Name)
		}
		return op, nil
	case OpSetProp, OpDelProp:
		if err := need(1); err != nil {
			return Op{}, err
		}
		return op, nil
	case OpRemove, OpComment:
		if err := need(1); err != nil {
			return Op{}, err
		}
	case OpInsert:
		if err := need(2); err != nil {
			return Op{}, err
		}
		// keep the frame line intact, including runs of spaces in commands
		rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), op.Name))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, fields[1]))
		op.Args = []string{fields[1], rest}
	case OpSplit, OpRepeats:
		if err := need(2); err != nil {
			return Op{}, err
		}
		n, err := strconv.ParseUint(op.Args[1], 10, 32)
		if err != nil {
			return Op{}, fmt.Errorf("%w: %s count %q", ErrOpArgs, op.Name, op.Args[1])
		}
		op.count = uint32(n)
	default:
		return Op{}, fmt.Errorf("%w: %q", ErrUnknownOp, op.Name)
	}
	i, err := strconv.Atoi(op.Args[0])
	if err != nil || i < 0 {
		return Op{}, fmt.Errorf("%w: frame index %q", ErrOpArgs, op.Args[0])
	}
	op.index = i
	return op, nil
}
