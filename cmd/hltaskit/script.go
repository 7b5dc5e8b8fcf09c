/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"hltaskit/internal/editor"
	"hltaskit/internal/hltas"
	applog "hltaskit/internal/log"
	"hltaskit/internal/storage"
)

func cmdNew(a *app, args []string) error {
	fs := a.flags("new")
	force := fs.BoolP("force", "f", false, "overwrite an existing file")
	frametime := fs.String("frametime", a.cfg.Script.Frametime, "frametime of the initial bulk")
	empty := fs.Bool("empty", false, "write no initial bulk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("expected one file")
	}
	path := fs.Arg(0)

	doc := hltas.New()
	for k, v := range a.cfg.Script.Properties {
		doc.SetProperty(k, v)
	}
	if !*empty {
		doc.PushFrame(hltas.Frame{Body: hltas.NewBulk(*frametime)})
	}
	if *force {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	h, err := storage.CreateScript(path, doc)
	if err != nil {
		return err
	}
	a.log.Info("script created", slog.String("path", h.Path), slog.Int("frames", h.Doc.Len()))
	_, _ = fmt.Fprintln(a.stdout, h.Path)
	return nil
}

// cmdCheck parses every file and reports the first error of each. The exit
// code is the code of the last failing file.
func cmdCheck(a *app, args []string) error {
	fs := a.flags("check")
	quiet := fs.BoolP("quiet", "q", false, "print nothing for valid scripts")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErr("expected at least one file")
	}
	var last error
	for _, path := range fs.Args() {
		doc, err := hltas.ReadFile(path)
		if err != nil {
			if d := hltas.Describe(err); d.Line > 0 {
				_, _ = fmt.Fprintf(a.stdout, "%s:%d: %s (code %d)\n", path, d.Line, d.Code.Message(), int(d.Code))
			} else {
				_, _ = fmt.Fprintf(a.stdout, "%s: %v (code %d)\n", path, err, exitCode(err))
			}
			last = err
			continue
		}
		if !*quiet {
			_, _ = fmt.Fprintf(a.stdout, "%s: ok, version %d, %d frames\n", path, doc.Version(), doc.Len())
		}
	}
	return last
}

func cmdFmt(a *app, args []string) error {
	fs := a.flags("fmt")
	write := fs.BoolP("write", "w", false, "write the result back to the file")
	check := fs.Bool("check", false, "list files whose formatting differs and fail")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return usageErr("expected at least one file")
	}
	var differ []string
	for _, path := range fs.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		doc, err := hltas.Parse(string(raw))
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out := doc.String()
		switch {
		case *check:
			if out != string(raw) {
				differ = append(differ, path)
				_, _ = fmt.Fprintln(a.stdout, path)
			}
		case *write:
			if out == string(raw) {
				continue
			}
			h := &storage.ScriptHandle{Path: path, Doc: doc}
			if err := guard(h, func() error { return storage.Save(h) }); err != nil {
				return err
			}
			a.log.Info("formatted", slog.String("path", path))
		default:
			_, _ = io.WriteString(a.stdout, out)
		}
	}
	if len(differ) > 0 {
		return fmt.Errorf("%d file(s) not formatted", len(differ))
	}
	return nil
}

func cmdShow(a *app, args []string) error {
	fs := a.flags("show")
	frames := fs.Bool("frames", false, "list every frame")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("expected one file")
	}
	h, err := a.openScript(fs.Arg(0))
	if err != nil {
		return err
	}
	doc := h.Doc
	w := a.stdout
	_, _ = fmt.Fprintf(w, "version:  %d\n", doc.Version())
	props := doc.Properties()
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "property: %s %s\n", k, props[k])
	}

	counts := map[string]int{}
	var total uint64
	all := doc.Frames()
	for _, f := range all {
		counts[f.Kind().String()]++
		if b, ok := f.Bulk(); ok {
			total += uint64(b.Repeats())
		}
	}
	_, _ = fmt.Fprintf(w, "frames:   %d (%d game frames)\n", len(all), total)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "  %-20s %d\n", k, counts[k])
	}
	if *frames {
		for i, f := range all {
			_, _ = fmt.Fprintf(w, "%4d %-20s %s\n", i, f.Kind(), f)
		}
	}
	return nil
}

func cmdSplit(a *app, args []string) error {
	fs := a.flags("split")
	dry := fs.BoolP("dry-run", "n", false, "print the result instead of saving")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return usageErr("expected <file> <index> <offset>")
	}
	return a.editScript(fs.Arg(0), []string{"split " + fs.Arg(1) + " " + fs.Arg(2)}, *dry)
}

func cmdEdit(a *app, args []string) error {
	fs := a.flags("edit")
	ops := fs.StringArrayP("exec", "e", nil, "edit operation, repeatable; read from stdin when absent")
	dry := fs.BoolP("dry-run", "n", false, "print the result instead of saving")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("expected one file")
	}
	lines := *ops
	if len(lines) == 0 {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			l := strings.TrimSpace(sc.Text())
			if l == "" || strings.HasPrefix(l, "#") {
				continue
			}
			lines = append(lines, l)
		}
		if err := sc.Err(); err != nil {
			return err
		}
	}
	if len(lines) == 0 {
		return usageErr("no edit operations")
	}
	return a.editScript(fs.Arg(0), lines, *dry)
}

// editScript applies ops in order and saves once when all of them succeed.
func (a *app) editScript(path string, lines []string, dry bool) error {
	ops := make([]editor.Op, 0, len(lines))
	for i, l := range lines {
		op, err := editor.ParseOp(l)
		if err != nil {
			return usageErr("operation %d: %v", i+1, err)
		}
		ops = append(ops, op)
	}
	h, err := a.openScript(path)
	if err != nil {
		return err
	}
	return guard(h, func() error {
		ctx := applog.WithScript(a.ctx, h.Path)
		s := editor.NewSession(h, nil, editor.Options{BackupsKeep: a.cfg.General.BackupsKeep, History: !dry})
		for i, op := range ops {
			if err := s.Apply(ctx, op); err != nil {
				h.Doc.SetErrorMessage(fmt.Sprintf("%s: %v", lines[i], err))
				return fmt.Errorf("operation %d (%s): %w", i+1, lines[i], err)
			}
		}
		if dry {
			_, _ = io.WriteString(a.stdout, h.Doc.String())
			return nil
		}
		if !s.Dirty() {
			return nil
		}
		if err := s.Save(ctx); err != nil {
			return err
		}
		a.reindex(ctx, h)
		return nil
	})
}

// reindex refreshes the catalog next to h when one exists.
func (a *app) reindex(ctx context.Context, h *storage.ScriptHandle) {
	if _, err := os.Stat(storage.IndexPath(h.Dir())); err != nil {
		return
	}
	if err := storage.UpdateIndex(ctx, h.Dir(), h); err != nil {
		a.log.Warn("catalog update failed", slog.String("path", h.Path), slog.Any("err", err))
	}
}
