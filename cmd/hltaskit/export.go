/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"hltaskit/internal/export"
	"hltaskit/internal/storage"
)

func cmdExport(a *app, args []string) error {
	fs := a.flags("export")
	out := fs.StringP("output", "o", "", "output file, defaults to the script name with the format extension")
	title := fs.String("title", "", "document title (pdf, png)")
	pageSize := fs.String("page-size", "A4", "page size (pdf)")
	portrait := fs.Bool("portrait", false, "portrait orientation (pdf)")
	noComments := fs.Bool("no-comments", false, "leave frame comments out (pdf)")
	width := fs.Int("width", 0, "image width in pixels (png)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return usageErr("expected <pdf|json|png> <file>")
	}
	format, path := strings.ToLower(fs.Arg(0)), fs.Arg(1)
	if *out == "" {
		*out = strings.TrimSuffix(path, filepath.Ext(path)) + "." + format
	}
	if *title == "" {
		*title = filepath.Base(path)
	}
	h, err := a.openScript(path)
	if err != nil {
		return err
	}
	err = guard(h, func() error {
		switch format {
		case "pdf":
			return export.ExportPDF(h.Doc, *out, export.PDFOptions{Title: *title, PageSize: *pageSize, Portrait: *portrait, SkipComments: *noComments})
		case "json":
			return export.WriteJSON(h.Doc, *out)
		case "png":
			return export.ExportPNG(h.Doc, *out, export.PNGOptions{Title: *title, Width: *width})
		}
		return usageErr("unknown format %q", format)
	})
	if err != nil {
		return err
	}
	a.log.Info("exported", slog.String("format", format), slog.String("out", *out))
	_, _ = fmt.Fprintln(a.stdout, *out)
	return nil
}

func cmdImport(a *app, args []string) error {
	fs := a.flags("import")
	out := fs.StringP("output", "o", "", "script to write")
	force := fs.BoolP("force", "f", false, "replace an existing script")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 || strings.ToLower(fs.Arg(0)) != "json" {
		return usageErr("expected json <in>")
	}
	in := fs.Arg(1)
	if *out == "" {
		*out = strings.TrimSuffix(in, filepath.Ext(in)) + ".hltas"
	}
	doc, err := export.ReadJSON(in)
	if err != nil {
		return err
	}
	h := &storage.ScriptHandle{Path: *out, Doc: doc}
	if *force {
		err = guard(h, func() error { return storage.Save(h) })
	} else {
		_, err = storage.CreateScript(*out, doc)
	}
	if err != nil {
		return err
	}
	a.log.Info("imported", slog.String("in", in), slog.String("out", *out), slog.Int("frames", doc.Len()))
	_, _ = fmt.Fprintln(a.stdout, *out)
	return nil
}
