/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	"hltaskit/internal/backend"
	"hltaskit/internal/storage"
)

func cmdIndex(a *app, args []string) error {
	fs := a.flags("index")
	list := fs.BoolP("list", "l", false, "list the catalog instead of rebuilding it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	root, err := rootArg(fs.Args())
	if err != nil {
		return err
	}
	if *list {
		scripts, err := storage.ListIndexed(a.ctx, root)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "PATH\tVERSION\tFRAMES\tREPEATS\tINDEXED")
		for _, s := range scripts {
			_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", s.Path, s.Version, s.FrameCount, s.TotalRepeats, s.IndexedAt.Local().Format(time.DateTime))
		}
		return tw.Flush()
	}
	start := time.Now()
	n, err := storage.RebuildIndex(a.ctx, root)
	if err != nil {
		return err
	}
	a.log.Info("catalog rebuilt", slog.String("root", root), slog.Int("scripts", n), slog.Duration("took", time.Since(start)))
	_, _ = fmt.Fprintf(a.stdout, "indexed %d script(s) under %s\n", n, root)
	return nil
}

func cmdSearch(a *app, args []string) error {
	fs := a.flags("search")
	var q storage.SearchQuery
	fs.StringVarP(&q.Text, "query", "q", "", "full-text query over comments, save names and commands")
	fs.StringSliceVarP(&q.Kinds, "kind", "k", nil, "frame kinds to keep, e.g. bulk,save")
	fs.StringVarP(&q.Script, "script", "s", "", "keep scripts whose path contains this")
	fs.StringVarP(&q.Property, "property", "p", "", "keep scripts with this property, key or key=value")
	fs.IntVar(&q.Limit, "limit", 50, "maximum results")
	fs.IntVar(&q.Offset, "offset", 0, "results to skip")
	remote := fs.Bool("remote", false, "search the catalog server instead of the local catalog")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		res []storage.SearchResult
		err error
	)
	if *remote {
		if fs.NArg() > 0 {
			return usageErr("--remote takes no directory")
		}
		res, err = a.client().Search(a.ctx, q)
	} else {
		var root string
		if root, err = rootArg(fs.Args()); err != nil {
			return err
		}
		if err = storage.BuildIndexIfEmpty(a.ctx, root); err != nil {
			return err
		}
		res, err = storage.Search(a.ctx, root, q)
	}
	if err != nil {
		return err
	}
	for _, r := range res {
		text := r.Snippet
		if text == "" {
			text = r.Line
		}
		_, _ = fmt.Fprintf(a.stdout, "%s:%d: %s: %s\n", r.Script, r.Index, r.Kind, text)
	}
	if len(res) == 0 {
		a.log.Info("no matches")
	}
	return nil
}

func rootArg(args []string) (string, error) {
	switch len(args) {
	case 0:
		return ".", nil
	case 1:
		return args[0], nil
	}
	return "", usageErr("expected at most one directory")
}

func (a *app) client() *backend.Client {
	return backend.NewClient(a.cfg.Catalog.BaseURL, a.token, backend.ClientOptions{
		Timeout:     a.cfg.Catalog.EffectiveTimeout(),
		TLSInsecure: a.cfg.Catalog.TLSInsecure,
	})
}
