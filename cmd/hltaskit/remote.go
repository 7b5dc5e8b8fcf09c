/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"hltaskit/internal/backend"
	"hltaskit/internal/config"
	"hltaskit/internal/hltas"
	"hltaskit/internal/storage"
)

// asScriptError turns a rejected publish back into the script error it reports.
func asScriptError(err error) error {
	var ae *backend.APIError
	if errors.As(err, &ae) && ae.Code != 0 {
		return &hltas.Error{Code: hltas.ErrorCode(ae.Code), Line: ae.Line, Err: err}
	}
	return err
}

func cmdPublish(a *app, args []string) error {
	fs := a.flags("publish")
	name := fs.String("name", "", "catalog name, defaults to the file name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("expected one file")
	}
	c := a.client()
	path := fs.Arg(0)
	h, err := storage.OpenScript(path)
	if err != nil {
		return err
	}
	if h.Recovered != "" {
		return fmt.Errorf("%s could not be read (a backup exists: %s)", path, h.Recovered)
	}
	if *name == "" {
		*name = filepath.Base(path)
	}
	info, err := c.Publish(a.ctx, *name, h.Doc.String())
	if err != nil {
		return asScriptError(err)
	}
	a.log.Info("published", slog.String("name", info.Name), slog.Int64("id", info.ID), slog.Int64("revision", info.Revision))
	_, _ = fmt.Fprintf(a.stdout, "%s: id %d, revision %d\n", info.Name, info.ID, info.Revision)
	return nil
}

func cmdRemote(a *app, args []string) error {
	if len(args) == 0 {
		return usageErr("expected login, logout, list, get or delete")
	}
	sub, args := args[0], args[1:]
	switch sub {
	case "login":
		return remoteLogin(a, args)
	case "logout":
		if err := config.DeleteToken(); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(a.stdout, "token removed")
		return nil
	case "list":
		return remoteList(a, args)
	case "get":
		return remoteGet(a, args)
	case "delete":
		return remoteDelete(a, args)
	}
	return usageErr("unknown remote command %q", sub)
}

func remoteLogin(a *app, args []string) error {
	fs := a.flags("remote login")
	subject := fs.String("subject", "", "token subject, defaults to the user name")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := a.client()
	if *subject == "" {
		*subject = os.Getenv("USER")
	}
	tr, err := c.RequestToken(a.ctx, *subject, *ttl)
	if err != nil {
		return err
	}
	if err := config.Save(a.cfg, tr.Token); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.stdout, "logged in, token expires %s\n", tr.ExpiresAt)
	return nil
}

func remoteList(a *app, args []string) error {
	fs := a.flags("remote list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c := a.client()
	list, err := c.ListScripts(a.ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tREV\tFRAMES\tREPEATS\tOWNER\tUPDATED")
	for _, s := range list {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\t%s\n", s.ID, s.Name, s.Revision, s.FrameCount, s.TotalRepeats, s.Owner, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func remoteGet(a *app, args []string) error {
	fs := a.flags("remote get")
	out := fs.StringP("output", "o", "", "write the script here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("expected a script id")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return usageErr("invalid script id %q", fs.Arg(0))
	}
	c := a.client()
	s, err := c.GetScript(a.ctx, id)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = io.WriteString(a.stdout, s.Text)
		return err
	}
	doc, err := hltas.Parse(s.Text)
	if err != nil {
		return err
	}
	h := &storage.ScriptHandle{Path: *out, Doc: doc}
	return guard(h, func() error { return storage.Save(h) })
}

func remoteDelete(a *app, args []string) error {
	fs := a.flags("remote delete")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageErr("expected a script id")
	}
	id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
	if err != nil {
		return usageErr("invalid script id %q", fs.Arg(0))
	}
	c := a.client()
	return c.DeleteScript(a.ctx, id)
}

func cmdServe(a *app, args []string) error {
	fs := a.flags("serve")
	listen := fs.String("listen", a.cfg.Catalog.Listen, "http bind address")
	dsn := fs.String("dsn", a.cfg.Catalog.DSN, "postgres connection string")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(a.ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return backend.Start(ctx, backend.Config{DSN: *dsn, Addr: *listen})
}
