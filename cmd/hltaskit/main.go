/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Command hltaskit checks, formats, edits, indexes, exports and publishes
// hltas scripts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/pflag"

	"hltaskit/internal/config"
	"hltaskit/internal/crash"
	"hltaskit/internal/hltas"
	applog "hltaskit/internal/log"
	"hltaskit/internal/storage"
	"hltaskit/internal/telemetry"
	"hltaskit/internal/version"
)

// errUsage marks bad command lines; it maps to exitUsage.
var errUsage = errors.New("usage")

// Exit codes outside the hltas error code range.
const (
	exitUsage   = 64
	exitFailure = 70
)

type command struct {
	summary string
	run     func(a *app, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"version": {"print the version", cmdVersion},
		"new":     {"create a script: new <file>", cmdNew},
		"check":   {"parse scripts and report errors: check <file>...", cmdCheck},
		"fmt":     {"rewrite scripts in canonical form: fmt [-w|--check] <file>...", cmdFmt},
		"show":    {"summarize a script: show [--frames] <file>", cmdShow},
		"split":   {"split a frame bulk: split <file> <index> <offset>", cmdSplit},
		"edit":    {"apply edit operations: edit <file> -e <op>...", cmdEdit},
		"index":   {"catalog the scripts under a directory: index [--list] [dir]", cmdIndex},
		"search":  {"search the catalog: search [-q text] [--kind k] [dir]", cmdSearch},
		"export":  {"export a script: export pdf|json|png <file> [-o out]", cmdExport},
		"import":  {"import a script: import json <in> -o <file>", cmdImport},
		"publish": {"publish a script to the catalog server: publish <file>", cmdPublish},
		"remote":  {"talk to the catalog server: remote login|logout|list|get", cmdRemote},
		"serve":   {"run the catalog server", cmdServe},
		"config":  {"show or change settings: config list|get|set|path", cmdConfig},
	}
}

// app carries what every command needs.
type app struct {
	cfg    config.AppConfig
	token  string
	stdout io.Writer
	stderr io.Writer
	log    *slog.Logger
	ctx    context.Context
}

func main() {
	defer crash.Recover(nil)
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, token, cfgErr := config.Load()
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Console:   stderr,
	})
	l := applog.WithComponent("cli")
	if cfgErr != nil {
		l.Warn("config not loaded, using defaults", slog.Any("err", cfgErr))
	}
	tcfg := telemetry.FromEnv()
	tcfg.OptIn = tcfg.OptIn || cfg.General.TelemetryOptIn
	telemetry.NewDefault(tcfg)
	storage.SetIndexDir(cfg.Script.IndexDir)

	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stdout)
		if len(args) == 0 {
			return exitUsage
		}
		return 0
	}
	name := args[0]
	if name == "-v" || name == "--version" {
		name = "version"
	}
	cmd, ok := commands[name]
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(stderr)
		return exitUsage
	}

	a := &app{cfg: cfg, token: token, stdout: stdout, stderr: stderr, log: applog.WithOperation(l, name), ctx: ctx}
	start := time.Now()
	a.log.Debug("start", slog.Int("args", len(args)-1))
	err := cmd.run(a, args[1:])
	code := exitCode(err)
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		_, _ = fmt.Fprintf(stderr, "%s: %v\n", name, err)
		a.log.Debug("command failed", slog.Any("err", err), slog.Int("code", code))
	}

	telemetry.Command(name, code, time.Since(start))
	fctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	telemetry.Default().Flush(fctx)
	return code
}

// exitCode is the hltas error code for codec failures, exitUsage for bad
// command lines and exitFailure for everything else.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if errors.Is(err, errUsage) {
		return exitUsage
	}
	var he *hltas.Error
	if errors.As(err, &he) {
		return int(he.Code)
	}
	var code hltas.ErrorCode
	if errors.As(err, &code) && code != hltas.OK {
		return int(code)
	}
	return exitFailure
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintf(w, "hltaskit %s\n\nUsage:\n  hltaskit <command> [flags] [args]\n\nCommands:\n", version.String())
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		_, _ = fmt.Fprintf(w, "  %-8s %s\n", n, commands[n].summary)
	}
}

// flags returns a flag set for a subcommand that reports to stderr.
func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	fs.SortFlags = false
	return fs
}

func usageErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errUsage}, args...)...)
}

// guard runs fn with panic recovery bound to the script it works on.
func guard(h *storage.ScriptHandle, fn func() error) error {
	defer crash.Recover(h)
	return fn()
}

func (a *app) openScript(path string) (*storage.ScriptHandle, error) {
	h, err := storage.OpenScript(path)
	if err != nil {
		return nil, err
	}
	if h.Recovered != "" {
		_, _ = fmt.Fprintf(a.stderr, "warning: %s could not be read; loaded backup %s\n", path, h.Recovered)
	}
	return h, nil
}

func cmdVersion(a *app, args []string) error {
	_, _ = fmt.Fprintf(a.stdout, "hltaskit %s\n", version.String())
	return nil
}
