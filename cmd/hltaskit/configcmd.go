/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package main

import (
	"fmt"
	"text/tabwriter"

	"hltaskit/internal/config"
)

func cmdConfig(a *app, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	switch args[0] {
	case "path":
		p, err := config.ConfigPath()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(a.stdout, p)
		return nil
	case "list":
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		for _, k := range config.Keys() {
			v, _ := config.Get(a.cfg, k)
			if env, ok := config.EnvOverrideFor(k); ok {
				v += "\t(from " + env + ")"
			}
			_, _ = fmt.Fprintf(tw, "%s\t%s\n", k, v)
		}
		return tw.Flush()
	case "get":
		if len(args) != 2 {
			return usageErr("expected get <key>")
		}
		v, err := config.Get(a.cfg, args[1])
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(a.stdout, v)
		return nil
	case "set":
		if len(args) != 3 {
			return usageErr("expected set <key> <value>")
		}
		if err := config.Set(&a.cfg, args[1], args[2]); err != nil {
			return err
		}
		if env, ok := config.EnvOverrideFor(args[1]); ok {
			_, _ = fmt.Fprintf(a.stderr, "note: %s overrides %s at runtime\n", env, args[1])
		}
		return config.Save(a.cfg, "")
	}
	return usageErr("unknown config command %q", args[0])
}
