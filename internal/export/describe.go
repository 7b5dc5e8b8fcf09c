/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders scripts as a PDF report, a timeline PNG and
// schema-checked JSON, and imports that JSON back.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"hltaskit/internal/hltas"
)

// bulkFields is a frame bulk line split into its wire fields.
type bulkFields struct {
	Flags, Movement, Actions, Frametime, Target, Pitch, Repeats, Commands string
}

func splitBulkLine(line string) bulkFields {
	p := strings.SplitN(line, "|", 8)
	for len(p) < 8 {
		p = append(p, "")
	}
	return bulkFields{p[0], p[1], p[2], p[3], p[4], p[5], p[6], p[7]}
}

func strafeLabel(s hltas.Strafe) string {
	if !s.On {
		return "-"
	}
	return s.Type.String() + " " + s.Dir.String()
}

type namedAutofunc struct {
	name string
	af   hltas.Autofunc
}

func autofuncList(b hltas.Bulk) []namedAutofunc {
	all := []namedAutofunc{
		{"lgagst", b.Lgagst},
		{"autojump", b.Autojump},
		{"ducktap", b.Ducktap},
		{"jumpbug", b.Jumpbug},
		{"dbc", b.Dbc},
		{"dbg", b.Dbg},
		{"dwj", b.Dwj},
		{"attack1", b.Attack1Auto},
		{"attack2", b.Attack2Auto},
	}
	out := all[:0]
	for _, a := range all {
		if a.af.Enabled() {
			out = append(out, a)
		}
	}
	return out
}

func autofuncLabel(b hltas.Bulk) string {
	list := autofuncList(b)
	if len(list) == 0 {
		return "-"
	}
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = a.name
		if n, ok := a.af.Limit(); ok {
			parts[i] += fmt.Sprintf("(%d)", n)
		}
	}
	return strings.Join(parts, " ")
}

// commentLines returns the comment lines of a frame without the leading "//".
func commentLines(f hltas.Frame) []string {
	if f.Comments == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(f.Comments, "\n"), "\n")
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	return nil
}
