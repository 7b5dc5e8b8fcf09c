/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package hltas

import (
	"io"
	"sort"
	"strconv"
	"strings"
)

// lineWriter writes newline-terminated lines and remembers the first error
// together with the output line it happened on.
type lineWriter struct {
	w    io.Writer
	n    int64
	line int
	err  *Error
}

func (lw *lineWriter) writeLine(s string) {
	if lw.err != nil {
		return
	}
	lw.line++
	n, err := io.WriteString(lw.w, s+"\n")
	lw.n += int64(n)
	if err != nil {
		lw.err = newError(FailWrite, lw.line, err)
	}
}

// write serializes st. Frames are written as they are; they are not
// validated again.
func write(w io.Writer, st state) (int64, error) {
	lw := &lineWriter{w: w}
	lw.writeLine("version " + strconv.Itoa(st.version))

	keys := make([]string, 0, len(st.properties))
	for k := range st.properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := st.properties[k]; v != "" {
			lw.writeLine(k + " " + v)
		} else {
			lw.writeLine(k)
		}
	}

	lw.writeLine("frames")
	for _, f := range st.frames {
		for _, c := range commentLines(f.Comments) {
			lw.writeLine("//" + c)
		}
		lw.writeLine(encodeFrame(f))
	}
	if lw.err != nil {
		return lw.n, lw.err
	}
	return lw.n, nil
}

func commentLines(comments string) []string {
	if comments == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(comments, "\n"), "\n")
}

// encodeFrame renders the frame body as a single line.
func encodeFrame(f Frame) string {
	switch b := f.Body.(type) {
	case Save:
		return "save " + b.Name
	case Seed:
		return "seed " + strconv.FormatUint(uint64(b.Value), 10)
	case Buttons:
		if b.Clear {
			return "buttons"
		}
		return "buttons " + strings.Join([]string{
			buttonDigit(b.AirLeft), buttonDigit(b.AirRight),
			buttonDigit(b.GroundLeft), buttonDigit(b.GroundRight),
		}, " ")
	case LgagstMinSpeed:
		return "lgagstminspeed " + formatFloat(b.Speed)
	case Reset:
		return "reset " + strconv.FormatInt(b.Seed, 10)
	case StrafingAlgorithm:
		return "strafing " + b.Algorithm.String()
	case TargetYaw:
		return "target_yaw " + formatConstraint(b.Constraint)
	case Change:
		return "change " + b.Target.String() + " to " + formatFloat(b.Final) + " over " + formatFloat(b.Over) + " s"
	case TargetYawOverride:
		parts := make([]string, 0, len(b.Yaws)+1)
		parts = append(parts, "target_yaw_override")
		for _, y := range b.Yaws {
			parts = append(parts, formatFloat(y))
		}
		return strings.Join(parts, " ")
	}
	bulk, _ := f.Bulk()
	return encodeBulk(bulk)
}

func buttonDigit(b Button) string { return strconv.Itoa(int(b)) }

// String renders the frame body as its script line, without comments.
func (f Frame) String() string { return encodeFrame(f) }
