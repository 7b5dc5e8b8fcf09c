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
	"strconv"
	"strings"
)

// encodeBulk renders b as a frame bulk line without the trailing newline.
func encodeBulk(b Bulk) string {
	var sb strings.Builder
	encodeAutofuncs(&sb, b)
	sb.WriteByte('|')
	encodeKeys(&sb, "flrbud", b.Movement.Forward, b.Movement.Left, b.Movement.Right,
		b.Movement.Back, b.Movement.Up, b.Movement.Down)
	sb.WriteByte('|')
	encodeKeys(&sb, "jdu12r", b.Actions.Jump, b.Actions.Duck, b.Actions.Use,
		b.Actions.Attack1, b.Actions.Attack2, b.Actions.Reload)
	sb.WriteByte('|')
	sb.WriteString(b.Frametime)
	sb.WriteByte('|')
	sb.WriteString(encodeTarget(b.target))
	sb.WriteByte('|')
	if p, ok := b.Pitch.Get(); ok {
		sb.WriteString(formatFloat(p))
	} else {
		sb.WriteByte('-')
	}
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatUint(uint64(b.Repeats()), 10))
	sb.WriteByte('|')
	sb.WriteString(b.Commands)
	return sb.String()
}

func encodeAutofuncs(sb *strings.Builder, b Bulk) {
	if b.strafe.On {
		sb.WriteByte('s')
		sb.WriteByte('0' + byte(b.strafe.Type))
		sb.WriteByte('0' + byte(b.strafe.Dir))
	} else {
		sb.WriteString("---")
	}
	encodeAutofunc(sb, b.Lgagst, pick(b.LgagstFullMaxspeed, 'L', 'l'))
	encodeAutofunc(sb, b.Autojump, 'j')
	encodeAutofunc(sb, b.Ducktap, pick(b.Ducktap0ms, 'D', 'd'))
	encodeAutofunc(sb, b.Jumpbug, 'b')
	encodeAutofunc(sb, b.Dbc, pick(b.DbcCeilings, 'C', 'c'))
	encodeAutofunc(sb, b.Dbg, 'g')
	encodeAutofunc(sb, b.Dwj, 'w')
}

func pick(cond bool, yes, no byte) byte {
	if cond {
		return yes
	}
	return no
}

func encodeAutofunc(sb *strings.Builder, a Autofunc, letter byte) {
	if !a.Enabled() {
		sb.WriteByte('-')
		return
	}
	sb.WriteByte(letter)
	if n, ok := a.Limit(); ok {
		sb.WriteString(strconv.FormatUint(uint64(n), 10))
	}
}

func encodeKeys(sb *strings.Builder, letters string, keys ...bool) {
	for i, on := range keys {
		if on {
			sb.WriteByte(letters[i])
		} else {
			sb.WriteByte('-')
		}
	}
}

func encodeTarget(t Target) string {
	switch t := t.(type) {
	case YawTarget:
		return formatFloat(t.Yaw)
	case PointTarget:
		return formatFloat(t.X) + " " + formatFloat(t.Y)
	case CountTarget:
		return strconv.FormatUint(uint64(t.Count), 10)
	case YawspeedTarget:
		return formatFloat(t.Speed)
	}
	return "-"
}
