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

// yawTracker carries the strafing state from one bulk to the next. The first
// bulk of a strafing run must state its yaw unless the direction needs none.
type yawTracker struct {
	strafing bool
	dir      StrafeDir
}

// next records s and reports whether the bulk using it must carry a value in
// the yaw field.
func (t *yawTracker) next(s Strafe) bool {
	if !s.On {
		t.strafing = false
		return false
	}
	required := (!t.strafing || t.dir != s.Dir) && !s.Dir.directionless()
	t.strafing, t.dir = true, s.Dir
	return required
}

const bulkFields = 7

// decodeBulk decodes one frame bulk line. Errors carry no line number; the
// parser fills it in.
func decodeBulk(line string, yaw *yawTracker, caps Capabilities) (Bulk, error) {
	parts := strings.SplitN(line, "|", bulkFields+1)
	if len(parts) < bulkFields {
		return Bulk{}, FailFrame
	}
	for i := 0; i < bulkFields; i++ {
		parts[i] = strings.TrimSpace(parts[i])
	}

	b := Bulk{repeats: 1}
	if code := decodeAutofuncs(parts[0], &b, caps); code != OK {
		return Bulk{}, code
	}
	if !decodeKeys(parts[1], "flrbud", &b.Movement.Forward, &b.Movement.Left, &b.Movement.Right,
		&b.Movement.Back, &b.Movement.Up, &b.Movement.Down) {
		return Bulk{}, FailFrame
	}
	if !decodeKeys(parts[2], "jdu12r", &b.Actions.Jump, &b.Actions.Duck, &b.Actions.Use,
		&b.Actions.Attack1, &b.Actions.Attack2, &b.Actions.Reload) {
		return Bulk{}, FailFrame
	}

	if !startsNumeric(parts[3]) {
		return Bulk{}, FailFrame
	}
	b.Frametime = parts[3]

	required := yaw.next(b.strafe)
	if err := decodeTarget(parts[4], &b); err != nil {
		return Bulk{}, err
	}

	if p := parts[5]; p != "-" {
		v, err := parseFloat(p)
		if err != nil {
			return Bulk{}, newError(FailFrame, 0, err)
		}
		b.Pitch = Some(v)
	}

	if r := parts[6]; r != "-" {
		n, err := strconv.ParseUint(r, 10, 32)
		if err != nil {
			return Bulk{}, newError(FailFrame, 0, err)
		}
		if n > 0 {
			b.repeats = uint32(n)
		}
	}

	if len(parts) > bulkFields {
		b.Commands = parts[bulkFields]
	}

	if b.target == nil && required {
		return Bulk{}, NoYaw
	}
	return b, nil
}

// decodeAutofuncs reads field 0: the strafe block followed by one position
// per autofunc, each optionally followed by a times count.
func decodeAutofuncs(s string, b *Bulk, caps Capabilities) ErrorCode {
	if len(s) < 10 {
		return FailFrame
	}

	switch {
	case s[:3] == "---":
	case s[0] == 's' && isDigit(s[1]) && isDigit(s[2]):
		t, d := StrafeType(s[1]-'0'), StrafeDir(s[2]-'0')
		if t > caps.MaxStrafeType || d > caps.MaxStrafeDir {
			return FailFrame
		}
		if t == ConstYawspeed && d != DirLeft && d != DirRight {
			return UnsupportedYawspeedDir
		}
		b.strafe = Strafing(t, d)
	default:
		return FailFrame
	}

	pos := 3
	var ok bool

	switch s[pos] {
	case 'l', 'L':
		b.LgagstFullMaxspeed = s[pos] == 'L'
		if b.Lgagst, pos, ok = readAutofunc(s, pos+1); !ok {
			return FailFrame
		}
	case '-':
		pos++
	default:
		return FailFrame
	}

	if b.Autojump, pos, ok = readPosition(s, pos, 'j'); !ok {
		return FailFrame
	}

	if pos >= len(s) {
		return FailFrame
	}
	switch s[pos] {
	case 'd', 'D':
		b.Ducktap0ms = s[pos] == 'D'
		if b.Ducktap, pos, ok = readAutofunc(s, pos+1); !ok {
			return FailFrame
		}
	case '-':
		pos++
	default:
		return FailFrame
	}

	if b.Jumpbug, pos, ok = readPosition(s, pos, 'b'); !ok {
		return FailFrame
	}

	if code := b.checkAutofuncs(); code != OK {
		return code
	}

	if pos >= len(s) {
		return FailFrame
	}
	switch s[pos] {
	case 'c', 'C':
		b.DbcCeilings = s[pos] == 'C'
		if b.Dbc, pos, ok = readAutofunc(s, pos+1); !ok {
			return FailFrame
		}
	case '-':
		pos++
	default:
		return FailFrame
	}

	if b.Dbg, pos, ok = readPosition(s, pos, 'g'); !ok {
		return FailFrame
	}
	if b.Dwj, pos, ok = readPosition(s, pos, 'w'); !ok {
		return FailFrame
	}
	if pos != len(s) {
		return FailFrame
	}
	return OK
}

// readPosition reads a single-letter autofunc position: the letter with an
// optional count, or "-".
func readPosition(s string, pos int, letter byte) (Autofunc, int, bool) {
	if pos >= len(s) {
		return Off(), pos, false
	}
	switch s[pos] {
	case letter:
		return readAutofunc(s, pos+1)
	case '-':
		return Off(), pos + 1, true
	}
	return Off(), pos, false
}

func readAutofunc(s string, pos int) (Autofunc, int, bool) {
	n, next, ok := readNumber(s, pos)
	return Times(n), next, ok
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// decodeKeys reads a fixed-width key field where each position holds either
// its letter or "-".
func decodeKeys(s, letters string, keys ...*bool) bool {
	if len(s) != len(letters) {
		return false
	}
	for i := range letters {
		switch s[i] {
		case letters[i]:
			*keys[i] = true
		case '-':
			*keys[i] = false
		default:
			return false
		}
	}
	return true
}

// decodeTarget reads field 4 according to the strafe settings already set
// on b. A "-" leaves the target empty; whether that is allowed is decided
// after the remaining fields.
func decodeTarget(s string, b *Bulk) error {
	if !startsNumeric(s) {
		return FailFrame
	}
	kind := b.strafe.TargetKind()
	if s == "-" {
		if kind == TargetYawspeed {
			return NoYawspeed
		}
		return nil
	}
	switch kind {
	case TargetYawAngle:
		v, err := parseFloat(s)
		if err != nil {
			return newError(FailFrame, 0, err)
		}
		b.target = YawTarget{Yaw: v}
	case TargetPointXY:
		xy := strings.Fields(s)
		if len(xy) != 2 {
			return FailFrame
		}
		x, err := parseFloat(xy[0])
		if err != nil {
			return newError(FailFrame, 0, err)
		}
		y, err := parseFloat(xy[1])
		if err != nil {
			return newError(FailFrame, 0, err)
		}
		b.target = PointTarget{X: x, Y: y}
	case TargetCountN:
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return newError(FailFrame, 0, err)
		}
		b.target = CountTarget{Count: uint32(n)}
	case TargetYawspeed:
		v, err := parseFloat(s)
		if err != nil {
			return newError(FailFrame, 0, err)
		}
		b.target = YawspeedTarget{Speed: v}
	default:
		return FailFrame
	}
	return nil
}
