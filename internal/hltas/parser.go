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
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode"
)

// maxLineBytes bounds a single script line. Command strings can be long.
const maxLineBytes = 1 << 20

// state is the parsed content of a document, built off to the side and
// swapped into a Document only when parsing succeeds.
type state struct {
	version    int
	properties map[string]string
	frames     []Frame
}

// located turns a decoding failure into an *Error at line.
func located(line int, err error) *Error {
	var he *Error
	if errors.As(err, &he) {
		return newError(he.Code, line, he.Err)
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return newError(code, line, nil)
	}
	return newError(FailFrame, line, err)
}

// parse reads a whole script. It stops at the first error.
func parse(r io.Reader) (state, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0

	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		lineNo++
		return strings.TrimRight(sc.Text(), "\r"), true
	}

	st := state{properties: map[string]string{}}

	first, ok := next()
	if !ok {
		if err := sc.Err(); err != nil {
			return state{}, newError(FailLine, 1, err)
		}
		return state{}, newError(FailVer, 1, nil)
	}
	v, err := parseVersionLine(first)
	if err != nil {
		return state{}, err
	}
	caps, _ := CapabilitiesFor(v)
	st.version = v

	// Property block.
	inFrames := false
	for !inFrames {
		raw, ok := next()
		if !ok {
			break
		}
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}
		if line == "frames" {
			inFrames = true
			break
		}
		key, value := splitProperty(line)
		st.properties[key] = value
	}
	if !inFrames {
		if err := sc.Err(); err != nil {
			return state{}, newError(FailLine, lineNo+1, err)
		}
		// the frames line is mandatory, even with no frames after it
		return state{}, newError(FailLine, lineNo+1, nil)
	}

	// Frame block.
	var comments strings.Builder
	yaw := yawTracker{}
	for inFrames {
		raw, ok := next()
		if !ok {
			break
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if c, isComment := strings.CutPrefix(line, "//"); isComment {
			comments.WriteString(c)
			comments.WriteByte('\n')
			continue
		}
		// commands run to the end of the physical line, trailing blanks included
		body, err := classify(strings.TrimLeftFunc(raw, unicode.IsSpace), &yaw, caps)
		if err != nil {
			return state{}, located(lineNo, err)
		}
		st.frames = append(st.frames, Frame{Comments: comments.String(), Body: body})
		comments.Reset()
	}
	if err := sc.Err(); err != nil {
		return state{}, newError(FailLine, lineNo+1, err)
	}
	return st, nil
}

func parseVersionLine(line string) (int, error) {
	key, value := splitProperty(strings.TrimSpace(line))
	if key != "version" {
		return 0, newError(FailVer, 1, nil)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, newError(FailVer, 1, err)
	}
	if v <= 0 {
		return 0, newError(FailVer, 1, nil)
	}
	if v > MaxSupportedVersion {
		return 0, newError(NotSupported, 1, nil)
	}
	return v, nil
}

// classify decodes one non-comment frame line: a directive recognised by its
// keyword, or otherwise a frame bulk.
func classify(line string, yaw *yawTracker, caps Capabilities) (Body, error) {
	key, value := splitProperty(line)
	switch key {
	case "save":
		if value == "" {
			return nil, NoSaveName
		}
		return Save{Name: value}, nil

	case "seed":
		if value == "" {
			return nil, NoSeed
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, newError(FailFrame, 0, err)
		}
		return Seed{Value: uint32(n)}, nil

	case "buttons":
		return parseButtons(line)

	case "lgagstminspeed":
		if value == "" {
			return nil, NoLgagstMinSpeed
		}
		f, err := parseFloat(value)
		if err != nil {
			return nil, newError(FailFrame, 0, err)
		}
		return LgagstMinSpeed{Speed: f}, nil

	case "reset":
		if value == "" {
			return nil, NoResetSeed
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, newError(FailFrame, 0, err)
		}
		return Reset{Seed: n}, nil

	case "strafing":
		if !caps.StrafingAlgorithm {
			return nil, FailFrame
		}
		switch value {
		case "yaw":
			return StrafingAlgorithm{Algorithm: AlgorithmYaw}, nil
		case "vectorial":
			return StrafingAlgorithm{Algorithm: AlgorithmVectorial}, nil
		}
		return nil, InvalidAlgorithm

	case "target_yaw_override":
		if !caps.TargetYawOverride {
			return nil, FailFrame
		}
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return nil, FailFrame
		}
		yaws := make([]float64, 0, len(fields))
		for _, f := range fields {
			y, err := parseFloat(f)
			if err != nil {
				return nil, newError(FailFrame, 0, err)
			}
			yaws = append(yaws, y)
		}
		return TargetYawOverride{Yaws: yaws}, nil

	case "target_yaw":
		if !caps.TargetYaw {
			return nil, FailFrame
		}
		c, code := parseConstraint(value)
		if code != OK {
			return nil, code
		}
		return TargetYaw{Constraint: c}, nil

	case "change":
		if !caps.Change {
			return nil, FailFrame
		}
		return parseChange(value)
	}

	b, err := decodeBulk(line, yaw, caps)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// parseButtons accepts "buttons" alone or followed by exactly four button
// digits in the order air left, air right, ground left, ground right.
func parseButtons(line string) (Body, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 1:
		return Buttons{Clear: true}, nil
	case 5:
		var bs [4]Button
		for i, f := range fields[1:] {
			if len(f) != 1 || f[0] < '0' || f[0] > '7' {
				return nil, NoButtons
			}
			bs[i] = Button(f[0] - '0')
		}
		return Buttons{AirLeft: bs[0], AirRight: bs[1], GroundLeft: bs[2], GroundRight: bs[3]}, nil
	}
	return nil, NoButtons
}

// parseChange reads "<target> to <value> over <seconds> s".
func parseChange(value string) (Body, error) {
	f := strings.Fields(value)
	if len(f) != 6 || f[1] != "to" || f[3] != "over" || f[5] != "s" {
		return nil, FailFrame
	}
	var c Change
	switch f[0] {
	case "yaw":
		c.Target = ChangeYaw
	case "pitch":
		c.Target = ChangePitch
	case "target_yaw":
		c.Target = ChangeTargetYaw
	case "target_yaw_offset":
		c.Target = ChangeTargetYawOffset
	default:
		return nil, FailFrame
	}
	var err error
	if c.Final, err = parseFloat(f[2]); err != nil {
		return nil, newError(FailFrame, 0, err)
	}
	if c.Over, err = parseFloat(f[4]); err != nil {
		return nil, newError(FailFrame, 0, err)
	}
	return c, nil
}

// ParseFrameLine decodes a single frame line outside of a document. Strafing
// bulks are decoded as if they started a run, so yaw directions need a value.
func ParseFrameLine(line string) (Body, error) {
	line = strings.TrimLeftFunc(strings.TrimRight(line, "\r\n"), unicode.IsSpace)
	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "//") {
		return nil, FailFrame
	}
	caps, _ := CapabilitiesFor(MaxSupportedVersion)
	return classify(line, &yawTracker{}, caps)
}
