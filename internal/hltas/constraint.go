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

// Constraint is the parameter set of a target_yaw directive.
type Constraint interface {
	constraint()
}

// VelocityConstraint keeps the yaw within Tolerance of the velocity direction.
type VelocityConstraint struct{ Tolerance float64 }

// VelocityAvgConstraint keeps the yaw within Tolerance of the average velocity
// direction.
type VelocityAvgConstraint struct{ Tolerance float64 }

// VelocityLockConstraint locks the yaw to the velocity direction.
type VelocityLockConstraint struct{ Tolerance float64 }

// YawConstraint keeps the yaw within Tolerance of Yaw.
type YawConstraint struct{ Yaw, Tolerance float64 }

// YawRangeConstraint keeps the yaw between From and To.
type YawRangeConstraint struct{ From, To float64 }

// LookAtConstraint points the view at a position, relative to an entity when
// Entity is non-zero.
type LookAtConstraint struct {
	Entity  uint32
	X, Y, Z float64
}

func (VelocityConstraint) constraint()     {}
func (VelocityAvgConstraint) constraint()  {}
func (VelocityLockConstraint) constraint() {}
func (YawConstraint) constraint()          {}
func (YawRangeConstraint) constraint()     {}
func (LookAtConstraint) constraint()       {}

// parseConstraint decodes the value of a target_yaw line.
func parseConstraint(v string) (Constraint, ErrorCode) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, MissingConstraints
	}
	head, rest := splitProperty(v)
	switch head {
	case "velocity", "velocity_avg", "velocity_lock":
		tol, code := parseTolerance(rest)
		if code != OK {
			return nil, code
		}
		switch head {
		case "velocity":
			return VelocityConstraint{Tolerance: tol}, OK
		case "velocity_avg":
			return VelocityAvgConstraint{Tolerance: tol}, OK
		}
		return VelocityLockConstraint{Tolerance: tol}, OK
	case "from":
		if rest == "" {
			return nil, MissingAlgorithmFromToParameters
		}
		from, to, ok := cutWord(rest, "to")
		if !ok {
			return nil, NoToInFromToAlgorithm
		}
		if from == "" || to == "" {
			return nil, MissingAlgorithmFromToParameters
		}
		f, err1 := parseFloat(from)
		t, err2 := parseFloat(to)
		if err1 != nil || err2 != nil {
			return nil, FailFrame
		}
		return YawRangeConstraint{From: f, To: t}, OK
	case "look_at":
		return parseLookAt(rest)
	}
	yaw, err := parseFloat(head)
	if err != nil {
		return nil, FailFrame
	}
	tol, code := parseTolerance(rest)
	if code != OK {
		return nil, code
	}
	return YawConstraint{Yaw: yaw, Tolerance: tol}, OK
}

// parseTolerance reads an optional "+-<float>" suffix.
func parseTolerance(s string) (float64, ErrorCode) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, OK
	}
	num, ok := strings.CutPrefix(s, "+-")
	if !ok {
		return 0, NoPMInTolerance
	}
	tol, err := parseFloat(num)
	if err != nil {
		return 0, FailFrame
	}
	return tol, OK
}

func parseLookAt(s string) (Constraint, ErrorCode) {
	fields := strings.Fields(s)
	var c LookAtConstraint
	if len(fields) > 0 && fields[0] == "entity" {
		if len(fields) < 2 {
			return nil, FailFrame
		}
		n, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, FailFrame
		}
		c.Entity = uint32(n)
		fields = fields[2:]
	}
	if len(fields) != 3 {
		return nil, FailFrame
	}
	var xyz [3]float64
	for i, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			return nil, FailFrame
		}
		xyz[i] = v
	}
	c.X, c.Y, c.Z = xyz[0], xyz[1], xyz[2]
	return c, OK
}

// cutWord splits s around the first standalone occurrence of word.
func cutWord(s, word string) (before, after string, ok bool) {
	fields := strings.Fields(s)
	for i, f := range fields {
		if f == word {
			return strings.Join(fields[:i], " "), strings.Join(fields[i+1:], " "), true
		}
	}
	return "", "", false
}

func formatTolerance(tol float64) string {
	if tol == 0 {
		return ""
	}
	return " +-" + formatFloat(tol)
}

// formatConstraint is the inverse of parseConstraint.
func formatConstraint(c Constraint) string {
	switch c := c.(type) {
	case VelocityConstraint:
		return "velocity" + formatTolerance(c.Tolerance)
	case VelocityAvgConstraint:
		return "velocity_avg" + formatTolerance(c.Tolerance)
	case VelocityLockConstraint:
		return "velocity_lock" + formatTolerance(c.Tolerance)
	case YawConstraint:
		return formatFloat(c.Yaw) + formatTolerance(c.Tolerance)
	case YawRangeConstraint:
		return "from " + formatFloat(c.From) + " to " + formatFloat(c.To)
	case LookAtConstraint:
		var sb strings.Builder
		sb.WriteString("look_at")
		if c.Entity != 0 {
			sb.WriteString(" entity ")
			sb.WriteString(strconv.FormatUint(uint64(c.Entity), 10))
		}
		for _, v := range [...]float64{c.X, c.Y, c.Z} {
			sb.WriteByte(' ')
			sb.WriteString(formatFloat(v))
		}
		return sb.String()
	}
	return ""
}
