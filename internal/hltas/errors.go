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
	"errors"
	"fmt"
)

// ErrorCode is the closed set of codec result codes. The numeric values are
// stable and double as process exit codes for the CLI.
type ErrorCode int

const (
	OK ErrorCode = iota
	FailOpen
	FailVer
	NotSupported
	FailLine
	NoSaveName
	FailFrame
	FailWrite
	NoSeed
	NoYaw
	NoButtons
	BothAJDT
	NoLgagstAction
	NoLgagstMinSpeed
	LgagstActionTimes
	NoResetSeed
	InvalidAlgorithm
	MissingConstraints
	NoPMInTolerance
	MissingAlgorithmFromToParameters
	NoToInFromToAlgorithm
	NoYawspeed
	UnsupportedYawspeedDir
)

var errorMessages = [...]string{
	OK:                               "No error.",
	FailOpen:                         "Failed to open the file.",
	FailVer:                          "Failed to read the version.",
	NotSupported:                     "This version is not supported.",
	FailLine:                         "Failed to read line.",
	NoSaveName:                       "Save name is required.",
	FailFrame:                        "Failed parsing the frame data.",
	FailWrite:                        "Failed to write data to the file.",
	NoSeed:                           "Seeds are required.",
	NoYaw:                            "The yaw field needs a value on this frame.",
	NoButtons:                        "Buttons are required.",
	BothAJDT:                         "Cannot have both Autojump and Ducktap enabled on the same frame.",
	NoLgagstAction:                   "Lgagst requires either Autojump or Ducktap.",
	NoLgagstMinSpeed:                 "Lgagst min speed is required.",
	LgagstActionTimes:                "You cannot specify the Autojump or Ducktap times if you have Lgagst enabled.",
	NoResetSeed:                      "RNG seed is required.",
	InvalidAlgorithm:                 `Invalid strafing algorithm (only "yaw" and "vectorial" allowed).`,
	MissingConstraints:               "Missing constraints.",
	NoPMInTolerance:                  "Missing +- before tolerance.",
	MissingAlgorithmFromToParameters: "Missing from/to parameters.",
	NoToInFromToAlgorithm:            `Missing "to" in the from/to constraint.`,
	NoYawspeed:                       "The yaw field needs a yaw speed on this frame.",
	UnsupportedYawspeedDir:           "Constant yaw speed strafing supports only the left and right directions.",
}

var codeNames = [...]string{
	"OK", "FAILOPEN", "FAILVER", "NOTSUPPORTED", "FAILLINE", "NOSAVENAME", "FAILFRAME",
	"FAILWRITE", "NOSEED", "NOYAW", "NOBUTTONS", "BOTHAJDT", "NOLGAGSTACTION",
	"NOLGAGSTMINSPEED", "LGAGSTACTIONTIMES", "NORESETSEED", "INVALID_ALGORITHM",
	"MISSING_CONSTRAINTS", "NO_PM_IN_TOLERANCE", "MISSING_ALGORITHM_FROMTO_PARAMETERS",
	"NO_TO_IN_FROMTO_ALGORITHM", "NO_YAWSPEED", "UNSUPPORTED_YAWSPEED_DIR",
}

// Message returns the human readable description of the code.
func (c ErrorCode) Message() string {
	if c < 0 || int(c) >= len(errorMessages) {
		return fmt.Sprintf("Unknown error code %d.", int(c))
	}
	return errorMessages[c]
}

// String returns the canonical upper-case name, e.g. "NOYAW".
func (c ErrorCode) String() string {
	if c < 0 || int(c) >= len(codeNames) {
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
	return codeNames[c]
}

// Error makes an ErrorCode usable as a sentinel with errors.Is.
func (c ErrorCode) Error() string { return c.Message() }

// Error is a codec failure located at a 1-based line. Line 0 means the
// failure concerns the whole file (e.g. it could not be opened).
type Error struct {
	Code ErrorCode
	Line int
	Err  error
}

func (e *Error) Error() string {
	msg := e.Code.Message()
	if e.Line > 0 {
		msg = fmt.Sprintf("line %d: %s", e.Line, msg)
	}
	if e.Err != nil {
		msg += " (" + e.Err.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches both another *Error with the same code and a bare ErrorCode.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case ErrorCode:
		return e.Code == t
	case *Error:
		return e.Code == t.Code
	}
	return false
}

func newError(code ErrorCode, line int, cause error) *Error {
	return &Error{Code: code, Line: line, Err: cause}
}

// ErrorDescription is the flat result record used at process and embedding
// boundaries.
type ErrorDescription struct {
	Code ErrorCode
	Line int
}

// Describe maps any error to an ErrorDescription. A nil error is OK; errors
// that did not originate in the codec are reported as FailLine.
func Describe(err error) ErrorDescription {
	if err == nil {
		return ErrorDescription{Code: OK}
	}
	var he *Error
	if errors.As(err, &he) {
		return ErrorDescription{Code: he.Code, Line: he.Line}
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return ErrorDescription{Code: code}
	}
	return ErrorDescription{Code: FailLine}
}

// ErrorMessage formats a description the way diagnostics are shown to users.
func ErrorMessage(d ErrorDescription) string {
	if d.Line > 0 {
		return fmt.Sprintf("line %d: %s", d.Line, d.Code.Message())
	}
	return d.Code.Message()
}
