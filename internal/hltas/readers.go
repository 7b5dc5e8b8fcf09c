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
	"unicode"
)

// readNumber scans the decimal digits starting at s[pos], returns their value
// and the index just past them. No digits yields 0 and pos unchanged. ok is
// false when the digits do not fit into 32 bits.
func readNumber(s string, pos int) (n uint32, next int, ok bool) {
	end := pos
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == pos {
		return 0, pos, true
	}
	v, err := strconv.ParseUint(s[pos:end], 10, 32)
	if err != nil {
		return 0, end, false
	}
	return uint32(v), end, true
}

// splitProperty splits a line at its first run of whitespace. The value is
// trimmed and may be empty.
func splitProperty(line string) (key, value string) {
	i := strings.IndexFunc(line, unicode.IsSpace)
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i:])
}

// stripComment drops everything from the first "//".
func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

// startsNumeric reports whether s begins like a number or a "-" placeholder.
func startsNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return (c >= '0' && c <= '9') || c == '-'
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}
