/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package hltas reads and writes HLTAS frame bulk scripts.
//
// A script starts with a "version" line, followed by a property block that is
// terminated by "frames", followed by one frame per line. A frame is either a
// directive (save, seed, buttons, lgagstminspeed, reset, strafing, target_yaw,
// change, target_yaw_override) or a pipe separated movement bulk:
//
//	s03l-D----|------|------|0.001|90|-|5315|+attack
//
// Errors are reported as *Error values that carry an ErrorCode and the
// 1-based line the problem was found on.
package hltas
