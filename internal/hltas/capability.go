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

// MaxSupportedVersion is the highest script version the codec reads.
const MaxSupportedVersion = 1

// Capabilities lists what a script version may contain.
type Capabilities struct {
	MaxStrafeType StrafeType
	MaxStrafeDir  StrafeDir

	StrafingAlgorithm bool
	TargetYaw         bool
	Change            bool
	TargetYawOverride bool
}

var capabilities = map[int]Capabilities{
	1: {
		MaxStrafeType:     ConstYawspeed,
		MaxStrafeDir:      DirRightLeft,
		StrafingAlgorithm: true,
		TargetYaw:         true,
		Change:            true,
		TargetYawOverride: true,
	},
}

// CapabilitiesFor returns the feature set of a version.
func CapabilitiesFor(version int) (Capabilities, bool) {
	c, ok := capabilities[version]
	return c, ok
}
