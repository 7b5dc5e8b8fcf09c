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

import "fmt"

// StrafeType selects the acceleration model. The digit is the wire form.
type StrafeType uint8

const (
	MaxAccel StrafeType = iota
	MaxAngle
	MaxDeccel
	ConstSpeed
	ConstYawspeed
)

func (t StrafeType) String() string {
	switch t {
	case MaxAccel:
		return "max-accel"
	case MaxAngle:
		return "max-angle"
	case MaxDeccel:
		return "max-deccel"
	case ConstSpeed:
		return "const-speed"
	case ConstYawspeed:
		return "const-yawspeed"
	}
	return fmt.Sprintf("StrafeType(%d)", uint8(t))
}

// StrafeDir selects the steering target. The digit is the wire form.
type StrafeDir uint8

const (
	DirLeft StrafeDir = iota
	DirRight
	DirBest
	DirYaw
	DirPoint
	DirLine
	DirLeftRight
	DirRightLeft
)

func (d StrafeDir) String() string {
	switch d {
	case DirLeft:
		return "left"
	case DirRight:
		return "right"
	case DirBest:
		return "best"
	case DirYaw:
		return "yaw"
	case DirPoint:
		return "point"
	case DirLine:
		return "line"
	case DirLeftRight:
		return "left-right"
	case DirRightLeft:
		return "right-left"
	}
	return fmt.Sprintf("StrafeDir(%d)", uint8(d))
}

// directionless reports whether the dir never takes a value in the yaw field.
func (d StrafeDir) directionless() bool {
	return d == DirLeft || d == DirRight || d == DirBest
}

// Strafe is the first block of the autofuncs field: "---" when off,
// "s<type><dir>" when on.
type Strafe struct {
	On   bool
	Type StrafeType
	Dir  StrafeDir
}

// Strafing returns an enabled Strafe.
func Strafing(t StrafeType, d StrafeDir) Strafe { return Strafe{On: true, Type: t, Dir: d} }

type autoMode uint8

const (
	autoOff autoMode = iota
	autoUnlimited
	autoTimes
)

// Autofunc is the state of one automatic action: off, on until toggled, or
// on for a limited number of executions.
type Autofunc struct {
	mode  autoMode
	times uint32
}

// Off returns a disabled autofunc. It equals the zero value.
func Off() Autofunc { return Autofunc{} }

// Unlimited returns an autofunc that stays on for the whole bulk.
func Unlimited() Autofunc { return Autofunc{mode: autoUnlimited} }

// Times returns an autofunc limited to n executions. Zero means unlimited,
// matching the wire format where an absent suffix and "0" are the same.
func Times(n uint32) Autofunc {
	if n == 0 {
		return Unlimited()
	}
	return Autofunc{mode: autoTimes, times: n}
}

// Enabled reports whether the autofunc is on in any form.
func (a Autofunc) Enabled() bool { return a.mode != autoOff }

// Limit returns the execution budget and whether one is set.
func (a Autofunc) Limit() (uint32, bool) {
	if a.mode == autoTimes {
		return a.times, true
	}
	return 0, false
}

// AfterRun is the state once the bulk holding it has executed: a limited
// autofunc has spent its budget and switches off.
func (a Autofunc) AfterRun() Autofunc {
	if a.mode == autoTimes {
		return Off()
	}
	return a
}

func (a Autofunc) String() string {
	switch a.mode {
	case autoUnlimited:
		return "on"
	case autoTimes:
		return fmt.Sprintf("on(%d)", a.times)
	}
	return "off"
}

// Optional is a presence-tagged value.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] { return Optional[T]{value: v, ok: true} }

// None returns an absent value.
func None[T any]() Optional[T] { return Optional[T]{} }

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.ok }

// Present reports whether a value is set.
func (o Optional[T]) Present() bool { return o.ok }

// MovementKeys is field 1 of a bulk, positional "flrbud".
type MovementKeys struct {
	Forward, Left, Right, Back, Up, Down bool
}

// ActionKeys is field 2 of a bulk, positional "jdu12r".
type ActionKeys struct {
	Jump, Duck, Use, Attack1, Attack2, Reload bool
}

// Button is one of the eight strafe buttons used by the buttons directive.
type Button uint8

const (
	ButtonForward Button = iota
	ButtonForwardLeft
	ButtonLeft
	ButtonBackLeft
	ButtonBack
	ButtonBackRight
	ButtonRight
	ButtonForwardRight
)

// Algorithm is the strafing algorithm selected by the strafing directive.
type Algorithm uint8

const (
	AlgorithmYaw Algorithm = iota
	AlgorithmVectorial
)

func (a Algorithm) String() string {
	if a == AlgorithmVectorial {
		return "vectorial"
	}
	return "yaw"
}

// ChangeTarget is the value a change directive interpolates.
type ChangeTarget uint8

const (
	ChangeYaw ChangeTarget = iota
	ChangePitch
	ChangeTargetYaw
	ChangeTargetYawOffset
)

func (c ChangeTarget) String() string {
	switch c {
	case ChangePitch:
		return "pitch"
	case ChangeTargetYaw:
		return "target_yaw"
	case ChangeTargetYawOffset:
		return "target_yaw_offset"
	}
	return "yaw"
}
