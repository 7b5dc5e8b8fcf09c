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
	"slices"
)

// Kind identifies which variant a Frame holds.
type Kind uint8

const (
	KindBulk Kind = iota
	KindSave
	KindSeed
	KindButtons
	KindLgagstMinSpeed
	KindReset
	KindStrafing
	KindTargetYaw
	KindChange
	KindTargetYawOverride
)

var kindNames = [...]string{
	"bulk", "save", "seed", "buttons", "lgagstminspeed", "reset",
	"strafing", "target_yaw", "change", "target_yaw_override",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Body is the content of a frame: a movement bulk or one directive.
// The set of implementations is closed.
type Body interface {
	Kind() Kind
	body()
}

// Frame is one entry of the frames section together with the comment lines
// that preceded it. Comments holds each comment line followed by '\n'.
type Frame struct {
	Comments string
	Body     Body
}

// Kind returns the kind of the frame body. A frame without a body reports
// KindBulk with a zero bulk, which is how an empty frame serializes.
func (f Frame) Kind() Kind {
	switch b := f.Body.(type) {
	case nil:
		return KindBulk
	case *Bulk:
		if b == nil {
			return KindBulk
		}
	}
	return f.Body.Kind()
}

// IsMovement reports whether the frame is a movement bulk.
func (f Frame) IsMovement() bool { return f.Kind() == KindBulk }

// Bulk returns the movement bulk held by the frame.
func (f Frame) Bulk() (Bulk, bool) {
	switch b := f.Body.(type) {
	case Bulk:
		return b, true
	case *Bulk:
		if b != nil {
			return *b, true
		}
		return Bulk{}, true
	case nil:
		return Bulk{}, true
	}
	return Bulk{}, false
}

// Clone returns a deep copy of the frame.
func (f Frame) Clone() Frame {
	switch b := f.Body.(type) {
	case *Bulk:
		if b != nil {
			f.Body = *b
		}
	case TargetYawOverride:
		f.Body = TargetYawOverride{Yaws: slices.Clone(b.Yaws)}
	}
	return f
}

// Directive frames.

// Save creates a named savestate.
type Save struct{ Name string }

// Seed sets the shared RNG seed.
type Seed struct{ Value uint32 }

// Buttons overrides the strafe buttons. Clear restores the defaults and
// serializes as a bare "buttons".
type Buttons struct {
	Clear                                       bool
	AirLeft, AirRight, GroundLeft, GroundRight Button
}

// LgagstMinSpeed sets the minimum speed for lgagst.
type LgagstMinSpeed struct{ Speed float64 }

// Reset resets the non-shared RNG to Seed.
type Reset struct{ Seed int64 }

// StrafingAlgorithm selects the strafing algorithm.
type StrafingAlgorithm struct{ Algorithm Algorithm }

// TargetYaw sets the vectorial strafing constraints.
type TargetYaw struct{ Constraint Constraint }

// Change interpolates Target to Final over Over seconds.
type Change struct {
	Target ChangeTarget
	Final  float64
	Over   float64
}

// TargetYawOverride provides per-frame target yaws.
type TargetYawOverride struct{ Yaws []float64 }

func (Save) Kind() Kind              { return KindSave }
func (Seed) Kind() Kind              { return KindSeed }
func (Buttons) Kind() Kind           { return KindButtons }
func (LgagstMinSpeed) Kind() Kind    { return KindLgagstMinSpeed }
func (Reset) Kind() Kind             { return KindReset }
func (StrafingAlgorithm) Kind() Kind { return KindStrafing }
func (TargetYaw) Kind() Kind         { return KindTargetYaw }
func (Change) Kind() Kind            { return KindChange }
func (TargetYawOverride) Kind() Kind { return KindTargetYawOverride }
func (Bulk) Kind() Kind              { return KindBulk }

func (Save) body()              {}
func (Seed) body()              {}
func (Buttons) body()           {}
func (LgagstMinSpeed) body()    {}
func (Reset) body()             {}
func (StrafingAlgorithm) body() {}
func (TargetYaw) body()         {}
func (Change) body()            {}
func (TargetYawOverride) body() {}
func (Bulk) body()              {}

// TargetKind names the variant a bulk's yaw field holds.
type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetYawAngle
	TargetPointXY
	TargetCountN
	TargetYawspeed
)

// Target is the value of the yaw field. The variant in use is determined by
// the bulk's strafe settings; see Strafe.TargetKind.
type Target interface {
	targetKind() TargetKind
}

// YawTarget is a yaw angle in degrees.
type YawTarget struct{ Yaw float64 }

// PointTarget is a point to strafe towards.
type PointTarget struct{ X, Y float64 }

// CountTarget is the number of frames between left/right alternations.
type CountTarget struct{ Count uint32 }

// YawspeedTarget is the turn rate for constant yaw speed strafing.
type YawspeedTarget struct{ Speed float64 }

func (YawTarget) targetKind() TargetKind      { return TargetYawAngle }
func (PointTarget) targetKind() TargetKind    { return TargetPointXY }
func (CountTarget) targetKind() TargetKind    { return TargetCountN }
func (YawspeedTarget) targetKind() TargetKind { return TargetYawspeed }

// TargetKind returns which yaw field variant these strafe settings use.
// Without strafing the field optionally holds a plain yaw.
func (s Strafe) TargetKind() TargetKind {
	if !s.On {
		return TargetYawAngle
	}
	if s.Type == ConstYawspeed {
		return TargetYawspeed
	}
	switch s.Dir {
	case DirYaw, DirLine:
		return TargetYawAngle
	case DirPoint:
		return TargetPointXY
	case DirLeftRight, DirRightLeft:
		return TargetCountN
	}
	return TargetNone
}

// Bulk is a movement frame bulk: Repeats frames sharing the same inputs.
type Bulk struct {
	strafe Strafe

	Lgagst             Autofunc
	LgagstFullMaxspeed bool
	Autojump           Autofunc
	Ducktap            Autofunc
	Ducktap0ms         bool
	Jumpbug            Autofunc
	Dbc                Autofunc
	DbcCeilings        bool
	Dbg                Autofunc
	Dwj                Autofunc
	Attack1Auto        Autofunc
	Attack2Auto        Autofunc

	Movement  MovementKeys
	Actions   ActionKeys
	Frametime string

	target  Target
	Pitch   Optional[float64]
	repeats uint32

	Commands string
}

// NewBulk returns a bulk with one repeat and the given frametime.
func NewBulk(frametime string) Bulk {
	return Bulk{Frametime: frametime, repeats: 1}
}

// Strafe returns the strafe settings.
func (b Bulk) Strafe() Strafe { return b.strafe }

// SetStrafe replaces the strafe settings. A target that no longer fits the
// new settings is dropped.
func (b *Bulk) SetStrafe(s Strafe) {
	b.strafe = s
	if b.target != nil && b.target.targetKind() != s.TargetKind() {
		b.target = nil
	}
}

// Target returns the yaw field value, or nil when the field is "-".
func (b Bulk) Target() Target { return b.target }

// SetTarget sets the yaw field value. Passing a variant that the current
// strafe settings do not use is a programming error and panics.
func (b *Bulk) SetTarget(t Target) {
	if t == nil {
		b.target = nil
		return
	}
	if want := b.strafe.TargetKind(); t.targetKind() != want {
		panic(fmt.Sprintf("hltas: target %T does not match strafe settings %+v", t, b.strafe))
	}
	b.target = t
}

// ClearTarget sets the yaw field to "-".
func (b *Bulk) ClearTarget() { b.target = nil }

// Yaw returns the yaw angle when the target is a yaw.
func (b Bulk) Yaw() (float64, bool) {
	t, ok := b.target.(YawTarget)
	return t.Yaw, ok
}

// Point returns the point when the target is a point.
func (b Bulk) Point() (x, y float64, ok bool) {
	t, ok := b.target.(PointTarget)
	return t.X, t.Y, ok
}

// Count returns the alternation count when the target is a count.
func (b Bulk) Count() (uint32, bool) {
	t, ok := b.target.(CountTarget)
	return t.Count, ok
}

// Yawspeed returns the yaw speed when the target is a yaw speed.
func (b Bulk) Yawspeed() (float64, bool) {
	t, ok := b.target.(YawspeedTarget)
	return t.Speed, ok
}

// Repeats returns the number of frames in the bulk, always at least 1.
func (b Bulk) Repeats() uint32 {
	if b.repeats == 0 {
		return 1
	}
	return b.repeats
}

// ErrZeroRepeats is returned when a bulk would end up with no frames.
var ErrZeroRepeats = errors.New("hltas: repeats must be at least 1")

// SetRepeats sets the frame count.
func (b *Bulk) SetRepeats(n uint32) error {
	if n == 0 {
		return ErrZeroRepeats
	}
	b.repeats = n
	return nil
}

// SetLgagstFullMaxspeed enables lgagst if needed and sets its sub-mode.
func (b *Bulk) SetLgagstFullMaxspeed(v bool) {
	if !b.Lgagst.Enabled() {
		b.Lgagst = Unlimited()
	}
	b.LgagstFullMaxspeed = v
}

// SetDucktap0ms enables ducktap if needed and sets its sub-mode.
func (b *Bulk) SetDucktap0ms(v bool) {
	if !b.Ducktap.Enabled() {
		b.Ducktap = Unlimited()
	}
	b.Ducktap0ms = v
}

// SetDbcCeilings enables dbc if needed and sets its sub-mode.
func (b *Bulk) SetDbcCeilings(v bool) {
	if !b.Dbc.Enabled() {
		b.Dbc = Unlimited()
	}
	b.DbcCeilings = v
}

// checkAutofuncs enforces the leave-ground action rules.
func (b Bulk) checkAutofuncs() ErrorCode {
	if b.Autojump.Enabled() && b.Ducktap.Enabled() {
		return BothAJDT
	}
	if b.Lgagst.Enabled() && !b.Autojump.Enabled() && !b.Ducktap.Enabled() {
		return NoLgagstAction
	}
	if b.Lgagst.Enabled() {
		_, aj := b.Autojump.Limit()
		_, dt := b.Ducktap.Limit()
		if aj || dt {
			return LgagstActionTimes
		}
	}
	return OK
}

// Validate checks the invariants that hold for a single bulk in isolation.
// Whether a yaw is mandatory depends on the previous bulk and is checked by
// the parser.
func (b Bulk) Validate() error {
	if code := b.checkAutofuncs(); code != OK {
		return code
	}
	if b.strafe.On && b.strafe.Type == ConstYawspeed && b.strafe.Dir != DirLeft && b.strafe.Dir != DirRight {
		return UnsupportedYawspeedDir
	}
	if b.strafe.On && b.strafe.Type == ConstYawspeed && b.target == nil {
		return NoYawspeed
	}
	if b.target != nil && b.target.targetKind() != b.strafe.TargetKind() {
		return FailFrame
	}
	return nil
}

// AfterRun returns the bulk as it carries over once it has executed: every
// autofunc that was limited to a number of executions is switched off. A
// limited lgagst takes its leave-ground action down with it.
func (b Bulk) AfterRun() Bulk {
	if _, limited := b.Lgagst.Limit(); limited {
		b.Lgagst = Off()
		b.Autojump = Off()
		b.Ducktap = Off()
	}
	b.Autojump = b.Autojump.AfterRun()
	b.Ducktap = b.Ducktap.AfterRun()
	b.Jumpbug = b.Jumpbug.AfterRun()
	b.Dbc = b.Dbc.AfterRun()
	b.Dbg = b.Dbg.AfterRun()
	b.Dwj = b.Dwj.AfterRun()
	b.Attack1Auto = b.Attack1Auto.AfterRun()
	b.Attack2Auto = b.Attack2Auto.AfterRun()
	return b
}

// EqualMovement reports whether two bulks produce the same per-frame input,
// ignoring the frame count and console commands.
func (b Bulk) EqualMovement(o Bulk) bool {
	b.repeats, o.repeats = 0, 0
	b.Commands, o.Commands = "", ""
	return b == o
}

// ErrSplitOutOfRange is returned when a split point does not leave at least
// one frame on each side.
var ErrSplitOutOfRange = errors.New("hltas: split offset must be inside the bulk")

// Split cuts the bulk after offset frames. Both halves keep every other
// field; the first has offset repeats and the second the remainder.
func (b Bulk) Split(offset uint32) (Bulk, Bulk, error) {
	n := b.Repeats()
	if offset == 0 || offset >= n {
		return Bulk{}, Bulk{}, fmt.Errorf("%w: offset %d, repeats %d", ErrSplitOutOfRange, offset, n)
	}
	first, second := b, b
	first.repeats = offset
	second.repeats = n - offset
	return first, second, nil
}
