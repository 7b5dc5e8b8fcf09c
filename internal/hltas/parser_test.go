/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package hltas

import (
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func mustBulk(t *testing.T, f Frame) Bulk {
	t.Helper()
	b, ok := f.Bulk()
	if !ok || f.Kind() != KindBulk {
		t.Fatalf("expected bulk frame, got %s", f.Kind())
	}
	return b
}

func checkBhop(t *testing.T, d *Document) {
	t.Helper()
	props := d.Properties()
	want := map[string]string{"demo": "bhop", "frametime0ms": "0.0000001", "hlstrafe_version": "1"}
	if !reflect.DeepEqual(props, want) {
		t.Fatalf("properties: got %v want %v", props, want)
	}
	frames := d.Frames()
	if len(frames) != 7 {
		t.Fatalf("expected 7 frames, got %d", len(frames))
	}

	f0 := mustBulk(t, frames[0])
	if f0.Frametime != "0.001" || f0.Repeats() != 1 || f0.Commands != "sensitivity 0;bxt_timer_reset;bxt_taslog" {
		t.Fatalf("frame 0 mismatch: %+v", f0)
	}
	if f0.Strafe().On || f0.Target() != nil || f0.Pitch.Present() {
		t.Fatalf("frame 0 should have no strafe, target or pitch: %+v", f0)
	}

	if r := mustBulk(t, frames[1]).Repeats(); r != 5 {
		t.Fatalf("frame 1 repeats = %d", r)
	}

	f2 := mustBulk(t, frames[2])
	if f2.Strafe() != Strafing(MaxAccel, DirYaw) {
		t.Fatalf("frame 2 strafe = %+v", f2.Strafe())
	}
	if y, ok := f2.Yaw(); !ok || y != 170 {
		t.Fatalf("frame 2 yaw = %v %v", y, ok)
	}
	if p, ok := f2.Pitch.Get(); !ok || p != 0 {
		t.Fatalf("frame 2 pitch = %v %v", p, ok)
	}
	if f2.Repeats() != 400 {
		t.Fatalf("frame 2 repeats = %d", f2.Repeats())
	}

	if r := mustBulk(t, frames[3]).Repeats(); r != 2951 {
		t.Fatalf("frame 3 repeats = %d", r)
	}
	if c := mustBulk(t, frames[4]).Commands; c != "bxt_timer_start" {
		t.Fatalf("frame 4 commands = %q", c)
	}

	f5 := mustBulk(t, frames[5])
	if frames[5].Comments != " More frames because some of them get converted to 0ms\n" {
		t.Fatalf("frame 5 comments = %q", frames[5].Comments)
	}
	if !f5.Lgagst.Enabled() || f5.LgagstFullMaxspeed {
		t.Fatalf("frame 5 lgagst = %v full=%v", f5.Lgagst, f5.LgagstFullMaxspeed)
	}
	if !f5.Ducktap.Enabled() || !f5.Ducktap0ms || f5.Autojump.Enabled() {
		t.Fatalf("frame 5 ducktap = %v 0ms=%v autojump=%v", f5.Ducktap, f5.Ducktap0ms, f5.Autojump)
	}
	if y, ok := f5.Yaw(); !ok || y != 90 {
		t.Fatalf("frame 5 yaw = %v %v", y, ok)
	}
	if f5.Repeats() != 5315 {
		t.Fatalf("frame 5 repeats = %d", f5.Repeats())
	}

	f6 := mustBulk(t, frames[6])
	if f6.Commands != "stop;bxt_timer_stop;pause;sensitivity 1;_bxt_taslog 0;bxt_taslog;//condebug" {
		t.Fatalf("frame 6 commands = %q", f6.Commands)
	}
}

func TestParseBhop(t *testing.T) {
	d, err := ReadFile(filepath.Join("testdata", "bhop.hltas"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if d.Version() != 1 {
		t.Fatalf("version = %d", d.Version())
	}
	checkBhop(t, d)
}

func TestBhopParseWriteParse(t *testing.T) {
	d, err := ReadFile(filepath.Join("testdata", "bhop.hltas"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := filepath.Join(t.TempDir(), "out.hltas")
	if err := d.Save(out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	d2, err := ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile after save: %v", err)
	}
	checkBhop(t, d2)
	if d.String() != d2.String() {
		t.Fatalf("serialization not stable:\n%s\n---\n%s", d.String(), d2.String())
	}
}

func TestRoundTripRicherDirectives(t *testing.T) {
	d, err := ReadFile(filepath.Join("testdata", "vectorial.hltas"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	d2, err := Parse(d.String())
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, d.String())
	}
	if !reflect.DeepEqual(d.Frames(), d2.Frames()) {
		t.Fatalf("frames differ after round trip:\n%s", d.String())
	}
	if !reflect.DeepEqual(d.Properties(), d2.Properties()) {
		t.Fatalf("properties differ: %v vs %v", d.Properties(), d2.Properties())
	}

	frames := d.Frames()
	want := []Body{
		Seed{Value: 42},
		Reset{Seed: 7},
		Buttons{AirLeft: ButtonForward, AirRight: ButtonForwardLeft, GroundLeft: ButtonLeft, GroundRight: ButtonBackLeft},
		LgagstMinSpeed{Speed: 30.5},
		StrafingAlgorithm{Algorithm: AlgorithmVectorial},
		TargetYaw{Constraint: VelocityAvgConstraint{Tolerance: 15}},
		TargetYaw{Constraint: VelocityLockConstraint{}},
		TargetYaw{Constraint: YawConstraint{Yaw: 90}},
		TargetYaw{Constraint: YawConstraint{Yaw: 45, Tolerance: 2.5}},
		TargetYaw{Constraint: YawRangeConstraint{From: -30, To: 30}},
		TargetYaw{Constraint: LookAtConstraint{Entity: 3, X: 1, Y: 2, Z: 3.5}},
		TargetYaw{Constraint: LookAtConstraint{X: 100, Y: -200, Z: 64}},
		Change{Target: ChangeTargetYawOffset, Final: 180, Over: 0.5},
		TargetYawOverride{Yaws: []float64{10, 20, 30.25}},
	}
	for i, w := range want {
		if !reflect.DeepEqual(frames[i].Body, w) {
			t.Fatalf("frame %d: got %#v want %#v", i, frames[i].Body, w)
		}
	}
	if frames[12].Comments != " turn around\n over half a second\n" {
		t.Fatalf("change comments = %q", frames[12].Comments)
	}

	point := mustBulk(t, frames[14])
	if x, y, ok := point.Point(); !ok || x != 100 || y != -200 {
		t.Fatalf("point target = %v %v %v", x, y, ok)
	}
	if !point.Movement.Forward || !point.Actions.Jump {
		t.Fatalf("keys not decoded: %+v %+v", point.Movement, point.Actions)
	}
	if n, ok := mustBulk(t, frames[15]).Count(); !ok || n != 4 {
		t.Fatalf("count target = %v %v", n, ok)
	}
	if s, ok := mustBulk(t, frames[16]).Yawspeed(); !ok || s != 360 {
		t.Fatalf("yawspeed target = %v %v", s, ok)
	}
	aj := mustBulk(t, frames[18])
	if n, ok := aj.Autojump.Limit(); !ok || n != 3 {
		t.Fatalf("autojump times = %v %v", n, ok)
	}
	if aj.Repeats() != 1 {
		t.Fatalf("zero repeats should read as 1, got %d", aj.Repeats())
	}
	dbc := mustBulk(t, frames[19])
	if !dbc.Jumpbug.Enabled() || !dbc.Dbc.Enabled() || !dbc.DbcCeilings || !dbc.Dbg.Enabled() || !dbc.Dwj.Enabled() {
		t.Fatalf("ducking autofuncs not decoded: %+v", dbc)
	}
	if b, ok := frames[21].Body.(Buttons); !ok || !b.Clear {
		t.Fatalf("expected buttons clear, got %#v", frames[21].Body)
	}
}

func TestErrorMap(t *testing.T) {
	cases := []struct {
		file string
		code ErrorCode
		line int
	}{
		{"does-not-exist", FailOpen, 0},
		{"no-version", FailVer, 1},
		{"bad-version", FailVer, 1},
		{"too-high-version", NotSupported, 1},
		{"no-frames", FailLine, 4},
		{"no-save-name", NoSaveName, 4},
		{"too-few-dashes-field-0", FailFrame, 3},
		{"no-seed", NoSeed, 3},
		{"no-yaw", NoYaw, 4},
		{"no-buttons", NoButtons, 3},
		{"both-j-d", BothAJDT, 3},
		{"no-lgagst-action", NoLgagstAction, 3},
		{"no-lgagst-min-speed", NoLgagstMinSpeed, 3},
		{"lgagst-action-times", LgagstActionTimes, 3},
		{"no-reset-seed", NoResetSeed, 3},
		{"no-plus-minus-before-tolerance", NoPMInTolerance, 4},
		{"invalid-algorithm", InvalidAlgorithm, 3},
		{"missing-constraints", MissingConstraints, 3},
		{"missing-from-to", MissingAlgorithmFromToParameters, 3},
		{"no-to-in-from-to", NoToInFromToAlgorithm, 3},
		{"no-yawspeed", NoYawspeed, 3},
		{"unsupported-yawspeed-dir", UnsupportedYawspeedDir, 3},
	}
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			d := New()
			d.SetProperty("keep", "me")
			err := d.Open(filepath.Join("testdata", "error", tc.file+".hltas"))
			if err == nil {
				t.Fatalf("expected %s, got nil", tc.code)
			}
			got := Describe(err)
			if got.Code != tc.code || got.Line != tc.line {
				t.Fatalf("got %s at line %d, want %s at line %d (%v)", got.Code, got.Line, tc.code, tc.line, err)
			}
			if !errors.Is(err, tc.code) {
				t.Fatalf("errors.Is(%v, %s) = false", err, tc.code)
			}
			if v, ok := d.Property("keep"); !ok || v != "me" {
				t.Fatalf("document changed on failed open")
			}
		})
	}
}

func TestRepeatsNormalization(t *testing.T) {
	d, err := Parse("version 1\nframes\n----------|------|------|0.001|-|-|0\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f, _ := d.Frame(0)
	if r := mustBulk(t, f).Repeats(); r != 1 {
		t.Fatalf("repeats = %d, want 1", r)
	}
	if !strings.Contains(d.String(), "|-|1|\n") {
		t.Fatalf("normalized repeats not serialized:\n%s", d.String())
	}
}

func TestBothAutojumpDucktapAlwaysRejected(t *testing.T) {
	for _, field0 := range []string{"----jd----", "s03-j2d---", "---Ljd5bCgw", "s00-jD----"} {
		_, err := Parse("version 1\nframes\n" + field0 + "|------|------|0.001|90|-|1\n")
		if !errors.Is(err, BothAJDT) {
			t.Fatalf("%s: got %v, want BOTHAJDT", field0, err)
		}
	}
	b := NewBulk("0.001")
	b.Autojump = Unlimited()
	b.Ducktap = Times(3)
	if !errors.Is(b.Validate(), BothAJDT) {
		t.Fatalf("Validate should report BOTHAJDT")
	}
}

func TestYawRequirement(t *testing.T) {
	header := "version 1\nframes\n"
	cases := []struct {
		name  string
		lines string
		code  ErrorCode
	}{
		{"first strafing bulk without yaw", "s03-------|------|------|0.001|-|-|1\n", NoYaw},
		{"continuation without yaw", "s03-------|------|------|0.001|90|-|1\ns03-------|------|------|0.001|-|-|1\n", OK},
		{"direction change without yaw", "s03-------|------|------|0.001|90|-|1\ns05-------|------|------|0.001|-|-|1\n", NoYaw},
		{"strafing resumed without yaw", "s03-------|------|------|0.001|90|-|1\n----------|------|------|0.001|-|-|1\ns03-------|------|------|0.001|-|-|1\n", NoYaw},
		{"directionless dir", "s00-------|------|------|0.001|-|-|1\ns01-------|------|------|0.001|-|-|1\ns02-------|------|------|0.001|-|-|1\n", OK},
		{"directionless dir with yaw", "s00-------|------|------|0.001|90|-|1\n", FailFrame},
		{"directive between continuations", "s03-------|------|------|0.001|90|-|1\nseed 5\ns03-------|------|------|0.001|-|-|1\n", OK},
		{"later field error wins over missing yaw", "s03-------|------|------|0.001|-|x|1\n", FailFrame},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(header + tc.lines)
			if got := Describe(err).Code; got != tc.code {
				t.Fatalf("got %s, want %s (%v)", got, tc.code, err)
			}
		})
	}
}

func TestLineNumbersCountSkippedLines(t *testing.T) {
	text := "version 1\n\n// header comment\ndemo x\n\nframes\n\n// c\n----------|------|------|0.001|-|-|1\n\n   \nsave\n"
	_, err := Parse(text)
	var he *Error
	if !errors.As(err, &he) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if he.Code != NoSaveName || he.Line != 12 {
		t.Fatalf("got %s at %d, want NOSAVENAME at 12", he.Code, he.Line)
	}
	if !strings.HasPrefix(he.Error(), "line 12: ") {
		t.Fatalf("unexpected message %q", he.Error())
	}
}

func TestMalformedBulkFields(t *testing.T) {
	bad := []string{
		"----------|------|------|0.001|-|-",
		"----------|-----|------|0.001|-|-|1",
		"----------|------|j-----x|0.001|-|-|1",
		"----------|x-----|------|0.001|-|-|1",
		"----------|------|------||-|-|1",
		"----------|------|------|abc|-|-|1",
		"s80-------|------|------|0.001|90|-|1",
		"s08-------|------|------|0.001|90|-|1",
		"s04-------|------|------|0.001|1|-|1",
		"s06-------|------|------|0.001|1.5|-|1",
		"----------|------|------|0.001|-|-|-3",
		"----------|------|------|0.001|yaw|-|1",
		"----------x|------|------|0.001|-|-|1",
		"x---------|------|------|0.001|-|-|1",
	}
	for _, line := range bad {
		_, err := Parse("version 1\nframes\n" + line + "\n")
		if d := Describe(err); d.Code != FailFrame || d.Line != 3 {
			t.Fatalf("%q: got %s at %d, want FAILFRAME at 3", line, d.Code, d.Line)
		}
	}
}

func TestCommandsKeepPipes(t *testing.T) {
	d, err := Parse("version 1\nframes\n----------|------|------|0.001|-|-|2|echo a|b || c\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f, _ := d.Frame(0)
	if c := mustBulk(t, f).Commands; c != "echo a|b || c" {
		t.Fatalf("commands = %q", c)
	}
}

func TestMissingFramesLine(t *testing.T) {
	cases := []struct {
		text string
		line int
	}{
		{"version 1\n", 2},
		{"version 1\ndemo x // trailing\nload_command\n", 4},
		{"version 1\ndemo bhop\ns03-------|------|------|0.001|90|-|1\n", 4},
	}
	for _, tc := range cases {
		d := New()
		d.SetProperty("keep", "me")
		err := d.Parse(tc.text)
		if got := Describe(err); got.Code != FailLine || got.Line != tc.line {
			t.Fatalf("%q: got %s at line %d, want FailLine at line %d", tc.text, got.Code, got.Line, tc.line)
		}
		if v, _ := d.Property("keep"); v != "me" || d.Len() != 0 {
			t.Fatalf("%q: document changed on failure", tc.text)
		}
	}

	d, err := Parse("version 1\ndemo x // trailing\nload_command\nframes\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if v, ok := d.Property("load_command"); !ok || v != "" {
		t.Fatalf("load_command = %q %v", v, ok)
	}
	if want := "version 1\ndemo x\nload_command\nframes\n"; d.String() != want {
		t.Fatalf("got %q want %q", d.String(), want)
	}
}

func TestSeedIsDecimal(t *testing.T) {
	d, err := Parse("version 1\nframes\nseed 010\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f, _ := d.Frame(0)
	if s, ok := f.Body.(Seed); !ok || s.Value != 10 {
		t.Fatalf("seed = %#v, want 10", f.Body)
	}
	if !strings.HasSuffix(d.String(), "seed 10\n") {
		t.Fatalf("serialized %q", d.String())
	}
	for _, bad := range []string{"0x1F", "1e3", "-1", "4294967296"} {
		_, err := Parse("version 1\nframes\nseed " + bad + "\n")
		if got := Describe(err); got.Code != FailFrame || got.Line != 3 {
			t.Fatalf("seed %s: got %s at line %d", bad, got.Code, got.Line)
		}
	}
}

func TestCommandsKeepTrailingBlanks(t *testing.T) {
	text := "version 1\nframes\n  ----------|------|------|0.001|-|-|1|echo a  \r\n----------|------|------|0.001|-|-|2  \n"
	d, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f, _ := d.Frame(0)
	if c := mustBulk(t, f).Commands; c != "echo a  " {
		t.Fatalf("commands = %q", c)
	}
	f, _ = d.Frame(1)
	if b := mustBulk(t, f); b.Repeats() != 2 || b.Commands != "" {
		t.Fatalf("frame 1: repeats %d commands %q", b.Repeats(), b.Commands)
	}
	again, err := Parse(d.String())
	if err != nil || again.String() != d.String() {
		t.Fatalf("round trip: %v\n%q\n%q", err, d.String(), again)
	}
}

func TestOversizedAutofuncCount(t *testing.T) {
	for _, field := range []string{"----j99999999999-----", "---l-d4294967296----", "-------c99999999999--"} {
		_, err := Parse("version 1\nframes\n" + field + "|------|------|0.001|-|-|1\n")
		if got := Describe(err); got.Code != FailFrame || got.Line != 3 {
			t.Fatalf("%s: got %s at line %d, want FailFrame at line 3", field, got.Code, got.Line)
		}
	}
	d, err := Parse("version 1\nframes\n----j4294967295-----|------|------|0.001|-|-|1\n")
	if err != nil {
		t.Fatalf("max count rejected: %v", err)
	}
	f, _ := d.Frame(0)
	if n, _ := mustBulk(t, f).Autojump.Limit(); n != 4294967295 {
		t.Fatalf("autojump limit = %d", n)
	}
}

func TestFloatFormatting(t *testing.T) {
	b := NewBulk("0.001")
	b.SetStrafe(Strafing(MaxAccel, DirYaw))
	b.SetTarget(YawTarget{Yaw: 1.0 / 3})
	b.Pitch = Some(-12.5)
	d := New()
	d.PushFrame(Frame{Body: b})
	want := "version 1\nframes\ns03-------|------|------|0.001|0.3333333333|-12.5|1|\n"
	if s := d.String(); s != want {
		t.Fatalf("got %q want %q", s, want)
	}
}

func TestParseFrameLine(t *testing.T) {
	body, err := ParseFrameLine("  seed 42 ")
	if err != nil || body != (Seed{Value: 42}) {
		t.Fatalf("ParseFrameLine(seed) = %#v, %v", body, err)
	}
	if _, err := ParseFrameLine("s03-------|------|------|0.001|-|-|1"); !errors.Is(err, NoYaw) {
		t.Fatalf("standalone yaw bulk without yaw = %v", err)
	}
	body, err = ParseFrameLine("s03-------|f-----|------|0.001|45|-|3|echo")
	if err != nil {
		t.Fatalf("ParseFrameLine(bulk): %v", err)
	}
	f := Frame{Body: body}
	if got := f.String(); got != "s03-------|f-----|------|0.001|45|-|3|echo" {
		t.Fatalf("String() = %q", got)
	}
	if _, err := ParseFrameLine("// note"); !errors.Is(err, FailFrame) {
		t.Fatalf("comment line = %v", err)
	}
}
