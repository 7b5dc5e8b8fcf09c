/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"hltaskit/internal/hltas"
)

const timelineScript = `version 1
frames
s00-------|------|------|0.001|-|-|1
s01-------|------|------|0.001|-|-|8
seed 3
----------|------|------|0.001|-|-|1024
`

func TestLayoutTimeline(t *testing.T) {
	doc := mustParse(t, timelineScript)
	items, height := layoutTimeline(doc, PNGOptions{})
	if len(items) != 4 {
		t.Fatalf("items = %d", len(items))
	}
	wantW := []int{12, 48, markerW, 132}
	for i, it := range items {
		if it.Rect.Dx() != wantW[i] {
			t.Fatalf("item %d width = %d, want %d", i, it.Rect.Dx(), wantW[i])
		}
	}
	if items[0].Color != strafeColors[hltas.DirLeft] || items[1].Color != strafeColors[hltas.DirRight] {
		t.Fatalf("strafe colours not applied")
	}
	if items[2].Color != colDirective || items[2].Label != "" {
		t.Fatalf("directive marker = %+v", items[2])
	}
	if items[3].Color != colNoStrafe || items[3].Label != "1024" {
		t.Fatalf("plain bulk = %+v", items[3])
	}
	if items[1].Rect.Min.X != items[0].Rect.Max.X+1 {
		t.Fatalf("bars should be laid out left to right")
	}
	if height != pngHeader+28+pngRowGap+pngMargin {
		t.Fatalf("height = %d", height)
	}

	// A narrow image wraps the long bulk onto a second row.
	items, _ = layoutTimeline(doc, PNGOptions{Width: 100})
	if items[3].Rect.Min.X != pngMargin || items[3].Rect.Min.Y <= items[0].Rect.Min.Y {
		t.Fatalf("expected wrap, got %v", items[3].Rect)
	}
}

func TestRenderAndExportPNG(t *testing.T) {
	doc := mustParse(t, timelineScript)
	img, err := RenderTimeline(doc, PNGOptions{Title: "test"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	items, _ := layoutTimeline(doc, PNGOptions{})
	r := items[1].Rect
	if got := img.RGBAAt(r.Max.X-2, r.Min.Y+2); got != strafeColors[hltas.DirRight] {
		t.Fatalf("bar pixel = %v", got)
	}
	if got := img.RGBAAt(1, img.Bounds().Dy()-1); got != colBackground {
		t.Fatalf("background pixel = %v", got)
	}

	out := filepath.Join(t.TempDir(), "timeline.png")
	if err := ExportPNG(doc, out, PNGOptions{}); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Fatalf("bounds = %v, want %v", decoded.Bounds(), img.Bounds())
	}
	if _, err := RenderTimeline(nil, PNGOptions{}); err == nil {
		t.Fatalf("nil document should fail")
	}
}
