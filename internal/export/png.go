/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"hltaskit/internal/hltas"
)

// PNGOptions controls the timeline image. Zero values mean defaults.
//   - Width: image width in px (1200)
//   - Unit: width of a one-frame bulk in px (12); a bulk of n frames is Unit*(1+log2 n) wide
//   - RowHeight: bar height in px (28)
type PNGOptions struct {
	Width     int
	Unit      int
	RowHeight int
	Title     string
}

const (
	pngMargin  = 8
	pngHeader  = 22
	pngRowGap  = 6
	markerW    = 3
	labelInset = 3
)

var (
	colBackground = color.RGBA{255, 255, 255, 255}
	colText       = color.RGBA{20, 20, 20, 255}
	colDirective  = color.RGBA{60, 60, 60, 255}
	colNoStrafe   = color.RGBA{170, 170, 170, 255}
	colBarLabel   = color.RGBA{255, 255, 255, 255}
)

// strafeColors colours bars by strafe dir.
var strafeColors = map[hltas.StrafeDir]color.RGBA{
	hltas.DirLeft:      {52, 101, 164, 255},
	hltas.DirRight:     {204, 0, 0, 255},
	hltas.DirBest:      {78, 154, 6, 255},
	hltas.DirYaw:       {245, 121, 0, 255},
	hltas.DirPoint:     {117, 80, 123, 255},
	hltas.DirLine:      {6, 152, 154, 255},
	hltas.DirLeftRight: {196, 160, 0, 255},
	hltas.DirRightLeft: {143, 89, 2, 255},
}

// timelineItem is one drawn frame: a bar for a bulk, a marker for a directive.
type timelineItem struct {
	Frame int
	Rect  image.Rectangle
	Color color.RGBA
	Label string
}

func (o PNGOptions) withDefaults() PNGOptions {
	if o.Width <= 0 {
		o.Width = 1200
	}
	if o.Unit <= 0 {
		o.Unit = 12
	}
	if o.RowHeight <= 0 {
		o.RowHeight = 28
	}
	return o
}

func barColor(b hltas.Bulk) color.RGBA {
	s := b.Strafe()
	if !s.On {
		return colNoStrafe
	}
	if c, ok := strafeColors[s.Dir]; ok {
		return c
	}
	return colNoStrafe
}

// barWidth grows with log2 of the repeats so long bulks stay readable.
func barWidth(unit int, repeats uint32) int {
	return int(math.Round(float64(unit) * (1 + math.Log2(float64(repeats)))))
}

// layoutTimeline places every frame left to right, wrapping into rows.
func layoutTimeline(doc *hltas.Document, opt PNGOptions) (items []timelineItem, height int) {
	opt = opt.withDefaults()
	x, row := pngMargin, 0
	maxX := opt.Width - pngMargin
	for i, f := range doc.Frames() {
		var it timelineItem
		w := markerW
		it.Color = colDirective
		if b, ok := f.Bulk(); ok {
			w = barWidth(opt.Unit, b.Repeats())
			it.Color = barColor(b)
			it.Label = strconv.FormatUint(uint64(b.Repeats()), 10)
		}
		w = min(w, maxX-pngMargin)
		if x+w > maxX && x > pngMargin {
			x, row = pngMargin, row+1
		}
		y := pngHeader + row*(opt.RowHeight+pngRowGap)
		it.Frame = i
		it.Rect = image.Rect(x, y, x+w, y+opt.RowHeight)
		items = append(items, it)
		x += w + 1
	}
	height = pngHeader + (row+1)*(opt.RowHeight+pngRowGap) + pngMargin
	return items, height
}

// RenderTimeline draws the timeline of doc.
func RenderTimeline(doc *hltas.Document, opt PNGOptions) (*image.RGBA, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	opt = opt.withDefaults()
	items, height := layoutTimeline(doc, opt)
	img := image.NewRGBA(image.Rect(0, 0, opt.Width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: colBackground}, image.Point{}, draw.Src)

	face := basicfont.Face7x13
	d := &font.Drawer{Dst: img, Src: image.NewUniform(colText), Face: face}
	title := opt.Title
	if title == "" {
		title = "hltas timeline"
	}
	var total uint64
	for _, f := range doc.Frames() {
		if b, ok := f.Bulk(); ok {
			total += uint64(b.Repeats())
		}
	}
	d.Dot = fixed.P(pngMargin, pngMargin+face.Ascent)
	d.DrawString(fmt.Sprintf("%s: %d frames, %d total repeats", title, doc.Len(), total))

	label := &font.Drawer{Dst: img, Src: image.NewUniform(colBarLabel), Face: face}
	for _, it := range items {
		draw.Draw(img, it.Rect, &image.Uniform{C: it.Color}, image.Point{}, draw.Src)
		if it.Label == "" {
			continue
		}
		if label.MeasureString(it.Label).Ceil() > it.Rect.Dx()-2*labelInset {
			continue
		}
		baseline := it.Rect.Min.Y + (it.Rect.Dy()+face.Ascent-face.Descent)/2
		label.Dot = fixed.P(it.Rect.Min.X+labelInset, baseline)
		label.DrawString(it.Label)
	}
	return img, nil
}

// WritePNG encodes the timeline of doc to w.
func WritePNG(doc *hltas.Document, w io.Writer, opt PNGOptions) error {
	img, err := RenderTimeline(doc, opt)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// ExportPNG writes the timeline of doc to outPath.
func ExportPNG(doc *hltas.Document, outPath string, opt PNGOptions) error {
	if err := ensureDir(outPath); err != nil {
		return err
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := WritePNG(doc, f, opt); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
