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
	"bufio"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrFrameIndex is returned for a frame index outside the document.
var ErrFrameIndex = errors.New("hltas: frame index out of range")

// ErrNotBulk is returned when an operation needs a movement bulk.
var ErrNotBulk = errors.New("hltas: frame is not a movement bulk")

// Document is a parsed script. It is safe for concurrent use: mutations take
// the write lock, reads the read lock. Frames and property maps handed out
// are copies.
type Document struct {
	mu           sync.RWMutex
	version      int
	properties   map[string]string
	frames       []Frame
	errorMessage string
}

// New returns an empty document at the supported version.
func New() *Document {
	return &Document{version: MaxSupportedVersion, properties: map[string]string{}}
}

// ReadFile opens and parses the script at path.
func ReadFile(path string) (*Document, error) {
	d := New()
	if err := d.Open(path); err != nil {
		return nil, err
	}
	return d, nil
}

// Parse parses text as a script and returns the new document.
func Parse(text string) (*Document, error) {
	d := New()
	if err := d.Parse(text); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) replace(st state) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// Any version the parser accepts is stored as the one it supports.
	d.version = MaxSupportedVersion
	d.properties = st.properties
	d.frames = st.frames
}

// Open replaces the document with the script at path. On failure the
// document is left untouched.
func (d *Document) Open(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return newError(FailOpen, 0, err)
	}
	defer func() { _ = f.Close() }()
	st, err := parse(bufio.NewReader(f))
	if err != nil {
		return err
	}
	d.replace(st)
	return nil
}

// Parse replaces the document with the script in text.
func (d *Document) Parse(text string) error {
	st, err := parse(strings.NewReader(text))
	if err != nil {
		return err
	}
	d.replace(st)
	return nil
}

// ReadFrom replaces the document with the script read from r.
func (d *Document) ReadFrom(r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	st, err := parse(cr)
	if err != nil {
		return cr.n, err
	}
	d.replace(st)
	return cr.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (d *Document) snapshot() state {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return state{version: d.version, properties: d.properties, frames: d.frames}
}

// WriteTo serializes the document to w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return write(w, state{version: d.version, properties: d.properties, frames: d.frames})
}

// String returns the serialized script.
func (d *Document) String() string {
	var sb strings.Builder
	_, _ = d.WriteTo(&sb)
	return sb.String()
}

// Save writes the script to path, replacing any existing file. The script
// goes to a temporary file in the same directory first, so a failed write
// leaves the previous contents in place.
func (d *Document) Save(path string) error {
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp*")
	if err != nil {
		return newError(FailOpen, 0, err)
	}
	tmp := f.Name()
	bw := bufio.NewWriter(f)
	_, werr := d.WriteTo(bw)
	if werr == nil {
		if err := bw.Flush(); err != nil {
			werr = newError(FailWrite, d.lineCount(), err)
		}
	}
	if werr == nil {
		if err := f.Sync(); err != nil {
			werr = newError(FailWrite, d.lineCount(), err)
		}
	}
	if err := f.Close(); err != nil && werr == nil {
		werr = newError(FailWrite, d.lineCount(), err)
	}
	if werr == nil {
		if err := os.Rename(tmp, path); err != nil {
			werr = newError(FailWrite, d.lineCount(), err)
		}
	}
	if werr != nil {
		_ = os.Remove(tmp)
	}
	return werr
}

// lineCount is the number of lines the serialized document has.
func (d *Document) lineCount() int {
	st := d.snapshot()
	n := 2 + len(st.properties)
	for _, f := range st.frames {
		n += 1 + len(commentLines(f.Comments))
	}
	return n
}

// Version returns the script version.
func (d *Document) Version() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// SetVersion sets the script version. Only supported versions are accepted.
func (d *Document) SetVersion(v int) error {
	if v <= 0 {
		return FailVer
	}
	if _, ok := CapabilitiesFor(v); !ok {
		return NotSupported
	}
	d.mu.Lock()
	d.version = v
	d.mu.Unlock()
	return nil
}

// Property returns the value of a property and whether it is set.
func (d *Document) Property(key string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.properties[key]
	return v, ok
}

// Properties returns a copy of the property table.
func (d *Document) Properties() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.properties)
}

// SetProperty sets or overwrites a property.
func (d *Document) SetProperty(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.properties == nil {
		d.properties = map[string]string{}
	}
	d.properties[key] = value
}

// RemoveProperty deletes a property if present.
func (d *Document) RemoveProperty(key string) {
	d.mu.Lock()
	delete(d.properties, key)
	d.mu.Unlock()
}

// ClearProperties removes every property.
func (d *Document) ClearProperties() {
	d.mu.Lock()
	d.properties = map[string]string{}
	d.mu.Unlock()
}

// Len returns the number of frames.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.frames)
}

// Frame returns a copy of frame i.
func (d *Document) Frame(i int) (Frame, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.frames) {
		return Frame{}, fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(d.frames))
	}
	return d.frames[i].Clone(), nil
}

// Frames returns a copy of all frames.
func (d *Document) Frames() []Frame {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Frame, len(d.frames))
	for i, f := range d.frames {
		out[i] = f.Clone()
	}
	return out
}

// SetFrame replaces frame i.
func (d *Document) SetFrame(i int, f Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.frames) {
		return fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(d.frames))
	}
	d.frames[i] = f.Clone()
	return nil
}

// PushFrame appends a frame.
func (d *Document) PushFrame(f Frame) {
	d.mu.Lock()
	d.frames = append(d.frames, f.Clone())
	d.mu.Unlock()
}

// InsertFrame inserts f before index i. i may equal Len to append.
func (d *Document) InsertFrame(i int, f Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i > len(d.frames) {
		return fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(d.frames))
	}
	d.frames = insertFrame(d.frames, i, f.Clone())
	return nil
}

func insertFrame(frames []Frame, i int, f Frame) []Frame {
	frames = append(frames, Frame{})
	copy(frames[i+1:], frames[i:])
	frames[i] = f
	return frames
}

// RemoveFrame deletes frame i.
func (d *Document) RemoveFrame(i int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.frames) {
		return fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(d.frames))
	}
	d.frames = append(d.frames[:i], d.frames[i+1:]...)
	return nil
}

// ClearFrames removes every frame.
func (d *Document) ClearFrames() {
	d.mu.Lock()
	d.frames = nil
	d.mu.Unlock()
}

// SplitBulk splits the bulk at index i after offset repeats. The first half
// keeps the frame's comments; the second half is inserted right after it.
func (d *Document) SplitBulk(i int, offset uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < 0 || i >= len(d.frames) {
		return fmt.Errorf("%w: %d of %d", ErrFrameIndex, i, len(d.frames))
	}
	orig := d.frames[i]
	b, ok := orig.Bulk()
	if !ok {
		return fmt.Errorf("%w: frame %d is %s", ErrNotBulk, i, orig.Kind())
	}
	first, second, err := b.Split(offset)
	if err != nil {
		return err
	}
	d.frames[i] = Frame{Comments: orig.Comments, Body: first}
	d.frames = insertFrame(d.frames, i+1, Frame{Body: second})
	return nil
}

// Clear resets the document to an empty script at the supported version.
func (d *Document) Clear() {
	d.mu.Lock()
	d.version = MaxSupportedVersion
	d.properties = map[string]string{}
	d.frames = nil
	d.errorMessage = ""
	d.mu.Unlock()
}

// ErrorMessage returns the advisory message set by SetErrorMessage.
func (d *Document) ErrorMessage() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.errorMessage
}

// SetErrorMessage stores an advisory message for callers that report
// failures out of band.
func (d *Document) SetErrorMessage(msg string) {
	d.mu.Lock()
	d.errorMessage = msg
	d.mu.Unlock()
}
