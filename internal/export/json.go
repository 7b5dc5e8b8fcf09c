/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"hltaskit/internal/hltas"
)

//go:embed schema/hltas.schema.json
var schemaBytes []byte

// JSONFormat is the value of the "format" member.
const JSONFormat = "hltas"

// JSONDocument is the JSON form of a script. Line is authoritative on import;
// Bulk only describes it for readers.
type JSONDocument struct {
	Format     string            `json:"format"`
	Version    int               `json:"version"`
	Properties map[string]string `json:"properties"`
	Frames     []JSONFrame       `json:"frames"`
}

type JSONFrame struct {
	Comments []string  `json:"comments,omitempty"`
	Kind     string    `json:"kind"`
	Line     string    `json:"line"`
	Bulk     *JSONBulk `json:"bulk,omitempty"`
}

type JSONBulk struct {
	Strafe    string            `json:"strafe,omitempty"`
	Autofuncs map[string]string `json:"autofuncs,omitempty"`
	Frametime string            `json:"frametime"`
	Repeats   uint32            `json:"repeats"`
	Target    string            `json:"target,omitempty"`
	Pitch     *float64          `json:"pitch,omitempty"`
	Commands  string            `json:"commands,omitempty"`
}

// SchemaError lists why a JSON document does not match the schema.
type SchemaError struct {
	Problems []string
}

func (e *SchemaError) Error() string {
	return "json does not match the hltas schema: " + strings.Join(e.Problems, "; ")
}

// ToJSON converts doc to its JSON form.
func ToJSON(doc *hltas.Document) JSONDocument {
	out := JSONDocument{
		Format:     JSONFormat,
		Version:    doc.Version(),
		Properties: doc.Properties(),
		Frames:     []JSONFrame{},
	}
	if out.Properties == nil {
		out.Properties = map[string]string{}
	}
	for _, f := range doc.Frames() {
		jf := JSONFrame{Comments: commentLines(f), Kind: f.Kind().String(), Line: f.String()}
		if b, ok := f.Bulk(); ok {
			fields := splitBulkLine(jf.Line)
			jb := &JSONBulk{
				Frametime: b.Frametime,
				Repeats:   b.Repeats(),
				Commands:  b.Commands,
			}
			if s := b.Strafe(); s.On {
				jb.Strafe = strafeLabel(s)
			}
			if list := autofuncList(b); len(list) > 0 {
				jb.Autofuncs = make(map[string]string, len(list))
				for _, a := range list {
					jb.Autofuncs[a.name] = a.af.String()
				}
			}
			if fields.Target != "-" && fields.Target != "" {
				jb.Target = fields.Target
			}
			if p, ok := b.Pitch.Get(); ok {
				jb.Pitch = &p
			}
			jf.Bulk = jb
		}
		out.Frames = append(out.Frames, jf)
	}
	return out
}

// MarshalJSON encodes doc as indented JSON and checks it against the schema.
func MarshalJSON(doc *hltas.Document) ([]byte, error) {
	b, err := json.MarshalIndent(ToJSON(doc), "", "  ")
	if err != nil {
		return nil, err
	}
	if err := Validate(b); err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// WriteJSON exports doc to path.
func WriteJSON(doc *hltas.Document, path string) error {
	b, err := MarshalJSON(doc)
	if err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Validate checks data against the embedded schema.
func Validate(data []byte) error {
	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaBytes), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validate: %w", err)
	}
	if res.Valid() {
		return nil
	}
	se := &SchemaError{}
	for _, e := range res.Errors() {
		se.Problems = append(se.Problems, e.String())
	}
	return se
}

// UnmarshalJSON validates data and rebuilds the document it describes.
// Frame lines go through the script parser, so errors carry hltas codes.
func UnmarshalJSON(data []byte) (*hltas.Document, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var jd JSONDocument
	if err := json.Unmarshal(data, &jd); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	head := hltas.New()
	if err := head.SetVersion(jd.Version); err != nil {
		return nil, err
	}
	for k, v := range jd.Properties {
		head.SetProperty(k, v)
	}
	var sb strings.Builder
	sb.WriteString(head.String())
	for _, f := range jd.Frames {
		for _, c := range f.Comments {
			sb.WriteString("//" + c + "\n")
		}
		sb.WriteString(f.Line + "\n")
	}
	doc, err := hltas.Parse(sb.String())
	if err != nil {
		return nil, err
	}
	frames := doc.Frames()
	if len(frames) != len(jd.Frames) {
		return nil, fmt.Errorf("json has %d frames but its lines parse to %d", len(jd.Frames), len(frames))
	}
	for i, f := range frames {
		if got := f.Kind().String(); got != jd.Frames[i].Kind {
			return nil, fmt.Errorf("frame %d: kind %q does not match line (parsed as %q)", i, jd.Frames[i].Kind, got)
		}
	}
	return doc, nil
}

// ReadJSON imports a script from a JSON file.
func ReadJSON(path string) (*hltas.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalJSON(b)
}
