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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"hltaskit/internal/hltas"
)

func TestExportPDF_CreatesFile(t *testing.T) {
	doc := loadTestdata(t, "vectorial.hltas")
	out := filepath.Join(t.TempDir(), "exports", "vectorial.pdf")
	if err := ExportPDF(doc, out, PDFOptions{Title: "vectorial"}); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
}

func TestWritePDF_ManyFramesPortrait(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("version 1\ndemo long\nframes\n")
	for i := 0; i < 150; i++ {
		sb.WriteString("// step\n")
		sb.WriteString("s03-------|------|------|0.001|90|-|10|echo ü a very long console command that will not fit into its table cell at all\n")
	}
	doc := mustParse(t, sb.String())
	var buf bytes.Buffer
	if err := WritePDF(doc, &buf, PDFOptions{Portrait: true, PageSize: "Letter"}); err != nil {
		t.Fatalf("WritePDF: %v", err)
	}
	if buf.Len() < 1000 || !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("unexpected output of %d bytes", buf.Len())
	}
	if err := WritePDF(nil, &buf, PDFOptions{}); err == nil {
		t.Fatalf("nil document should fail")
	}
}

func TestFrameRow(t *testing.T) {
	doc := mustParse(t, "version 1\nframes\ns03lj-----|f-----|j-----|0.001|90|5|12|echo hi\nsave point\n")
	bulk, _ := doc.Frame(0)
	row := frameRow(0, bulk)
	want := []string{"0", "bulk", "max-accel yaw", "lgagst autojump", "f-----", "j-----", "0.001", "90", "5", "12", "echo hi"}
	if len(row) != len(want) || len(row) != len(frameColumns) {
		t.Fatalf("row = %+v", row)
	}
	for i, c := range row {
		if c.text != want[i] || c.span {
			t.Fatalf("cell %d = %+v, want %q", i, c, want[i])
		}
	}
	save, _ := doc.Frame(1)
	row = frameRow(1, save)
	if len(row) != 3 || !row[2].span || row[2].text != "save point" {
		t.Fatalf("directive row = %+v", row)
	}
	if _, ok := save.Body.(hltas.Save); !ok {
		t.Fatalf("frame 1 should be a save")
	}
}
