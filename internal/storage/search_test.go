/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * Licensed under the Apache License, Version 2.0.
 */
package storage

import (
	"context"
	"strings"
	"testing"
)

func seedCatalog(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeScript(t, root, "c1a0.hltas", sampleScript)
	writeScript(t, root, "c1a1.hltas", `version 1
demo c1a1
frames
// elevator boost
----------|------|------|0.001|-|-|10|+use
save c1a1_end
`)
	if _, err := RebuildIndex(context.Background(), root); err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	return root
}

func TestSearchTextMatchesCommentsCommandsAndSaves(t *testing.T) {
	root := seedCatalog(t)
	ctx := context.Background()

	res, err := Search(ctx, root, SearchQuery{Text: "ladder"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].Script != "c1a0.hltas" || res[0].Index != 3 || res[0].Kind != "bulk" {
		t.Fatalf("ladder results = %+v", res)
	}
	if !strings.Contains(res[0].Snippet, "[ladder]") {
		t.Fatalf("snippet = %q", res[0].Snippet)
	}
	if res[0].Line != "----------|------|------|0.001|-|-|5|stop" || res[0].Repeats != 5 {
		t.Fatalf("row = %+v", res[0])
	}

	res, err = Search(ctx, root, SearchQuery{Text: "c1a1_end"})
	if err != nil || len(res) != 1 || res[0].Kind != "save" {
		t.Fatalf("save search = %+v, %v", res, err)
	}

	res, err = Search(ctx, root, SearchQuery{Text: "bxt_timer_start"})
	if err != nil || len(res) != 1 || res[0].Index != 0 {
		t.Fatalf("command search = %+v, %v", res, err)
	}
}

func TestSearchFiltersWithoutText(t *testing.T) {
	root := seedCatalog(t)
	ctx := context.Background()

	res, err := Search(ctx, root, SearchQuery{Kinds: []string{"save"}})
	if err != nil || len(res) != 2 {
		t.Fatalf("save kind = %+v, %v", res, err)
	}
	res, err = Search(ctx, root, SearchQuery{Kinds: []string{"save"}, Script: "C1A1"})
	if err != nil || len(res) != 1 || res[0].Script != "c1a1.hltas" {
		t.Fatalf("script filter = %+v, %v", res, err)
	}
	res, err = Search(ctx, root, SearchQuery{Property: "demo=bhop"})
	if err != nil || len(res) != 4 {
		t.Fatalf("property filter = %d, %v", len(res), err)
	}
	res, err = Search(ctx, root, SearchQuery{Property: "frametime0ms"})
	if err != nil || len(res) != 4 {
		t.Fatalf("property key filter = %d, %v", len(res), err)
	}
	res, err = Search(ctx, root, SearchQuery{Limit: 2, Offset: 1})
	if err != nil || len(res) != 2 || res[0].Index != 1 {
		t.Fatalf("pagination = %+v, %v", res, err)
	}
}

func TestSnippetWindow(t *testing.T) {
	got := snippet("one two three four five six", []string{"four"}, 2)
	if got != "… three [four] …" {
		t.Fatalf("snippet = %q", got)
	}
	if snippet("nothing here", []string{"x"}, 4) != "" {
		t.Fatalf("no match should give empty snippet")
	}
	if terms := queryTerms(`"elevator boost" OR ladder`); len(terms) != 3 || terms[2] != "ladder" {
		t.Fatalf("terms = %v", terms)
	}
}
