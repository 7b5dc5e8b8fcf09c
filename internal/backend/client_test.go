/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"hltaskit/internal/storage"
)

func TestClientAgainstStub(t *testing.T) {
	var gotAuth, gotQuery string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/scripts", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		writeJSON(w, http.StatusOK, []ScriptInfo{{ID: 7, Name: "a.hltas", Revision: 3}})
	})
	mux.HandleFunc("GET /api/scripts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "7" {
			writeError(w, http.StatusNotFound, ErrScriptNotFound)
			return
		}
		writeJSON(w, http.StatusOK, Script{ScriptInfo: ScriptInfo{ID: 7, Name: "a.hltas"}, Text: "version 1\nframes\n"})
	})
	mux.HandleFunc("POST /api/scripts", func(w http.ResponseWriter, r *http.Request) {
		var req PublishRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, http.StatusOK, ScriptInfo{ID: 8, Name: req.Name, Revision: 1})
	})
	mux.HandleFunc("GET /api/search", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeJSON(w, http.StatusOK, []storage.SearchResult{{Script: "a.hltas", Index: 2, Kind: "bulk"}})
	})
	mux.HandleFunc("GET /broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx := context.Background()
	c := NewClient(ts.URL+"/", "tok", ClientOptions{})
	list, err := c.ListScripts(ctx)
	if err != nil || len(list) != 1 || list[0].Revision != 3 {
		t.Fatalf("list = %+v, %v", list, err)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	s, err := c.GetScript(ctx, 7)
	if err != nil || s.Text != "version 1\nframes\n" {
		t.Fatalf("get = %+v, %v", s, err)
	}
	var ae *APIError
	if _, err := c.GetScript(ctx, 9); !errors.As(err, &ae) || ae.Status != http.StatusNotFound || ae.Message != ErrScriptNotFound.Error() {
		t.Fatalf("missing get err = %v", err)
	}
	info, err := c.Publish(ctx, "b.hltas", "version 1\nframes\n")
	if err != nil || info.Name != "b.hltas" {
		t.Fatalf("publish = %+v, %v", info, err)
	}
	res, err := c.Search(ctx, storage.SearchQuery{Text: "jump", Kinds: []string{"bulk", "save"}, Limit: 5})
	if err != nil || len(res) != 1 || res[0].Index != 2 {
		t.Fatalf("search = %+v, %v", res, err)
	}
	if gotQuery != "kind=bulk&kind=save&limit=5&q=jump" {
		t.Fatalf("search query = %q", gotQuery)
	}
	if err := c.doJSON(ctx, http.MethodGet, "/broken", nil, nil); !errors.As(err, &ae) || ae.Message != "boom" {
		t.Fatalf("plain-text error = %v", err)
	}
}
