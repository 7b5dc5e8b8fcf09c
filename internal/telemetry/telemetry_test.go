/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	events  [][]byte
	crashes [][]byte
}

func (rec *recorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.events = append(rec.events, b)
		rec.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.crashes = append(rec.crashes, b)
		rec.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (rec *recorder) counts() (int, int) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.events), len(rec.crashes)
}

func TestClientSendsCommandEvent(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: 2 * time.Second})
	defer c.Close()
	if !c.Enabled() {
		t.Fatalf("expected client to be enabled")
	}
	c.Command("check", 3, 1500*time.Millisecond)
	c.Flush(context.Background())

	if n, _ := rec.counts(); n != 1 {
		t.Fatalf("expected one event, got %d", n)
	}
	var m map[string]any
	if err := json.Unmarshal(rec.events[0], &m); err != nil {
		t.Fatalf("bad event json: %v", err)
	}
	if m["name"] != "command" || m["cmd"] != "check" || m["code"] != float64(3) || m["ms"] != float64(1500) {
		t.Fatalf("unexpected payload %v", m)
	}
	if _, ok := m["ts"].(string); !ok {
		t.Fatalf("missing ts field")
	}
}

func TestUploadCrash(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t)
	c := New(Config{OptIn: true, CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("events are disabled without an events URL")
	}
	c.UploadCrash([]byte("STACKTRACE"))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, n := rec.counts(); n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("crash report was not uploaded")
}

func TestDisabledClientSendsNothing(t *testing.T) {
	rec := &recorder{}
	srv := rec.server(t)
	c := New(Config{OptIn: false, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash"})
	defer c.Close()
	c.Event("ignored", nil)
	c.UploadCrash([]byte("ignored"))

	c2 := New(Config{OptIn: true, EventsURL: srv.URL + "/events"})
	defer c2.Close()
	c2.Event("", nil)
	c2.Flush(nil)
	time.Sleep(50 * time.Millisecond)
	if e, cr := rec.counts(); e != 0 || cr != 0 {
		t.Fatalf("expected no requests, got %d events %d crashes", e, cr)
	}
}

// Unreachable endpoints only exercise the error paths.
func TestSendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{
		OptIn:        true,
		EventsURL:    "http://127.0.0.1:1/events",
		CrashURL:     "http://127.0.0.1:1/crash",
		Timeout:      50 * time.Millisecond,
		DebugLogging: true,
	})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	c.Flush(context.Background())
	c.UploadCrash([]byte("oops"))
}

func TestFromEnvAndDefaultClient(t *testing.T) {
	t.Setenv(EnvOptIn, "yes")
	t.Setenv(EnvEventsURL, "http://127.0.0.1:0")
	t.Setenv(EnvCrashURL, "")
	t.Setenv(EnvTimeoutMs, "100")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL == "" || cfg.Timeout != 100*time.Millisecond {
		t.Fatalf("FromEnv did not parse correctly: %+v", cfg)
	}
	NewDefault(cfg)
	t.Cleanup(func() { NewDefault(Config{}) })
	if !Enabled() {
		t.Fatalf("default client should be enabled")
	}

	t.Setenv(EnvTimeoutMs, "soon")
	if FromEnv().Timeout != defaultTimeout {
		t.Fatalf("bad timeout should fall back to the default")
	}
}
