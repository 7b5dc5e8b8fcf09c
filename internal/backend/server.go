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
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hltaskit/internal/hltas"
	applog "hltaskit/internal/log"
	"hltaskit/internal/storage"
	"hltaskit/internal/version"
)

// maxScriptBytes bounds a publish request body.
const maxScriptBytes = 8 << 20

// Server serves the catalog HTTP API over a Postgres database.
type Server struct {
	db     *sql.DB
	secret string
	log    *slog.Logger
	now    func() time.Time
}

func NewServer(db *sql.DB, secret string) *Server {
	return &Server{db: db, secret: secret, log: applog.WithComponent("backend"), now: time.Now}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", s.ready)
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("hltaskit " + version.String()))
	})
	mux.HandleFunc("POST /api/auth/token", s.issueToken)
	mux.HandleFunc("GET /api/scripts", s.withAuth(s.listScripts))
	mux.HandleFunc("POST /api/scripts", s.withAuth(s.publishScript))
	mux.HandleFunc("GET /api/scripts/{id}", s.withAuth(s.getScript))
	mux.HandleFunc("DELETE /api/scripts/{id}", s.withAuth(s.deleteScript))
	mux.HandleFunc("GET /api/search", s.withAuth(s.search))
	return mux
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("db not ready"))
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("db not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// POST /api/auth/token with optional {"subject": "name", "ttl_seconds": 3600}.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject    string `json:"subject"`
		TTLSeconds int64  `json:"ttl_seconds"`
	}
	b, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	_ = r.Body.Close()
	_ = json.Unmarshal(b, &req)
	if req.Subject == "" {
		req.Subject = "dev"
	}
	if req.TTLSeconds <= 0 || req.TTLSeconds > 24*3600 {
		req.TTLSeconds = 3600
	}
	exp := s.now().Add(time.Duration(req.TTLSeconds) * time.Second)
	tok, err := signToken(s.secret, req.Subject, exp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{Token: tok, ExpiresAt: exp.UTC().Format(time.RFC3339)})
}

func (s *Server) listScripts(w http.ResponseWriter, r *http.Request, _ string) {
	list, err := ListScripts(r.Context(), s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// PublishRequest is the body of POST /api/scripts.
type PublishRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

func (s *Server) publishScript(w http.ResponseWriter, r *http.Request, sub string) {
	var req PublishRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxScriptBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}
	doc, err := hltas.Parse(req.Text)
	if err != nil {
		d := hltas.Describe(err)
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: err.Error(), Code: int(d.Code), Line: d.Line})
		return
	}
	info, err := PublishScript(r.Context(), s.db, req.Name, sub, doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.log.Info("script published", slog.String("name", info.Name), slog.Int64("revision", info.Revision), slog.String("owner", sub))
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) getScript(w http.ResponseWriter, r *http.Request, _ string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid script id"))
		return
	}
	sc, err := GetScript(r.Context(), s.db, id)
	if errors.Is(err, ErrScriptNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) deleteScript(w http.ResponseWriter, r *http.Request, sub string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid script id"))
		return
	}
	switch err := DeleteScript(r.Context(), s.db, id); {
	case errors.Is(err, ErrScriptNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		s.log.Info("script deleted", slog.Int64("id", id), slog.String("by", sub))
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /api/search?q=&kind=&script=&property=&limit=&offset=
func (s *Server) search(w http.ResponseWriter, r *http.Request, _ string) {
	v := r.URL.Query()
	q := storage.SearchQuery{
		Text:     v.Get("q"),
		Kinds:    v["kind"],
		Script:   v.Get("script"),
		Property: v.Get("property"),
	}
	q.Limit, _ = strconv.Atoi(v.Get("limit"))
	q.Offset, _ = strconv.Atoi(v.Get("offset"))
	res, err := SearchPG(r.Context(), s.db, q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if res == nil {
		res = []storage.SearchResult{}
	}
	writeJSON(w, http.StatusOK, res)
}

// --- auth and JSON helpers ---

type tokenClaims struct {
	Sub string `json:"sub"`
	Exp int64  `json:"exp"` // unix seconds
}

func signToken(secret, subject string, exp time.Time) (string, error) {
	b, err := json.Marshal(tokenClaims{Sub: subject, Exp: exp.Unix()})
	if err != nil {
		return "", err
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(b)
	return base64.RawURLEncoding.EncodeToString(b) + "." + base64.RawURLEncoding.EncodeToString(h.Sum(nil)), nil
}

func verifyToken(secret, token string, now time.Time) (string, error) {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", errors.New("invalid token format")
	}
	payloadB, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.New("invalid token payload")
	}
	sigB, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return "", errors.New("invalid token signature")
	}
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write(payloadB)
	if !hmac.Equal(h.Sum(nil), sigB) {
		return "", errors.New("bad signature")
	}
	var claims tokenClaims
	if err := json.Unmarshal(payloadB, &claims); err != nil {
		return "", errors.New("bad claims")
	}
	if claims.Exp < now.Unix() {
		return "", errors.New("token expired")
	}
	if claims.Sub == "" {
		claims.Sub = "dev"
	}
	return claims.Sub, nil
}

func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, subject string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		const prefix = "bearer "
		if len(auth) < len(prefix) || strings.ToLower(auth[:len(prefix)]) != prefix {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		sub, err := verifyToken(s.secret, strings.TrimSpace(auth[len(prefix):]), s.now())
		if err != nil {
			writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		next(w, r, sub)
	}
}

// apiError is the error body of every failed request. Code and Line are set
// when a published script failed to parse.
type apiError struct {
	Error string `json:"error"`
	Code  int    `json:"code,omitempty"`
	Line  int    `json:"line,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, apiError{Error: err.Error()})
}
