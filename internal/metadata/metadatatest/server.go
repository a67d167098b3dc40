// Package metadatatest provides an in-process fake of the metadata API.
package metadatatest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Record is one stored resource.
type Record map[string]any

// Server is a fake metadata API backed by in-memory collections.
type Server struct {
	*httptest.Server
	Key string

	mu          sync.Mutex
	collections map[string][]Record
	roles       map[string][]string
	requests    []string
	nextID      int
}

// NewServer starts a fake API that accepts key as the user_key header.
func NewServer(key string) *Server {
	s := &Server{
		Key:         key,
		collections: make(map[string][]Record),
		roles:       make(map[string][]string),
		nextID:      1,
	}

	r := chi.NewRouter()
	r.Use(s.record, s.auth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/{collection}", s.find)
		r.Post("/data/{build}/external_analysis", s.createAnalysis)
		r.Delete("/preliminary-analysis/{id}/role", s.clearRoles)
		r.Put("/preliminary-analysis/{id}/role/rel/{role}", s.addRole)
	})
	s.Server = httptest.NewServer(r)
	return s
}

// APIURL returns the API root as clients expect it.
func (s *Server) APIURL() string { return s.Server.URL + "/api/" }

// Seed adds records to a collection.
func (s *Server) Seed(collection string, records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], records...)
}

// Records returns a copy of a collection.
func (s *Server) Records(collection string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.collections[collection]...)
}

// Roles returns the roles associated with an analysis.
func (s *Server) Roles(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roles[id]...)
}

// Requests returns "METHOD path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("user_key") != s.Key {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type filter struct {
	Where map[string]json.RawMessage `json:"where"`
}

func (s *Server) find(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "collection")

	var f filter
	if raw := r.URL.Query().Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			http.Error(w, "bad filter", http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	all, ok := s.collections[name]
	out := make([]Record, 0, len(all))
	for _, rec := range all {
		if matches(rec, f.Where) {
			out = append(out, rec)
		}
	}
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func matches(rec Record, where map[string]json.RawMessage) bool {
	for field, raw := range where {
		got := fmt.Sprint(rec[field])
		var in struct {
			Inq []any `json:"inq"`
		}
		if err := json.Unmarshal(raw, &in); err == nil && in.Inq != nil {
			found := false
			for _, v := range in.Inq {
				if fmt.Sprint(v) == got {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		var want any
		if err := json.Unmarshal(raw, &want); err != nil || fmt.Sprint(want) != got {
			return false
		}
	}
	return true
}

func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := Record{}
	if err := json.Unmarshal(body, &rec); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	rec["id"] = s.nextID
	rec["build"] = chi.URLParam(r, "build")
	s.nextID++
	s.collections["preliminary-analysis"] = append(s.collections["preliminary-analysis"], rec)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) clearRoles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delete(s.roles, chi.URLParam(r, "id"))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]int{"count": 0})
}

func (s *Server) addRole(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	s.roles[id] = append(s.roles[id], chi.URLParam(r, "role"))
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
