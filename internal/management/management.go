// Package management provides a lightweight HTTP API for runtime inspection
// and configuration of the running toolkit.
//
// Endpoints:
//
//	GET  /status           - toolkit health, current detection pattern list
//	GET  /metrics          - runtime counters snapshot
//	POST /patterns/add     - add a detection pattern {"category":"EMPLOYEE_ID","pattern":"\\bEMP-\\d{5}\\b"}
//	POST /patterns/remove  - remove a detection pattern (same body)
package management

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"pii-toolkit/internal/config"
	"pii-toolkit/internal/detect"
	"pii-toolkit/internal/metrics"
)

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	patterns  *PatternRegistry
	token     string           // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics // nil = no metrics
}

// PatternEntry is one operator-defined detection pattern.
type PatternEntry struct {
	Category string `json:"category"`
	Pattern  string `json:"pattern"`
}

// PatternRegistry holds the mutable set of operator-defined detection
// patterns, in registration order. It is shared between the detection engine
// and the management server. Changes are persisted to disk via atomic file
// writes so they survive toolkit restarts.
type PatternRegistry struct {
	mu          sync.RWMutex
	entries     []PatternEntry
	compiled    []detect.Pattern
	persistPath string // empty = no persistence
}

// NewPatternRegistry creates a registry. If persistPath is non-empty and the
// file exists, its entries are loaded; entries that no longer compile are
// skipped with a warning.
func NewPatternRegistry(persistPath string) *PatternRegistry {
	r := &PatternRegistry{persistPath: persistPath}
	if persistPath == "" {
		return r
	}

	entries, err := r.loadFromDisk()
	switch {
	case err == nil:
		for _, e := range entries {
			if err := r.add(e.Category, e.Pattern); err != nil {
				log.Printf("[PATTERNS] Skipping persisted entry %s=%q: %v", e.Category, e.Pattern, err)
			}
		}
		log.Printf("[PATTERNS] Loaded %d patterns from %s", len(r.entries), persistPath)
	case !os.IsNotExist(err):
		log.Printf("[PATTERNS] Warning: failed to load %s: %v (starting empty)", persistPath, err)
	}
	return r
}

// categoryRe constrains operator categories to the placeholder alphabet:
// leading capital letter, then capitals, digits or underscores.
var categoryRe = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,31}$`)

// Add validates, registers and persists a pattern. Re-adding an existing
// category+pattern pair is a no-op.
func (r *PatternRegistry) Add(category, pattern string) error {
	r.mu.Lock()
	if err := r.add(category, pattern); err != nil {
		r.mu.Unlock()
		return err
	}
	snapshot := append([]PatternEntry(nil), r.entries...)
	r.mu.Unlock()
	r.persist(snapshot)
	return nil
}

// add appends a validated entry. Caller must hold r.mu (or own r exclusively).
func (r *PatternRegistry) add(category, pattern string) error {
	if !categoryRe.MatchString(category) {
		return fmt.Errorf("invalid category %q: want uppercase letters, digits, underscores", category)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern: %w", err)
	}
	for _, e := range r.entries {
		if e.Category == category && e.Pattern == pattern {
			return nil
		}
	}
	r.entries = append(r.entries, PatternEntry{Category: category, Pattern: pattern})
	r.compiled = append(r.compiled, detect.Pattern{Category: detect.Category(category), RE: re})
	return nil
}

// Remove deletes a category+pattern pair and persists. Returns true when an
// entry was removed.
func (r *PatternRegistry) Remove(category, pattern string) bool {
	r.mu.Lock()
	removed := false
	for i, e := range r.entries {
		if e.Category == category && e.Pattern == pattern {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			r.compiled = append(r.compiled[:i], r.compiled[i+1:]...)
			removed = true
			break
		}
	}
	snapshot := append([]PatternEntry(nil), r.entries...)
	r.mu.Unlock()
	if removed {
		r.persist(snapshot)
	}
	return removed
}

// All returns a copy of the registered entries in registration order.
func (r *PatternRegistry) All() []PatternEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PatternEntry(nil), r.entries...)
}

// Compiled returns the compiled patterns in registration order. The result
// is a copy; the detection engine calls this on every run.
func (r *PatternRegistry) Compiled() []detect.Pattern {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]detect.Pattern(nil), r.compiled...)
}

// loadFromDisk reads the persisted pattern list from disk.
func (r *PatternRegistry) loadFromDisk() ([]PatternEntry, error) {
	data, err := os.ReadFile(r.persistPath)
	if err != nil {
		return nil, err
	}
	var entries []PatternEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.persistPath, err)
	}
	return entries, nil
}

// persist writes the given snapshot to disk atomically.
// It does NOT hold r.mu, so it won't block Compiled/All calls.
func (r *PatternRegistry) persist(entries []PatternEntry) {
	if r.persistPath == "" {
		return
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		log.Printf("[PATTERNS] Marshal error: %v", err)
		return
	}

	// Atomic write: temp file → rename
	dir := filepath.Dir(r.persistPath)
	tmp, err := os.CreateTemp(dir, ".patterns-*.tmp")
	if err != nil {
		log.Printf("[PATTERNS] Persist error (create temp): %v", err)
		return
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		log.Printf("[PATTERNS] Persist error (write): %v", err)
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		log.Printf("[PATTERNS] Persist error (close): %v", err)
		return
	}
	if err := os.Rename(tmpName, r.persistPath); err != nil { // #nosec G703 -- paths from trusted config
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp, not user input
		log.Printf("[PATTERNS] Persist error (rename): %v", err)
		return
	}
}

// New creates a management server.
func New(cfg *config.Config, registry *PatternRegistry, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		patterns:  registry,
		token:     cfg.ManagementToken,
		metrics:   m,
	}
	if s.token != "" {
		log.Printf("[MANAGEMENT] Bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/patterns/add", s.handleAddPattern)
	mux.HandleFunc("/patterns/remove", s.handleRemovePattern)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			log.Printf("[MANAGEMENT] Unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status   string         `json:"status"`
		Uptime   string         `json:"uptime"`
		WebPort  int            `json:"webPort"`
		Patterns []PatternEntry `json:"patterns"`
		Model    struct {
			Endpoint       string  `json:"endpoint"`
			Enabled        bool    `json:"enabled"`
			Confidence     float64 `json:"confidenceThreshold"`
			AllowRegexOnly bool    `json:"allowRegexOnly"`
		} `json:"model"`
	}

	resp := response{
		Status:   "running",
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
		WebPort:  s.cfg.WebPort,
		Patterns: s.patterns.All(),
	}
	resp.Model.Endpoint = s.cfg.ModelEndpoint
	resp.Model.Enabled = s.cfg.UseModelDetection
	resp.Model.Confidence = s.cfg.ModelConfidence
	resp.Model.AllowRegexOnly = s.cfg.AllowRegexOnly

	writeJSON(w, http.StatusOK, resp)
}

// decodePatternRequest reads a {"category":..., "pattern":...} body.
func decodePatternRequest(w http.ResponseWriter, r *http.Request) (PatternEntry, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, 4096)
	var req PatternEntry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Category == "" || req.Pattern == "" {
		http.Error(w, "invalid request: need {\"category\":\"...\",\"pattern\":\"...\"}", http.StatusBadRequest)
		return PatternEntry{}, false
	}
	req.Category = strings.ToUpper(req.Category)
	return req, true
}

func (s *Server) handleAddPattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodePatternRequest(w, r)
	if !ok {
		return
	}
	if err := s.patterns.Add(req.Category, req.Pattern); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Printf("[MANAGEMENT] Added pattern: %s=%q", req.Category, req.Pattern)
	writeJSON(w, http.StatusOK, map[string]string{"added": req.Category})
}

func (s *Server) handleRemovePattern(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	req, ok := decodePatternRequest(w, r)
	if !ok {
		return
	}
	if !s.patterns.Remove(req.Category, req.Pattern) {
		http.Error(w, "pattern not found", http.StatusNotFound)
		return
	}
	log.Printf("[MANAGEMENT] Removed pattern: %s=%q", req.Category, req.Pattern)
	writeJSON(w, http.StatusOK, map[string]string{"removed": req.Category})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[MANAGEMENT] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	log.Printf("[MANAGEMENT] Listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
