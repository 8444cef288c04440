package management

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pii-toolkit/internal/config"
	"pii-toolkit/internal/metrics"
)

func testConfig() *config.Config {
	return &config.Config{
		WebPort:           8080,
		ManagementPort:    8081,
		ModelEndpoint:     "http://localhost:8001",
		UseModelDetection: true,
		ModelConfidence:   0.7,
	}
}

// --- PatternRegistry tests ---

func TestPatternRegistry_AddRemove(t *testing.T) {
	r := NewPatternRegistry("")

	if err := r.Add("EMPLOYEE_ID", `\bEMP-\d{5}\b`); err != nil {
		t.Fatalf("Add: %v", err)
	}
	all := r.All()
	if len(all) != 1 || all[0].Category != "EMPLOYEE_ID" {
		t.Fatalf("unexpected entries: %+v", all)
	}
	compiled := r.Compiled()
	if len(compiled) != 1 || !compiled[0].RE.MatchString("EMP-00417") {
		t.Fatalf("unexpected compiled patterns: %+v", compiled)
	}

	if !r.Remove("EMPLOYEE_ID", `\bEMP-\d{5}\b`) {
		t.Error("expected Remove to report removal")
	}
	if len(r.All()) != 0 || len(r.Compiled()) != 0 {
		t.Error("registry not empty after Remove")
	}
	if r.Remove("EMPLOYEE_ID", `\bEMP-\d{5}\b`) {
		t.Error("expected Remove to report false for absent entry")
	}
}

func TestPatternRegistry_DuplicateAddIsNoOp(t *testing.T) {
	r := NewPatternRegistry("")
	if err := r.Add("BADGE", `\bB-\d+\b`); err != nil {
		t.Fatal(err)
	}
	if err := r.Add("BADGE", `\bB-\d+\b`); err != nil {
		t.Fatal(err)
	}
	if len(r.All()) != 1 {
		t.Errorf("duplicate add created extra entry: %+v", r.All())
	}
}

func TestPatternRegistry_PreservesOrder(t *testing.T) {
	r := NewPatternRegistry("")
	for _, cat := range []string{"ZED", "ALPHA", "MID"} {
		if err := r.Add(cat, `\bx\b`); err != nil {
			t.Fatal(err)
		}
	}
	all := r.All()
	if all[0].Category != "ZED" || all[1].Category != "ALPHA" || all[2].Category != "MID" {
		t.Errorf("registration order not preserved: %+v", all)
	}
}

func TestPatternRegistry_RejectsInvalidCategory(t *testing.T) {
	r := NewPatternRegistry("")
	for _, cat := range []string{"lowercase", "1LEADING", "", "A", "WITH SPACE", "WITH-DASH"} {
		if err := r.Add(cat, `\bx\b`); err == nil {
			t.Errorf("category %q should be rejected", cat)
		}
	}
}

func TestPatternRegistry_RejectsInvalidRegex(t *testing.T) {
	r := NewPatternRegistry("")
	if err := r.Add("BROKEN", `(`); err == nil {
		t.Error("unbalanced pattern should be rejected")
	}
}

func TestPatternRegistry_Persistence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")

	r := NewPatternRegistry(path)
	if err := r.Add("EMPLOYEE_ID", `\bEMP-\d{5}\b`); err != nil {
		t.Fatal(err)
	}

	// Verify file was written
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("persist file not created: %v", err)
	}
	var entries []PatternEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatalf("invalid JSON in persist file: %v", err)
	}

	// New registry from the same file loads the persisted patterns.
	r2 := NewPatternRegistry(path)
	all := r2.All()
	if len(all) != 1 || all[0].Category != "EMPLOYEE_ID" {
		t.Errorf("expected pattern loaded from disk, got %+v", all)
	}
}

func TestPatternRegistry_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.json")

	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	r := NewPatternRegistry(path)
	if len(r.All()) != 0 {
		t.Error("expected empty registry on corrupt file")
	}
}

// --- HTTP handler tests ---

func newTestServer(token string) (*Server, *PatternRegistry) {
	cfg := testConfig()
	cfg.ManagementToken = token
	reg := NewPatternRegistry("")
	srv := New(cfg, reg, metrics.New())
	return srv, reg
}

func TestStatus_OK(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if resp["status"] != "running" {
		t.Errorf("expected status=running, got %v", resp["status"])
	}
}

func TestMetrics_OK(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if _, ok := resp["documents"]; !ok {
		t.Errorf("metrics snapshot missing documents section: %v", resp)
	}
}

func TestAuth_NoToken_PassThrough(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with no token configured, got %d", w.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	srv, _ := newTestServer("secret123")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with valid token, got %d", w.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	srv, _ := newTestServer("secret123")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	srv, _ := newTestServer("secret123")
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with missing token, got %d", w.Code)
	}
}

func TestAddPattern_OK(t *testing.T) {
	srv, reg := newTestServer("")
	body := `{"category":"EMPLOYEE_ID","pattern":"\\bEMP-\\d{5}\\b"}`
	req := httptest.NewRequest(http.MethodPost, "/patterns/add", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(reg.All()) != 1 {
		t.Error("pattern was not added to registry")
	}
}

func TestAddPattern_CaseNormalized(t *testing.T) {
	srv, reg := newTestServer("")
	body := `{"category":"employee_id","pattern":"\\bEMP-\\d{5}\\b"}`
	req := httptest.NewRequest(http.MethodPost, "/patterns/add", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	all := reg.All()
	if len(all) != 1 || all[0].Category != "EMPLOYEE_ID" {
		t.Errorf("category should be normalized to uppercase, got %+v", all)
	}
}

func TestAddPattern_InvalidRegex(t *testing.T) {
	srv, _ := newTestServer("")
	body := `{"category":"BROKEN","pattern":"("}`
	req := httptest.NewRequest(http.MethodPost, "/patterns/add", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid regex, got %d", w.Code)
	}
}

func TestAddPattern_EmptyBody(t *testing.T) {
	srv, _ := newTestServer("")
	body := `{"category":"","pattern":""}`
	req := httptest.NewRequest(http.MethodPost, "/patterns/add", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", w.Code)
	}
}

func TestAddPattern_WrongMethod(t *testing.T) {
	srv, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/patterns/add", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", w.Code)
	}
}

func TestRemovePattern_OK(t *testing.T) {
	srv, reg := newTestServer("")
	if err := reg.Add("EMPLOYEE_ID", `\bEMP-\d{5}\b`); err != nil {
		t.Fatal(err)
	}
	body := `{"category":"EMPLOYEE_ID","pattern":"\\bEMP-\\d{5}\\b"}`
	req := httptest.NewRequest(http.MethodPost, "/patterns/remove", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(reg.All()) != 0 {
		t.Error("pattern was not removed from registry")
	}
}

func TestRemovePattern_NotFound(t *testing.T) {
	srv, _ := newTestServer("")
	body := `{"category":"EMPLOYEE_ID","pattern":"\\bEMP-\\d{5}\\b"}`
	req := httptest.NewRequest(http.MethodPost, "/patterns/remove", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for absent pattern, got %d", w.Code)
	}
}
