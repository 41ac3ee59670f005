package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/probelab/go-interview-backend/internal/config"
	"github.com/probelab/go-interview-backend/internal/llm"
	"github.com/probelab/go-interview-backend/internal/repo"
)

type fixedAnalyzer struct {
	result *llm.Result
	err    error
}

func (f fixedAnalyzer) Analyze(context.Context, string, []string) (*llm.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func testConfig() config.Config {
	return config.Config{
		GinMode:         "test",
		APIBasePath:     "/api",
		MaxContentRunes: 4000,
		RateRPS:         1000,
		RateBurst:       1000,
		IdempotencyTTL:  time.Hour,
	}
}

func newTestRouter(t *testing.T, a llm.Analyzer) (*gin.Engine, *gorm.DB) {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close(db) })

	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, db, a, nil, testConfig(), "test")
	return r, db
}

func espressoAnalyzer() fixedAnalyzer {
	return fixedAnalyzer{result: &llm.Result{
		FollowUp:   "What draws you to espresso?",
		ThemeTag:   "taste_profile: bitter",
		Confidence: 0.9,
		Metadata:   llm.Metadata{Model: "test-model", Tokens: 42, LatencyMS: 7},
	}}
}

func postMessage(t *testing.T, r *gin.Engine, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, w.Body.String())
	}
	return env
}

func TestPostMessageCreatesSession(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	w := postMessage(t, r, `{"content":"I love espresso"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d; want 201 (%s)", w.Code, w.Body.String())
	}

	env := decodeEnvelope(t, w)
	if !env.Success {
		t.Fatal("success = false")
	}

	var data struct {
		Message struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"message"`
		Response struct {
			FollowUp   string  `json:"followUp"`
			ThemeTag   string  `json:"themeTag"`
			Confidence float64 `json:"confidence"`
		} `json:"response"`
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
		Themes []struct {
			Tag        string  `json:"tag"`
			Confidence float64 `json:"confidence"`
		} `json:"themes"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.Session.ID == "" || data.Message.ID == "" {
		t.Fatalf("missing ids in %s", env.Data)
	}
	if data.Response.FollowUp != "What draws you to espresso?" || data.Response.Confidence != 0.9 {
		t.Fatalf("response = %+v", data.Response)
	}
	if len(data.Themes) != 1 || data.Themes[0].Tag != "taste_profile: bitter" {
		t.Fatalf("themes = %+v", data.Themes)
	}
}

func TestPostMessageValidation(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	for _, body := range []string{`{}`, `{"content":"   "}`, `not json`} {
		w := postMessage(t, r, body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q status = %d; want 400", body, w.Code)
		}
		var eb errorBody
		if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if eb.Error != "VALIDATION_ERROR" || eb.StatusCode != http.StatusBadRequest {
			t.Fatalf("error body = %+v", eb)
		}
	}
}

func TestPostMessageUnknownSession(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	w := postMessage(t, r, `{"content":"hello","sessionId":"no-such-id"}`, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
	var eb errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if eb.Error != "SESSION_NOT_FOUND" {
		t.Fatalf("code = %q; want SESSION_NOT_FOUND", eb.Error)
	}
}

func TestPostMessageProviderFailure(t *testing.T) {
	r, _ := newTestRouter(t, fixedAnalyzer{err: llm.ErrUnavailable})

	w := postMessage(t, r, `{"content":"hello"}`, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	var eb errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if eb.Message != "Failed to analyze message" {
		t.Fatalf("message = %q", eb.Message)
	}
}

func TestIdempotentReplay(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	// First turn creates the session.
	w := postMessage(t, r, `{"content":"I love espresso"}`, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed status = %d", w.Code)
	}
	var seed struct {
		Data struct {
			Session struct {
				ID string `json:"id"`
			} `json:"session"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &seed); err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	sid := seed.Data.Session.ID

	body := `{"content":"second turn","sessionId":"` + sid + `"}`
	hdr := map[string]string{"Idempotency-Key": "retry-1"}

	first := postMessage(t, r, body, hdr)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d (%s)", first.Code, first.Body.String())
	}
	second := postMessage(t, r, body, hdr)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d; want 200", second.Code)
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatal("replay header missing")
	}

	// No third message row was created by the replay.
	var count int
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var view struct {
		Data struct {
			Messages []struct{} `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	count = len(view.Data.Messages)
	if count != 2 {
		t.Fatalf("messages = %d; want 2", count)
	}
}

func TestGetSessionAndThemes(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	w := postMessage(t, r, `{"content":"I love espresso"}`, nil)
	var seed struct {
		Data struct {
			Session struct {
				ID string `json:"id"`
			} `json:"session"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &seed); err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	sid := seed.Data.Session.ID

	// Aggregate view.
	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get session = %d", w.Code)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatal("no etag on session view")
	}

	// Conditional retry returns 304.
	etag := w.Header().Get("ETag")
	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+sid, nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("conditional get = %d; want 304", w.Code)
	}

	// Theme report.
	req = httptest.NewRequest(http.MethodGet, "/api/themes/"+sid, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("themes = %d", w.Code)
	}
	var tr struct {
		Data struct {
			SessionID string `json:"sessionId"`
			Themes    []struct {
				Tag               string  `json:"tag"`
				Count             int     `json:"count"`
				AverageConfidence float64 `json:"averageConfidence"`
			} `json:"themes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode themes: %v", err)
	}
	if tr.Data.SessionID != sid || len(tr.Data.Themes) != 1 {
		t.Fatalf("themes payload = %+v", tr.Data)
	}
	if tr.Data.Themes[0].AverageConfidence != 0.9 {
		t.Fatalf("mean = %v", tr.Data.Themes[0].AverageConfidence)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/unknown-id", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", w.Code)
	}
	var eb errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if eb.Error != "SESSION_NOT_FOUND" {
		t.Fatalf("code = %q", eb.Error)
	}
}

func TestThemesForUnknownSessionIsEmpty(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	req := httptest.NewRequest(http.MethodGet, "/api/themes/unknown-id", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	var tr struct {
		Data struct {
			Themes []struct{} `json:"themes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tr.Data.Themes) != 0 {
		t.Fatalf("themes = %d; want 0", len(tr.Data.Themes))
	}
}

func TestListAndDeleteSessions(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	w := postMessage(t, r, `{"content":"I love espresso"}`, nil)
	var seed struct {
		Data struct {
			Session struct {
				ID string `json:"id"`
			} `json:"session"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &seed); err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	sid := seed.Data.Session.ID

	req := httptest.NewRequest(http.MethodGet, "/api/sessions?page=1&page_size=10", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list = %d", w.Code)
	}
	var list struct {
		Data struct {
			Sessions   []struct{} `json:"sessions"`
			Pagination struct {
				Total int `json:"total"`
			} `json:"pagination"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if list.Data.Pagination.Total != 1 || len(list.Data.Sessions) != 1 {
		t.Fatalf("list payload = %+v", list.Data)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/"+sid, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d; want 204", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/"+sid, nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d; want 404", w.Code)
	}
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var hb struct {
		Data struct {
			Status   string `json:"status"`
			Database string `json:"database"`
			Version  string `json:"version"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &hb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hb.Data.Status != "healthy" || hb.Data.Database != "connected" || hb.Data.Version != "test" {
		t.Fatalf("health = %+v", hb.Data)
	}
}

func TestFallbackRoutes(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("no-route = %d; want 404", w.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/messages", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("no-method = %d; want 405", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, espressoAnalyzer())

	// Generate at least one sample so the counter appears in the exposition.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("http_requests_total")) {
		t.Fatal("metrics exposition missing http_requests_total")
	}
}
