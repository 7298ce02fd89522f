package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/helixpay/payguard/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		FusionStrategy:     config.DefaultFusionStrategy,
		ConsensusThreshold: config.DefaultConsensusThreshold,
		ReviewHold:         config.DefaultReviewHold,
		BlockHold:          config.DefaultBlockHold,
		AdminSecret:        "test-secret",
		RateLimitRPM:       10000,
	}
}

// newTestServer creates an in-memory server with the assessor disabled
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func createUser(t *testing.T, s *Server, id string) {
	t.Helper()
	w := doJSON(t, s, "POST", "/v1/users", map[string]string{"id": id, "name": id}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create user %s: expected 201, got %d: %s", id, w.Code, w.Body.String())
	}
}

func checkTransaction(t *testing.T, s *Server, body map[string]string) map[string]any {
	t.Helper()
	w := doJSON(t, s, "POST", "/v1/transactions", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transaction check: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Verdict map[string]any `json:"verdict"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse verdict response: %v", err)
	}
	return resp.Verdict
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
	if resp["database"] != "in-memory" {
		t.Errorf("Expected in-memory database, got %v", resp["database"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/health/live", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessBeforeRun(t *testing.T) {
	s := newTestServer(t)

	// Run() has not been called, so the server is not ready yet
	w := doJSON(t, s, "GET", "/health/ready", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 before Run, got %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/metrics", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// End-to-end flow through the router
// ---------------------------------------------------------------------------

func TestTransactionFlowThroughRouter(t *testing.T) {
	s := newTestServer(t)

	createUser(t, s, "alice")
	createUser(t, s, "bob")

	// Fund alice through a top-up check
	v := checkTransaction(t, s, map[string]string{
		"actor_id":  "alice",
		"amount":    "100.00",
		"kind":      "top_up",
		"source_ip": "10.0.0.1",
	})
	if v["action"] != "ALLOW" {
		t.Fatalf("expected top-up ALLOW, got %v", v["action"])
	}

	// Small transfer to bob should pass and settle
	v = checkTransaction(t, s, map[string]string{
		"actor_id":        "alice",
		"counterparty_id": "bob",
		"amount":          "25.00",
		"kind":            "transfer",
		"source_ip":       "10.0.0.1",
	})
	if v["action"] != "ALLOW" {
		t.Fatalf("expected transfer ALLOW, got %v (score %v)", v["action"], v["final_score"])
	}

	// Balances visible through the ledger endpoints
	w := doJSON(t, s, "GET", "/v1/users/bob/balance", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", w.Code)
	}
	var bal map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &bal); err != nil {
		t.Fatalf("parse balance: %v", err)
	}
	if bal["available"] != "25.00" {
		t.Errorf("expected bob to have 25.00 available, got %v", bal["available"])
	}

	// Verdict is retrievable by ID
	w = doJSON(t, s, "GET", fmt.Sprintf("/v1/verdicts/%s", v["id"]), nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("verdict lookup: expected 200, got %d", w.Code)
	}

	// And listed under the actor
	w = doJSON(t, s, "GET", "/v1/users/alice/verdicts", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("verdict list: expected 200, got %d", w.Code)
	}
}

func TestRejectedTransactionThroughRouter(t *testing.T) {
	s := newTestServer(t)

	createUser(t, s, "alice")
	createUser(t, s, "bob")

	// No funds: transfer must be rejected with 422, not scored
	w := doJSON(t, s, "POST", "/v1/transactions", map[string]string{
		"actor_id":        "alice",
		"counterparty_id": "bob",
		"amount":          "50.00",
		"kind":            "transfer",
		"source_ip":       "10.0.0.1",
	}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for insufficient balance, got %d: %s", w.Code, w.Body.String())
	}

	// Unknown counterparty is a 404
	w = doJSON(t, s, "POST", "/v1/transactions", map[string]string{
		"actor_id":        "alice",
		"counterparty_id": "nobody",
		"amount":          "1.00",
		"kind":            "transfer",
		"source_ip":       "10.0.0.1",
	}, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown counterparty, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Admin auth
// ---------------------------------------------------------------------------

func TestAdminRoutesRequireSecret(t *testing.T) {
	s := newTestServer(t)

	body := map[string]string{"label": "fraud", "reviewer_id": "admin_1"}

	w := doJSON(t, s, "POST", "/v1/admin/verdicts/vrd_x/verify", body, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without secret, got %d", w.Code)
	}

	w = doJSON(t, s, "POST", "/v1/admin/verdicts/vrd_x/verify", body, map[string]string{
		"X-Admin-Secret": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong secret, got %d", w.Code)
	}

	// Right secret reaches the handler (404: no such verdict)
	w = doJSON(t, s, "POST", "/v1/admin/verdicts/vrd_x/verify", body, map[string]string{
		"X-Admin-Secret": "test-secret",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 with valid secret, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGroundTruthReportThroughRouter(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "GET", "/v1/groundtruth/report", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse report: %v", err)
	}
}

func TestShutdownStopsCleanly(t *testing.T) {
	s := newTestServer(t)
	s.httpSrv = &http.Server{Addr: ":0", Handler: s.router}

	done := make(chan error, 1)
	go func() { done <- s.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("shutdown error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}
