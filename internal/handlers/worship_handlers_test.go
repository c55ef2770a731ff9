package handlers

import (
	"net/http"
	"testing"

	"github.com/ekklesia/backend/internal/models"
)

func createTestReport(t *testing.T, env *testEnv, token, date string, men, women, children int, offering float64) {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/worship-reports/", map[string]any{
		"serviceDate":   date,
		"preacher":      "Past. Mwamba",
		"menCount":      men,
		"womenCount":    women,
		"childrenCount": children,
		"offering":      offering,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
}

func TestWorshipStats(t *testing.T) {
	env := setupTestEnv(t)

	reporter, token := createTestUser(t, env.db, "reporter@example.com", "password123", models.UserRoleUser)
	grantPermissions(t, env.db, reporter, "worship.manage")

	createTestReport(t, env, token, "2025-06-01", 40, 60, 20, 100)
	createTestReport(t, env, token, "2025-06-08", 30, 30, 10, 50)
	createTestReport(t, env, token, "2025-06-15", 50, 80, 30, 150)

	resp := performRequest(t, env.app, http.MethodGet,
		"/api/worship-reports/stats?from=2025-06-01&to=2025-06-30", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	stats := dataMap(t, decodeJSONMap(t, resp))

	if got := stats["reportCount"].(float64); got != 3 {
		t.Fatalf("expected 3 reports, got %v", got)
	}
	if got := stats["totalAttendance"].(float64); got != 350 {
		t.Fatalf("expected total attendance 350, got %v", got)
	}
	if got := stats["totalOffering"].(float64); got != 300 {
		t.Fatalf("expected total offering 300, got %v", got)
	}
	if got := stats["averageOffering"].(float64); got != 100 {
		t.Fatalf("expected average offering 100, got %v", got)
	}

	best, _ := stats["bestService"].(map[string]any)
	if best == nil || best["attendance"].(float64) != 160 {
		t.Fatalf("expected best service attendance 160, got %v", best)
	}
	lowest, _ := stats["lowestService"].(map[string]any)
	if lowest == nil || lowest["attendance"].(float64) != 70 {
		t.Fatalf("expected lowest service attendance 70, got %v", lowest)
	}

	// The to bound is inclusive, so a narrower range trims reports.
	resp = performRequest(t, env.app, http.MethodGet,
		"/api/worship-reports/stats?from=2025-06-01&to=2025-06-08", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	stats = dataMap(t, decodeJSONMap(t, resp))
	if got := stats["reportCount"].(float64); got != 2 {
		t.Fatalf("expected 2 reports in narrowed range, got %v", got)
	}
}

func TestWorshipStatsEmptyRange(t *testing.T) {
	env := setupTestEnv(t)

	_, token := createTestUser(t, env.db, "reader@example.com", "password123", models.UserRoleUser)

	resp := performRequest(t, env.app, http.MethodGet,
		"/api/worship-reports/stats?from=2030-01-01&to=2030-12-31", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	stats := dataMap(t, decodeJSONMap(t, resp))
	if got := stats["reportCount"].(float64); got != 0 {
		t.Fatalf("expected zero reports, got %v", got)
	}
	if _, ok := stats["averageAttendance"]; ok {
		t.Fatal("empty range must not report averages")
	}
}

func TestWorshipCreateRequiresPermission(t *testing.T) {
	env := setupTestEnv(t)

	_, token := createTestUser(t, env.db, "plain@example.com", "password123", models.UserRoleUser)
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/worship-reports/", map[string]any{
		"serviceDate": "2025-06-01",
		"preacher":    "Past. Mwamba",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusForbidden)
}
