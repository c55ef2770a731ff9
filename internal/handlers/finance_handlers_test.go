package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/ekklesia/backend/internal/models"
)

func createTestTransaction(t *testing.T, env *testEnv, token, flow, category string, amount float64) {
	t.Helper()
	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/caisse/", map[string]any{
		"flow":     flow,
		"category": category,
		"label":    category + " entry",
		"amount":   amount,
		"date":     "2025-06-01",
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
}

func TestCaisseRequiresFinancePermission(t *testing.T) {
	env := setupTestEnv(t)

	_, token := createTestUser(t, env.db, "plain@example.com", "password123", models.UserRoleUser)

	// Even reads are scoped to finance.manage holders.
	resp := performRequest(t, env.app, http.MethodGet, "/api/caisse/", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusForbidden)

	resp = performRequest(t, env.app, http.MethodGet, "/api/payments/", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusForbidden)
}

func TestCaisseSummary(t *testing.T) {
	env := setupTestEnv(t)

	treasurer, token := createTestUser(t, env.db, "treasurer@example.com", "password123", models.UserRoleUser)
	grantPermissions(t, env.db, treasurer, "finance.manage")

	createTestTransaction(t, env, token, "inflow", "offering", 200)
	createTestTransaction(t, env, token, "inflow", "donation", 100)
	createTestTransaction(t, env, token, "outflow", "supplies", 80)

	resp := performRequest(t, env.app, http.MethodGet, "/api/caisse/summary", nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	summary := dataMap(t, decodeJSONMap(t, resp))

	if got := summary["inflow"].(float64); got != 300 {
		t.Fatalf("expected inflow 300, got %v", got)
	}
	if got := summary["outflow"].(float64); got != 80 {
		t.Fatalf("expected outflow 80, got %v", got)
	}
	if got := summary["balance"].(float64); got != 220 {
		t.Fatalf("expected balance 220, got %v", got)
	}
	byCategory, _ := summary["byCategory"].([]any)
	if len(byCategory) != 3 {
		t.Fatalf("expected 3 category rows, got %d", len(byCategory))
	}
}

func TestCaisseCreateValidation(t *testing.T) {
	env := setupTestEnv(t)

	treasurer, token := createTestUser(t, env.db, "treasurer@example.com", "password123", models.UserRoleUser)
	grantPermissions(t, env.db, treasurer, "finance.manage")

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/caisse/", map[string]any{
		"flow":     "sideways",
		"category": "misc",
		"label":    "bad flow",
		"amount":   10,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)

	resp = performJSONRequest(t, env.app, http.MethodPost, "/api/caisse/", map[string]any{
		"flow":     "inflow",
		"category": "misc",
		"label":    "free money",
		"amount":   0,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestPaymentLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	treasurer, token := createTestUser(t, env.db, "treasurer@example.com", "password123", models.UserRoleUser)
	grantPermissions(t, env.db, treasurer, "finance.manage")

	child := &models.Child{FirstName: "Grace", LastName: "Ilunga"}
	if err := env.db.Create(child).Error; err != nil {
		t.Fatalf("failed creating child: %v", err)
	}
	fee := 25.0
	activity := &models.Activity{
		Title:       "Camp Biblique",
		Date:        time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
		FeeAmount:   &fee,
		CreatedByID: treasurer.ID,
	}
	if err := env.db.Create(activity).Error; err != nil {
		t.Fatalf("failed creating activity: %v", err)
	}

	resp := performJSONRequest(t, env.app, http.MethodPost, "/api/payments/", map[string]any{
		"childID":    child.ID.String(),
		"activityID": activity.ID.String(),
		"amount":     25,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	created := dataMap(t, decodeJSONMap(t, resp))
	if created["method"] != "cash" {
		t.Fatalf("expected method to default to cash, got %v", created["method"])
	}

	resp = performRequest(t, env.app, http.MethodGet,
		"/api/payments/?childID="+child.ID.String(), nil, authHeaders(token))
	assertStatus(t, resp, http.StatusOK)
	body := decodeJSONMap(t, resp)
	items, _ := body["data"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 payment for child, got %d", len(items))
	}
}
