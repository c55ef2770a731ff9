package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ekklesia/backend/internal/config"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"local with trunk zero", "0821234567", "243821234567"},
		{"international with plus", "+243821234567", "243821234567"},
		{"already international", "243821234567", "243821234567"},
		{"spaces and dashes", "082 123-45-67", "243821234567"},
		{"plus and spaces", "+243 82 123 45 67", "243821234567"},
		{"empty", "", ""},
		{"punctuation only", "+- ()", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizePhone(tc.raw, "243")
			if got != tc.expected {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tc.raw, got, tc.expected)
			}
		})
	}
}

func TestGatewayAccepted(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		accepted bool
	}{
		{"http 200 empty body", http.StatusOK, "", true},
		{"http 200 error body still accepted", http.StatusOK, "ERROR: bad credentials", true},
		{"non-200 with OK body", http.StatusAccepted, "OK", true},
		{"non-200 with success body", http.StatusBadRequest, "message sent with success", true},
		{"non-200 failure body", http.StatusBadRequest, "invalid api_id", false},
		{"server error", http.StatusInternalServerError, "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := gatewayAccepted(tc.status, tc.body); got != tc.accepted {
				t.Fatalf("gatewayAccepted(%d, %q) = %v, want %v", tc.status, tc.body, got, tc.accepted)
			}
		})
	}
}

func TestSendBuildsGatewayRequest(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	gateway := NewSMSGateway(config.SMSConfig{
		GatewayURL:  server.URL,
		APIID:       "api-id",
		APIPassword: "api-secret",
		SenderID:    "EKKLESIA",
		CountryCode: "243",
		Timeout:     5 * time.Second,
	})

	if err := gateway.Send(context.Background(), "0821234567", "Your login code is 123456."); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	expected := map[string]string{
		"api_id":       "api-id",
		"api_password": "api-secret",
		"sms_type":     "T",
		"encoding":     "T",
		"sender_id":    "EKKLESIA",
		"phonenumber":  "243821234567",
		"textmessage":  "Your login code is 123456.",
	}
	for key, want := range expected {
		if gotQuery[key] != want {
			t.Fatalf("query param %s = %q, want %q", key, gotQuery[key], want)
		}
	}
}

func TestSendRejectedByGateway(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid api_id"))
	}))
	defer server.Close()

	gateway := NewSMSGateway(config.SMSConfig{
		GatewayURL:  server.URL,
		CountryCode: "243",
		Timeout:     5 * time.Second,
	})

	if err := gateway.Send(context.Background(), "0821234567", "hello"); err == nil {
		t.Fatal("expected an error for a rejected send")
	}
}

func TestSendUnconfigured(t *testing.T) {
	gateway := NewSMSGateway(config.SMSConfig{CountryCode: "243", Timeout: time.Second})
	if err := gateway.Send(context.Background(), "0821234567", "hello"); err == nil {
		t.Fatal("expected an error when the gateway URL is empty")
	}
}
