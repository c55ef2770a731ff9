package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ekklesia/backend/internal/config"
)

func testMinIOConfig() config.MinIOConfig {
	return config.MinIOConfig{
		Endpoint:  "minio.internal:9000",
		AccessKey: "test-access",
		SecretKey: "test-secret",
		Bucket:    "media",
	}
}

func TestPresignedGetURLUsesInternalEndpoint(t *testing.T) {
	client, err := NewMinIOClient(testMinIOConfig())
	if err != nil {
		t.Fatalf("failed building client: %v", err)
	}

	signed, err := client.PresignedGetURL(context.Background(), "a/b/file.pdf", 15*time.Minute, "application/pdf", "inline")
	if err != nil {
		t.Fatalf("failed presigning: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("failed parsing presigned url: %v", err)
	}
	if parsed.Host != "minio.internal:9000" {
		t.Fatalf("expected internal endpoint, got %q", parsed.Host)
	}
}

func TestPresignedGetURLPrefersPublicEndpoint(t *testing.T) {
	cfg := testMinIOConfig()
	cfg.PublicEndpoint = "files.example.com:9000"

	client, err := NewMinIOClient(cfg)
	if err != nil {
		t.Fatalf("failed building client: %v", err)
	}

	signed, err := client.PresignedGetURL(context.Background(), "a/b/file.pdf", 15*time.Minute, "application/pdf", "inline")
	if err != nil {
		t.Fatalf("failed presigning: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("failed parsing presigned url: %v", err)
	}
	if parsed.Host != "files.example.com:9000" {
		t.Fatalf("expected public endpoint, got %q", parsed.Host)
	}
	if !strings.Contains(parsed.RawQuery, "response-content-disposition") {
		t.Fatal("expected response overrides to survive the public client")
	}
}
