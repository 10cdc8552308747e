package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseFeedsDocument(t *testing.T) {
	doc, err := ParseFeedsDocument([]byte(`
fetch_timeout: 1d
user_agent: reader/1.0
feeds:
  - uri: " https://go.dev/blog/feed.atom "
    name: Go blog
  - uri: http://feed.example/rss
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if doc.FetchTimeout.Std() != 24*time.Hour {
		t.Fatalf("expected 24h fetch timeout, got %v", doc.FetchTimeout.Std())
	}
	uris := doc.URIs()
	if len(uris) != 2 || uris[0] != "https://go.dev/blog/feed.atom" {
		t.Fatalf("unexpected uris %v", uris)
	}
	if doc.Feeds[0].Name != "Go blog" {
		t.Fatalf("expected name to be parsed")
	}
}

func TestFeedsDocumentValidation(t *testing.T) {
	cases := map[string]string{
		"empty":     `feeds: []`,
		"scheme":    "feeds:\n  - uri: ftp://feed.example/rss\n",
		"no host":   "feeds:\n  - uri: http:///rss\n",
		"duplicate": "feeds:\n  - uri: http://a.example\n  - uri: http://a.example\n",
		"duration":  "fetch_timeout: soon\nfeeds:\n  - uri: http://a.example\n",
	}
	for name, body := range cases {
		if _, err := ParseFeedsDocument([]byte(body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadFeedsDocumentFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	if err := os.WriteFile(path, []byte("feeds:\n  - uri: https://feed.example/rss\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := LoadFeedsDocument(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(doc.Feeds) != 1 {
		t.Fatalf("expected one feed")
	}
	if _, err := LoadFeedsDocument(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestLoadEnvDefaultsAndOverrides(t *testing.T) {
	t.Setenv("FEEDCACHE_STORE", "BADGER")
	t.Setenv("RSS_FETCH_TIMEOUT", "2m")
	t.Setenv("RSS_FETCH_ATTEMPTS", "nope")
	t.Setenv("FEEDCACHE_LOG_LEVEL", "debug")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "a=1, b = 2 ,broken")

	cfg := LoadEnv()
	if cfg.StoreKind != StoreBadger {
		t.Fatalf("expected store kind to be lowercased, got %q", cfg.StoreKind)
	}
	if cfg.RSS.FetchTimeout != 2*time.Minute {
		t.Fatalf("expected 2m fetch timeout, got %v", cfg.RSS.FetchTimeout)
	}
	if cfg.RSS.FetchAttempts != 1 {
		t.Fatalf("expected invalid attempts to fall back to 1, got %d", cfg.RSS.FetchAttempts)
	}
	if !strings.EqualFold(cfg.LogLevel.String(), "debug") {
		t.Fatalf("expected debug level, got %v", cfg.LogLevel)
	}
	if len(cfg.OTel.Headers) != 2 || cfg.OTel.Headers["b"] != "2" {
		t.Fatalf("unexpected headers %v", cfg.OTel.Headers)
	}
	if cfg.DatabasePath != "feedcache.db" {
		t.Fatalf("expected default database path, got %q", cfg.DatabasePath)
	}
}
