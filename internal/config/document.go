package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FeedsDocument is the yaml file listing the feeds a host wants cached.
//
//	fetch_timeout: 20s
//	user_agent: my-reader/1.0
//	feeds:
//	  - uri: https://go.dev/blog/feed.atom
//	    name: Go blog
type FeedsDocument struct {
	FetchTimeout Duration    `yaml:"fetch_timeout,omitempty"`
	UserAgent    string      `yaml:"user_agent,omitempty"`
	Feeds        []FeedEntry `yaml:"feeds"`
}

type FeedEntry struct {
	URI  string `yaml:"uri"`
	Name string `yaml:"name,omitempty"`
}

// LoadFeedsDocument reads and validates the document at path.
func LoadFeedsDocument(path string) (*FeedsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFeedsDocument(data)
}

func ParseFeedsDocument(data []byte) (*FeedsDocument, error) {
	var doc FeedsDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse feeds document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate requires at least one feed, absolute http(s) URIs and no duplicates.
func (d *FeedsDocument) Validate() error {
	if len(d.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}
	if d.FetchTimeout < 0 {
		return fmt.Errorf("fetch_timeout must be >= 0")
	}
	seen := make(map[string]bool, len(d.Feeds))
	for i := range d.Feeds {
		entry := &d.Feeds[i]
		entry.URI = strings.TrimSpace(entry.URI)
		if err := ValidateFeedURI(entry.URI); err != nil {
			return fmt.Errorf("feeds[%d]: %w", i, err)
		}
		if seen[entry.URI] {
			return fmt.Errorf("feeds[%d]: duplicate uri %q", i, entry.URI)
		}
		seen[entry.URI] = true
	}
	return nil
}

// URIs returns the feed URIs in document order.
func (d *FeedsDocument) URIs() []string {
	out := make([]string, 0, len(d.Feeds))
	for _, entry := range d.Feeds {
		out = append(out, entry.URI)
	}
	return out
}

func ValidateFeedURI(raw string) error {
	if raw == "" {
		return fmt.Errorf("uri is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid uri %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("uri %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("uri %q has no host", raw)
	}
	return nil
}
