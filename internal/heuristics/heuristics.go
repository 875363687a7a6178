// Package heuristics holds the static vocabularies the analyzers match against.
//
// The tables are loaded once from an embedded YAML document and treated as
// read-only afterwards. A different file can be supplied with Load to extend
// the vocabularies without a rebuild.
package heuristics

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultDocument []byte

// Signature names a technology and the lowercase substrings that reveal it.
type Signature struct {
	Name     string   `yaml:"name"`
	Patterns []string `yaml:"patterns"`
	Headers  []string `yaml:"headers"`
}

// Vocabulary aggregates every lookup table.
type Vocabulary struct {
	SpamDomains        []string    `yaml:"spam_domains"`
	SuspiciousTLDs     []string    `yaml:"suspicious_tlds"`
	SuspiciousKeywords []string    `yaml:"suspicious_keywords"`
	SiteBuilders       []string    `yaml:"site_builders"`
	CMS                []Signature `yaml:"cms"`
	Analytics          []Signature `yaml:"analytics"`
	Chat               []Signature `yaml:"chat"`
	Booking            []Signature `yaml:"booking"`
	Certifications     []string    `yaml:"certifications"`
}

var loadDefault = sync.OnceValue(func() *Vocabulary {
	v, err := Parse(defaultDocument)
	if err != nil {
		panic(fmt.Sprintf("heuristics: embedded vocabulary is invalid: %v", err))
	}
	return v
})

// Default returns the embedded vocabulary. The returned value must not be mutated.
func Default() *Vocabulary {
	return loadDefault()
}

// Load reads a vocabulary from path. An empty path yields the embedded default.
func Load(path string) (*Vocabulary, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read heuristics file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML vocabulary and lowercases every matcher.
func Parse(data []byte) (*Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode heuristics: %w", err)
	}
	if len(v.CMS) == 0 && len(v.SpamDomains) == 0 && len(v.SiteBuilders) == 0 {
		return nil, fmt.Errorf("decode heuristics: document defines no vocabularies")
	}

	v.SpamDomains = lowerAll(v.SpamDomains)
	v.SuspiciousTLDs = lowerAll(v.SuspiciousTLDs)
	v.SuspiciousKeywords = lowerAll(v.SuspiciousKeywords)
	v.SiteBuilders = lowerAll(v.SiteBuilders)
	v.Certifications = lowerAll(v.Certifications)
	for _, group := range [][]Signature{v.CMS, v.Analytics, v.Chat, v.Booking} {
		for i := range group {
			group[i].Patterns = lowerAll(group[i].Patterns)
			group[i].Headers = lowerAll(group[i].Headers)
		}
	}
	return &v, nil
}

// Match reports whether any pattern of the signature occurs in the lowercased haystack.
func (s Signature) Match(lowered string) bool {
	for _, p := range s.Patterns {
		if p != "" && strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

// MatchHeader reports whether any header token occurs in the lowercased header value.
func (s Signature) MatchHeader(lowered string) bool {
	for _, h := range s.Headers {
		if h != "" && strings.Contains(lowered, h) {
			return true
		}
	}
	return false
}

// IsSiteBuilder reports whether host belongs to a hosted website builder.
func (v *Vocabulary) IsSiteBuilder(host string) bool {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, builder := range v.SiteBuilders {
		if strings.Contains(host, builder) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}
