// Package trust scores website strings for spam and phishing risk.
package trust

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/octobees/leadgen/internal/heuristics"
	"github.com/octobees/leadgen/internal/webfetch"
)

const (
	// DefaultDeepTimeout bounds the HEAD request of the deep check.
	DefaultDeepTimeout = 10 * time.Second

	maxRedirects = 10
	maxURLLength = 200
	maxLabels    = 4
)

const (
	FlagInvalidURL       = "Invalid or missing URL"
	FlagSpamDomain       = "Known spam/redirect domain"
	FlagSuspiciousTLD    = "Suspicious top-level domain"
	FlagIPAddress        = "IP address used instead of domain"
	FlagManySubdomains   = "Excessive subdomains"
	FlagSuspiciousWords  = "Suspicious keywords in URL"
	FlagLongURL          = "Unusually long URL"
	FlagNotFound         = "Page not found (404)"
	FlagNoHTTPS          = "No HTTPS"
	FlagRedirected       = "Redirects to a different URL"
	FlagTimeout          = "Request timed out"
	FlagUnreachable      = "Website not accessible"
	flagHTTPErrorPattern = "HTTP error status %d"
)

var ipv4Pattern = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)

// Verdict is the outcome of the static checks.
type Verdict struct {
	Website      string   `json:"website"`
	IsValid      bool     `json:"is_valid"`
	IsLikelySpam bool     `json:"is_likely_spam"`
	IsSuspicious bool     `json:"is_suspicious"`
	Flags        []string `json:"flags"`
	TrustScore   int      `json:"trust_score"`
}

// DeepVerdict extends Verdict with the outcome of one HEAD request.
type DeepVerdict struct {
	Verdict
	Checked       bool   `json:"checked"`
	HasSSL        bool   `json:"has_ssl"`
	FinalURL      string `json:"final_url,omitempty"`
	StatusCode    int    `json:"status_code,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	RedirectCount int    `json:"redirect_count"`
}

// Classifier applies the trust heuristics.
type Classifier struct {
	vocab     *heuristics.Vocabulary
	transport http.RoundTripper
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithTransport overrides the transport used by Deep.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Classifier) {
		c.transport = rt
	}
}

// New builds a classifier over the given vocabulary; nil selects the embedded default.
func New(vocab *heuristics.Vocabulary, opts ...Option) *Classifier {
	if vocab == nil {
		vocab = heuristics.Default()
	}
	c := &Classifier{vocab: vocab}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Quick scores website without touching the network.
func (c *Classifier) Quick(website string) Verdict {
	raw := strings.TrimSpace(website)
	v := Verdict{Website: raw, TrustScore: 100}

	host := hostOf(raw)
	if host == "" {
		v.TrustScore = 0
		v.Flags = []string{FlagInvalidURL}
		v.derive()
		return v
	}

	lowered := strings.ToLower(raw)
	penalize := func(points int, flag string) {
		v.TrustScore -= points
		v.Flags = append(v.Flags, flag)
	}

	if containsDomain(host, c.vocab.SpamDomains) {
		penalize(80, FlagSpamDomain)
	}
	if hasAnySuffix(host, c.vocab.SuspiciousTLDs) {
		penalize(30, FlagSuspiciousTLD)
	}
	if ipv4Pattern.MatchString(host) {
		penalize(50, FlagIPAddress)
	}
	if strings.Count(host, ".")+1 > maxLabels {
		penalize(20, FlagManySubdomains)
	}
	if containsAny(lowered, c.vocab.SuspiciousKeywords) {
		penalize(40, FlagSuspiciousWords)
	}
	if len(raw) > maxURLLength {
		penalize(15, FlagLongURL)
	}

	v.TrustScore = clamp(v.TrustScore)
	v.derive()
	return v
}

// Deep runs Quick and, unless the input is already likely spam, one HEAD request.
func (c *Classifier) Deep(ctx context.Context, website string, timeout time.Duration) DeepVerdict {
	quick := c.Quick(website)
	result := DeepVerdict{Verdict: quick}
	if quick.IsLikelySpam {
		return result
	}
	if timeout <= 0 {
		timeout = DefaultDeepTimeout
	}

	target, err := webfetch.Normalize(website)
	if err != nil {
		return result
	}

	redirects := 0
	client := &http.Client{
		Transport: c.transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			redirects = len(via)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return result
	}
	req.Header.Set("User-Agent", webfetch.UserAgent)

	result.Checked = true
	resp, err := client.Do(req)
	if err != nil {
		if webfetch.IsTimeout(err) {
			result.TrustScore -= 20
			result.Flags = append(result.Flags, FlagTimeout)
		} else {
			result.TrustScore -= 15
			result.Flags = append(result.Flags, FlagUnreachable)
		}
		result.TrustScore = clamp(result.TrustScore)
		result.derive()
		// An unreachable site is not evidence of spam.
		result.IsLikelySpam = false
		result.IsSuspicious = true
		return result
	}
	resp.Body.Close()

	result.RedirectCount = redirects
	result.StatusCode = resp.StatusCode
	result.ContentType = resp.Header.Get("Content-Type")
	result.FinalURL = target
	if resp.Request != nil && resp.Request.URL != nil {
		result.FinalURL = resp.Request.URL.String()
	}
	result.HasSSL = strings.HasPrefix(strings.ToLower(result.FinalURL), "https://")

	switch {
	case resp.StatusCode == http.StatusNotFound:
		result.TrustScore -= 50
		result.Flags = append(result.Flags, FlagNotFound)
	case resp.StatusCode >= 400:
		result.TrustScore -= 30
		result.Flags = append(result.Flags, fmt.Sprintf(flagHTTPErrorPattern, resp.StatusCode))
	}
	if !result.HasSSL {
		result.TrustScore -= 20
		result.Flags = append(result.Flags, FlagNoHTTPS)
	}
	if !sameOrigin(target, result.FinalURL) {
		result.TrustScore -= 25
		result.Flags = append(result.Flags, FlagRedirected)
	}

	result.TrustScore = clamp(result.TrustScore)
	result.derive()
	return result
}

func (v *Verdict) derive() {
	v.IsValid = v.TrustScore >= 50
	v.IsLikelySpam = v.TrustScore < 30
	v.IsSuspicious = v.TrustScore < 50
}

// sameOrigin reports whether final equals original or extends it.
func sameOrigin(original, final string) bool {
	original = strings.TrimSuffix(original, "/")
	final = strings.TrimSuffix(final, "/")
	return final == original || strings.HasPrefix(final, original)
}

func hostOf(raw string) string {
	if raw == "" {
		return ""
	}
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "http://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.Trim(u.Hostname(), "."))
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// containsDomain reports whether any listed domain occurs anywhere in host.
func containsDomain(host string, domains []string) bool {
	for _, d := range domains {
		if d != "" && strings.Contains(host, d) {
			return true
		}
	}
	return false
}

func hasAnySuffix(host string, suffixes []string) bool {
	for _, s := range suffixes {
		if s != "" && strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
