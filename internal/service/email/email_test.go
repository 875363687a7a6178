package email

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	mx    map[string]bool
	calls map[string]int
}

func (s *stubResolver) LookupMX(_ context.Context, domain string) ([]*net.MX, error) {
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[domain]++
	if s.mx[domain] {
		return []*net.MX{{Host: "mx." + domain, Pref: 10}}, nil
	}
	return nil, errors.New("no such host")
}

type stubDoer struct {
	status int
	body   string
	err    error
	calls  int
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Request:    req,
	}, nil
}

const acmePage = `<html><body>
<a href="mailto:Owner@AcmePlumbing.com?subject=Quote">Email the owner</a>
<a href="mailto:broken@@acme">broken</a>
<p>Sales: sales@acmeplumbing.com</p>
<p>Billing handled by billing@gmail.com</p>
<img src="/img/logo@2x.png">
<p>Template leftovers: user@example.com</p>
</body></html>`

func TestDiscoverRanksScrapedAndPatternAddresses(t *testing.T) {
	resolver := &stubResolver{mx: map[string]bool{"acmeplumbing.com": true}}
	doer := &stubDoer{status: http.StatusOK, body: acmePage}
	engine := NewEngine(WithDNSResolver(resolver), WithHTTPClient(doer))

	result := engine.Discover(context.Background(), "Acme Plumbing LLC", "https://www.acmeplumbing.com")

	require.Equal(t, "acmeplumbing.com", result.Domain)
	assert.True(t, result.HasMX)
	assert.Equal(t, 1, doer.calls)
	assert.Equal(t, map[string]int{"acmeplumbing.com": 1}, resolver.calls, "only the target domain is resolved, once")

	assert.Equal(t, SourceMailto, result.Sources["owner@acmeplumbing.com"])
	assert.Equal(t, SourceHTML, result.Sources["sales@acmeplumbing.com"], "scraped tag wins over pattern")
	assert.NotContains(t, result.Sources, "logo@2x.png")
	assert.NotContains(t, result.Sources, "user@example.com")

	assert.Equal(t, Invalid, result.Validation["broken@@acme"])
	assert.Equal(t, 0, result.Confidence["broken@@acme"])
	assert.Equal(t, Unknown, result.Validation["billing@gmail.com"], "off-domain addresses share the target lookup")
	assert.Equal(t, 70, result.Confidence["billing@gmail.com"])

	best, ok := result.Best()
	require.True(t, ok)
	assert.Equal(t, "sales@acmeplumbing.com", best.Address)
	assert.Equal(t, 95, best.Confidence)
	assert.Equal(t, "owner@acmeplumbing.com", result.Emails[1].Address)
	assert.Equal(t, 90, result.Emails[1].Confidence)

	// ties keep first-seen order
	assert.Equal(t, []string{"info@acmeplumbing.com", "contact@acmeplumbing.com", "hello@acmeplumbing.com"},
		Addresses(result.Emails[2:5]))
	assert.Contains(t, result.Patterns, "acmeplumbing@acmeplumbing.com")
	assert.Equal(t, 70, result.Confidence["acmeplumbing@acmeplumbing.com"])
	assert.Equal(t, 78, result.Confidence["estimate@acmeplumbing.com"])

	for _, c := range result.Emails {
		assert.NotEqual(t, Invalid, c.Validation, c.Address)
		assert.Equal(t, Unknown, c.Validation, c.Address)
	}
	for i := 1; i < len(result.Emails); i++ {
		assert.GreaterOrEqual(t, result.Emails[i-1].Confidence, result.Emails[i].Confidence)
	}

	high := result.ByConfidence(85)
	assert.Equal(t, []string{
		"sales@acmeplumbing.com", "owner@acmeplumbing.com",
		"info@acmeplumbing.com", "contact@acmeplumbing.com", "hello@acmeplumbing.com",
	}, Addresses(high))
}

func TestDiscoverUnparseableWebsiteIsEmpty(t *testing.T) {
	resolver := &stubResolver{}
	doer := &stubDoer{status: http.StatusOK}
	engine := NewEngine(WithDNSResolver(resolver), WithHTTPClient(doer))

	for _, website := range []string{"", "   ", "ftp://files.acme.com"} {
		result := engine.Discover(context.Background(), "Acme", website)
		assert.Empty(t, result.Domain, website)
		assert.Empty(t, result.Emails, website)
		assert.Empty(t, result.Patterns, website)
		_, ok := result.Best()
		assert.False(t, ok, website)
	}
	assert.Zero(t, doer.calls)
	assert.Empty(t, resolver.calls)
}

func TestDiscoverWithoutMXExcludesEverything(t *testing.T) {
	resolver := &stubResolver{}
	doer := &stubDoer{err: errors.New("connection refused")}
	engine := NewEngine(WithDNSResolver(resolver), WithHTTPClient(doer))

	result := engine.Discover(context.Background(), "Blue Sky HVAC", "blueskyhvac.com")

	assert.False(t, result.HasMX)
	assert.NotEmpty(t, result.Patterns)
	assert.Empty(t, result.Emails)
	assert.Equal(t, 1, resolver.calls["blueskyhvac.com"])
	assert.Equal(t, Invalid, result.Validation["info@blueskyhvac.com"])
	// 50 + 10 pattern - 40 invalid + 15 role + 10 domain
	assert.Equal(t, 45, result.Confidence["info@blueskyhvac.com"])
	_, ok := result.Best()
	assert.False(t, ok)
}

func TestDiscoverUsesRegistrableDomain(t *testing.T) {
	resolver := &stubResolver{mx: map[string]bool{"acme.co.uk": true}}
	engine := NewEngine(WithDNSResolver(resolver), WithHTTPClient(&stubDoer{status: http.StatusNotFound}))

	result := engine.Discover(context.Background(), "", "https://shop.acme.co.uk/contact")

	assert.Equal(t, "acme.co.uk", result.Domain)
	assert.Contains(t, result.Patterns, "info@acme.co.uk")
	assert.Empty(t, result.Scraped)
}

func TestConfidenceIsMonotonicInSource(t *testing.T) {
	for _, address := range []string{"info@acme.com", "owner@acme.com", "quote@acme.com", "x@other.net"} {
		for _, validation := range []Validation{Valid, Unknown, Invalid} {
			mailto := confidence(address, SourceMailto, validation, "acme.com")
			html := confidence(address, SourceHTML, validation, "acme.com")
			pattern := confidence(address, SourcePattern, validation, "acme.com")
			assert.GreaterOrEqual(t, mailto, html, address)
			assert.GreaterOrEqual(t, html, pattern, address)
			assert.GreaterOrEqual(t, mailto, 0)
			assert.LessOrEqual(t, mailto, 100)
		}
	}
	assert.Equal(t, 100, confidence("info@acme.com", SourceMailto, Valid, "acme.com"))
}

func TestMailtoTarget(t *testing.T) {
	cases := []struct {
		href string
		want string
		ok   bool
	}{
		{"mailto:Info@Acme.com", "info@acme.com", true},
		{"MAILTO:hello%40acme.com?subject=hi", "hello@acme.com", true},
		{"mailto:", "", false},
		{"https://acme.com", "", false},
	}
	for _, tc := range cases {
		got, ok := mailtoTarget(tc.href)
		assert.Equal(t, tc.ok, ok, tc.href)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.href)
		}
	}
}
