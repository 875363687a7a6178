// Package email discovers and ranks contact addresses for a business website.
//
// Validation stops at format and MX checks. An address marked unknown has a
// mail-capable domain but its mailbox was never confirmed, so confidence is a
// ranking signal and not a delivery guarantee.
package email

import (
	"context"
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/octobees/leadgen/internal/logger"
	"github.com/octobees/leadgen/internal/slug"
	"github.com/octobees/leadgen/internal/webfetch"
)

// Source tags where an address came from.
type Source string

const (
	SourceMailto  Source = "scraped-mailto"
	SourceHTML    Source = "scraped-html"
	SourcePattern Source = "pattern-common"
)

// Validation is the format and domain verdict for an address.
type Validation string

const (
	Valid   Validation = "valid"
	Invalid Validation = "invalid"
	Unknown Validation = "unknown"
)

// DefaultTimeout bounds the website fetch.
const DefaultTimeout = 10 * time.Second

const mxTimeout = 3 * time.Second

var (
	formatPattern = regexp.MustCompile(`^[a-z0-9._%+\-']+@[a-z0-9.-]+\.[a-z]{2,}$`)
	scanPattern   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

	rolePrefixes     = []string{"info", "contact", "sales", "hello", "support", "admin", "office", "inquiries", "team", "mail"}
	industryPrefixes = []string{"estimate", "quote", "service", "booking", "appointments"}

	placeholderDomains = map[string]struct{}{
		"example.com": {}, "example.org": {}, "example.net": {}, "domain.com": {},
		"yourdomain.com": {}, "yoursite.com": {}, "email.com": {}, "company.com": {},
		"test.com": {}, "sentry.io": {}, "wixpress.com": {}, "sentry.wixpress.com": {},
		"sentry-next.wixpress.com": {}, "mysite.com": {},
	}
	imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico", ".bmp"}

	sourceRank = map[Source]int{SourcePattern: 1, SourceHTML: 2, SourceMailto: 3}
)

// DNSResolver abstracts MX lookups to simplify testing.
type DNSResolver interface {
	LookupMX(ctx context.Context, domain string) ([]*net.MX, error)
}

// Candidate is one ranked address.
type Candidate struct {
	Address    string     `json:"email"`
	Source     Source     `json:"source"`
	Validation Validation `json:"validation"`
	Confidence int        `json:"confidence"`
}

// Result is the outcome of a discovery run.
type Result struct {
	Domain     string                `json:"domain"`
	Emails     []Candidate           `json:"emails"`
	Scraped    []string              `json:"scraped"`
	Patterns   []string              `json:"patterns"`
	HasMX      bool                  `json:"has_mx"`
	Sources    map[string]Source     `json:"sources"`
	Validation map[string]Validation `json:"validation"`
	Confidence map[string]int        `json:"confidence"`
}

// Best returns the highest-confidence address, earliest first on ties.
func (r Result) Best() (Candidate, bool) {
	if len(r.Emails) == 0 {
		return Candidate{}, false
	}
	return r.Emails[0], true
}

// ByConfidence returns the ranked addresses scoring at least threshold.
func (r Result) ByConfidence(threshold int) []Candidate {
	var out []Candidate
	for _, c := range r.Emails {
		if c.Confidence >= threshold {
			out = append(out, c)
		}
	}
	return out
}

// Addresses returns the ranked address strings.
func Addresses(candidates []Candidate) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.Address)
	}
	return out
}

// Engine runs email discovery.
type Engine struct {
	client   webfetch.Doer
	resolver DNSResolver
	timeout  time.Duration
	log      *zap.Logger
}

// Option configures optional dependencies.
type Option func(*Engine)

// WithDNSResolver overrides the default DNS resolver.
func WithDNSResolver(resolver DNSResolver) Option {
	return func(e *Engine) {
		e.resolver = resolver
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client webfetch.Doer) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
		}
	}
}

// WithTimeout overrides the website fetch timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		e.log = logger.OrNop(log)
	}
}

// NewEngine builds an engine with the system resolver and a default client.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client:   webfetch.NewClient(DefaultTimeout),
		resolver: net.DefaultResolver,
		timeout:  DefaultTimeout,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover scrapes website, adds pattern guesses and ranks every candidate.
// An unusable website yields an empty result.
func (e *Engine) Discover(ctx context.Context, businessName, website string) Result {
	result := Result{
		Sources:    map[string]Source{},
		Validation: map[string]Validation{},
		Confidence: map[string]int{},
	}
	domain := targetDomain(website)
	if domain == "" {
		return result
	}
	result.Domain = domain

	var order []string
	add := func(address string, src Source) {
		address = strings.ToLower(strings.TrimSpace(address))
		if address == "" {
			return
		}
		existing, seen := result.Sources[address]
		if !seen {
			order = append(order, address)
			result.Sources[address] = src
			return
		}
		if sourceRank[src] > sourceRank[existing] {
			result.Sources[address] = src
		}
	}

	mailto, html := e.scrape(ctx, website)
	for _, address := range mailto {
		add(address, SourceMailto)
	}
	for _, address := range html {
		add(address, SourceHTML)
	}
	result.Scraped = append(append([]string{}, mailto...), html...)

	result.Patterns = patterns(businessName, domain)
	for _, address := range result.Patterns {
		add(address, SourcePattern)
	}

	// One lookup for the target domain covers every candidate.
	result.HasMX = e.hasMXRecord(ctx, domain)

	for _, address := range order {
		validation := Unknown
		if !validFormat(address) {
			result.Validation[address] = Invalid
			result.Confidence[address] = 0
			continue
		}
		if !result.HasMX {
			validation = Invalid
		}
		result.Validation[address] = validation
		result.Confidence[address] = confidence(address, result.Sources[address], validation, domain)
	}

	for _, address := range order {
		if result.Validation[address] == Invalid {
			continue
		}
		result.Emails = append(result.Emails, Candidate{
			Address:    address,
			Source:     result.Sources[address],
			Validation: result.Validation[address],
			Confidence: result.Confidence[address],
		})
	}
	sort.SliceStable(result.Emails, func(i, j int) bool {
		return result.Emails[i].Confidence > result.Emails[j].Confidence
	})

	e.log.Debug("email discovery finished",
		zap.String("domain", domain),
		zap.Int("candidates", len(order)),
		zap.Int("kept", len(result.Emails)),
		zap.Bool("has_mx", result.HasMX),
	)
	return result
}

func (e *Engine) scrape(ctx context.Context, website string) (mailto, html []string) {
	page, err := webfetch.Fetch(ctx, e.client, website, e.timeout)
	if err != nil {
		e.log.Debug("email scrape failed", zap.String("website", website), zap.Error(err))
		return nil, nil
	}
	if !page.OK() {
		e.log.Debug("email scrape non-success status", zap.String("website", website), zap.Int("status", page.StatusCode))
		return nil, nil
	}

	seen := make(map[string]struct{})
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body)); err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			address, ok := mailtoTarget(href)
			if !ok || rejected(address) {
				return
			}
			if _, dup := seen[address]; dup {
				return
			}
			seen[address] = struct{}{}
			mailto = append(mailto, address)
		})
	}

	for _, match := range scanPattern.FindAllString(page.Body, -1) {
		address := strings.ToLower(strings.Trim(match, "."))
		if rejected(address) {
			continue
		}
		if _, dup := seen[address]; dup {
			continue
		}
		seen[address] = struct{}{}
		html = append(html, address)
	}
	return mailto, html
}

func (e *Engine) hasMXRecord(ctx context.Context, domain string) bool {
	if e.resolver == nil || domain == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, mxTimeout)
	defer cancel()
	records, err := e.resolver.LookupMX(ctx, domain)
	return err == nil && len(records) > 0
}

func mailtoTarget(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if len(href) < len("mailto:") || !strings.EqualFold(href[:len("mailto:")], "mailto:") {
		return "", false
	}
	target := href[len("mailto:"):]
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		target = target[:idx]
	}
	if unescaped, err := url.PathUnescape(target); err == nil {
		target = unescaped
	}
	target = strings.ToLower(strings.TrimSpace(target))
	return target, strings.Contains(target, "@")
}

func rejected(address string) bool {
	for _, ext := range imageExtensions {
		if strings.HasSuffix(address, ext) {
			return true
		}
	}
	_, placeholder := placeholderDomains[domainOf(address)]
	return placeholder
}

func patterns(businessName, domain string) []string {
	out := make([]string, 0, len(rolePrefixes)+len(industryPrefixes)+1)
	seen := make(map[string]struct{})
	push := func(local string) {
		if local == "" {
			return
		}
		address := local + "@" + domain
		if _, dup := seen[address]; dup {
			return
		}
		seen[address] = struct{}{}
		out = append(out, address)
	}
	for _, prefix := range rolePrefixes {
		push(prefix)
	}
	if local := slug.Concatenated(slug.StripLegal(slug.Words(businessName))); len(local) >= 2 && len(local) <= 30 {
		push(local)
	}
	for _, prefix := range industryPrefixes {
		push(prefix)
	}
	return out
}

func confidence(address string, src Source, validation Validation, target string) int {
	score := 50
	switch src {
	case SourceMailto:
		score += 30
	case SourceHTML:
		score += 20
	case SourcePattern:
		score += 10
	}
	switch validation {
	case Valid:
		score += 20
	case Invalid:
		score -= 40
	}
	switch localPart(address) {
	case "info", "contact", "hello", "sales":
		score += 15
	case "support", "admin", "team":
		score += 10
	case "estimate", "quote", "service":
		score += 8
	}
	if target != "" && strings.Contains(domainOf(address), target) {
		score += 10
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func validFormat(address string) bool {
	if !formatPattern.MatchString(address) {
		return false
	}
	return isDomainValid(domainOf(address))
}

func isDomainValid(domain string) bool {
	if strings.Count(domain, ".") == 0 {
		return false
	}
	for _, part := range strings.Split(domain, ".") {
		if part == "" || strings.HasPrefix(part, "-") || strings.HasSuffix(part, "-") {
			return false
		}
	}
	return true
}

// targetDomain returns the registrable ASCII domain of website.
func targetDomain(website string) string {
	host := webfetch.Hostname(website)
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil || ascii == "" {
		return ""
	}
	if registrable, err := publicsuffix.EffectiveTLDPlusOne(ascii); err == nil {
		return registrable
	}
	if strings.Contains(ascii, ".") {
		return ascii
	}
	return ""
}

func domainOf(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return ""
	}
	domain := address[at+1:]
	if ascii, err := idna.Lookup.ToASCII(domain); err == nil && ascii != "" {
		return ascii
	}
	return domain
}

func localPart(address string) string {
	at := strings.LastIndexByte(address, '@')
	if at < 0 {
		return address
	}
	return address[:at]
}
