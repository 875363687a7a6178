// Package social finds a business's social profiles, first from links on its
// own website and then by probing guessed profile URLs.
package social

import (
	"context"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/octobees/leadgen/internal/logger"
	"github.com/octobees/leadgen/internal/slug"
	"github.com/octobees/leadgen/internal/webfetch"
)

// Platform names a social network.
type Platform string

const (
	LinkedIn  Platform = "linkedin"
	Facebook  Platform = "facebook"
	Instagram Platform = "instagram"
	Twitter   Platform = "twitter"
	Yelp      Platform = "yelp"
	BBB       Platform = "bbb"
)

// Method records how a profile was found.
type Method string

const (
	MethodWebsite Method = "website"
	MethodGuess   Method = "guess"
)

const (
	// DefaultTimeout bounds every probe and fetch.
	DefaultTimeout = 8 * time.Second
	// DefaultProbeDelay spaces consecutive probes.
	DefaultProbeDelay = time.Second

	websiteConfidence = 95
)

var websitePlatforms = []Platform{LinkedIn, Facebook, Instagram, Twitter, Yelp, BBB}

var guessConfidence = map[Platform]int{
	LinkedIn:  85,
	Facebook:  80,
	Instagram: 75,
}

var profilePatterns = map[Platform]*regexp.Regexp{
	LinkedIn:  regexp.MustCompile(`(?i)https?://(?:[a-z]{2,3}\.)?linkedin\.com/(?:company|in|school)/[a-z0-9_\-%.]+`),
	Facebook:  regexp.MustCompile(`(?i)https?://(?:www\.|m\.|web\.)?(?:facebook|fb)\.com/[a-z0-9_.\-]+`),
	Instagram: regexp.MustCompile(`(?i)https?://(?:www\.)?instagram\.com/[a-z0-9_.]+`),
	Twitter:   regexp.MustCompile(`(?i)https?://(?:www\.)?(?:twitter|x)\.com/[a-z0-9_]+`),
	Yelp:      regexp.MustCompile(`(?i)https?://(?:www\.|m\.)?yelp\.[a-z.]+/biz/[a-z0-9_\-%]+`),
	BBB:       regexp.MustCompile(`(?i)https?://(?:www\.)?bbb\.org/[a-z0-9_\-/%]+`),
}

// first path segments that belong to share widgets and app pages, not profiles
var nonProfileSegments = map[string]struct{}{
	"sharer": {}, "sharer.php": {}, "share": {}, "share.php": {}, "plugins": {}, "tr": {},
	"dialog": {}, "intent": {}, "home": {}, "p": {}, "explore": {}, "accounts": {},
	"login": {}, "hashtag": {}, "search": {}, "reel": {}, "i": {},
}

var (
	linkedInFollowers = regexp.MustCompile(`(?i)([\d][\d,.]*)\s*followers`)
	facebookFollowers = regexp.MustCompile(`(?i)([\d][\d,.]*\s*[km]?)\s*(?:people\s+)?(?:followers|likes|people like this)`)
)

// Metrics holds the optional engagement figures of a profile.
type Metrics struct {
	Followers  *int       `json:"followers,omitempty"`
	Posts      *int       `json:"posts,omitempty"`
	Rating     *float64   `json:"rating,omitempty"`
	LastActive *time.Time `json:"last_active,omitempty"`
}

// Profile is one discovered social profile.
type Profile struct {
	Platform   Platform `json:"platform"`
	URL        string   `json:"url"`
	Exists     bool     `json:"exists"`
	Confidence int      `json:"confidence"`
	Method     Method   `json:"method"`
	Metrics    *Metrics `json:"metrics,omitempty"`
}

// Summary condenses a verification result.
type Summary struct {
	Count     int        `json:"count"`
	Platforms []Platform `json:"platforms"`
	TopURL    string     `json:"top_url,omitempty"`
}

// Result is the outcome of one verification run.
type Result struct {
	BusinessName string           `json:"business_name"`
	Website      string           `json:"website,omitempty"`
	Profiles     []Profile        `json:"profiles"`
	ProbeCounts  map[Platform]int `json:"probe_counts"`
	Summary      Summary          `json:"summary"`
}

// URL returns the profile URL for platform, or "".
func (r Result) URL(p Platform) string {
	for _, profile := range r.Profiles {
		if profile.Platform == p {
			return profile.URL
		}
	}
	return ""
}

// Verifier discovers social profiles.
type Verifier struct {
	client  webfetch.Doer
	limiter *rate.Limiter
	timeout time.Duration
	log     *zap.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client webfetch.Doer) Option {
	return func(v *Verifier) {
		if client != nil {
			v.client = client
		}
	}
}

// WithProbeDelay sets the minimum spacing between probes. Zero disables pacing.
func WithProbeDelay(delay time.Duration) Option {
	return func(v *Verifier) {
		v.limiter = newLimiter(delay)
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(v *Verifier) {
		if timeout > 0 {
			v.timeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(v *Verifier) {
		v.log = logger.OrNop(log)
	}
}

// NewVerifier builds a verifier with default pacing and timeouts.
func NewVerifier(opts ...Option) *Verifier {
	v := &Verifier{
		client:  webfetch.NewClient(DefaultTimeout),
		limiter: newLimiter(DefaultProbeDelay),
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func newLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// Verify runs website extraction, then guessing for the platforms still missing.
func (v *Verifier) Verify(ctx context.Context, businessName, website string) Result {
	result := Result{
		BusinessName: businessName,
		Website:      strings.TrimSpace(website),
		ProbeCounts:  map[Platform]int{},
	}
	found := make(map[Platform]bool)

	if result.Website != "" {
		for _, profile := range v.fromWebsite(ctx, result.Website) {
			found[profile.Platform] = true
			result.Profiles = append(result.Profiles, profile)
		}
	}

	for _, platform := range []Platform{LinkedIn, Facebook, Instagram} {
		if found[platform] {
			continue
		}
		profile, ok := v.guess(ctx, platform, businessName, result.ProbeCounts)
		if !ok {
			continue
		}
		if platform == LinkedIn || platform == Facebook {
			profile.Metrics = v.metrics(ctx, platform, profile.URL)
		}
		found[platform] = true
		result.Profiles = append(result.Profiles, profile)
	}

	sort.SliceStable(result.Profiles, func(i, j int) bool {
		return result.Profiles[i].Confidence > result.Profiles[j].Confidence
	})
	result.Summary = summarize(result.Profiles)

	v.log.Debug("social verification finished",
		zap.String("business", businessName),
		zap.Int("profiles", result.Summary.Count),
	)
	return result
}

func (v *Verifier) fromWebsite(ctx context.Context, website string) []Profile {
	page, err := webfetch.Fetch(ctx, v.client, website, v.timeout)
	if err != nil {
		v.log.Debug("social website fetch failed", zap.String("website", website), zap.Error(err))
		return nil
	}
	if !page.OK() {
		return nil
	}

	var hrefs []string
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body)); err == nil {
		doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
			if href, ok := sel.Attr("href"); ok {
				hrefs = append(hrefs, strings.TrimSpace(href))
			}
		})
	}

	var profiles []Profile
	for _, platform := range websitePlatforms {
		link := firstProfileLink(platform, hrefs, page.Body)
		if link == "" {
			continue
		}
		profiles = append(profiles, Profile{
			Platform:   platform,
			URL:        link,
			Exists:     true,
			Confidence: websiteConfidence,
			Method:     MethodWebsite,
		})
	}
	return profiles
}

// firstProfileLink checks anchors before falling back to raw URLs in the body.
func firstProfileLink(platform Platform, hrefs []string, body string) string {
	pattern := profilePatterns[platform]
	for _, href := range hrefs {
		if link := cleanProfileURL(pattern.FindString(href)); link != "" {
			return link
		}
	}
	for _, match := range pattern.FindAllString(body, -1) {
		if link := cleanProfileURL(match); link != "" {
			return link
		}
	}
	return ""
}

func cleanProfileURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimRight(raw, "/."))
	if err != nil {
		return ""
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	if _, skip := nonProfileSegments[strings.ToLower(segments[0])]; skip {
		return ""
	}
	u.Scheme = "https"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func (v *Verifier) guess(ctx context.Context, platform Platform, businessName string, counts map[Platform]int) (Profile, bool) {
	for _, candidate := range Candidates(platform, businessName) {
		if err := v.limiter.Wait(ctx); err != nil {
			return Profile{}, false
		}
		counts[platform]++
		if webfetch.Exists(ctx, v.client, candidate, v.timeout) {
			return Profile{
				Platform:   platform,
				URL:        candidate,
				Exists:     true,
				Confidence: guessConfidence[platform],
				Method:     MethodGuess,
			}, true
		}
	}
	return Profile{}, false
}

// Candidates lists the guessed profile URLs for platform in probe order.
func Candidates(platform Platform, businessName string) []string {
	words := slug.Words(businessName)
	if len(words) == 0 {
		return nil
	}
	stripped := slug.StripLegal(words)

	var base string
	var handles []string
	switch platform {
	case LinkedIn:
		base = "https://www.linkedin.com/company/"
		handles = []string{slug.Hyphenated(words), slug.Hyphenated(stripped), slug.Concatenated(words)}
	case Facebook:
		base = "https://www.facebook.com/"
		handles = []string{slug.Concatenated(words), slug.Concatenated(stripped), slug.Hyphenated(words), slug.FirstWord(words)}
	case Instagram:
		base = "https://www.instagram.com/"
		handles = []string{slug.Concatenated(words), slug.Concatenated(stripped), slug.FirstWord(words), slug.Underscored(words)}
	default:
		return nil
	}

	seen := make(map[string]struct{}, len(handles))
	out := make([]string, 0, len(handles))
	for _, handle := range handles {
		if handle == "" {
			continue
		}
		if _, dup := seen[handle]; dup {
			continue
		}
		seen[handle] = struct{}{}
		out = append(out, base+handle)
	}
	return out
}

func (v *Verifier) metrics(ctx context.Context, platform Platform, profileURL string) *Metrics {
	if err := v.limiter.Wait(ctx); err != nil {
		return nil
	}
	page, err := webfetch.Fetch(ctx, v.client, profileURL, v.timeout)
	if err != nil || !page.OK() {
		return nil
	}

	var followers int
	var ok bool
	switch platform {
	case LinkedIn:
		if m := linkedInFollowers.FindStringSubmatch(page.Body); m != nil {
			followers, ok = parseCount(m[1])
		}
	case Facebook:
		if m := facebookFollowers.FindStringSubmatch(page.Body); m != nil {
			followers, ok = parseCount(m[1])
		}
	}
	if !ok {
		return nil
	}
	return &Metrics{Followers: &followers}
}

// parseCount reads "3,400", "1.2K" or "2M" style counts.
func parseCount(raw string) (int, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	multiplier := 1.0
	switch {
	case strings.HasSuffix(raw, "k"):
		multiplier = 1_000
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "k"))
	case strings.HasSuffix(raw, "m"):
		multiplier = 1_000_000
		raw = strings.TrimSpace(strings.TrimSuffix(raw, "m"))
	}
	raw = strings.ReplaceAll(raw, ",", "")
	if multiplier == 1 {
		raw = strings.ReplaceAll(raw, ".", "")
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return 0, false
	}
	return int(value*multiplier + 0.5), true
}

func summarize(profiles []Profile) Summary {
	s := Summary{Count: len(profiles), Platforms: make([]Platform, 0, len(profiles))}
	for _, p := range profiles {
		s.Platforms = append(s.Platforms, p.Platform)
	}
	if len(profiles) > 0 {
		s.TopURL = profiles[0].URL
	}
	return s
}
