// Package intel fingerprints a business website from a single fetch.
package intel

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/octobees/leadgen/internal/heuristics"
	"github.com/octobees/leadgen/internal/logger"
	"github.com/octobees/leadgen/internal/webfetch"
)

// DefaultTimeout bounds the website fetch.
const DefaultTimeout = 15 * time.Second

const (
	maxServiceAreas = 10
	minTeamImages   = 3
	maxTeamImages   = 100
	areaWindow      = 200
	sectionWindow   = 20000
)

// completeness weights per fact category
const (
	weightCMS           = 15
	weightAnalytics     = 10
	weightContactForm   = 15
	weightLiveChat      = 10
	weightBooking       = 15
	weightEmployeeCount = 15
	weightFoundedYear   = 10
	weightCertification = 10
)

var (
	employeePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d{1,5})\+?\s+(?:full[- ]time\s+)?(?:employees|staff members|team members)`),
		regexp.MustCompile(`team of\s+(?:over\s+)?(\d{1,5})`),
		regexp.MustCompile(`staff of\s+(?:over\s+)?(\d{1,5})`),
		regexp.MustCompile(`(\d{1,5})\+?\s+(?:certified\s+)?(?:professionals|technicians|specialists)`),
	}
	foundedPattern  = regexp.MustCompile(`(?:founded|established|since|est\.)\s+(?:in\s+)?(\d{4})\b`)
	calendlyPattern = regexp.MustCompile(`(?i)https?://(?:www\.)?calendly\.com/[a-z0-9_\-/]+`)
	tagPattern      = regexp.MustCompile(`(?s)<script.*?</script>|<style.*?</style>|<[^>]+>`)
	areaLead        = regexp.MustCompile(`(?i)\b(?:serving|service areas?)\b:?\s*(?:the\s+)?`)
	areaSplit       = regexp.MustCompile(`\s*(?:,|;|&|\||\band\b)\s*`)

	teamMarkers    = []string{`id="team"`, `id="about"`, `class="team`, `class="about`, "meet the team", "our team"}
	contactPhrases = []string{"contact us", "contact-form", "get in touch", "request a quote"}
	headerKeys     = []string{"Server", "X-Powered-By", "X-Generator"}
)

// Tech is the detected technology stack.
type Tech struct {
	CMS        string   `json:"cms,omitempty"`
	Analytics  []string `json:"analytics,omitempty"`
	Chat       []string `json:"chat,omitempty"`
	Booking    []string `json:"booking,omitempty"`
	BookingURL string   `json:"booking_url,omitempty"`
}

// Contact describes the contact methods a site offers.
type Contact struct {
	HasContactForm   bool   `json:"has_contact_form"`
	ContactFormURL   string `json:"contact_form_url,omitempty"`
	HasClickToCall   bool   `json:"has_click_to_call"`
	HasEmailLink     bool   `json:"has_email_link"`
	HasLiveChat      bool   `json:"has_live_chat"`
	HasOnlineBooking bool   `json:"has_online_booking"`
}

// Facts are coarse business facts; absent values stay nil or empty.
type Facts struct {
	EmployeeCount  *int     `json:"employee_count,omitempty"`
	FoundedYear    *int     `json:"founded_year,omitempty"`
	Certifications []string `json:"certifications,omitempty"`
	ServiceAreas   []string `json:"service_areas,omitempty"`
}

// Snapshot is everything learned from one fetch.
type Snapshot struct {
	Website      string   `json:"website"`
	Fetched      bool     `json:"fetched"`
	StatusCode   int      `json:"status_code,omitempty"`
	Tech         Tech     `json:"tech"`
	Contact      Contact  `json:"contact"`
	Facts        Facts    `json:"facts"`
	Completeness int      `json:"completeness"`
	Findings     []string `json:"findings"`
}

// Extractor builds snapshots.
type Extractor struct {
	client  webfetch.Doer
	vocab   *heuristics.Vocabulary
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client webfetch.Doer) Option {
	return func(e *Extractor) {
		if client != nil {
			e.client = client
		}
	}
}

// WithVocabulary overrides the detector tables.
func WithVocabulary(vocab *heuristics.Vocabulary) Option {
	return func(e *Extractor) {
		if vocab != nil {
			e.vocab = vocab
		}
	}
}

// WithTimeout overrides the fetch timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(e *Extractor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithClock overrides the clock used to validate founding years.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Extractor) {
		e.log = logger.OrNop(log)
	}
}

// NewExtractor builds an extractor over the embedded vocabulary.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		client:  webfetch.NewClient(DefaultTimeout),
		vocab:   heuristics.Default(),
		timeout: DefaultTimeout,
		now:     time.Now,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches website once and derives a snapshot. Failures are recorded
// as findings on an otherwise empty snapshot.
func (e *Extractor) Extract(ctx context.Context, website string) Snapshot {
	snap := Snapshot{Website: strings.TrimSpace(website)}

	page, err := webfetch.Fetch(ctx, e.client, snap.Website, e.timeout)
	if err != nil {
		snap.Findings = append(snap.Findings, fmt.Sprintf("fetch failed: %v", err))
		e.log.Debug("intel fetch failed", zap.String("website", snap.Website), zap.Error(err))
		return snap
	}
	snap.StatusCode = page.StatusCode
	if !page.OK() {
		snap.Findings = append(snap.Findings, fmt.Sprintf("fetch returned HTTP %d", page.StatusCode))
		return snap
	}
	snap.Fetched = true

	lowered := strings.ToLower(page.Body)
	snap.Tech = e.detectTech(lowered, page)
	snap.Contact = detectContact(lowered, page, snap.Tech)
	snap.Facts = e.detectFacts(lowered, page.Body)
	snap.Completeness = completeness(snap)
	snap.Findings = append(snap.Findings, findings(snap)...)

	e.log.Debug("intel extracted",
		zap.String("website", snap.Website),
		zap.String("cms", snap.Tech.CMS),
		zap.Int("completeness", snap.Completeness),
	)
	return snap
}

func (e *Extractor) detectTech(lowered string, page webfetch.Page) Tech {
	var tech Tech
	for _, sig := range e.vocab.CMS {
		if sig.Match(lowered) {
			tech.CMS = sig.Name
			break
		}
	}
	if tech.CMS == "" {
		headers := headerText(page)
		for _, sig := range e.vocab.CMS {
			if sig.MatchHeader(headers) {
				tech.CMS = sig.Name
				break
			}
		}
	}
	tech.Analytics = matchAll(e.vocab.Analytics, lowered)
	tech.Chat = matchAll(e.vocab.Chat, lowered)
	tech.Booking = matchAll(e.vocab.Booking, lowered)
	for _, name := range tech.Booking {
		if name == "Calendly" {
			tech.BookingURL = calendlyPattern.FindString(page.Body)
		}
	}
	return tech
}

// headerText joins selected header values with every header name, lowercased.
func headerText(page webfetch.Page) string {
	var b strings.Builder
	for _, key := range headerKeys {
		b.WriteString(page.Header.Get(key))
		b.WriteByte(' ')
	}
	for name := range page.Header {
		b.WriteString(name)
		b.WriteByte(' ')
	}
	return strings.ToLower(b.String())
}

func matchAll(signatures []heuristics.Signature, lowered string) []string {
	var names []string
	for _, sig := range signatures {
		if sig.Match(lowered) {
			names = append(names, sig.Name)
		}
	}
	return names
}

func detectContact(lowered string, page webfetch.Page, tech Tech) Contact {
	contact := Contact{
		HasLiveChat:      len(tech.Chat) > 0,
		HasOnlineBooking: len(tech.Booking) > 0,
		HasContactForm:   strings.Contains(lowered, "<form"),
	}
	if !contact.HasContactForm {
		for _, phrase := range contactPhrases {
			if strings.Contains(lowered, phrase) {
				contact.HasContactForm = true
				break
			}
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return contact
	}
	base, _ := url.Parse(page.FinalURL)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		lowHref := strings.ToLower(href)
		switch {
		case strings.HasPrefix(lowHref, "tel:"):
			contact.HasClickToCall = true
		case strings.HasPrefix(lowHref, "mailto:"):
			contact.HasEmailLink = true
		case contact.ContactFormURL == "" && contact.HasContactForm &&
			(strings.Contains(lowHref, "contact") || strings.Contains(strings.ToLower(sel.Text()), "contact")):
			contact.ContactFormURL = resolve(base, href)
		}
	})
	return contact
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

func (e *Extractor) detectFacts(lowered, body string) Facts {
	var facts Facts
	if n, ok := employeeCount(lowered); ok {
		facts.EmployeeCount = &n
	}
	if year, ok := foundedYear(lowered, e.now().Year()); ok {
		facts.FoundedYear = &year
	}
	for _, cert := range e.vocab.Certifications {
		if strings.Contains(lowered, cert) {
			facts.Certifications = append(facts.Certifications, cert)
		}
	}
	facts.ServiceAreas = serviceAreas(tagPattern.ReplaceAllString(body, " "))
	return facts
}

func employeeCount(lowered string) (int, bool) {
	for _, pattern := range employeePatterns {
		m := pattern.FindStringSubmatch(lowered)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n, true
		}
	}
	return teamImageCount(lowered)
}

// teamImageCount counts images in the first about or team section.
func teamImageCount(lowered string) (int, bool) {
	start := -1
	for _, marker := range teamMarkers {
		if idx := strings.Index(lowered, marker); idx >= 0 && (start < 0 || idx < start) {
			start = idx
		}
	}
	if start < 0 {
		return 0, false
	}
	section := lowered[start:]
	if end := strings.Index(section, "</section>"); end >= 0 {
		section = section[:end]
	} else if len(section) > sectionWindow {
		section = section[:sectionWindow]
	}
	n := strings.Count(section, "<img")
	if n < minTeamImages || n > maxTeamImages {
		return 0, false
	}
	return n, true
}

func foundedYear(lowered string, currentYear int) (int, bool) {
	for _, m := range foundedPattern.FindAllStringSubmatch(lowered, -1) {
		year, err := strconv.Atoi(m[1])
		if err == nil && year >= 1900 && year <= currentYear {
			return year, true
		}
	}
	return 0, false
}

func serviceAreas(text string) []string {
	var areas []string
	seen := make(map[string]struct{})
	for _, loc := range areaLead.FindAllStringIndex(text, -1) {
		end := loc[1] + areaWindow
		if end > len(text) {
			end = len(text)
		}
		for _, part := range areaSplit.Split(text[loc[1]:end], -1) {
			name := leadingCapitalized(part)
			if name == "" {
				break
			}
			key := strings.ToLower(name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			areas = append(areas, name)
			if len(areas) == maxServiceAreas {
				return areas
			}
		}
	}
	return areas
}

// leadingCapitalized returns the run of capitalized words that opens s.
func leadingCapitalized(s string) string {
	var words []string
	for _, word := range strings.Fields(s) {
		r, _ := utf8.DecodeRuneInString(word)
		if !unicode.IsUpper(r) {
			break
		}
		trimmed := strings.TrimRight(word, ".!?:")
		words = append(words, trimmed)
		if trimmed != word {
			break
		}
	}
	return strings.Join(words, " ")
}

func completeness(s Snapshot) int {
	score := 0
	if s.Tech.CMS != "" {
		score += weightCMS
	}
	if len(s.Tech.Analytics) > 0 {
		score += weightAnalytics
	}
	if s.Contact.HasContactForm {
		score += weightContactForm
	}
	if s.Contact.HasLiveChat {
		score += weightLiveChat
	}
	if s.Contact.HasOnlineBooking {
		score += weightBooking
	}
	if s.Facts.EmployeeCount != nil {
		score += weightEmployeeCount
	}
	if s.Facts.FoundedYear != nil {
		score += weightFoundedYear
	}
	if len(s.Facts.Certifications) > 0 {
		score += weightCertification
	}
	if score > 100 {
		return 100
	}
	return score
}

func findings(s Snapshot) []string {
	var out []string
	if s.Tech.CMS != "" {
		out = append(out, "CMS: "+s.Tech.CMS)
	}
	if len(s.Tech.Analytics) > 0 {
		out = append(out, "analytics: "+strings.Join(s.Tech.Analytics, ", "))
	}
	if len(s.Tech.Chat) > 0 {
		out = append(out, "live chat: "+strings.Join(s.Tech.Chat, ", "))
	}
	if len(s.Tech.Booking) > 0 {
		out = append(out, "booking: "+strings.Join(s.Tech.Booking, ", "))
	}
	if s.Contact.HasContactForm {
		out = append(out, "contact form present")
	}
	if s.Contact.HasClickToCall {
		out = append(out, "click-to-call link present")
	}
	if s.Facts.EmployeeCount != nil {
		out = append(out, fmt.Sprintf("employee count: %d", *s.Facts.EmployeeCount))
	}
	if s.Facts.FoundedYear != nil {
		out = append(out, fmt.Sprintf("founded: %d", *s.Facts.FoundedYear))
	}
	if len(s.Facts.Certifications) > 0 {
		out = append(out, "certifications: "+strings.Join(s.Facts.Certifications, ", "))
	}
	if len(s.Facts.ServiceAreas) > 0 {
		out = append(out, "service areas: "+strings.Join(s.Facts.ServiceAreas, ", "))
	}
	return out
}
