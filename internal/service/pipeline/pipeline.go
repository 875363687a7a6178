// Package pipeline runs place search results through the enrichment
// analyzers, scores them, and hands qualifying prospects to storage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"go.uber.org/zap"

	"github.com/octobees/leadgen/internal/entity"
	"github.com/octobees/leadgen/internal/logger"
	"github.com/octobees/leadgen/internal/places"
	"github.com/octobees/leadgen/internal/service/email"
	"github.com/octobees/leadgen/internal/service/intel"
	"github.com/octobees/leadgen/internal/service/scoring"
	"github.com/octobees/leadgen/internal/service/social"
	"github.com/octobees/leadgen/internal/service/trust"
)

const (
	// PageDelay is the minimum gap before a next-page token may be used.
	PageDelay = 2500 * time.Millisecond

	// HighConfidenceEmail is the threshold for the stored email list.
	HighConfidenceEmail = 70

	defaultPages       = 3
	defaultRadius      = 30000
	defaultPhoneRegion = "US"
)

// Searcher is the place-search collaborator.
type Searcher interface {
	SearchPage(ctx context.Context, req places.SearchRequest, pageToken string) (places.Page, error)
	Details(ctx context.Context, placeID string) (places.Details, error)
}

// TrustChecker classifies websites.
type TrustChecker interface {
	Quick(website string) trust.Verdict
	Deep(ctx context.Context, website string, timeout time.Duration) trust.DeepVerdict
}

// EmailDiscoverer finds contact addresses for a business.
type EmailDiscoverer interface {
	Discover(ctx context.Context, businessName, website string) email.Result
}

// SocialVerifier finds social profiles for a business.
type SocialVerifier interface {
	Verify(ctx context.Context, businessName, website string) social.Result
}

// IntelExtractor fingerprints a website.
type IntelExtractor interface {
	Extract(ctx context.Context, website string) intel.Snapshot
}

// Saver persists enriched prospects.
type Saver interface {
	Upsert(ctx context.Context, prospect *entity.Prospect) error
}

// Options describe one run. An empty OrgID uses the runner's organisation.
type Options struct {
	RunID              uuid.UUID
	OrgID              string
	Query              string
	City               string
	Lat                float64
	Lng                float64
	Radius             float64
	Category           string
	Pages              int
	MinScore           *int
	EnrichEmails       bool
	EnrichSocial       bool
	EnrichIntelligence bool
	SkipSuspicious     bool
	DeepTrust          bool
}

// Validate checks the required fields and applies defaults.
func (o *Options) Validate() error {
	o.Query = strings.TrimSpace(o.Query)
	o.City = strings.TrimSpace(o.City)
	o.Category = strings.TrimSpace(o.Category)
	if o.Query == "" {
		return errors.New("query is required")
	}
	if o.City == "" {
		return errors.New("city is required")
	}
	if o.Lat < -90 || o.Lat > 90 || math.IsNaN(o.Lat) {
		return fmt.Errorf("lat %v out of range", o.Lat)
	}
	if o.Lng < -180 || o.Lng > 180 || math.IsNaN(o.Lng) {
		return fmt.Errorf("lng %v out of range", o.Lng)
	}
	if o.Pages < 0 {
		return fmt.Errorf("pages must not be negative")
	}
	if o.Pages == 0 {
		o.Pages = defaultPages
	}
	if o.Radius <= 0 {
		o.Radius = defaultRadius
	}
	if o.MinScore != nil && (*o.MinScore < 0 || *o.MinScore > 100) {
		return fmt.Errorf("min score %d out of range", *o.MinScore)
	}
	return nil
}

// Stats are the run-level counters.
type Stats struct {
	RunID          uuid.UUID `json:"run_id"`
	Pages          int       `json:"pages"`
	Seen           int       `json:"seen"`
	Saved          int       `json:"saved"`
	SkippedSpam    int       `json:"skipped_spam"`
	SkippedScore   int       `json:"skipped_score"`
	SaveFailures   int       `json:"save_failures"`
	DetailFailures int       `json:"detail_failures"`
}

// Runner wires the collaborators together.
type Runner struct {
	search      Searcher
	store       Saver
	trust       TrustChecker
	emails      EmailDiscoverer
	social      SocialVerifier
	intel       IntelExtractor
	scorer      *scoring.Scorer
	orgID       string
	phoneRegion string
	pageDelay   time.Duration
	now         func() time.Time
	log         *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTrustChecker overrides the trust classifier.
func WithTrustChecker(t TrustChecker) Option {
	return func(r *Runner) {
		if t != nil {
			r.trust = t
		}
	}
}

// WithEmailDiscoverer overrides the email engine.
func WithEmailDiscoverer(e EmailDiscoverer) Option {
	return func(r *Runner) {
		if e != nil {
			r.emails = e
		}
	}
}

// WithSocialVerifier overrides the social verifier.
func WithSocialVerifier(s SocialVerifier) Option {
	return func(r *Runner) {
		if s != nil {
			r.social = s
		}
	}
}

// WithIntelExtractor overrides the website intelligence extractor.
func WithIntelExtractor(x IntelExtractor) Option {
	return func(r *Runner) {
		if x != nil {
			r.intel = x
		}
	}
}

// WithScorer overrides the automation scorer.
func WithScorer(s *scoring.Scorer) Option {
	return func(r *Runner) {
		if s != nil {
			r.scorer = s
		}
	}
}

// WithOrgID sets the organisation prospects are stored under.
func WithOrgID(orgID string) Option {
	return func(r *Runner) {
		if strings.TrimSpace(orgID) != "" {
			r.orgID = strings.TrimSpace(orgID)
		}
	}
}

// WithPhoneRegion sets the region used to parse national phone numbers.
func WithPhoneRegion(region string) Option {
	return func(r *Runner) {
		if strings.TrimSpace(region) != "" {
			r.phoneRegion = strings.ToUpper(strings.TrimSpace(region))
		}
	}
}

// WithPageDelay overrides PageDelay. Zero disables pacing.
func WithPageDelay(d time.Duration) Option {
	return func(r *Runner) {
		r.pageDelay = d
	}
}

// WithClock overrides the discovery timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the run logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		r.log = logger.OrNop(log)
	}
}

// NewRunner builds a runner. Analyzers left unset use their package defaults.
func NewRunner(search Searcher, store Saver, opts ...Option) *Runner {
	r := &Runner{
		search:      search,
		store:       store,
		orgID:       "default",
		phoneRegion: defaultPhoneRegion,
		pageDelay:   PageDelay,
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.trust == nil {
		r.trust = trust.New(nil)
	}
	if r.emails == nil {
		r.emails = email.NewEngine(email.WithLogger(r.log))
	}
	if r.social == nil {
		r.social = social.NewVerifier(social.WithLogger(r.log))
	}
	if r.intel == nil {
		r.intel = intel.NewExtractor(intel.WithLogger(r.log))
	}
	if r.scorer == nil {
		r.scorer = scoring.New(nil)
	}
	return r
}

// Run processes up to opts.Pages search pages. Candidates are handled one at a
// time; only a search page failure or an invalid option aborts the run.
func (r *Runner) Run(ctx context.Context, opts Options) (Stats, error) {
	if err := opts.Validate(); err != nil {
		return Stats{}, fmt.Errorf("invalid run options: %w", err)
	}
	if r.search == nil {
		return Stats{}, errors.New("place search is not configured")
	}
	if opts.RunID == uuid.Nil {
		opts.RunID = uuid.New()
	}

	stats := Stats{RunID: opts.RunID}
	log := r.log.With(zap.String("run_id", opts.RunID.String()), zap.String("query", opts.Query), zap.String("city", opts.City))
	req := places.SearchRequest{
		Query:    searchText(opts),
		Category: opts.Category,
		Lat:      opts.Lat,
		Lng:      opts.Lng,
		Radius:   opts.Radius,
	}

	var (
		token      string
		tokenSince time.Time
	)
	for pageIndex := 0; pageIndex < opts.Pages; pageIndex++ {
		if token != "" {
			if err := r.waitForToken(ctx, tokenSince); err != nil {
				return stats, fmt.Errorf("wait for page %d: %w", pageIndex, err)
			}
		}
		page, err := r.search.SearchPage(ctx, req, token)
		if err != nil {
			log.Error("search page failed", zap.Int("page", pageIndex), zap.Error(err))
			return stats, fmt.Errorf("search page %d: %w", pageIndex, err)
		}
		received := time.Now()
		stats.Pages++
		if len(page.Places) == 0 {
			break
		}

		for rank, place := range page.Places {
			stats.Seen++
			r.process(ctx, log, opts, place, pageIndex, rank, &stats)
		}

		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
		tokenSince = received
	}

	log.Info("pipeline run finished",
		zap.Int("pages", stats.Pages),
		zap.Int("seen", stats.Seen),
		zap.Int("saved", stats.Saved),
		zap.Int("skipped_spam", stats.SkippedSpam),
		zap.Int("skipped_score", stats.SkippedScore),
		zap.Int("save_failures", stats.SaveFailures),
	)
	return stats, nil
}

type enrichment struct {
	Place   places.Place        `json:"place"`
	Details *places.Details     `json:"details,omitempty"`
	Trust   *trust.DeepVerdict  `json:"trust,omitempty"`
	Email   *email.Result       `json:"email,omitempty"`
	Social  *social.Result      `json:"social,omitempty"`
	Intel   *intel.Snapshot     `json:"intelligence,omitempty"`
	Score   scoring.ScoreResult `json:"score"`
}

func (r *Runner) process(ctx context.Context, log *zap.Logger, opts Options, place places.Place, pageIndex, rank int, stats *Stats) {
	log = log.With(zap.String("place_id", place.ID), zap.String("name", place.Name))
	e := enrichment{Place: place}

	if details, err := r.search.Details(ctx, place.ID); err != nil {
		stats.DetailFailures++
		log.Warn("place details lookup failed", zap.Error(err))
	} else {
		e.Details = &details
		place = merge(place, details)
	}
	place.Phone = normalizePhone(place.Phone, r.phoneRegion)
	e.Place = place

	website := strings.TrimSpace(place.Website)
	trustValid := false
	if website != "" {
		verdict := r.checkTrust(ctx, website, opts.DeepTrust)
		e.Trust = &verdict
		trustValid = verdict.IsValid
		if opts.SkipSuspicious && verdict.IsLikelySpam {
			stats.SkippedSpam++
			log.Info("skipping likely spam website", zap.String("website", website), zap.Int("trust_score", verdict.TrustScore))
			return
		}
	}

	if opts.EnrichEmails && website != "" && trustValid {
		result := r.emails.Discover(ctx, place.Name, website)
		e.Email = &result
	}
	if opts.EnrichSocial {
		result := r.social.Verify(ctx, place.Name, website)
		e.Social = &result
	}
	if opts.EnrichIntelligence && website != "" && trustValid {
		snapshot := r.intel.Extract(ctx, website)
		e.Intel = &snapshot
	}

	e.Score = r.scorer.Score(scoring.BusinessSignals{
		Website:        website,
		Rating:         place.Rating,
		ReviewCount:    place.ReviewCount,
		Phone:          place.Phone,
		BusinessStatus: place.BusinessStatus,
	})
	if opts.MinScore != nil && e.Score.Score < *opts.MinScore {
		stats.SkippedScore++
		log.Debug("skipping below minimum score", zap.Int("score", e.Score.Score), zap.Int("min_score", *opts.MinScore))
		return
	}

	prospect := r.assemble(opts, e, pageIndex, rank)
	if r.store == nil {
		stats.SaveFailures++
		log.Error("prospect store is not configured")
		return
	}
	if err := r.store.Upsert(ctx, prospect); err != nil {
		stats.SaveFailures++
		log.Error("failed to save prospect", zap.Error(err))
		return
	}
	stats.Saved++
	log.Debug("prospect saved", zap.Int("score", prospect.AutomationScore))
}

func (r *Runner) checkTrust(ctx context.Context, website string, deep bool) trust.DeepVerdict {
	if deep {
		return r.trust.Deep(ctx, website, trust.DefaultDeepTimeout)
	}
	return trust.DeepVerdict{Verdict: r.trust.Quick(website)}
}

func (r *Runner) assemble(opts Options, e enrichment, pageIndex, rank int) *entity.Prospect {
	place := e.Place
	orgID := r.orgID
	if strings.TrimSpace(opts.OrgID) != "" {
		orgID = strings.TrimSpace(opts.OrgID)
	}
	p := &entity.Prospect{
		OrgID:             orgID,
		PlaceID:           place.ID,
		Name:              place.Name,
		Address:           optional(place.Address),
		Phone:             optional(place.Phone),
		Website:           optional(strings.TrimSpace(place.Website)),
		Reviews:           &place.ReviewCount,
		BusinessStatus:    optional(place.BusinessStatus),
		Types:             place.Types,
		Latitude:          &place.Lat,
		Longitude:         &place.Lng,
		AutomationScore:   e.Score.Score,
		AutomationReasons: e.Score.Reasons,
		AutomationSignals: e.Score.Signals,
		RunID:             opts.RunID,
		Query:             opts.Query,
		City:              opts.City,
		Category:          optional(opts.Category),
		PageIndex:         pageIndex,
		Rank:              rank,
		DiscoveredAt:      r.now().UTC(),
	}
	if place.Rating > 0 {
		rating := place.Rating
		p.Rating = &rating
	}

	if e.Trust != nil {
		score := e.Trust.TrustScore
		p.TrustScore = &score
		p.TrustFlags = e.Trust.Flags
		p.IsLikelySpam = e.Trust.IsLikelySpam
	}
	if e.Email != nil {
		if best, ok := e.Email.Best(); ok {
			p.BestEmail = optional(best.Address)
		}
		p.Emails = email.Addresses(e.Email.ByConfidence(HighConfidenceEmail))
	}
	if e.Social != nil {
		p.LinkedInURL = optional(e.Social.URL(social.LinkedIn))
		p.FacebookURL = optional(e.Social.URL(social.Facebook))
		p.InstagramURL = optional(e.Social.URL(social.Instagram))
	}
	if e.Intel != nil && e.Intel.Fetched {
		p.CMS = optional(e.Intel.Tech.CMS)
		p.HasContactForm = e.Intel.Contact.HasContactForm
		p.HasLiveChat = e.Intel.Contact.HasLiveChat
		p.HasBooking = e.Intel.Contact.HasOnlineBooking
		p.EmployeeCount = e.Intel.Facts.EmployeeCount
		p.FoundedYear = e.Intel.Facts.FoundedYear
		completeness := e.Intel.Completeness
		p.Completeness = &completeness
	}

	if raw, err := json.Marshal(e); err == nil {
		p.Raw = raw
	} else {
		r.log.Warn("failed to encode raw enrichment", zap.String("place_id", place.ID), zap.Error(err))
	}
	return p
}

// merge prefers non-empty detail fields over the search stub.
func merge(place places.Place, details places.Details) places.Place {
	if v := strings.TrimSpace(details.Phone); v != "" {
		place.Phone = v
	}
	if v := strings.TrimSpace(details.Website); v != "" {
		place.Website = v
	}
	if v := strings.TrimSpace(details.BusinessStatus); v != "" {
		place.BusinessStatus = v
	}
	if len(details.Types) > 0 {
		place.Types = details.Types
	}
	return place
}

// normalizePhone formats raw as E.164, or returns it trimmed when it does not parse.
func normalizePhone(raw, region string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if region == "" {
		region = defaultPhoneRegion
	}
	number, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return raw
	}
	if !phonenumbers.IsPossibleNumber(number) || !phonenumbers.IsValidNumber(number) {
		return raw
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

func searchText(opts Options) string {
	if strings.Contains(strings.ToLower(opts.Query), strings.ToLower(opts.City)) {
		return opts.Query
	}
	return opts.Query + " in " + opts.City
}

// waitForToken blocks until pageDelay has passed since the token was received.
func (r *Runner) waitForToken(ctx context.Context, received time.Time) error {
	wait := r.pageDelay - time.Since(received)
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
