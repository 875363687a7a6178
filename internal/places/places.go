// Package places queries the Google Places API (New) for candidate businesses.
package places

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	placesapi "google.golang.org/api/places/v1"

	"github.com/octobees/leadgen/internal/logger"
)

const (
	// DefaultTimeout bounds each API call.
	DefaultTimeout = 15 * time.Second

	maxRadiusMeters = 50000.0
	defaultPageSize = 20

	searchFieldMask = "places.id,places.displayName,places.formattedAddress,places.nationalPhoneNumber," +
		"places.internationalPhoneNumber,places.websiteUri,places.rating,places.userRatingCount," +
		"places.businessStatus,places.types,places.location,nextPageToken"
	detailsFieldMask = "id,nationalPhoneNumber,internationalPhoneNumber,websiteUri,businessStatus,types"
)

// ErrMissingAPIKey is returned by New when no key and no custom transport are given.
var ErrMissingAPIKey = errors.New("places api key is required")

// APIError reports a non-success response from the Places API.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: places api status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// SearchRequest describes one text search.
type SearchRequest struct {
	Query    string
	Category string
	Lat      float64
	Lng      float64
	Radius   float64
	PageSize int
}

// Place is a candidate business from a search page.
type Place struct {
	ID             string   `json:"place_id"`
	Name           string   `json:"name"`
	Address        string   `json:"address,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Website        string   `json:"website,omitempty"`
	Rating         float64  `json:"rating,omitempty"`
	ReviewCount    int      `json:"review_count"`
	BusinessStatus string   `json:"business_status,omitempty"`
	Types          []string `json:"types,omitempty"`
	Lat            float64  `json:"lat"`
	Lng            float64  `json:"lng"`
}

// Page is one page of search results.
type Page struct {
	Places        []Place
	NextPageToken string
}

// Details are the fields fetched per place.
type Details struct {
	Phone          string   `json:"phone,omitempty"`
	Website        string   `json:"website,omitempty"`
	BusinessStatus string   `json:"business_status,omitempty"`
	Types          []string `json:"types,omitempty"`
}

// Client wraps the generated Places service.
type Client struct {
	svc     *placesapi.Service
	timeout time.Duration
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	clientOpts []option.ClientOption
	timeout    time.Duration
	log        *zap.Logger
}

// WithClientOptions appends google api client options such as a custom endpoint.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *clientConfig) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// WithTimeout overrides the per-call timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *clientConfig) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *clientConfig) {
		c.log = logger.OrNop(log)
	}
}

// New builds a client authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	cfg := clientConfig{timeout: DefaultTimeout, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" && len(cfg.clientOpts) == 0 {
		return nil, ErrMissingAPIKey
	}

	clientOpts := cfg.clientOpts
	if apiKey != "" {
		clientOpts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, clientOpts...)
	}
	svc, err := placesapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create places service: %w", err)
	}
	return &Client{svc: svc, timeout: cfg.timeout, log: cfg.log}, nil
}

// SearchPage runs one text search page. An empty pageToken requests the first page.
func (c *Client) SearchPage(ctx context.Context, req SearchRequest, pageToken string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	radius := req.Radius
	if radius <= 0 || radius > maxRadiusMeters {
		radius = maxRadiusMeters
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	body := &placesapi.GoogleMapsPlacesV1SearchTextRequest{
		TextQuery: req.Query,
		PageSize:  int64(pageSize),
		PageToken: pageToken,
		LocationBias: &placesapi.GoogleMapsPlacesV1SearchTextRequestLocationBias{
			Circle: &placesapi.GoogleMapsPlacesV1Circle{
				Center: &placesapi.GoogleTypeLatLng{Latitude: req.Lat, Longitude: req.Lng},
				Radius: radius,
			},
		},
	}
	if category := strings.TrimSpace(req.Category); category != "" {
		body.IncludedType = category
	}

	call := c.svc.Places.SearchText(body).Context(ctx)
	call.Header().Set("X-Goog-FieldMask", searchFieldMask)
	resp, err := call.Do()
	if err != nil {
		return Page{}, wrapError("search places", err)
	}

	page := Page{NextPageToken: resp.NextPageToken}
	for _, p := range resp.Places {
		if p == nil {
			continue
		}
		page.Places = append(page.Places, fromAPI(p))
	}
	if len(page.Places) == 0 {
		c.log.Warn("places search returned no results",
			zap.String("status", "ZERO_RESULTS"),
			zap.String("query", req.Query),
			zap.Bool("paged", pageToken != ""),
		)
	}
	return page, nil
}

// Details fetches phone, website, status and types for one place.
func (c *Client) Details(ctx context.Context, placeID string) (Details, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return Details{}, errors.New("place id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	call := c.svc.Places.Get("places/" + placeID).Context(ctx)
	call.Header().Set("X-Goog-FieldMask", detailsFieldMask)
	p, err := call.Do()
	if err != nil {
		return Details{}, wrapError("place details", err)
	}
	return Details{
		Phone:          phoneOf(p),
		Website:        p.WebsiteUri,
		BusinessStatus: p.BusinessStatus,
		Types:          p.Types,
	}, nil
}

func fromAPI(p *placesapi.GoogleMapsPlacesV1Place) Place {
	place := Place{
		ID:             p.Id,
		Address:        p.FormattedAddress,
		Phone:          phoneOf(p),
		Website:        p.WebsiteUri,
		Rating:         p.Rating,
		ReviewCount:    int(p.UserRatingCount),
		BusinessStatus: p.BusinessStatus,
		Types:          p.Types,
	}
	if p.DisplayName != nil {
		place.Name = p.DisplayName.Text
	}
	if p.Location != nil {
		place.Lat = p.Location.Latitude
		place.Lng = p.Location.Longitude
	}
	return place
}

func phoneOf(p *placesapi.GoogleMapsPlacesV1Place) string {
	if p.InternationalPhoneNumber != "" {
		return p.InternationalPhoneNumber
	}
	return p.NationalPhoneNumber
}

func wrapError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{Op: op, StatusCode: gerr.Code, Message: gerr.Message, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
