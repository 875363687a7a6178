// Package webfetch wraps the single-page HTTP fetches the analyzers perform.
package webfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// UserAgent identifies the pipeline to the sites it visits.
	UserAgent = "Mozilla/5.0 (compatible; leadgen/1.0; +https://github.com/octobees/leadgen)"

	// MaxBodyBytes caps how much of a page is read.
	MaxBodyBytes = 2 << 20

	defaultTimeout = 10 * time.Second
)

// ErrInvalidURL is returned when a website string cannot be turned into an absolute URL.
var ErrInvalidURL = errors.New("invalid url")

// Doer abstracts HTTP requests so analyzers can be tested without a network.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Page is the outcome of a single GET.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Header     http.Header
	Body       string
}

// OK reports whether the page was served with a 2xx status.
func (p Page) OK() bool {
	return p.StatusCode >= 200 && p.StatusCode < 300
}

// NewClient builds the default client used by the analyzers.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// Fetch performs one GET bounded by timeout and reads at most MaxBodyBytes of the body.
// Non-2xx responses are returned without error; callers inspect Page.StatusCode.
func Fetch(ctx context.Context, client Doer, rawURL string, timeout time.Duration) (Page, error) {
	target, err := Normalize(rawURL)
	if err != nil {
		return Page{}, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read body %s: %w", target, err)
	}

	page := Page{
		URL:        target,
		FinalURL:   target,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
	}
	if resp.Request != nil && resp.Request.URL != nil {
		page.FinalURL = resp.Request.URL.String()
	}
	if page.Header == nil {
		page.Header = http.Header{}
	}
	return page, nil
}

// Exists reports whether target answers 200, trying HEAD first and GET when HEAD is refused.
func Exists(ctx context.Context, client Doer, target string, timeout time.Duration) bool {
	if client == nil {
		return false
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := probe(ctx, client, http.MethodHead, target)
	if err == nil {
		if status == http.StatusOK {
			return true
		}
		if status != http.StatusMethodNotAllowed {
			return false
		}
	}

	status, err = probe(ctx, client, http.MethodGet, target)
	return err == nil && status == http.StatusOK
}

func probe(ctx context.Context, client Doer, method, target string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", UserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
	return resp.StatusCode, nil
}

// Normalize turns a website string into an absolute http(s) URL, defaulting to https.
func Normalize(raw string) (string, error) {
	u, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Parse is Normalize returning the parsed URL.
func Parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidURL
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, ErrInvalidURL
	}
	u.Scheme = scheme
	return u, nil
}

// Hostname returns the lowercased host of a website string without a leading "www.".
func Hostname(raw string) string {
	u, err := Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(strings.Trim(u.Hostname(), "."))
	return strings.TrimPrefix(host, "www.")
}

// IsTimeout reports whether err stems from an exceeded deadline.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
