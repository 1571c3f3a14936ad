package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// StaticLauncher fetches pages over plain HTTP and queries them with goquery.
// It does not run scripts, so it only suits server-rendered sites.
type StaticLauncher struct {
	// Client is used for every request; a client with the session timeout is
	// created when nil.
	Client    *http.Client
	UserAgent string
}

// Open returns a session backed by an HTTP client.
func (l *StaticLauncher) Open(ctx context.Context, opts Options) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	ua := l.UserAgent
	if ua == "" {
		ua = "Product-Scraper/1.0"
	}
	return &staticSession{client: client, userAgent: ua, timeout: opts.Timeout}, nil
}

type staticSession struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	doc       *goquery.Document
	url       string
}

func (s *staticSession) Navigate(ctx context.Context, address string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return fmt.Errorf("browser: create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("browser: navigate %s: %w", address, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("browser: navigate %s: HTTP %d", address, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return fmt.Errorf("browser: parse %s: %w", address, err)
	}
	s.doc = doc
	s.url = address
	return nil
}

func (s *staticSession) Locate(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.doc == nil {
		return nil, fmt.Errorf("browser: no page loaded")
	}
	return find(s.doc.Selection, selector)
}

func (s *staticSession) Content(ctx context.Context) (string, error) {
	if s.doc == nil {
		return "", fmt.Errorf("browser: no page loaded")
	}
	return s.doc.Html()
}

func (s *staticSession) URL() string {
	return s.url
}

func (s *staticSession) Screenshot(ctx context.Context, path string) error {
	return ErrUnsupported
}

func (s *staticSession) Close() error {
	s.doc = nil
	s.client.CloseIdleConnections()
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

// find returns the matches of selector under root. goquery treats an
// invalid selector as matching nothing.
func find(root *goquery.Selection, selector string) ([]Element, error) {
	matches := root.Find(selector)
	els := make([]Element, 0, matches.Length())
	matches.Each(func(_ int, sel *goquery.Selection) {
		els = append(els, staticElement{sel: sel})
	})
	return els, nil
}

func (e staticElement) Text() (string, error) {
	return strings.TrimSpace(e.sel.Text()), nil
}

func (e staticElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e staticElement) Locate(selector string) ([]Element, error) {
	return find(e.sel, selector)
}
