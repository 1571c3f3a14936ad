package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

// RodLauncher starts a local Chrome through Rod, or connects to RemoteURL
// when set.
type RodLauncher struct {
	RemoteURL string
}

// Open launches Chrome and opens a stealth page.
func (l *RodLauncher) Open(ctx context.Context, opts Options) (Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		wsURL string
		lnch  *launcher.Launcher
	)
	if l.RemoteURL != "" {
		wsURL = l.RemoteURL
		logger.Info("browser: connecting to remote", zap.String("url", wsURL))
	} else {
		lnch = launcher.New().Context(ctx).Headless(opts.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := lnch.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
	}

	b := rod.New().ControlURL(wsURL).Context(ctx)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	return &rodSession{
		browser: b,
		page:    page,
		lnch:    lnch,
		opts:    opts,
		logger:  logger,
	}, nil
}

type rodSession struct {
	browser *rod.Browser
	page    *rod.Page
	lnch    *launcher.Launcher
	opts    Options
	logger  *zap.Logger
	url     string
}

// bound returns the page tied to ctx and the navigation timeout. done
// releases the timeout and must be called once the operation returns.
func (s *rodSession) bound(ctx context.Context) (p *rod.Page, done func()) {
	p = s.page.Context(ctx)
	if s.opts.Timeout <= 0 {
		return p, func() {}
	}
	p = p.Timeout(s.opts.Timeout)
	return p, func() { p.CancelTimeout() }
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p, done := s.bound(ctx)
	defer done()
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		s.logger.Warn("browser: wait load timeout", zap.String("url", url), zap.Error(err))
	}
	s.url = url
	return nil
}

func (s *rodSession) Locate(ctx context.Context, selector string) ([]Element, error) {
	p, done := s.bound(ctx)
	els, err := p.Elements(selector)
	done()
	if err != nil {
		return nil, fmt.Errorf("browser: locate %q: %w", selector, err)
	}
	// Elements outlive the lookup timeout
	for i, el := range els {
		els[i] = el.Context(ctx)
	}
	return wrapRod(els), nil
}

func (s *rodSession) Content(ctx context.Context) (string, error) {
	p, done := s.bound(ctx)
	html, err := p.HTML()
	done()
	if err != nil {
		return "", fmt.Errorf("browser: content: %w", err)
	}
	return html, nil
}

func (s *rodSession) URL() string {
	return s.url
}

func (s *rodSession) Screenshot(ctx context.Context, path string) error {
	p, done := s.bound(ctx)
	data, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	done()
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *rodSession) Close() error {
	var err error
	if s.page != nil {
		err = s.page.Close()
	}
	if s.browser != nil {
		if cerr := s.browser.Close(); err == nil {
			err = cerr
		}
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
	}
	return err
}

type rodElement struct {
	el *rod.Element
}

func wrapRod(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, rodElement{el: el})
	}
	return out
}

func (e rodElement) Text() (string, error) {
	return e.el.Text()
}

func (e rodElement) Attribute(name string) (string, bool, error) {
	v, err := e.el.Attribute(name)
	if err != nil {
		return "", false, err
	}
	if v == nil {
		return "", false, nil
	}
	return *v, true, nil
}

func (e rodElement) Locate(selector string) ([]Element, error) {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil, err
	}
	return wrapRod(els), nil
}
