// Package browser is the page automation port used by the extraction engine.
// A Launcher opens one Session per job; a Session drives a single page.
package browser

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrUnsupported is returned by drivers that cannot perform an operation.
var ErrUnsupported = errors.New("browser: operation not supported by driver")

// Options configure a session.
type Options struct {
	Headless bool
	// Timeout bounds each navigation.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Launcher opens browser sessions.
type Launcher interface {
	Open(ctx context.Context, opts Options) (Session, error)
}

// Session is a single page that can be navigated and queried.
// Implementations are not safe for concurrent use.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// Locate returns every element matching a CSS selector on the current page.
	Locate(ctx context.Context, selector string) ([]Element, error)
	// Content returns the full HTML of the current page.
	Content(ctx context.Context) (string, error)
	// URL returns the address of the current page.
	URL() string
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Element is a node found by Locate.
type Element interface {
	Text() (string, error)
	// Attribute returns the attribute value and whether it is present.
	Attribute(name string) (string, bool, error)
	Locate(selector string) ([]Element, error)
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, opts Options) (Session, error)

// Open calls f.
func (f LauncherFunc) Open(ctx context.Context, opts Options) (Session, error) {
	return f(ctx, opts)
}
