package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
)

func TestRodSession_BoundReleasesTimeout(t *testing.T) {
	s := &rodSession{page: &rod.Page{}, opts: Options{Timeout: time.Minute}}

	p, done := s.bound(context.Background())
	_, ok := p.GetContext().Deadline()
	assert.True(t, ok)
	assert.NoError(t, p.GetContext().Err())

	done()
	assert.ErrorIs(t, p.GetContext().Err(), context.Canceled)
}

func TestRodSession_BoundWithoutTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &rodSession{page: &rod.Page{}}

	p, done := s.bound(ctx)
	_, ok := p.GetContext().Deadline()
	assert.False(t, ok)

	done()
	assert.NoError(t, p.GetContext().Err())
}
