package shortlink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sundayezeilo/shortlink/internal/clicks"
	"github.com/sundayezeilo/shortlink/internal/errx"
	"github.com/sundayezeilo/shortlink/internal/metrics"
)

// LinkResolver is satisfied by *Resolver.
type LinkResolver interface {
	Resolve(ctx context.Context, slug string) (Link, bool, error)
}

// ClickRecorder is satisfied by *clicks.Queue. Enqueue must not block.
type ClickRecorder interface {
	Enqueue(ev clicks.Event)
}

// ClickCounter is satisfied by *clicks.Counter.
type ClickCounter interface {
	TotalClicks(ctx context.Context, linkID uuid.UUID) (int64, error)
}

// LinkStats is the public summary of a link. The target is left out so that
// protected links do not leak through it.
type LinkStats struct {
	Slug        string `json:"slug"`
	Active      bool   `json:"active"`
	Protected   bool   `json:"password_protected"`
	TotalClicks int64  `json:"total_clicks"`
}

// RequestContext is what the edge caller knows about one access.
type RequestContext struct {
	Password   string
	SourceIP   string
	Dimensions clicks.Dimensions
}

// ServiceConfig holds configuration for the service.
type ServiceConfig struct {
	Resolver LinkResolver
	Clicks   ClickRecorder
	Counter  ClickCounter
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Service is the edge entry point: resolve, validate, encode, and record a click.
type Service struct {
	resolver LinkResolver
	clicks   ClickRecorder
	counter  ClickCounter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		resolver: cfg.Resolver,
		clicks:   cfg.Clicks,
		counter:  cfg.Counter,
		logger:   logger,
		metrics:  cfg.Metrics,
		now:      now,
	}
}

// ResolveAndRecord resolves slug and returns either a redirect target or a
// wire code. A click is queued for every access to an existing link,
// whatever the outcome. Lookup failures yield CodeError.
func (s *Service) ResolveAndRecord(ctx context.Context, slug string, rc RequestContext) Result {
	link, found, err := s.resolver.Resolve(ctx, slug)
	if err != nil {
		s.logger.ErrorContext(ctx, "resolve failed",
			"slug", slug,
			"error", err.Error(),
			"error_kind", errx.KindOf(err),
			"operation", errx.OpOf(err),
		)
		res := ErrorResult()
		s.metrics.ObserveOutcome(res.Label())
		return res
	}

	if found && s.clicks != nil {
		s.clicks.Enqueue(clicks.Event{
			LinkID:     link.ID,
			SourceIP:   rc.SourceIP,
			Dimensions: rc.Dimensions,
			Count:      1,
		})
	}

	res := Encode(Validate(link, found, rc.Password, s.now()))
	s.metrics.ObserveOutcome(res.Label())
	return res
}

// Stats returns the stored click total for slug. It does not record a click.
func (s *Service) Stats(ctx context.Context, slug string) (LinkStats, error) {
	const op = "shortlink.service.Stats"

	if s.counter == nil {
		return LinkStats{}, errx.E(op, errx.Unavailable, errors.New("click counter not configured"))
	}

	link, found, err := s.resolver.Resolve(ctx, slug)
	if err != nil {
		return LinkStats{}, err
	}
	if !found {
		return LinkStats{}, errx.E(op, errx.NotFound, errors.New("link not found"))
	}

	total, err := s.counter.TotalClicks(ctx, link.ID)
	if err != nil {
		return LinkStats{}, err
	}

	return LinkStats{
		Slug:        link.Slug,
		Active:      link.Active,
		Protected:   link.Protected(),
		TotalClicks: total,
	}, nil
}
