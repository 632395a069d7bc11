package clicks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/errx"
)

const pgForeignKeyViolation = "23503"

// querier is the subset of *db.Queries the repository needs.
type querier interface {
	UpsertLinkClicks(ctx context.Context, arg db.UpsertLinkClicksParams) error
}

type repo struct {
	q querier
}

// NewRepository returns a PostgreSQL-backed Store.
func NewRepository(q querier) Store {
	return &repo{q: q}
}

func (r *repo) UpsertClickAggregate(ctx context.Context, agg Aggregate) error {
	const op = "clicks.repo.UpsertClickAggregate"

	seen := agg.LastSeen
	if seen.IsZero() {
		seen = time.Now()
	}

	d := agg.Dimensions
	err := r.q.UpsertLinkClicks(ctx, db.UpsertLinkClicksParams{
		LinkID:    agg.LinkID,
		SourceIp:  agg.SourceIP,
		Clicks:    agg.Count,
		City:      d.City,
		Region:    d.Region,
		Country:   d.Country,
		Latitude:  d.Latitude,
		Longitude: d.Longitude,
		Referer:   d.Referer,
		Language:  d.Language,
		Device:    d.Device,
		Browser:   d.Browser,
		UpdatedAt: pgtype.Timestamptz{Time: seen, Valid: true},
	})
	if err != nil {
		return mapRepoError(op, err)
	}
	return nil
}

// countQuerier is the subset of *db.Queries the Counter needs.
type countQuerier interface {
	SumLinkClicks(ctx context.Context, linkID uuid.UUID) (int64, error)
}

// Counter reads stored click totals.
type Counter struct {
	q countQuerier
}

func NewCounter(q countQuerier) *Counter {
	return &Counter{q: q}
}

// TotalClicks returns the flushed click count for linkID across all source IPs.
// Clicks still waiting in a queue are not included.
func (c *Counter) TotalClicks(ctx context.Context, linkID uuid.UUID) (int64, error) {
	const op = "clicks.repo.TotalClicks"

	total, err := c.q.SumLinkClicks(ctx, linkID)
	if err != nil {
		return 0, mapRepoError(op, err)
	}
	return total, nil
}

func mapRepoError(op string, err error) error {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errx.E(op, errx.Timeout, err)

	case errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation:
		// link deleted since the click was queued
		return errx.E(op, errx.NotFound, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
