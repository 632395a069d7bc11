package shortlink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/sundayezeilo/shortlink/internal/db/sqlc"
	"github.com/sundayezeilo/shortlink/internal/errx"
)

// querier is the subset of *db.Queries the repository needs.
type querier interface {
	GetLinkBySlug(ctx context.Context, slug string) (db.Link, error)
}

type repo struct {
	q querier
}

// NewRepository returns a PostgreSQL-backed Store.
func NewRepository(q querier) Store {
	return &repo{q: q}
}

func (r *repo) FindLinkBySlug(ctx context.Context, slug string) (Link, error) {
	const op = "shortlink.repo.FindLinkBySlug"

	row, err := r.q.GetLinkBySlug(ctx, slug)
	if err != nil {
		return Link{}, mapRepoError(op, err)
	}

	link, err := toDomainLink(row)
	if err != nil {
		return Link{}, errx.E(op, errx.Internal, err)
	}
	return link, nil
}

func mustTime(ts pgtype.Timestamptz, field string) (time.Time, error) {
	if !ts.Valid {
		return time.Time{}, fmt.Errorf("%s unexpectedly NULL", field)
	}
	return ts.Time, nil
}

func toDomainLink(x db.Link) (Link, error) {
	createdAt, err := mustTime(x.CreatedAt, "created_at")
	if err != nil {
		return Link{}, err
	}
	updatedAt, err := mustTime(x.UpdatedAt, "updated_at")
	if err != nil {
		return Link{}, err
	}
	exp, err := ParseExpiration(x.Expiration)
	if err != nil {
		return Link{}, fmt.Errorf("link %s: %w", x.Slug, err)
	}

	return Link{
		ID:         x.ID,
		Slug:       x.Slug,
		Target:     x.Target,
		Active:     x.Active,
		Password:   x.Password,
		Expiration: exp,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func mapRepoError(op string, err error) error {
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return errx.E(op, errx.NotFound, err)

	case errors.Is(err, context.DeadlineExceeded):
		return errx.E(op, errx.Timeout, err)

	default:
		return errx.E(op, errx.Unavailable, err)
	}
}
