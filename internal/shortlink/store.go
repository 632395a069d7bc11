package shortlink

import "context"

// Store looks links up by slug. Implementations return an errx.NotFound error
// when no link has the slug.
type Store interface {
	FindLinkBySlug(ctx context.Context, slug string) (Link, error)
}
