// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/codely-app/snippetd/internal/model"
)

// ListOptions paginates feed queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// SnippetRepository provides lifecycle access to snippets, their views,
// and their version families.
type SnippetRepository interface {
	// Create inserts a new snippet row.
	Create(ctx context.Context, s *model.Snippet) error

	// GetByID loads a snippet by id only (internal callers: diff engine,
	// version resolution).
	GetByID(ctx context.Context, id uuid.UUID) (*model.Snippet, error)

	// GetByIDAndToken loads a snippet only when both id and access token
	// match; a mismatch is indistinguishable from absence.
	GetByIDAndToken(ctx context.Context, id uuid.UUID, token string) (*model.Snippet, error)

	// IncrementViewCount atomically adds one to view_count and returns
	// the new value.
	IncrementViewCount(ctx context.Context, id uuid.UUID) (int, error)

	// MarkConsumed sets is_consumed/consumed_at. Idempotent: an already
	// consumed snippet keeps its original consumed_at.
	MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error

	// InsertView appends one audit row.
	InsertView(ctx context.Context, v *model.SnippetView) error

	// GetFamily returns all members of the version family anchored at
	// rootID (root and children), ordered by version ascending.
	GetFamily(ctx context.Context, rootID uuid.UUID) ([]model.Snippet, error)

	// MaxFamilyVersion returns the highest version across the family.
	MaxFamilyVersion(ctx context.Context, rootID uuid.UUID) (int, error)

	// ListPublic returns public, unexpired, unexhausted snippets,
	// newest first.
	ListPublic(ctx context.Context, now time.Time, opts ListOptions) ([]model.Snippet, error)
}

// DiffRepository caches computed unified diffs per ordered version pair.
type DiffRepository interface {
	// Get returns the cached diff for the (source, target) direction.
	Get(ctx context.Context, sourceID, targetID uuid.UUID) (*model.SnippetDiff, error)
	// Insert stores a computed diff. A concurrent duplicate insert is not
	// an error; the existing row wins.
	Insert(ctx context.Context, d *model.SnippetDiff) error
}
