package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/codely-app/snippetd/internal/model"
)

// SocialRepository stores comments and reaction counters.
type SocialRepository interface {
	// InsertComment appends a comment.
	InsertComment(ctx context.Context, c *model.SnippetComment) error
	// ListComments returns a snippet's comments, oldest first.
	ListComments(ctx context.Context, snippetID uuid.UUID, opts ListOptions) ([]model.SnippetComment, error)
	// DeleteComment removes a comment only when its delete token matches.
	DeleteComment(ctx context.Context, commentID uuid.UUID, deleteToken string) error
	// IncrementReaction atomically bumps the (snippet, type) counter and
	// returns the new count.
	IncrementReaction(ctx context.Context, snippetID uuid.UUID, reactionType string) (int, error)
	// ListReactions returns all non-zero counters for a snippet.
	ListReactions(ctx context.Context, snippetID uuid.UUID) ([]model.SnippetReaction, error)
}
