package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
)

// SocialRepo implements SocialRepository using PostgreSQL.
type SocialRepo struct{ db *DB }

var _ repository.SocialRepository = (*SocialRepo)(nil)

// NewSocialRepo constructs a comments/reactions repository.
func NewSocialRepo(db *DB) *SocialRepo { return &SocialRepo{db: db} }

// InsertComment appends a comment.
func (r *SocialRepo) InsertComment(ctx context.Context, c *model.SnippetComment) error {
	const q = `
INSERT INTO snippet_comments (id, snippet_id, content, display_name, delete_token, ip_hash, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.Pool.Exec(ctx, q, c.ID, c.SnippetID, c.Content, c.DisplayName, c.DeleteToken, c.IPHash, c.CreatedAt)
	return err
}

// ListComments returns a snippet's comments, oldest first.
func (r *SocialRepo) ListComments(ctx context.Context, snippetID uuid.UUID, opts repository.ListOptions) ([]model.SnippetComment, error) {
	const q = `
SELECT id, snippet_id, content, display_name, ip_hash, created_at
FROM snippet_comments
WHERE snippet_id=$1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, snippetID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SnippetComment
	for rows.Next() {
		var c model.SnippetComment
		// delete_token is a secret capability; listings never expose it.
		if err := rows.Scan(&c.ID, &c.SnippetID, &c.Content, &c.DisplayName, &c.IPHash, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteComment removes a comment only when its delete token matches.
// A wrong token is indistinguishable from a missing comment.
func (r *SocialRepo) DeleteComment(ctx context.Context, commentID uuid.UUID, deleteToken string) error {
	const q = `DELETE FROM snippet_comments WHERE id=$1 AND delete_token=$2`
	tag, err := r.db.Pool.Exec(ctx, q, commentID, deleteToken)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// IncrementReaction bumps the (snippet, type) counter with an in-database
// increment and returns the new count.
func (r *SocialRepo) IncrementReaction(ctx context.Context, snippetID uuid.UUID, reactionType string) (int, error) {
	const q = `
INSERT INTO snippet_reactions (snippet_id, reaction_type, count)
VALUES ($1,$2,1)
ON CONFLICT (snippet_id, reaction_type)
DO UPDATE SET count = snippet_reactions.count + 1
RETURNING count`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, snippetID, reactionType).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return n, nil
}

// ListReactions returns all counters for a snippet.
func (r *SocialRepo) ListReactions(ctx context.Context, snippetID uuid.UUID) ([]model.SnippetReaction, error) {
	const q = `
SELECT snippet_id, reaction_type, count
FROM snippet_reactions
WHERE snippet_id=$1
ORDER BY reaction_type ASC`
	rows, err := r.db.Pool.Query(ctx, q, snippetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SnippetReaction
	for rows.Next() {
		var rc model.SnippetReaction
		if err := rows.Scan(&rc.SnippetID, &rc.Type, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}
