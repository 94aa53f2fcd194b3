package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
)

const snippetColumns = `id, content, language, created_at, expires_at, view_count, access_token,
is_encrypted, one_time_view, max_views, is_consumed, consumed_at,
password_hash, password_salt, parent_id, version,
is_public, public_name, allow_comments, creator_ip_hash, scan_status`

// SnippetRepo implements SnippetRepository using PostgreSQL.
type SnippetRepo struct{ db *DB }

var _ repository.SnippetRepository = (*SnippetRepo)(nil)

// NewSnippetRepo constructs a snippet repository.
func NewSnippetRepo(db *DB) *SnippetRepo { return &SnippetRepo{db: db} }

// Create inserts a new snippet row.
func (r *SnippetRepo) Create(ctx context.Context, s *model.Snippet) error {
	const q = `
INSERT INTO snippets (` + snippetColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`
	_, err := r.db.Pool.Exec(ctx, q,
		s.ID, s.Content, s.Language, s.CreatedAt, s.ExpiresAt, s.ViewCount, s.AccessToken,
		s.IsEncrypted, s.OneTimeView, s.MaxViews, s.IsConsumed, s.ConsumedAt,
		s.PasswordHash, s.PasswordSalt, s.ParentID, s.Version,
		s.IsPublic, nullIfEmpty(s.PublicName), s.AllowComments, s.CreatorIPHash, s.ScanStatus,
	)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanSnippet(row pgx.Row) (*model.Snippet, error) {
	var (
		s          model.Snippet
		publicName *string
	)
	err := row.Scan(
		&s.ID, &s.Content, &s.Language, &s.CreatedAt, &s.ExpiresAt, &s.ViewCount, &s.AccessToken,
		&s.IsEncrypted, &s.OneTimeView, &s.MaxViews, &s.IsConsumed, &s.ConsumedAt,
		&s.PasswordHash, &s.PasswordSalt, &s.ParentID, &s.Version,
		&s.IsPublic, &publicName, &s.AllowComments, &s.CreatorIPHash, &s.ScanStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if publicName != nil {
		s.PublicName = *publicName
	}
	return &s, nil
}

// GetByID loads a snippet by id only.
func (r *SnippetRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Snippet, error) {
	const q = `SELECT ` + snippetColumns + ` FROM snippets WHERE id=$1`
	return scanSnippet(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByIDAndToken loads a snippet only when both id and token match.
func (r *SnippetRepo) GetByIDAndToken(ctx context.Context, id uuid.UUID, token string) (*model.Snippet, error) {
	const q = `SELECT ` + snippetColumns + ` FROM snippets WHERE id=$1 AND access_token=$2`
	return scanSnippet(r.db.Pool.QueryRow(ctx, q, id, token))
}

// IncrementViewCount adds one to view_count in the database and returns
// the new value. The increment expression keeps concurrent viewers from
// losing updates; read-modify-write is never used here.
func (r *SnippetRepo) IncrementViewCount(ctx context.Context, id uuid.UUID) (int, error) {
	const q = `UPDATE snippets SET view_count = view_count + 1 WHERE id=$1 RETURNING view_count`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrNotFound
		}
		return 0, err
	}
	return n, nil
}

// MarkConsumed sets the terminal consumption flag. The guard keeps the
// first consumed_at on repeated calls.
func (r *SnippetRepo) MarkConsumed(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE snippets SET is_consumed=true, consumed_at=$2 WHERE id=$1 AND NOT is_consumed`
	_, err := r.db.Pool.Exec(ctx, q, id, at)
	return err
}

// InsertView appends one audit row.
func (r *SnippetRepo) InsertView(ctx context.Context, v *model.SnippetView) error {
	const q = `
INSERT INTO snippet_views (id, snippet_id, viewed_at, ip_hash, user_agent, location)
VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Pool.Exec(ctx, q, v.ID, v.SnippetID, v.ViewedAt, v.IPHash, v.UserAgent, v.Location)
	return err
}

// GetFamily returns the root and all children for rootID, ordered by
// version ascending.
func (r *SnippetRepo) GetFamily(ctx context.Context, rootID uuid.UUID) ([]model.Snippet, error) {
	const q = `
SELECT ` + snippetColumns + `
FROM snippets
WHERE id=$1 OR parent_id=$1
ORDER BY version ASC`
	rows, err := r.db.Pool.Query(ctx, q, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Snippet
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// MaxFamilyVersion returns the highest version across the family.
func (r *SnippetRepo) MaxFamilyVersion(ctx context.Context, rootID uuid.UUID) (int, error) {
	const q = `SELECT COALESCE(MAX(version),0) FROM snippets WHERE id=$1 OR parent_id=$1`
	var v int
	if err := r.db.Pool.QueryRow(ctx, q, rootID).Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

// ListPublic returns the public feed: public, unexpired, and not
// exhausted by a one-time view.
func (r *SnippetRepo) ListPublic(ctx context.Context, now time.Time, opts repository.ListOptions) ([]model.Snippet, error) {
	const q = `
SELECT ` + snippetColumns + `
FROM snippets
WHERE is_public AND expires_at > $1 AND NOT (one_time_view AND is_consumed)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.Pool.Query(ctx, q, now, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Snippet, 0, opts.Limit)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// DiffRepo implements DiffRepository using PostgreSQL.
type DiffRepo struct{ db *DB }

var _ repository.DiffRepository = (*DiffRepo)(nil)

// NewDiffRepo constructs a diff repository.
func NewDiffRepo(db *DB) *DiffRepo { return &DiffRepo{db: db} }

// Get returns the cached diff for the exact (source, target) direction.
func (r *DiffRepo) Get(ctx context.Context, sourceID, targetID uuid.UUID) (*model.SnippetDiff, error) {
	const q = `
SELECT id, source_id, target_id, diff_content, additions, deletions, created_at
FROM snippet_diffs WHERE source_id=$1 AND target_id=$2`
	var d model.SnippetDiff
	err := r.db.Pool.QueryRow(ctx, q, sourceID, targetID).Scan(
		&d.ID, &d.SourceID, &d.TargetID, &d.DiffContent, &d.Additions, &d.Deletions, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Insert stores a computed diff. The unique (source_id, target_id)
// constraint makes concurrent computation converge on one row.
func (r *DiffRepo) Insert(ctx context.Context, d *model.SnippetDiff) error {
	const q = `
INSERT INTO snippet_diffs (id, source_id, target_id, diff_content, additions, deletions, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (source_id, target_id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.SourceID, d.TargetID, d.DiffContent, d.Additions, d.Deletions, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert diff: %w", err)
	}
	return nil
}
