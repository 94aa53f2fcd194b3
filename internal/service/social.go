package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/crypto"
	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/limiter"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
)

// Comment limits.
const (
	MaxCommentLength     = 2000
	MaxDisplayNameLength = 100
	deleteTokenBytes     = 16
)

// allowedReactions is the reaction-type allow-list.
var allowedReactions = map[string]struct{}{
	"like": {}, "heart": {}, "fire": {}, "rocket": {}, "eyes": {},
}

// SocialService handles unauthenticated comments and reactions, rate
// limited per client.
type SocialService struct {
	snippets repository.SnippetRepository
	social   repository.SocialRepository
	lim      limiter.Limiter
	log      *zap.Logger
	ipSalt   []byte
	now      func() time.Time
}

// NewSocialService constructs the comments/reactions service.
func NewSocialService(
	snippets repository.SnippetRepository,
	social repository.SocialRepository,
	lim limiter.Limiter,
	log *zap.Logger,
	ipSalt []byte,
) *SocialService {
	return &SocialService{
		snippets: snippets,
		social:   social,
		lim:      lim,
		log:      log,
		ipSalt:   ipSalt,
		now:      time.Now,
	}
}

// commentTarget loads the snippet and verifies it accepts comments.
func (s *SocialService) commentTarget(ctx context.Context, snippetID uuid.UUID, token string) (*model.Snippet, error) {
	sn, err := s.snippets.GetByIDAndToken(ctx, snippetID, token)
	if err != nil {
		return nil, err
	}
	if !sn.AllowComments {
		return nil, fmt.Errorf("%w: comments are disabled for this snippet", errs.ErrValidation)
	}
	if !sn.IsAvailable(s.now()) {
		return nil, errs.ErrNotFound
	}
	return sn, nil
}

// AddComment appends a comment. The returned comment carries its
// delete token; this is the only time that capability is ever exposed.
func (s *SocialService) AddComment(ctx context.Context, snippetID uuid.UUID, token, content, displayName, ip string) (*model.SnippetComment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment cannot be empty", errs.ErrValidation)
	}
	if len(content) > MaxCommentLength {
		return nil, fmt.Errorf("%w: comment must be %d characters or fewer", errs.ErrValidation, MaxCommentLength)
	}
	if len(displayName) > MaxDisplayNameLength {
		return nil, fmt.Errorf("%w: display name too long", errs.ErrValidation)
	}

	if _, err := s.commentTarget(ctx, snippetID, token); err != nil {
		return nil, err
	}

	ipHash := crypto.HashIP(ip, s.ipSalt)
	ok, err := s.lim.Allow(ctx, "comment", ipHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.ErrRateLimited
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	deleteToken, err := crypto.RandToken(deleteTokenBytes)
	if err != nil {
		return nil, err
	}
	c := &model.SnippetComment{
		ID:          id,
		SnippetID:   snippetID,
		Content:     content,
		DisplayName: strings.TrimSpace(displayName),
		DeleteToken: deleteToken,
		IPHash:      ipHash,
		CreatedAt:   s.now(),
	}
	if err := s.social.InsertComment(ctx, c); err != nil {
		return nil, fmt.Errorf("inserting comment: %w", err)
	}
	return c, nil
}

// ListComments returns a snippet's comments, oldest first. Reading
// requires the snippet capability but not comment enablement (comments
// written before commenting was disabled stay readable).
func (s *SocialService) ListComments(ctx context.Context, snippetID uuid.UUID, token string, limit, offset int) ([]model.SnippetComment, error) {
	if _, err := s.snippets.GetByIDAndToken(ctx, snippetID, token); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultFeedPageSize
	}
	if limit > MaxFeedPageSize {
		limit = MaxFeedPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.social.ListComments(ctx, snippetID, repository.ListOptions{Limit: limit, Offset: offset})
}

// DeleteComment removes a comment given its delete capability. A wrong
// token looks exactly like a missing comment.
func (s *SocialService) DeleteComment(ctx context.Context, commentID uuid.UUID, deleteToken string) error {
	if deleteToken == "" {
		return errs.ErrNotFound
	}
	return s.social.DeleteComment(ctx, commentID, deleteToken)
}

// React bumps the (snippet, type) counter and returns the new count.
func (s *SocialService) React(ctx context.Context, snippetID uuid.UUID, token, reactionType, ip string) (int, error) {
	if _, ok := allowedReactions[reactionType]; !ok {
		return 0, fmt.Errorf("%w: unsupported reaction %q", errs.ErrValidation, reactionType)
	}
	sn, err := s.snippets.GetByIDAndToken(ctx, snippetID, token)
	if err != nil {
		return 0, err
	}
	if !sn.IsAvailable(s.now()) {
		return 0, errs.ErrNotFound
	}

	ipHash := crypto.HashIP(ip, s.ipSalt)
	ok, err := s.lim.Allow(ctx, "reaction", ipHash)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.ErrRateLimited
	}
	return s.social.IncrementReaction(ctx, snippetID, reactionType)
}

// ListReactions returns all counters for a snippet.
func (s *SocialService) ListReactions(ctx context.Context, snippetID uuid.UUID, token string) ([]model.SnippetReaction, error) {
	if _, err := s.snippets.GetByIDAndToken(ctx, snippetID, token); err != nil {
		return nil, err
	}
	return s.social.ListReactions(ctx, snippetID)
}
