package service

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/cache"
	"github.com/codely-app/snippetd/internal/crypto"
	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
)

// snippetCacheTTL bounds how stale a cached regular snippet may be.
// One-time and max-view snippets never touch this cache: a stale
// "still available" row after consumption would be a correctness bug,
// not a performance issue.
const snippetCacheTTL = 5 * time.Minute

const maxUserAgentLen = 255

// RetrieveRequest is one read-path invocation.
type RetrieveRequest struct {
	ID       uuid.UUID
	Token    string
	Password string // set when the client answers a password challenge
	Public   bool   // public-feed access: additionally require is_public

	IP        string
	UserAgent string
	Location  string
}

// RetrieveResult is the read-path response. When RequiresPassword is
// set the other fields (except OneTimeWarning) are empty: the caller
// must prompt and retry, and no view was recorded.
type RetrieveResult struct {
	Snippet          *model.Snippet
	Versions         []model.VersionInfo // populated when the family has more than one member
	NeedsDecryption  bool                // content is still ciphertext (legacy keyless encryption)
	RequiresPassword bool
	OneTimeWarning   bool
}

// AccessService orchestrates the retrieval state machine:
// token check, expiry check, consumption check, password check,
// view recording, response assembly.
type AccessService struct {
	snippets repository.SnippetRepository
	cache    cache.Cache
	cipher   *crypto.ContentCipher
	metrics  *MetricsService
	log      *zap.Logger
	ipSalt   []byte
	now      func() time.Time
}

// NewAccessService constructs the access controller.
func NewAccessService(
	snippets repository.SnippetRepository,
	c cache.Cache,
	cipher *crypto.ContentCipher,
	metrics *MetricsService,
	log *zap.Logger,
	ipSalt []byte,
) *AccessService {
	return &AccessService{
		snippets: snippets,
		cache:    c,
		cipher:   cipher,
		metrics:  metrics,
		log:      log,
		ipSalt:   ipSalt,
		now:      time.Now,
	}
}

// WithClock overrides the service clock; tests only.
func (s *AccessService) WithClock(now func() time.Time) *AccessService {
	s.now = now
	return s
}

func snippetCacheKey(id uuid.UUID) string { return "snippet:" + id.String() }

// cacheable reports whether a snippet row may be served from the
// read-through cache. View-budgeted snippets must always hit the store.
func cacheable(sn *model.Snippet) bool {
	return !sn.OneTimeView && sn.MaxViews == nil
}

// getSnippet performs TOKEN_CHECK with read-through caching. Cached
// rows still verify the presented token.
func (s *AccessService) getSnippet(ctx context.Context, id uuid.UUID, token string) (*model.Snippet, error) {
	if v, ok, err := s.cache.Get(ctx, snippetCacheKey(id)); err == nil && ok {
		if sn, isSnippet := v.(*model.Snippet); isSnippet {
			if subtle.ConstantTimeCompare([]byte(sn.AccessToken), []byte(token)) == 1 {
				cp := *sn
				return &cp, nil
			}
			return nil, errs.ErrNotFound
		}
	}
	sn, err := s.snippets.GetByIDAndToken(ctx, id, token)
	if err != nil {
		return nil, err
	}
	if cacheable(sn) {
		cp := *sn
		if err := s.cache.Set(ctx, snippetCacheKey(id), &cp, snippetCacheTTL); err != nil {
			s.log.Warn("snippet cache set failed", zap.Error(err))
		}
	}
	return sn, nil
}

// Retrieve runs the full read path. On success the returned snippet
// carries plaintext content unless NeedsDecryption is set, and the
// view has been recorded.
func (s *AccessService) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	sn, err := s.getSnippet(ctx, req.ID, req.Token)
	if err != nil {
		return nil, err
	}
	if req.Public && !sn.IsPublic {
		return nil, errs.ErrNotFound
	}

	now := s.now()
	if sn.IsExpired(now) {
		return nil, errs.ErrExpired
	}
	if sn.IsConsumed {
		return nil, errs.ErrConsumed
	}
	if sn.OneTimeView && sn.ViewCount > 0 {
		return nil, errs.ErrConsumed
	}
	if sn.MaxViews != nil && sn.ViewCount >= *sn.MaxViews {
		return nil, errs.ErrConsumed
	}

	needsDecryption := false
	if sn.HasPassword() {
		if req.Password == "" {
			// A protocol branch, not a failure: the client must prompt.
			// No view is recorded and no content leaves the service.
			return &RetrieveResult{
				RequiresPassword: true,
				OneTimeWarning:   sn.OneTimeView,
			}, nil
		}
		if !crypto.VerifyPassword(req.Password, sn.PasswordSalt, sn.PasswordHash) {
			return nil, errs.ErrInvalidPassword
		}
		if sn.IsEncrypted {
			pt, ok := s.cipher.Decrypt(sn.Content)
			if !ok {
				// Hash matched but the ciphertext would not open: hash and
				// cipher key diverged. Indistinguishable from a wrong
				// password to the caller.
				return nil, errs.ErrDecryptionFailed
			}
			sn.Content = pt
			sn.IsEncrypted = false
		}
	} else if sn.IsEncrypted {
		// Legacy keyless encryption: serve the ciphertext and tell the
		// client it still needs decrypting.
		needsDecryption = true
	}

	if err := s.recordView(ctx, sn, req, now); err != nil {
		return nil, err
	}
	s.metrics.RecordSnippetView(ctx)

	res := &RetrieveResult{Snippet: sn, NeedsDecryption: needsDecryption}
	family, err := s.snippets.GetFamily(ctx, sn.FamilyRoot())
	if err != nil {
		s.log.Warn("family lookup failed", zap.String("id", sn.ID.String()), zap.Error(err))
	} else if len(family) > 1 {
		res.Versions = make([]model.VersionInfo, 0, len(family))
		for _, m := range family {
			res.Versions = append(res.Versions, model.VersionInfo{
				ID:        m.ID,
				Version:   m.Version,
				CreatedAt: m.CreatedAt,
				Language:  m.Language,
			})
		}
	}
	return res, nil
}

// recordView appends the audit row, bumps the counter atomically, and
// marks consumption when the new count exhausts the budget. The audit
// insert is never skipped when a view is counted. Two racing viewers
// can both pass the pre-check and briefly push view_count past
// max_views; that small overshoot is an accepted trade against
// serializing all reads.
func (s *AccessService) recordView(ctx context.Context, sn *model.Snippet, req RetrieveRequest, now time.Time) error {
	viewID, err := uuid.NewV4()
	if err != nil {
		return err
	}
	ua := req.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}
	if err := s.snippets.InsertView(ctx, &model.SnippetView{
		ID:        viewID,
		SnippetID: sn.ID,
		ViewedAt:  now,
		IPHash:    crypto.HashIP(req.IP, s.ipSalt),
		UserAgent: ua,
		Location:  req.Location,
	}); err != nil {
		return err
	}

	newCount, err := s.snippets.IncrementViewCount(ctx, sn.ID)
	if err != nil {
		return err
	}
	sn.ViewCount = newCount

	exhausted := (sn.OneTimeView && newCount >= 1) ||
		(sn.MaxViews != nil && newCount >= *sn.MaxViews)
	if exhausted {
		if err := s.snippets.MarkConsumed(ctx, sn.ID, now); err != nil {
			return err
		}
		consumedAt := now
		sn.IsConsumed = true
		sn.ConsumedAt = &consumedAt
	}
	return nil
}
