package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/crypto"
	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/postcommit"
	"github.com/codely-app/snippetd/internal/repository"
	"github.com/codely-app/snippetd/internal/scanner"
)

// Validation limits.
const (
	MaxContentLength     = 1 << 20 // 1MB of text
	MaxPublicNameLength  = 100
	MinMaxViews          = 1
	MaxMaxViews          = 1000
	MaxExpirationHorizon = 90 * 24 * time.Hour
	DefaultExpiration    = 24 * time.Hour
	accessTokenBytes     = 32
)

// expirationPresets is the fixed vocabulary accepted in place of a
// timestamp.
var expirationPresets = map[string]time.Duration{
	"10m": 10 * time.Minute,
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"48h": 48 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// allowedLanguages is the language tag allow-list.
var allowedLanguages = map[string]struct{}{
	"javascript": {}, "python": {}, "typescript": {}, "java": {}, "cpp": {},
	"php": {}, "rust": {}, "sql": {}, "html": {}, "css": {}, "markdown": {},
	"json": {}, "swift": {}, "go": {}, "ruby": {}, "kotlin": {}, "scala": {},
	"csharp": {}, "fsharp": {}, "dart": {}, "lua": {}, "perl": {}, "r": {},
	"shell": {}, "powershell": {}, "yaml": {}, "toml": {}, "graphql": {},
	"haskell": {}, "ocaml": {}, "elixir": {}, "text": {},
}

// CreateInput carries everything needed to create a snippet.
type CreateInput struct {
	Content       string
	Language      string
	Expiration    string // preset ("10m".."30d"), RFC 3339 timestamp, or empty for the default
	OneTimeView   bool
	MaxViews      *int
	IsPublic      bool
	PublicName    string
	AllowComments bool
	Password      string
	IP            string
}

// CreateResult is the creation response payload.
type CreateResult struct {
	Snippet    *model.Snippet
	ScanStatus string
}

// VersionResult is the response to creating a new version: the child
// snippet plus the eagerly computed diff from the addressed version.
type VersionResult struct {
	Snippet *model.Snippet
	Diff    *model.SnippetDiff
}

// SnippetService enforces structural invariants and lifecycle
// transitions: creation, versioning, and the public feed.
type SnippetService struct {
	snippets  repository.SnippetRepository
	telemetry repository.TelemetryRepository
	diffs     *DiffService
	scanner   *scanner.Scanner
	cipher    *crypto.ContentCipher
	metrics   *MetricsService
	log       *zap.Logger
	ipSalt    []byte
	now       func() time.Time
}

// NewSnippetService constructs the snippet lifecycle service.
func NewSnippetService(
	snippets repository.SnippetRepository,
	telemetry repository.TelemetryRepository,
	diffs *DiffService,
	sc *scanner.Scanner,
	cipher *crypto.ContentCipher,
	metrics *MetricsService,
	log *zap.Logger,
	ipSalt []byte,
) *SnippetService {
	return &SnippetService{
		snippets:  snippets,
		telemetry: telemetry,
		diffs:     diffs,
		scanner:   sc,
		cipher:    cipher,
		metrics:   metrics,
		log:       log,
		ipSalt:    ipSalt,
		now:       time.Now,
	}
}

// WithClock overrides the service clock; tests only.
func (s *SnippetService) WithClock(now func() time.Time) *SnippetService {
	s.now = now
	return s
}

func validateLanguage(lang string) error {
	if _, ok := allowedLanguages[lang]; !ok {
		return fmt.Errorf("%w: unsupported language %q", errs.ErrValidation, lang)
	}
	return nil
}

// parseExpiration resolves the expiration vocabulary against now:
// presets, or an RFC 3339 timestamp strictly in the future and at most
// 90 days out. Empty input falls back to the 24h default.
func parseExpiration(now time.Time, raw string) (time.Time, error) {
	if raw == "" {
		return now.Add(DefaultExpiration), nil
	}
	if d, ok := expirationPresets[raw]; ok {
		return now.Add(d), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed expiration %q", errs.ErrValidation, raw)
	}
	if !ts.After(now) {
		return time.Time{}, fmt.Errorf("%w: expiration must be in the future", errs.ErrValidation)
	}
	if ts.After(now.Add(MaxExpirationHorizon)) {
		return time.Time{}, fmt.Errorf("%w: expiration exceeds the 90-day maximum", errs.ErrValidation)
	}
	return ts, nil
}

// Create validates input, applies protection, and persists a new root
// snippet. Secret-scan findings are advisory unless policy says
// otherwise; the audit write is deferred until after the insert
// succeeds and is best-effort.
func (s *SnippetService) Create(ctx context.Context, in CreateInput) (*CreateResult, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", errs.ErrValidation)
	}
	if len(in.Content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content too large", errs.ErrValidation)
	}
	if err := validateLanguage(in.Language); err != nil {
		return nil, err
	}
	if in.MaxViews != nil && (*in.MaxViews < MinMaxViews || *in.MaxViews > MaxMaxViews) {
		return nil, fmt.Errorf("%w: max_views must be between %d and %d", errs.ErrValidation, MinMaxViews, MaxMaxViews)
	}
	if in.IsPublic && strings.TrimSpace(in.PublicName) == "" {
		return nil, fmt.Errorf("%w: public snippets require a public name", errs.ErrValidation)
	}
	if len(in.PublicName) > MaxPublicNameLength {
		return nil, fmt.Errorf("%w: public name too long", errs.ErrValidation)
	}
	if in.IsPublic && in.OneTimeView && in.Password == "" {
		return nil, fmt.Errorf("%w: public one-time snippets require a password", errs.ErrValidation)
	}

	now := s.now()
	expiresAt, err := parseExpiration(now, in.Expiration)
	if err != nil {
		return nil, err
	}

	scan := s.scanner.Scan(in.Content)
	if !scan.Clean() && s.scanner.BlockOnDetect {
		return nil, fmt.Errorf("%w: content appears to contain secrets", errs.ErrValidation)
	}

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	token, err := crypto.RandToken(accessTokenBytes)
	if err != nil {
		return nil, err
	}

	sn := &model.Snippet{
		ID:            id,
		Content:       in.Content,
		Language:      in.Language,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
		AccessToken:   token,
		OneTimeView:   in.OneTimeView,
		MaxViews:      in.MaxViews,
		Version:       1,
		IsPublic:      in.IsPublic,
		PublicName:    strings.TrimSpace(in.PublicName),
		AllowComments: in.AllowComments,
		CreatorIPHash: crypto.HashIP(in.IP, s.ipSalt),
		ScanStatus:    scan.Status,
	}

	if in.Password != "" {
		if err := s.protect(sn, in.Password); err != nil {
			return nil, err
		}
	}

	if err := s.snippets.Create(ctx, sn); err != nil {
		s.log.Error("snippet create failed", zap.Error(err))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	q := postcommit.New()
	if !scan.Clean() {
		kinds := make([]string, 0, len(scan.Findings))
		for _, f := range scan.Findings {
			kinds = append(kinds, f.Kind)
		}
		s.log.Warn("secret scan flagged snippet",
			zap.String("id", sn.ID.String()),
			zap.Strings("kinds", kinds),
		)
		q.Add("scan-audit", func(ctx context.Context) error {
			return s.telemetry.InsertScanAudit(ctx, sn.ID.String(), scan.Status, kinds, now)
		})
	}
	q.Drain(ctx, s.log)

	s.metrics.RecordSnippetCreation(ctx)

	s.log.Info("snippet created",
		zap.String("id", sn.ID.String()),
		zap.String("language", sn.Language),
		zap.Bool("one_time", sn.OneTimeView),
		zap.Bool("encrypted", sn.IsEncrypted),
	)
	return &CreateResult{Snippet: sn, ScanStatus: scan.Status}, nil
}

// protect hashes the password and seals the content with the
// application key. Once a password exists, encryption always follows.
func (s *SnippetService) protect(sn *model.Snippet, password string) error {
	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	sn.PasswordSalt = salt
	sn.PasswordHash = crypto.HashPassword(password, salt)

	ct, err := s.cipher.Encrypt(sn.Content)
	if err != nil {
		return err
	}
	sn.Content = ct
	sn.IsEncrypted = true
	return nil
}

// SetPassword derives a fresh salt and stores the hash on the snippet.
// It does not change encryption state by itself.
func (s *SnippetService) SetPassword(sn *model.Snippet, password string) error {
	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	sn.PasswordSalt = salt
	sn.PasswordHash = crypto.HashPassword(password, salt)
	return nil
}

// EncryptContent seals content with the application key without
// requiring a password. Legacy entry point: Create never produces this
// state any more, but stored rows may carry it (see needs_decryption).
func (s *SnippetService) EncryptContent(sn *model.Snippet) bool {
	ct, err := s.cipher.Encrypt(sn.Content)
	if err != nil {
		return false
	}
	sn.Content = ct
	sn.IsEncrypted = true
	return true
}

// DecryptContent opens the snippet content in place. On failure the
// content is left unchanged and false is returned.
func (s *SnippetService) DecryptContent(sn *model.Snippet) bool {
	pt, ok := s.cipher.Decrypt(sn.Content)
	if !ok {
		return false
	}
	sn.Content = pt
	sn.IsEncrypted = false
	return true
}

// CreateVersion appends a new version to the family of the addressed
// snippet. The child always references the family root, the version is
// max(family)+1, creator metadata is carried forward, and protection
// state is not copied. The diff from the addressed snippet to the new
// version is computed eagerly.
func (s *SnippetService) CreateVersion(ctx context.Context, id uuid.UUID, token, content, language string) (*VersionResult, error) {
	base, err := s.snippets.GetByIDAndToken(ctx, id, token)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("%w: content cannot be empty", errs.ErrValidation)
	}
	if len(content) > MaxContentLength {
		return nil, fmt.Errorf("%w: content too large", errs.ErrValidation)
	}
	if language == "" {
		language = base.Language
	} else if err := validateLanguage(language); err != nil {
		return nil, err
	}

	root := base.FamilyRoot()
	now := s.now()
	scanStatus := s.scanner.Scan(content).Status

	// Numbering is guarded by the unique (parent_id, version) index.
	// Two racing creators can read the same max; one insert wins and
	// the loser re-reads the family and takes the next number.
	var child *model.Snippet
	for {
		maxVer, err := s.snippets.MaxFamilyVersion(ctx, root)
		if err != nil {
			return nil, err
		}
		childID, err := uuid.NewV4()
		if err != nil {
			return nil, err
		}
		childToken, err := crypto.RandToken(accessTokenBytes)
		if err != nil {
			return nil, err
		}
		child = &model.Snippet{
			ID:            childID,
			Content:       content,
			Language:      language,
			CreatedAt:     now,
			ExpiresAt:     base.ExpiresAt,
			AccessToken:   childToken,
			ParentID:      &root,
			Version:       maxVer + 1,
			CreatorIPHash: base.CreatorIPHash,
			ScanStatus:    scanStatus,
		}
		err = s.snippets.Create(ctx, child)
		if err == nil {
			break
		}
		if !errors.Is(err, errs.ErrAlreadyExists) {
			return nil, fmt.Errorf("creating version: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	d, err := s.diffs.computeAndStore(ctx, base, child)
	if err != nil {
		// The version row exists; the diff can be recomputed lazily later.
		s.log.Warn("eager diff failed",
			zap.String("source", base.ID.String()),
			zap.String("target", child.ID.String()),
			zap.Error(err),
		)
	}

	s.log.Info("snippet version created",
		zap.String("root", root.String()),
		zap.String("id", child.ID.String()),
		zap.Int("version", child.Version),
	)
	return &VersionResult{Snippet: child, Diff: d}, nil
}

// GetVersions returns the whole version family of the addressed
// snippet, ordered by version ascending. Family membership is keyed by
// the root id, so the result is identical whether the caller addresses
// the root or any child.
func (s *SnippetService) GetVersions(ctx context.Context, id uuid.UUID, token string) ([]model.VersionInfo, error) {
	sn, err := s.snippets.GetByIDAndToken(ctx, id, token)
	if err != nil {
		return nil, err
	}
	family, err := s.snippets.GetFamily(ctx, sn.FamilyRoot())
	if err != nil {
		return nil, err
	}
	out := make([]model.VersionInfo, 0, len(family))
	for _, m := range family {
		out = append(out, model.VersionInfo{
			ID:        m.ID,
			Version:   m.Version,
			CreatedAt: m.CreatedAt,
			Language:  m.Language,
		})
	}
	return out, nil
}

// Public feed pagination bounds.
const (
	DefaultFeedPageSize = 20
	MaxFeedPageSize     = 50
)

// ListPublic returns the public feed page: public, unexpired snippets
// that were not exhausted by a one-time view, newest first.
func (s *SnippetService) ListPublic(ctx context.Context, page, pageSize int) ([]model.Snippet, error) {
	if pageSize <= 0 {
		pageSize = DefaultFeedPageSize
	}
	if pageSize > MaxFeedPageSize {
		pageSize = MaxFeedPageSize
	}
	if page < 1 {
		page = 1
	}
	return s.snippets.ListPublic(ctx, s.now(), repository.ListOptions{
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
}
