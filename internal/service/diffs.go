package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/crypto"
	"github.com/codely-app/snippetd/internal/diff"
	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
)

// DiffService computes and memoizes unified diffs between versions of
// one family. A diff is cached per ordered (source, target) pair; the
// reverse direction is a distinct entry.
type DiffService struct {
	snippets repository.SnippetRepository
	diffs    repository.DiffRepository
	cipher   *crypto.ContentCipher
	log      *zap.Logger
	now      func() time.Time
}

// NewDiffService constructs the diff engine.
func NewDiffService(snippets repository.SnippetRepository, diffs repository.DiffRepository, cipher *crypto.ContentCipher, log *zap.Logger) *DiffService {
	return &DiffService{snippets: snippets, diffs: diffs, cipher: cipher, log: log, now: time.Now}
}

// Get returns the diff between two versions of the addressed snippet's
// family. When from/to are nil the target defaults to the highest
// version in the family and the source to the version directly below
// it; both must resolve to real rows.
func (s *DiffService) Get(ctx context.Context, id uuid.UUID, token string, from, to *int) (*model.SnippetDiff, error) {
	sn, err := s.snippets.GetByIDAndToken(ctx, id, token)
	if err != nil {
		return nil, err
	}
	family, err := s.snippets.GetFamily(ctx, sn.FamilyRoot())
	if err != nil {
		return nil, err
	}
	byVersion := make(map[int]*model.Snippet, len(family))
	highest := 0
	for i := range family {
		byVersion[family[i].Version] = &family[i]
		if family[i].Version > highest {
			highest = family[i].Version
		}
	}

	targetVer := highest
	if to != nil {
		targetVer = *to
	}
	sourceVer := targetVer - 1
	if from != nil {
		sourceVer = *from
	}

	source, ok := byVersion[sourceVer]
	if !ok {
		return nil, fmt.Errorf("version %d: %w", sourceVer, errs.ErrNotFound)
	}
	target, ok := byVersion[targetVer]
	if !ok {
		return nil, fmt.Errorf("version %d: %w", targetVer, errs.ErrNotFound)
	}

	cached, err := s.diffs.Get(ctx, source.ID, target.ID)
	switch {
	case err == nil:
		return cached, nil
	case errors.Is(err, errs.ErrNotFound):
		return s.computeAndStore(ctx, source, target)
	default:
		return nil, err
	}
}

// computeAndStore produces the unified diff for (source, target) and
// persists it. Encrypted members are opened with the application key so
// diffs always compare plaintext.
func (s *DiffService) computeAndStore(ctx context.Context, source, target *model.Snippet) (*model.SnippetDiff, error) {
	sourceContent, err := s.plaintext(source)
	if err != nil {
		return nil, err
	}
	targetContent, err := s.plaintext(target)
	if err != nil {
		return nil, err
	}

	unified, err := diff.Unified(sourceContent, source.Version, targetContent, target.Version)
	if err != nil {
		return nil, fmt.Errorf("computing diff: %w", err)
	}
	st := diff.Count(unified)

	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	d := &model.SnippetDiff{
		ID:          id,
		SourceID:    source.ID,
		TargetID:    target.ID,
		DiffContent: unified,
		Additions:   st.Additions,
		Deletions:   st.Deletions,
		CreatedAt:   s.now(),
	}
	if err := s.diffs.Insert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *DiffService) plaintext(sn *model.Snippet) (string, error) {
	if !sn.IsEncrypted {
		return sn.Content, nil
	}
	pt, ok := s.cipher.Decrypt(sn.Content)
	if !ok {
		return "", errs.ErrDecryptionFailed
	}
	return pt, nil
}
