package service

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/codely-app/snippetd/internal/crypto"
	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
)

// fakeSnippetRepo is an in-memory SnippetRepository for service tests.
type fakeSnippetRepo struct {
	mu       sync.Mutex
	snippets map[uuid.UUID]*model.Snippet
	views    []model.SnippetView

	getCalls      int
	lastListOpts  repository.ListOptions
	insertViewErr error
}

var _ repository.SnippetRepository = (*fakeSnippetRepo)(nil)

func newFakeSnippetRepo() *fakeSnippetRepo {
	return &fakeSnippetRepo{snippets: make(map[uuid.UUID]*model.Snippet)}
}

func (f *fakeSnippetRepo) Create(_ context.Context, s *model.Snippet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Mirrors the unique (parent_id, version) index.
	if s.ParentID != nil {
		for _, existing := range f.snippets {
			if existing.ParentID != nil && *existing.ParentID == *s.ParentID && existing.Version == s.Version {
				return errs.ErrAlreadyExists
			}
		}
	}
	cp := *s
	f.snippets[s.ID] = &cp
	return nil
}

func (f *fakeSnippetRepo) GetByID(_ context.Context, id uuid.UUID) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSnippetRepo) GetByIDAndToken(_ context.Context, id uuid.UUID, token string) (*model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	s, ok := f.snippets[id]
	if !ok || s.AccessToken != token {
		return nil, errs.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSnippetRepo) IncrementViewCount(_ context.Context, id uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return 0, errs.ErrNotFound
	}
	s.ViewCount++
	return s.ViewCount, nil
}

func (f *fakeSnippetRepo) MarkConsumed(_ context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return errs.ErrNotFound
	}
	if !s.IsConsumed {
		s.IsConsumed = true
		s.ConsumedAt = &at
	}
	return nil
}

func (f *fakeSnippetRepo) InsertView(_ context.Context, v *model.SnippetView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertViewErr != nil {
		return f.insertViewErr
	}
	f.views = append(f.views, *v)
	return nil
}

func (f *fakeSnippetRepo) GetFamily(_ context.Context, rootID uuid.UUID) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Snippet
	for _, s := range f.snippets {
		if s.ID == rootID || (s.ParentID != nil && *s.ParentID == rootID) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakeSnippetRepo) MaxFamilyVersion(_ context.Context, rootID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, s := range f.snippets {
		if s.ID == rootID || (s.ParentID != nil && *s.ParentID == rootID) {
			if s.Version > max {
				max = s.Version
			}
		}
	}
	return max, nil
}

func (f *fakeSnippetRepo) ListPublic(_ context.Context, now time.Time, opts repository.ListOptions) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastListOpts = opts
	var out []model.Snippet
	for _, s := range f.snippets {
		if s.IsPublic && s.ExpiresAt.After(now) && !(s.OneTimeView && s.IsConsumed) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeSnippetRepo) viewCount(id uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.views {
		if v.SnippetID == id {
			n++
		}
	}
	return n
}

// fakeDiffRepo memoizes diffs per ordered pair, like the unique index does.
type fakeDiffRepo struct {
	mu      sync.Mutex
	diffs   map[string]*model.SnippetDiff
	inserts int
}

var _ repository.DiffRepository = (*fakeDiffRepo)(nil)

func newFakeDiffRepo() *fakeDiffRepo {
	return &fakeDiffRepo{diffs: make(map[string]*model.SnippetDiff)}
}

func diffKey(sourceID, targetID uuid.UUID) string {
	return sourceID.String() + "|" + targetID.String()
}

func (f *fakeDiffRepo) Get(_ context.Context, sourceID, targetID uuid.UUID) (*model.SnippetDiff, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.diffs[diffKey(sourceID, targetID)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDiffRepo) Insert(_ context.Context, d *model.SnippetDiff) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts++
	key := diffKey(d.SourceID, d.TargetID)
	if _, ok := f.diffs[key]; ok {
		return nil
	}
	cp := *d
	f.diffs[key] = &cp
	return nil
}

// fakeSocialRepo stores comments and reaction counters in memory.
type fakeSocialRepo struct {
	mu        sync.Mutex
	comments  []model.SnippetComment
	reactions map[string]int
}

var _ repository.SocialRepository = (*fakeSocialRepo)(nil)

func newFakeSocialRepo() *fakeSocialRepo {
	return &fakeSocialRepo{reactions: make(map[string]int)}
}

func (f *fakeSocialRepo) InsertComment(_ context.Context, c *model.SnippetComment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, *c)
	return nil
}

func (f *fakeSocialRepo) ListComments(_ context.Context, snippetID uuid.UUID, opts repository.ListOptions) ([]model.SnippetComment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.SnippetComment
	for _, c := range f.comments {
		if c.SnippetID == snippetID {
			cp := c
			cp.DeleteToken = ""
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *fakeSocialRepo) DeleteComment(_ context.Context, commentID uuid.UUID, deleteToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.comments {
		if c.ID == commentID && c.DeleteToken == deleteToken {
			f.comments = append(f.comments[:i], f.comments[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeSocialRepo) IncrementReaction(_ context.Context, snippetID uuid.UUID, reactionType string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := snippetID.String() + "|" + reactionType
	f.reactions[key]++
	return f.reactions[key], nil
}

func (f *fakeSocialRepo) ListReactions(_ context.Context, snippetID uuid.UUID) ([]model.SnippetReaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := snippetID.String() + "|"
	var out []model.SnippetReaction
	for key, n := range f.reactions {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, model.SnippetReaction{SnippetID: snippetID, Type: key[len(prefix):], Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// fakeMetricsRepo accumulates rollups the way the SQL upserts do:
// snippet counters add, vscode actions add, unique clients overwrite.
type fakeMetricsRepo struct {
	mu      sync.Mutex
	snippet map[time.Time]*model.SnippetMetrics
	vscode  map[time.Time]*model.VSCodeExtensionMetrics
	failErr error
}

var _ repository.MetricsRepository = (*fakeMetricsRepo)(nil)

func newFakeMetricsRepo() *fakeMetricsRepo {
	return &fakeMetricsRepo{
		snippet: make(map[time.Time]*model.SnippetMetrics),
		vscode:  make(map[time.Time]*model.VSCodeExtensionMetrics),
	}
}

func (f *fakeMetricsRepo) AddSnippetMetrics(_ context.Context, date time.Time, snippets, views int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	m, ok := f.snippet[date]
	if !ok {
		m = &model.SnippetMetrics{Date: date}
		f.snippet[date] = m
	}
	m.TotalSnippets += snippets
	m.TotalViews += views
	return nil
}

func (f *fakeMetricsRepo) AddVSCodeMetrics(_ context.Context, date time.Time, actions, uniqueClients int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	m, ok := f.vscode[date]
	if !ok {
		m = &model.VSCodeExtensionMetrics{Date: date}
		f.vscode[date] = m
	}
	m.TotalActions += actions
	m.UniqueClients = uniqueClients
	return nil
}

func (f *fakeMetricsRepo) GetSnippetMetrics(_ context.Context, date time.Time) (*model.SnippetMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.snippet[date]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

type scanAudit struct {
	snippetID string
	status    string
	findings  []string
}

// fakeTelemetryRepo stores detailed events and scan audits in memory.
type fakeTelemetryRepo struct {
	mu        sync.Mutex
	events    []model.VSCodeTelemetryEvent
	audits    []scanAudit
	insertErr error
}

var _ repository.TelemetryRepository = (*fakeTelemetryRepo)(nil)

func newFakeTelemetryRepo() *fakeTelemetryRepo { return &fakeTelemetryRepo{} }

func (f *fakeTelemetryRepo) InsertEvent(_ context.Context, e *model.VSCodeTelemetryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.events = append(f.events, *e)
	return nil
}

func (f *fakeTelemetryRepo) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []model.VSCodeTelemetryEvent
	var deleted int64
	for _, e := range f.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	f.events = kept
	return deleted, nil
}

func (f *fakeTelemetryRepo) InsertScanAudit(_ context.Context, snippetID string, status string, findings []string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, scanAudit{snippetID: snippetID, status: status, findings: findings})
	return nil
}

func testCipher(t *testing.T) *crypto.ContentCipher {
	t.Helper()
	c, err := crypto.NewContentCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	return c
}

func intPtr(n int) *int { return &n }
