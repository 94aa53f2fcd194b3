package httpserver

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/codely-app/snippetd/internal/cache"
	"github.com/codely-app/snippetd/internal/crypto"
	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/limiter"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/repository"
	"github.com/codely-app/snippetd/internal/scanner"
	"github.com/codely-app/snippetd/internal/service"
)

// memStore implements the repository interfaces in memory so the full
// HTTP stack can be exercised without a database.
type memStore struct {
	mu       sync.Mutex
	snippets map[uuid.UUID]*model.Snippet
	views    []model.SnippetView
	diffs    map[string]*model.SnippetDiff
	comments []model.SnippetComment
	react    map[string]int
	events   []model.VSCodeTelemetryEvent
}

var (
	_ repository.SnippetRepository   = (*memStore)(nil)
	_ repository.DiffRepository      = (*memStore)(nil)
	_ repository.SocialRepository    = (*memStore)(nil)
	_ repository.MetricsRepository   = (*memStore)(nil)
	_ repository.TelemetryRepository = (*memStore)(nil)
)

func newMemStore() *memStore {
	return &memStore{
		snippets: make(map[uuid.UUID]*model.Snippet),
		diffs:    make(map[string]*model.SnippetDiff),
		react:    make(map[string]int),
	}
}

func (m *memStore) Create(_ context.Context, s *model.Snippet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.snippets[s.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) GetByIDAndToken(_ context.Context, id uuid.UUID, token string) (*model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok || s.AccessToken != token {
		return nil, errs.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) IncrementViewCount(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return 0, errs.ErrNotFound
	}
	s.ViewCount++
	return s.ViewCount, nil
}

func (m *memStore) MarkConsumed(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snippets[id]
	if !ok {
		return errs.ErrNotFound
	}
	if !s.IsConsumed {
		s.IsConsumed = true
		s.ConsumedAt = &at
	}
	return nil
}

func (m *memStore) InsertView(_ context.Context, v *model.SnippetView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = append(m.views, *v)
	return nil
}

func (m *memStore) GetFamily(_ context.Context, rootID uuid.UUID) ([]model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Snippet
	for _, s := range m.snippets {
		if s.ID == rootID || (s.ParentID != nil && *s.ParentID == rootID) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *memStore) MaxFamilyVersion(_ context.Context, rootID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, s := range m.snippets {
		if (s.ID == rootID || (s.ParentID != nil && *s.ParentID == rootID)) && s.Version > max {
			max = s.Version
		}
	}
	return max, nil
}

func (m *memStore) ListPublic(_ context.Context, now time.Time, opts repository.ListOptions) ([]model.Snippet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Snippet
	for _, s := range m.snippets {
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

func (m *memStore) Get(_ context.Context, sourceID, targetID uuid.UUID) (*model.SnippetDiff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.diffs[sourceID.String()+"|"+targetID.String()]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) Insert(_ context.Context, d *model.SnippetDiff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := d.SourceID.String() + "|" + d.TargetID.String()
	if _, ok := m.diffs[key]; !ok {
		cp := *d
		m.diffs[key] = &cp
	}
	return nil
}

func (m *memStore) InsertComment(_ context.Context, c *model.SnippetComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments = append(m.comments, *c)
	return nil
}

func (m *memStore) ListComments(_ context.Context, snippetID uuid.UUID, opts repository.ListOptions) ([]model.SnippetComment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SnippetComment
	for _, c := range m.comments {
		if c.SnippetID == snippetID {
			cp := c
			cp.DeleteToken = ""
			out = append(out, cp)
		}
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (m *memStore) DeleteComment(_ context.Context, commentID uuid.UUID, deleteToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.comments {
		if c.ID == commentID && c.DeleteToken == deleteToken {
			m.comments = append(m.comments[:i], m.comments[i+1:]...)
			return nil
		}
	}
	return errs.ErrNotFound
}

func (m *memStore) IncrementReaction(_ context.Context, snippetID uuid.UUID, reactionType string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := snippetID.String() + "|" + reactionType
	m.react[key]++
	return m.react[key], nil
}

func (m *memStore) ListReactions(_ context.Context, snippetID uuid.UUID) ([]model.SnippetReaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := snippetID.String() + "|"
	var out []model.SnippetReaction
	for key, n := range m.react {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, model.SnippetReaction{SnippetID: snippetID, Type: key[len(prefix):], Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (m *memStore) AddSnippetMetrics(_ context.Context, _ time.Time, _, _ int) error { return nil }
func (m *memStore) AddVSCodeMetrics(_ context.Context, _ time.Time, _, _ int) error { return nil }
func (m *memStore) GetSnippetMetrics(_ context.Context, _ time.Time) (*model.SnippetMetrics, error) {
	return nil, nil
}

func (m *memStore) InsertEvent(_ context.Context, e *model.VSCodeTelemetryEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) DeleteEventsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []model.VSCodeTelemetryEvent
	var deleted int64
	for _, e := range m.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	m.events = kept
	return deleted, nil
}

func (m *memStore) InsertScanAudit(_ context.Context, _ string, _ string, _ []string, _ time.Time) error {
	return nil
}

// newTestServer wires the whole stack over memStore.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := newMemStore()
	log := zaptest.NewLogger(t)
	cipher, err := crypto.NewContentCipher(bytes.Repeat([]byte{0x42}, 32))
	require.NoError(t, err)
	c := cache.NewMemory()
	salt := []byte("salt")

	metrics := service.NewMetricsService(c, store, log)
	diffs := service.NewDiffService(store, store, cipher, log)
	snippets := service.NewSnippetService(store, store, diffs, scanner.New(), cipher, metrics, log, salt)
	access := service.NewAccessService(store, c, cipher, metrics, log, salt)
	social := service.NewSocialService(store, store, limiter.NewWindow(c, time.Minute, 100), log, salt)
	telemetry := service.NewTelemetryService(store, metrics, log)

	return New(snippets, access, diffs, social, telemetry, log, "http://test.local")
}
