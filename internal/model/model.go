// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Snippet is the central entity: a shared piece of text addressed by a
// capability URL (id + access token).
type Snippet struct {
	ID          uuid.UUID
	Content     string // plaintext or ciphertext (see IsEncrypted)
	Language    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ViewCount   int
	AccessToken string // high-entropy bearer token, unique
	IsEncrypted bool

	// Exhaustion rules.
	OneTimeView bool
	MaxViews    *int // nil = unlimited; otherwise 1..1000
	IsConsumed  bool
	ConsumedAt  *time.Time

	// Password protection (PBKDF2-HMAC-SHA256). Both nil means open access.
	PasswordHash []byte
	PasswordSalt []byte

	// Versioning. ParentID always points at the family root, never at an
	// intermediate version; a snippet with ParentID == nil is itself a root.
	ParentID *uuid.UUID
	Version  int

	// Public feed.
	IsPublic      bool
	PublicName    string
	AllowComments bool

	CreatorIPHash string // salted hash, never a raw address

	// ScanStatus is the secret-scan outcome recorded at creation:
	// scanner.StatusClean or scanner.StatusWarned.
	ScanStatus string
}

// HasPassword reports whether the snippet is password protected.
func (s *Snippet) HasPassword() bool {
	return len(s.PasswordHash) > 0 && len(s.PasswordSalt) > 0
}

// FamilyRoot returns the id anchoring the snippet's version family.
func (s *Snippet) FamilyRoot() uuid.UUID {
	if s.ParentID != nil {
		return *s.ParentID
	}
	return s.ID
}

// IsExpired reports whether the snippet expired as of now.
func (s *Snippet) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsAvailable reports whether the snippet can still be served: not
// expired, not consumed, and under its view budget.
func (s *Snippet) IsAvailable(now time.Time) bool {
	if s.IsExpired(now) || s.IsConsumed {
		return false
	}
	if s.OneTimeView && s.ViewCount > 0 {
		return false
	}
	if s.MaxViews != nil && s.ViewCount >= *s.MaxViews {
		return false
	}
	return true
}

// SharingURL renders the capability URL for this snippet.
func (s *Snippet) SharingURL(baseURL string) string {
	return baseURL + "/s/" + s.ID.String() + "?token=" + s.AccessToken
}

// SnippetView is an append-only audit record of one successful retrieval.
type SnippetView struct {
	ID        uuid.UUID
	SnippetID uuid.UUID
	ViewedAt  time.Time
	IPHash    string
	UserAgent string // truncated to 255 chars before persisting
	Location  string // optional, resolved by an external collaborator
}

// SnippetDiff caches a unified diff between an ordered pair of versions
// within one family. Immutable once created, unique per (source, target).
type SnippetDiff struct {
	ID          uuid.UUID
	SourceID    uuid.UUID
	TargetID    uuid.UUID
	DiffContent string
	Additions   int
	Deletions   int
	CreatedAt   time.Time
}

// VersionInfo is the sibling metadata attached to retrieval responses.
type VersionInfo struct {
	ID        uuid.UUID
	Version   int
	CreatedAt time.Time
	Language  string
}

// SnippetComment is an unauthenticated comment. DeleteToken is a secret
// capability that lets the author remove it later.
type SnippetComment struct {
	ID          uuid.UUID
	SnippetID   uuid.UUID
	Content     string
	DisplayName string
	DeleteToken string
	IPHash      string
	CreatedAt   time.Time
}

// SnippetReaction is a per-(snippet, type) counter.
type SnippetReaction struct {
	SnippetID uuid.UUID
	Type      string
	Count     int
}

// SnippetMetrics is one daily rollup row. Counters only grow.
type SnippetMetrics struct {
	Date          time.Time // calendar date, midnight UTC
	TotalSnippets int
	TotalViews    int
}

// VSCodeExtensionMetrics is the daily rollup for extension telemetry.
// UniqueClients is overwritten at flush time with the number of distinct
// clients seen since the previous flush, not accumulated.
type VSCodeExtensionMetrics struct {
	Date          time.Time
	TotalActions  int
	UniqueClients int
}

// VSCodeTelemetryEvent is a detailed event row, written best-effort
// after the primary operation commits.
type VSCodeTelemetryEvent struct {
	ID        uuid.UUID
	EventType string
	ClientID  string
	Timestamp time.Time
	Metadata  string // opaque JSON from the extension, may be empty
}
