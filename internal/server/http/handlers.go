package httpserver

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/codely-app/snippetd/internal/errs"
	"github.com/codely-app/snippetd/internal/model"
	"github.com/codely-app/snippetd/internal/service"
)

// Server bundles the application services behind the HTTP API.
type Server struct {
	snippets  *service.SnippetService
	access    *service.AccessService
	diffs     *service.DiffService
	social    *service.SocialService
	telemetry *service.TelemetryService
	log       *zap.Logger
	baseURL   string
}

// New constructs the HTTP server facade.
func New(
	snippets *service.SnippetService,
	access *service.AccessService,
	diffs *service.DiffService,
	social *service.SocialService,
	telemetry *service.TelemetryService,
	log *zap.Logger,
	baseURL string,
) *Server {
	return &Server{
		snippets:  snippets,
		access:    access,
		diffs:     diffs,
		social:    social,
		telemetry: telemetry,
		log:       log,
		baseURL:   baseURL,
	}
}

// Router assembles all routes with logging and panic recovery.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(Recover(s.log))
	r.Use(Logging(s.log))

	r.Route("/api", func(r chi.Router) {
		r.Post("/snippets", s.handleCreate)
		r.Get("/snippets/{id}", s.handleRetrieve)
		r.Post("/snippets/{id}", s.handleAction)
		r.Get("/snippets/{id}/versions", s.handleListVersions)
		r.Post("/snippets/{id}/versions", s.handleCreateVersion)
		r.Get("/snippets/{id}/diff", s.handleDiff)
		r.Get("/public", s.handlePublicFeed)

		r.Get("/snippets/{id}/comments", s.handleListComments)
		r.Post("/snippets/{id}/comments", s.handleAddComment)
		r.Delete("/comments/{commentID}", s.handleDeleteComment)
		r.Get("/snippets/{id}/reactions", s.handleListReactions)
		r.Post("/snippets/{id}/reactions", s.handleReact)

		r.Post("/vscode/telemetry", s.handleTelemetry)
	})
	return r
}

// clientIP extracts the caller address; the first X-Forwarded-For hop
// wins behind a proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func parseID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, param))
	if err != nil {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

type createRequest struct {
	Content       string `json:"content"`
	Language      string `json:"language"`
	Expiration    string `json:"expiration"`
	OneTimeView   bool   `json:"one_time_view"`
	MaxViews      *int   `json:"max_views"`
	IsPublic      bool   `json:"is_public"`
	PublicName    string `json:"public_name"`
	AllowComments bool   `json:"allow_comments"`
	Password      string `json:"password"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.snippets.Create(r.Context(), service.CreateInput{
		Content:       req.Content,
		Language:      req.Language,
		Expiration:    req.Expiration,
		OneTimeView:   req.OneTimeView,
		MaxViews:      req.MaxViews,
		IsPublic:      req.IsPublic,
		PublicName:    req.PublicName,
		AllowComments: req.AllowComments,
		Password:      req.Password,
		IP:            clientIP(r),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           res.Snippet.ID,
		"access_token": res.Snippet.AccessToken,
		"sharing_url":  res.Snippet.SharingURL(s.baseURL),
		"expires_at":   res.Snippet.ExpiresAt,
		"scan_status":  res.ScanStatus,
	})
}

type snippetResponse struct {
	ID              uuid.UUID     `json:"id"`
	Content         string        `json:"content"`
	Language        string        `json:"language"`
	CreatedAt       time.Time     `json:"created_at"`
	ExpiresAt       time.Time     `json:"expires_at"`
	ViewCount       int           `json:"view_count"`
	OneTimeView     bool          `json:"one_time_view"`
	Version         int           `json:"version"`
	ScanStatus      string        `json:"scan_status"`
	Versions        []versionInfo `json:"versions,omitempty"`
	NeedsDecryption bool          `json:"needs_decryption,omitempty"`
}

type versionInfo struct {
	ID        uuid.UUID `json:"id"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Language  string    `json:"language"`
}

func toSnippetResponse(res *service.RetrieveResult) snippetResponse {
	sn := res.Snippet
	out := snippetResponse{
		ID:              sn.ID,
		Content:         sn.Content,
		Language:        sn.Language,
		CreatedAt:       sn.CreatedAt,
		ExpiresAt:       sn.ExpiresAt,
		ViewCount:       sn.ViewCount,
		OneTimeView:     sn.OneTimeView,
		Version:         sn.Version,
		ScanStatus:      sn.ScanStatus,
		NeedsDecryption: res.NeedsDecryption,
	}
	for _, v := range res.Versions {
		out.Versions = append(out.Versions, versionInfo{
			ID: v.ID, Version: v.Version, CreatedAt: v.CreatedAt, Language: v.Language,
		})
	}
	return out
}

func (s *Server) retrieve(w http.ResponseWriter, r *http.Request, password string) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	res, err := s.access.Retrieve(r.Context(), service.RetrieveRequest{
		ID:        id,
		Token:     r.URL.Query().Get("token"),
		Password:  password,
		Public:    r.URL.Query().Get("public") == "true",
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		respondError(w, err)
		return
	}
	if res.RequiresPassword {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"requires_password": true,
			"one_time_view":     res.OneTimeWarning,
		})
		return
	}
	writeJSON(w, http.StatusOK, toSnippetResponse(res))
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	s.retrieve(w, r, "")
}

type actionRequest struct {
	Action   string `json:"action"`
	Password string `json:"password"`
}

// handleAction serves the check_password protocol step: the same
// retrieval, now carrying the password.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Action != "check_password" {
		writeError(w, http.StatusBadRequest, "unsupported action")
		return
	}
	s.retrieve(w, r, req.Password)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	versions, err := s.snippets.GetVersions(r.Context(), id, r.URL.Query().Get("token"))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make([]versionInfo, 0, len(versions))
	for _, v := range versions {
		out = append(out, versionInfo{ID: v.ID, Version: v.Version, CreatedAt: v.CreatedAt, Language: v.Language})
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": out})
}

type createVersionRequest struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	res, err := s.snippets.CreateVersion(r.Context(), id, r.URL.Query().Get("token"), req.Content, req.Language)
	if err != nil {
		respondError(w, err)
		return
	}
	body := map[string]any{
		"id":           res.Snippet.ID,
		"access_token": res.Snippet.AccessToken,
		"version":      res.Snippet.Version,
		"sharing_url":  res.Snippet.SharingURL(s.baseURL),
	}
	if res.Diff != nil {
		body["diff"] = diffResponse(res.Diff)
	}
	writeJSON(w, http.StatusCreated, body)
}

func diffResponse(d *model.SnippetDiff) map[string]any {
	return map[string]any{
		"source_id": d.SourceID,
		"target_id": d.TargetID,
		"diff":      d.DiffContent,
		"additions": d.Additions,
		"deletions": d.Deletions,
	}
}

func queryInt(r *http.Request, name string) (*int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, false
	}
	return &n, true
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	from, ok := queryInt(r, "from")
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed from version")
		return
	}
	to, ok := queryInt(r, "to")
	if !ok {
		writeError(w, http.StatusBadRequest, "malformed to version")
		return
	}
	d, err := s.diffs.Get(r.Context(), id, r.URL.Query().Get("token"), from, to)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diffResponse(d))
}

func (s *Server) handlePublicFeed(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p, ok := queryInt(r, "page"); ok && p != nil {
		page = *p
	}
	pageSize := 0
	if ps, ok := queryInt(r, "page_size"); ok && ps != nil {
		pageSize = *ps
	}
	snippets, err := s.snippets.ListPublic(r.Context(), page, pageSize)
	if err != nil {
		respondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(snippets))
	for _, sn := range snippets {
		items = append(items, map[string]any{
			"id":          sn.ID,
			"public_name": sn.PublicName,
			"language":    sn.Language,
			"created_at":  sn.CreatedAt,
			"expires_at":  sn.ExpiresAt,
			"view_count":  sn.ViewCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"page": page, "snippets": items})
}

type commentRequest struct {
	Content     string `json:"content"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	c, err := s.social.AddComment(r.Context(), id, r.URL.Query().Get("token"), req.Content, req.DisplayName, clientIP(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":           c.ID,
		"created_at":   c.CreatedAt,
		"delete_token": c.DeleteToken,
	})
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	limit, offset := 0, 0
	if n, ok := queryInt(r, "limit"); ok && n != nil {
		limit = *n
	}
	if n, ok := queryInt(r, "offset"); ok && n != nil {
		offset = *n
	}
	comments, err := s.social.ListComments(r.Context(), id, r.URL.Query().Get("token"), limit, offset)
	if err != nil {
		respondError(w, err)
		return
	}
	items := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		items = append(items, map[string]any{
			"id":           c.ID,
			"content":      c.Content,
			"display_name": c.DisplayName,
			"created_at":   c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": items})
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "commentID")
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.social.DeleteComment(r.Context(), id, r.URL.Query().Get("delete_token")); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type reactionRequest struct {
	Reaction string `json:"reaction"`
}

func (s *Server) handleReact(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	count, err := s.social.React(r.Context(), id, r.URL.Query().Get("token"), req.Reaction, clientIP(r))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reaction": req.Reaction, "count": count})
}

type telemetryRequest struct {
	Events []struct {
		EventType string `json:"event_type"`
		ClientID  string `json:"client_id"`
		Metadata  string `json:"metadata"`
	} `json:"events"`
}

func (s *Server) handleListReactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		respondError(w, err)
		return
	}
	reactions, err := s.social.ListReactions(r.Context(), id, r.URL.Query().Get("token"))
	if err != nil {
		respondError(w, err)
		return
	}
	out := make(map[string]int, len(reactions))
	for _, rc := range reactions {
		out[rc.Type] = rc.Count
	}
	writeJSON(w, http.StatusOK, map[string]any{"reactions": out})
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	events := make([]service.EventInput, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, service.EventInput{
			EventType: e.EventType,
			ClientID:  e.ClientID,
			Metadata:  e.Metadata,
		})
	}
	if err := s.telemetry.Ingest(r.Context(), events); err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": len(events)})
}
