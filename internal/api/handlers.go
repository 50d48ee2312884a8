package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/contentos/contentos-backend/internal/cache"
	"github.com/contentos/contentos-backend/internal/calendar"
	"github.com/contentos/contentos-backend/internal/config"
	"github.com/contentos/contentos-backend/internal/ws"
)

// MetricsInterface defines the interface for metrics recording
type MetricsInterface interface {
	RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration)
	RecordCacheHit(ctx context.Context, key string)
	RecordCacheMiss(ctx context.Context, key string)
}

const accountsCacheTTL = 30 * time.Second

type Handler struct {
	svc        *calendar.Service
	store      calendar.Store
	wsHub      *ws.Hub
	sseHandler *ws.SSEHandler
	cache      *cache.Cache
	config     *config.Config
	logger     *zap.SugaredLogger
	metrics    MetricsInterface
}

func NewHandler(
	svc *calendar.Service,
	store calendar.Store,
	wsHub *ws.Hub,
	sseHandler *ws.SSEHandler,
	cache *cache.Cache,
	config *config.Config,
	logger *zap.SugaredLogger,
	metrics MetricsInterface,
) *Handler {
	return &Handler{
		svc:        svc,
		store:      store,
		wsHub:      wsHub,
		sseHandler: sseHandler,
		cache:      cache,
		config:     config,
		logger:     logger,
		metrics:    metrics,
	}
}

// requireAdmin rejects mutations arriving through a shared client link.
// Client-mode sessions may read the calendar and add comments, nothing else.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if scope := ScopeFromContext(r.Context()); scope != "" {
		h.writeError(w, http.StatusForbidden, "CLIENT_MODE_READ_ONLY",
			"shared links allow viewing and commenting only")
		return false
	}
	return true
}

// Account endpoints

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if scope := ScopeFromContext(r.Context()); scope != "" {
		account, ok := h.svc.Account(scope)
		if !ok {
			h.writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "unknown account id")
			return
		}
		h.writeJSON(w, http.StatusOK, []calendar.Account{account})
		return
	}

	var cached []calendar.Account
	if err := h.cache.Get(r.Context(), cache.KeyAccounts, &cached); err == nil {
		h.metrics.RecordCacheHit(r.Context(), cache.KeyAccounts)
		h.writeJSON(w, http.StatusOK, cached)
		return
	}
	h.metrics.RecordCacheMiss(r.Context(), cache.KeyAccounts)

	accounts := h.svc.Accounts()
	if err := h.cache.Set(r.Context(), cache.KeyAccounts, accounts, accountsCacheTTL); err != nil {
		h.logger.Warnw("Failed to cache accounts", "error", err)
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	account, err := h.svc.AddAccount(r.Context(), req.Name, req.Handle, req.Color)
	if err != nil {
		h.writeError(w, http.StatusBadGateway, "ACCOUNT_CREATE_FAILED", err.Error())
		return
	}

	h.invalidateAccounts(r.Context())
	h.writeJSON(w, http.StatusCreated, account)
}

func (h *Handler) PatchAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	var req PatchAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	patch := calendar.AccountPatch{Name: req.Name, Handle: req.Handle, Color: req.Color}
	if err := h.svc.UpdateAccount(r.Context(), id, patch); err != nil {
		h.writeDomainError(w, "ACCOUNT_UPDATE_FAILED", err)
		return
	}

	h.invalidateAccounts(r.Context())
	account, _ := h.svc.Account(id)
	h.writeJSON(w, http.StatusOK, account)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.svc.DeleteAccount(r.Context(), id); err != nil {
		h.writeDomainError(w, "ACCOUNT_DELETE_FAILED", err)
		return
	}

	h.invalidateAccounts(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.svc.SetActiveAccount(id); err != nil {
		h.writeDomainError(w, "ACCOUNT_ACTIVATE_FAILED", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"active_account_id": id})
}

func (h *Handler) GetShareLink(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id := chi.URLParam(r, "id")

	if _, ok := h.svc.Account(id); !ok {
		h.writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "unknown account id")
		return
	}

	key := cache.KeySharePrefix + id
	var link ShareLinkResponse
	if err := h.cache.Get(r.Context(), key, &link); err == nil {
		h.metrics.RecordCacheHit(r.Context(), key)
		h.writeJSON(w, http.StatusOK, link)
		return
	}
	h.metrics.RecordCacheMiss(r.Context(), key)

	link = ShareLinkResponse{AccountID: id, URL: h.config.ShareLink(id)}
	if err := h.cache.Set(r.Context(), key, link, time.Hour); err != nil {
		h.logger.Warnw("Failed to cache share link", "account_id", id, "error", err)
	}
	h.writeJSON(w, http.StatusOK, link)
}

// Post endpoints

func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	if scope := ScopeFromContext(r.Context()); scope != "" {
		h.writeJSON(w, http.StatusOK, h.svc.Posts(scope))
		return
	}

	// Admin sessions see every account's posts.
	var posts []calendar.Post
	for _, account := range h.svc.Accounts() {
		posts = append(posts, h.svc.Posts(account.ID)...)
	}
	if posts == nil {
		posts = []calendar.Post{}
	}
	h.writeJSON(w, http.StatusOK, posts)
}

func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}
	post, found := h.svc.Post(id)
	if !found {
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", "unknown post id")
		return
	}
	if scope := ScopeFromContext(r.Context()); scope != "" && post.AccountID != scope {
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", "unknown post id")
		return
	}
	h.writeJSON(w, http.StatusOK, post)
}

func (h *Handler) SavePost(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}

	var post calendar.Post
	if err := json.NewDecoder(r.Body).Decode(&post); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if post.ID == 0 {
		post.ID = calendar.NewPostID()
	}
	if post.AccountID == "" {
		post.AccountID = h.svc.ActiveAccountID()
	}

	if err := h.svc.SavePost(r.Context(), post); err != nil {
		h.writeDomainError(w, "POST_SAVE_FAILED", err)
		return
	}

	saved, _ := h.svc.Post(post.ID)
	h.writeJSON(w, http.StatusOK, saved)
}

func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	if err := h.svc.DeletePost(r.Context(), id); err != nil {
		h.writeDomainError(w, "POST_DELETE_FAILED", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	var req ChangeStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	if err := h.svc.ChangeStatus(r.Context(), id, req.Status); err != nil {
		h.writeDomainError(w, "STATUS_CHANGE_FAILED", err)
		return
	}

	post, _ := h.svc.Post(id)
	h.writeJSON(w, http.StatusOK, post)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	post, found := h.svc.Post(id)
	if !found {
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", "unknown post id")
		return
	}
	// Client sessions may only comment on their own account's posts.
	if scope := ScopeFromContext(r.Context()); scope != "" && post.AccountID != scope {
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", "unknown post id")
		return
	}

	var req AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}
	if req.Text == "" {
		h.writeError(w, http.StatusBadRequest, "EMPTY_COMMENT", "comment text is required")
		return
	}

	comment := calendar.Comment{Text: req.Text, At: time.Now().UTC()}
	if err := h.svc.AddComment(r.Context(), id, comment); err != nil {
		h.writeDomainError(w, "COMMENT_FAILED", err)
		return
	}

	post, _ = h.svc.Post(id)
	h.writeJSON(w, http.StatusOK, post)
}

func (h *Handler) Repost(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	var req RepostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body")
		return
	}

	post, err := h.svc.Repost(r.Context(), id, req.Datetime, req.RepeatRule)
	if err != nil {
		h.writeDomainError(w, "REPOST_FAILED", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	post, err := h.svc.Duplicate(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "DUPLICATE_FAILED", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) ExportPost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.postID(w, r)
	if !ok {
		return
	}

	post, found := h.svc.Post(id)
	if !found {
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", "unknown post id")
		return
	}
	if scope := ScopeFromContext(r.Context()); scope != "" && post.AccountID != scope {
		h.writeError(w, http.StatusNotFound, "POST_NOT_FOUND", "unknown post id")
		return
	}

	payload, err := calendar.ExportClipboard(post)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, payload)
}

// Calendar endpoints

func (h *Handler) GetCalendarSlots(w http.ResponseWriter, r *http.Request) {
	accountID := ScopeFromContext(r.Context())
	if accountID == "" {
		accountID = h.svc.ActiveAccountID()
	}

	base := time.Now()
	if week := r.URL.Query().Get("week"); week != "" {
		parsed, err := time.Parse(calendar.DateLayout, week)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_WEEK", "week must be YYYY-MM-DD")
			return
		}
		base = parsed
	}

	posts := h.svc.Posts(accountID)
	if status := r.URL.Query().Get("status"); status != "" {
		s := calendar.Status(status)
		if !s.Valid() {
			h.writeError(w, http.StatusBadRequest, "INVALID_STATUS", "unknown status filter")
			return
		}
		posts = calendar.FilterByStatus(posts, s)
	}

	dates := calendar.WeekDates(base)
	index := calendar.BuildSlotIndex(calendar.FilterByDates(posts, dates))

	h.writeJSON(w, http.StatusOK, SlotsResponse{
		WeekDates: dates,
		Hours:     h.visibleHours(),
		Slots:     index,
	})
}

func (h *Handler) GetMeta(w http.ResponseWriter, r *http.Request) {
	statuses := make([]StatusMetaDTO, 0, len(calendar.Statuses()))
	for _, s := range calendar.Statuses() {
		meta := s.Meta()
		statuses = append(statuses, StatusMetaDTO{
			ID:     s,
			Label:  meta.Label,
			Chip:   meta.Chip,
			Text:   meta.Text,
			Border: meta.Border,
		})
	}

	types := make([]PostTypeMetaDTO, 0, len(calendar.PostTypes()))
	for _, t := range calendar.PostTypes() {
		types = append(types, PostTypeMetaDTO{
			ID:       t,
			Label:    t.Meta().Label,
			Platform: t.Platform(),
		})
	}

	h.writeJSON(w, http.StatusOK, MetaResponse{
		Statuses:  statuses,
		PostTypes: types,
		Hours:     h.visibleHours(),
	})
}

func (h *Handler) visibleHours() []int {
	hours := make([]int, 0, h.config.Calendar.DayEndHour-h.config.Calendar.DayStartHour+1)
	for hr := h.config.Calendar.DayStartHour; hr <= h.config.Calendar.DayEndHour; hr++ {
		hours = append(hours, hr)
	}
	return hours
}

// Health endpoints

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"store": "ok", "cache": "ok"}
	status := http.StatusOK

	if err := h.store.Ping(r.Context()); err != nil {
		checks["store"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(r.Context()); err != nil {
		checks["cache"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	body := HealthResponse{Status: "ready", Checks: checks}
	if status != http.StatusOK {
		body.Status = "degraded"
	}
	h.writeJSON(w, status, body)
}

// WebSocket endpoint
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.wsHub.HandleWebSocket(w, r)
}

// SSE endpoint
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	h.sseHandler.HandleSSE(w, r)
}

// Utility methods

func (h *Handler) postID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_POST_ID", "post id must be an integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) invalidateAccounts(ctx context.Context) {
	if err := h.cache.Delete(ctx, cache.KeyAccounts); err != nil {
		h.logger.Warnw("Failed to invalidate accounts cache", "error", err)
	}
}

// writeDomainError maps service errors onto HTTP statuses. Validation
// failures are 400, missing entities 404, guarded deletions 409, and
// anything else surfaces as a failed remote write.
func (h *Handler) writeDomainError(w http.ResponseWriter, code string, err error) {
	switch {
	case errors.Is(err, calendar.ErrUnknownPost), errors.Is(err, calendar.ErrUnknownAccount):
		h.writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, calendar.ErrLastAccount):
		h.writeError(w, http.StatusConflict, "LAST_ACCOUNT", err.Error())
	case errors.Is(err, calendar.ErrLastThread):
		h.writeError(w, http.StatusConflict, "LAST_THREAD", err.Error())
	case errors.Is(err, calendar.ErrEmptyTitle),
		errors.Is(err, calendar.ErrInvalidDatetime),
		errors.Is(err, calendar.ErrNoThreads),
		errors.Is(err, calendar.ErrInvalidStatus),
		errors.Is(err, calendar.ErrInvalidPostType),
		errors.Is(err, calendar.ErrInvalidMemoLink):
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		h.writeError(w, http.StatusBadGateway, code, err.Error())
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := ErrorResponse{
		Code:    code,
		Message: message,
	}
	json.NewEncoder(w).Encode(err)
}
