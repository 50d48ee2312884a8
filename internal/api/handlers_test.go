package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/contentos/contentos-backend/internal/cache"
	"github.com/contentos/contentos-backend/internal/calendar"
	"github.com/contentos/contentos-backend/internal/config"
	"github.com/contentos/contentos-backend/internal/store"
)

// Mock metrics for testing
type MockMetrics struct{}

func (m *MockMetrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
}
func (m *MockMetrics) RecordCacheHit(ctx context.Context, key string)  {}
func (m *MockMetrics) RecordCacheMiss(ctx context.Context, key string) {}

func testConfig() *config.Config {
	return &config.Config{
		Env:       "test",
		PublicURL: "https://calendar.example.com",
		Calendar:  config.CalendarConfig{DayStartHour: 7, DayEndHour: 22},
	}
}

func seededPost() calendar.Post {
	return calendar.Post{
		ID:        1,
		AccountID: "acc_1",
		Title:     "Launch thread",
		Status:    calendar.StatusDraft,
		PostType:  calendar.PostTypeXPost,
		Datetime:  "2024-06-03T09:15",
		Threads:   []string{"hook"},
	}
}

func createTestHandler(t *testing.T) *Handler {
	t.Helper()
	logger := zap.NewNop().Sugar()
	ctx := context.Background()

	mem := store.NewMemory()
	require.NoError(t, mem.InsertAccount(ctx, calendar.Account{
		ID: "acc_1", Name: "Brand A", Handle: "@a", Color: "#f59e0b",
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, mem.InsertAccount(ctx, calendar.Account{
		ID: "acc_2", Name: "Brand B", Handle: "@b", Color: "#3b82f6",
		CreatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, mem.UpsertPost(ctx, seededPost()))

	svc := calendar.NewService(mem, nil, logger)
	require.NoError(t, svc.Load(ctx, ""))

	c := cache.New("127.0.0.1:1", logger, nil)
	t.Cleanup(func() { c.Close() })

	return &Handler{
		svc:     svc,
		store:   mem,
		cache:   c,
		config:  testConfig(),
		logger:  logger,
		metrics: &MockMetrics{},
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asClient(r *http.Request, accountID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), scopeKey{}, accountID))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	return e
}

func TestListAccountsAdmin(t *testing.T) {
	h := createTestHandler(t)

	rec := httptest.NewRecorder()
	h.ListAccounts(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []calendar.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accounts))
	assert.Len(t, accounts, 2)
}

func TestListAccountsClientScope(t *testing.T) {
	h := createTestHandler(t)

	r := asClient(httptest.NewRequest(http.MethodGet, "/v1/accounts", nil), "acc_2")
	rec := httptest.NewRecorder()
	h.ListAccounts(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var accounts []calendar.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "acc_2", accounts[0].ID)
}

func TestCreateAccountPersistsRequestedFields(t *testing.T) {
	h := createTestHandler(t)

	body, _ := json.Marshal(CreateAccountRequest{Name: "Acme", Handle: "@acme", Color: "#112233"})
	rec := httptest.NewRecorder()
	h.CreateAccount(rec, httptest.NewRequest(http.MethodPost, "/v1/accounts", bytes.NewReader(body)))

	require.Equal(t, http.StatusCreated, rec.Code)
	var account calendar.Account
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&account))
	assert.Equal(t, "Acme", account.Name)
	assert.Equal(t, "@acme", account.Handle)
	assert.Equal(t, "#112233", account.Color)

	stored, err := h.store.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 3)
	for _, a := range stored {
		if a.ID == account.ID {
			assert.Equal(t, "Acme", a.Name)
		}
	}
}

func TestListPostsAdminSeesAllAccounts(t *testing.T) {
	h := createTestHandler(t)

	second := seededPost()
	second.ID = 2
	second.AccountID = "acc_2"
	require.NoError(t, h.store.UpsertPost(context.Background(), second))
	require.NoError(t, h.svc.Load(context.Background(), ""))

	rec := httptest.NewRecorder()
	h.ListPosts(rec, httptest.NewRequest(http.MethodGet, "/v1/posts", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var posts []calendar.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&posts))
	assert.Len(t, posts, 2)
}

func TestListPostsClientScopedToAccount(t *testing.T) {
	h := createTestHandler(t)

	r := asClient(httptest.NewRequest(http.MethodGet, "/v1/posts", nil), "acc_2")
	rec := httptest.NewRecorder()
	h.ListPosts(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var posts []calendar.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&posts))
	assert.Empty(t, posts)
}

func TestSavePostClientModeForbidden(t *testing.T) {
	h := createTestHandler(t)

	body, _ := json.Marshal(seededPost())
	r := asClient(httptest.NewRequest(http.MethodPut, "/v1/posts", bytes.NewReader(body)), "acc_1")
	rec := httptest.NewRecorder()
	h.SavePost(rec, r)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "CLIENT_MODE_READ_ONLY", decodeError(t, rec).Code)
}

func TestSavePostValidationError(t *testing.T) {
	h := createTestHandler(t)

	post := seededPost()
	post.Title = ""
	body, _ := json.Marshal(post)
	rec := httptest.NewRecorder()
	h.SavePost(rec, httptest.NewRequest(http.MethodPut, "/v1/posts", bytes.NewReader(body)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decodeError(t, rec).Code)
}

func TestSavePostSuccess(t *testing.T) {
	h := createTestHandler(t)

	post := seededPost()
	post.ID = 2
	post.Title = "Second post"
	body, _ := json.Marshal(post)
	rec := httptest.NewRecorder()
	h.SavePost(rec, httptest.NewRequest(http.MethodPut, "/v1/posts", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	var saved calendar.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&saved))
	assert.Equal(t, "Second post", saved.Title)
	assert.NotEmpty(t, saved.History)
}

func TestChangeStatusEndpoint(t *testing.T) {
	h := createTestHandler(t)

	body := []byte(`{"status":"scheduled"}`)
	r := withURLParam(httptest.NewRequest(http.MethodPatch, "/v1/posts/1/status", bytes.NewReader(body)), "id", "1")
	rec := httptest.NewRecorder()
	h.ChangeStatus(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var post calendar.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&post))
	assert.Equal(t, calendar.StatusScheduled, post.Status)
}

func TestAddCommentClientModeOwnPost(t *testing.T) {
	h := createTestHandler(t)

	body := []byte(`{"text":"please tweak the hook"}`)
	r := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/posts/1/comments", bytes.NewReader(body)), "id", "1")
	r = asClient(r, "acc_1")
	rec := httptest.NewRecorder()
	h.AddComment(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var post calendar.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&post))
	require.Len(t, post.Comments, 1)
	assert.Equal(t, "please tweak the hook", post.Comments[0].Text)
}

func TestAddCommentClientModeForeignPostHidden(t *testing.T) {
	h := createTestHandler(t)

	body := []byte(`{"text":"spying"}`)
	r := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/posts/1/comments", bytes.NewReader(body)), "id", "1")
	r = asClient(r, "acc_2")
	rec := httptest.NewRecorder()
	h.AddComment(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteAccountLastOneConflict(t *testing.T) {
	h := createTestHandler(t)

	// Remove one of the two accounts so exactly one remains.
	r := withURLParam(httptest.NewRequest(http.MethodDelete, "/v1/accounts/acc_2", nil), "id", "acc_2")
	rec := httptest.NewRecorder()
	h.DeleteAccount(rec, r)
	require.Equal(t, http.StatusNoContent, rec.Code)

	r = withURLParam(httptest.NewRequest(http.MethodDelete, "/v1/accounts/acc_1", nil), "id", "acc_1")
	rec = httptest.NewRecorder()
	h.DeleteAccount(rec, r)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "LAST_ACCOUNT", decodeError(t, rec).Code)
}

func TestGetShareLink(t *testing.T) {
	h := createTestHandler(t)

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/accounts/acc_1/share-link", nil), "id", "acc_1")
	rec := httptest.NewRecorder()
	h.GetShareLink(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var link ShareLinkResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&link))
	assert.Equal(t, "https://calendar.example.com/?account=acc_1", link.URL)
}

func TestGetCalendarSlots(t *testing.T) {
	h := createTestHandler(t)

	rec := httptest.NewRecorder()
	h.GetCalendarSlots(rec, httptest.NewRequest(http.MethodGet, "/v1/calendar/slots?week=2024-06-05", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp SlotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))

	require.Len(t, resp.WeekDates, 7)
	assert.Equal(t, "2024-06-03", resp.WeekDates[0])
	assert.Equal(t, 7, resp.Hours[0])
	assert.Equal(t, 22, resp.Hours[len(resp.Hours)-1])
	require.Len(t, resp.Slots["2024-06-03_09"], 1)
	assert.Equal(t, int64(1), resp.Slots["2024-06-03_09"][0].ID)
}

func TestGetCalendarSlotsBadWeek(t *testing.T) {
	h := createTestHandler(t)

	rec := httptest.NewRecorder()
	h.GetCalendarSlots(rec, httptest.NewRequest(http.MethodGet, "/v1/calendar/slots?week=June", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_WEEK", decodeError(t, rec).Code)
}

func TestDuplicateEndpoint(t *testing.T) {
	h := createTestHandler(t)

	r := withURLParam(httptest.NewRequest(http.MethodPost, "/v1/posts/1/duplicate", nil), "id", "1")
	rec := httptest.NewRecorder()
	h.Duplicate(rec, r)

	require.Equal(t, http.StatusCreated, rec.Code)
	var post calendar.Post
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&post))
	assert.Equal(t, "Copy of Launch thread", post.Title)
	assert.Equal(t, calendar.Datetime("2024-06-04T09:15"), post.Datetime)
	assert.Equal(t, calendar.StatusDraft, post.Status)
}

func TestExportEndpoint(t *testing.T) {
	h := createTestHandler(t)

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/posts/1/export", nil), "id", "1")
	rec := httptest.NewRecorder()
	h.ExportPost(rec, r)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload calendar.ClipboardPayload
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	assert.Contains(t, payload.HTML, "<h1>Launch thread</h1>")
	assert.Contains(t, payload.Text, "Launch thread")
}

func TestGetPostNotFound(t *testing.T) {
	h := createTestHandler(t)

	r := withURLParam(httptest.NewRequest(http.MethodGet, "/v1/posts/999", nil), "id", "999")
	rec := httptest.NewRecorder()
	h.GetPost(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMeta(t *testing.T) {
	h := createTestHandler(t)

	rec := httptest.NewRecorder()
	h.GetMeta(rec, httptest.NewRequest(http.MethodGet, "/v1/meta", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var meta MetaResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&meta))
	assert.Len(t, meta.Statuses, 7)
	assert.Len(t, meta.PostTypes, 6)
	assert.Equal(t, []int{7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22}, meta.Hours)
}

func TestReadyz(t *testing.T) {
	h := createTestHandler(t)

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ready", health.Status)
}
