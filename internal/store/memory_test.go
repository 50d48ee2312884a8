package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentos/contentos-backend/internal/calendar"
)

func seedAccount(t *testing.T, s *Memory, id string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, s.InsertAccount(context.Background(), calendar.Account{
		ID:        id,
		Name:      "Brand " + id,
		Handle:    "@" + id,
		Color:     "#f59e0b",
		CreatedAt: createdAt,
	}))
}

func seedPost(t *testing.T, s *Memory, id int64, accountID string) {
	t.Helper()
	require.NoError(t, s.UpsertPost(context.Background(), calendar.Post{
		ID:        id,
		AccountID: accountID,
		Title:     "Post",
		Status:    calendar.StatusDraft,
		PostType:  calendar.PostTypeXPost,
		Datetime:  "2024-06-03T09:00",
		Threads:   []string{"hook"},
	}))
}

func TestMemoryListAccountsOrderedByCreation(t *testing.T) {
	s := NewMemory()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	seedAccount(t, s, "acc_b", base.Add(time.Hour))
	seedAccount(t, s, "acc_a", base)

	accounts, err := s.ListAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "acc_a", accounts[0].ID)
	assert.Equal(t, "acc_b", accounts[1].ID)
}

func TestMemoryInsertAccountRejectsDuplicate(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())

	err := s.InsertAccount(context.Background(), calendar.Account{ID: "acc_1"})
	assert.Error(t, err)
}

func TestMemoryListPostsFiltersByAccount(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())
	seedAccount(t, s, "acc_2", time.Now())
	seedPost(t, s, 1, "acc_1")
	seedPost(t, s, 2, "acc_2")
	seedPost(t, s, 3, "acc_1")

	posts, err := s.ListPosts(context.Background(), []string{"acc_1"})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(1), posts[0].ID)
	assert.Equal(t, int64(3), posts[1].ID)
}

func TestMemoryUpsertPostReplacesExisting(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())
	seedPost(t, s, 1, "acc_1")

	require.NoError(t, s.UpsertPost(context.Background(), calendar.Post{
		ID:        1,
		AccountID: "acc_1",
		Title:     "Updated",
		Status:    calendar.StatusScheduled,
		PostType:  calendar.PostTypeXPost,
		Datetime:  "2024-06-03T10:00",
		Threads:   []string{"hook"},
	}))

	posts, err := s.ListPosts(context.Background(), []string{"acc_1"})
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Updated", posts[0].Title)
	assert.Equal(t, calendar.StatusScheduled, posts[0].Status)
}

func TestMemoryPatchPostWhitelistsColumns(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())
	seedPost(t, s, 1, "acc_1")
	ctx := context.Background()

	require.NoError(t, s.PatchPost(ctx, 1, map[string]any{"status": calendar.StatusPublished}))
	require.NoError(t, s.PatchPost(ctx, 1, map[string]any{"comments": []calendar.Comment{{Text: "nice"}}}))

	posts, err := s.ListPosts(ctx, []string{"acc_1"})
	require.NoError(t, err)
	assert.Equal(t, calendar.StatusPublished, posts[0].Status)
	require.Len(t, posts[0].Comments, 1)

	assert.Error(t, s.PatchPost(ctx, 1, map[string]any{"title": "sneaky"}))
	assert.ErrorIs(t, s.PatchPost(ctx, 99, map[string]any{"status": calendar.StatusDraft}), ErrNotFound)
}

func TestMemoryDeletePost(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())
	seedPost(t, s, 1, "acc_1")
	ctx := context.Background()

	require.NoError(t, s.DeletePost(ctx, 1))
	assert.ErrorIs(t, s.DeletePost(ctx, 1), ErrNotFound)
}

func TestMemoryPatchAccount(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())
	ctx := context.Background()

	require.NoError(t, s.PatchAccount(ctx, "acc_1", map[string]any{"name": "Renamed", "color": "#000000"}))

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", accounts[0].Name)
	assert.Equal(t, "#000000", accounts[0].Color)
	assert.Equal(t, "@acc_1", accounts[0].Handle)

	assert.Error(t, s.PatchAccount(ctx, "acc_1", map[string]any{"created_at": time.Now()}))
	assert.ErrorIs(t, s.PatchAccount(ctx, "acc_missing", map[string]any{"name": "x"}), ErrNotFound)
}

func TestMemoryDeleteAccountCascadesPosts(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())
	seedAccount(t, s, "acc_2", time.Now())
	seedPost(t, s, 1, "acc_1")
	seedPost(t, s, 2, "acc_1")
	seedPost(t, s, 3, "acc_2")
	ctx := context.Background()

	require.NoError(t, s.DeleteAccount(ctx, "acc_1"))

	orphaned, err := s.ListPosts(ctx, []string{"acc_1"})
	require.NoError(t, err)
	assert.Empty(t, orphaned)

	kept, err := s.ListPosts(ctx, []string{"acc_2"})
	require.NoError(t, err)
	assert.Len(t, kept, 1)

	assert.ErrorIs(t, s.DeleteAccount(ctx, "acc_missing"), ErrNotFound)
}

func TestMemoryListPostsReturnsClones(t *testing.T) {
	s := NewMemory()
	seedAccount(t, s, "acc_1", time.Now())
	seedPost(t, s, 1, "acc_1")
	ctx := context.Background()

	posts, err := s.ListPosts(ctx, []string{"acc_1"})
	require.NoError(t, err)
	posts[0].Threads[0] = "mutated"

	again, err := s.ListPosts(ctx, []string{"acc_1"})
	require.NoError(t, err)
	assert.Equal(t, "hook", again[0].Threads[0])
}
