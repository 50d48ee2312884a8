package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPost() Post {
	return Post{
		ID:        1,
		AccountID: "acc_1",
		Title:     "Launch thread",
		Status:    StatusDraft,
		PostType:  PostTypeXPost,
		Datetime:  "2024-06-03T09:15",
		Threads:   []string{"hook", "details"},
	}
}

func TestPostValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Post)
		wantErr error
	}{
		{name: "valid", mutate: func(p *Post) {}, wantErr: nil},
		{name: "empty title", mutate: func(p *Post) { p.Title = "" }, wantErr: ErrEmptyTitle},
		{name: "whitespace title", mutate: func(p *Post) { p.Title = "   " }, wantErr: ErrEmptyTitle},
		{name: "bad datetime", mutate: func(p *Post) { p.Datetime = "tomorrow" }, wantErr: ErrInvalidDatetime},
		{name: "no threads", mutate: func(p *Post) { p.Threads = nil }, wantErr: ErrNoThreads},
		{name: "bad status", mutate: func(p *Post) { p.Status = "archived" }, wantErr: ErrInvalidStatus},
		{name: "bad post type", mutate: func(p *Post) { p.PostType = "tiktok" }, wantErr: ErrInvalidPostType},
		{name: "bad memo link", mutate: func(p *Post) { p.MemoLinks = []string{"ftp://example.com"} }, wantErr: ErrInvalidMemoLink},
		{name: "relative memo link", mutate: func(p *Post) { p.MemoLinks = []string{"/notes/1"} }, wantErr: ErrInvalidMemoLink},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := validPost()
			tt.mutate(&post)

			err := post.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidMemoLink(t *testing.T) {
	assert.True(t, ValidMemoLink("https://example.com/article"))
	assert.True(t, ValidMemoLink("http://example.com"))
	assert.False(t, ValidMemoLink("example.com"))
	assert.False(t, ValidMemoLink(""))
	assert.False(t, ValidMemoLink("https://"))
}

func TestCommentUnmarshalAcceptsBareString(t *testing.T) {
	var c Comment
	require.NoError(t, json.Unmarshal([]byte(`"looks good"`), &c))
	assert.Equal(t, "looks good", c.Text)
	assert.True(t, c.At.IsZero())
}

func TestCommentUnmarshalObject(t *testing.T) {
	var c Comment
	require.NoError(t, json.Unmarshal([]byte(`{"text":"please fix the hook","at":"2024-06-03T09:15:00Z"}`), &c))
	assert.Equal(t, "please fix the hook", c.Text)
	assert.Equal(t, time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC), c.At.UTC())
}

func TestRemoveThreadSegment(t *testing.T) {
	post := validPost()
	post.Threads = []string{"a", "b", "c"}

	require.NoError(t, post.RemoveThreadSegment(1))
	assert.Equal(t, []string{"a", "c"}, post.Threads)

	assert.Error(t, post.RemoveThreadSegment(5))
}

func TestRemoveLastThreadSegmentRejected(t *testing.T) {
	post := validPost()
	post.Threads = []string{"only one"}

	assert.ErrorIs(t, post.RemoveThreadSegment(0), ErrLastThread)
	assert.Equal(t, []string{"only one"}, post.Threads)
}

func TestCloneIsDeep(t *testing.T) {
	post := validPost()
	post.Comments = []Comment{{Text: "original"}}
	post.History = []HistoryEntry{{Note: "saved"}}
	post.MemoLinks = []string{"https://example.com"}

	clone := post.Clone()
	clone.Threads[0] = "changed"
	clone.Comments[0].Text = "changed"
	clone.History[0].Note = "changed"
	clone.MemoLinks[0] = "changed"

	assert.Equal(t, "hook", post.Threads[0])
	assert.Equal(t, "original", post.Comments[0].Text)
	assert.Equal(t, "saved", post.History[0].Note)
	assert.Equal(t, "https://example.com", post.MemoLinks[0])
}

func TestPostTypePlatform(t *testing.T) {
	assert.Equal(t, PlatformX, PostTypeXQuote.Platform())
	assert.Equal(t, PlatformNote, PostTypeNoteMembership.Platform())
	assert.Equal(t, PlatformMail, PostTypeNewsletterPaid.Platform())
}

func TestStatusMetaCoversEveryStatus(t *testing.T) {
	for _, s := range Statuses() {
		assert.NotEmpty(t, s.Meta().Label, "status %q has no label", s)
	}
}
