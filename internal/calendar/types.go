package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Status is the workflow state of a post. Transitions are unconstrained:
// any status may move directly to any other.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusReview          Status = "review"
	StatusWaiting         Status = "waiting"
	StatusScheduled       Status = "scheduled"
	StatusPublished       Status = "published"
	StatusPopular         Status = "popular"
	StatusUnderperforming Status = "underperforming"
)

// Statuses returns every status in display order.
func Statuses() []Status {
	return []Status{
		StatusDraft,
		StatusReview,
		StatusWaiting,
		StatusScheduled,
		StatusPublished,
		StatusPopular,
		StatusUnderperforming,
	}
}

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReview, StatusWaiting, StatusScheduled,
		StatusPublished, StatusPopular, StatusUnderperforming:
		return true
	}
	return false
}

// StatusMeta carries the display metadata for a status chip.
type StatusMeta struct {
	Label  string `json:"label"`
	Chip   string `json:"chip"`
	Text   string `json:"text"`
	Border string `json:"border"`
}

// Meta returns the display metadata for the status. The switch is exhaustive
// over the closed enumeration so adding a status is a compile-visible change.
func (s Status) Meta() StatusMeta {
	switch s {
	case StatusDraft:
		return StatusMeta{Label: "Draft", Chip: "#f3f4f6", Text: "#6b7280", Border: "#d1d5db"}
	case StatusReview:
		return StatusMeta{Label: "In review", Chip: "#fef3c7", Text: "#d97706", Border: "#fcd34d"}
	case StatusWaiting:
		return StatusMeta{Label: "Waiting for schedule", Chip: "#dbeafe", Text: "#2563eb", Border: "#93c5fd"}
	case StatusScheduled:
		return StatusMeta{Label: "Scheduled", Chip: "#ede9fe", Text: "#7c3aed", Border: "#c4b5fd"}
	case StatusPublished:
		return StatusMeta{Label: "Published", Chip: "#d1fae5", Text: "#059669", Border: "#6ee7b7"}
	case StatusPopular:
		return StatusMeta{Label: "Popular", Chip: "#ffedd5", Text: "#ea580c", Border: "#fdba74"}
	case StatusUnderperforming:
		return StatusMeta{Label: "Underperforming", Chip: "#fee2e2", Text: "#dc2626", Border: "#fca5a5"}
	default:
		return StatusMeta{Label: string(s)}
	}
}

// Platform is the target publishing channel.
type Platform string

const (
	PlatformX    Platform = "x"
	PlatformNote Platform = "note"
	PlatformMail Platform = "mail"
)

// PostType is the typed taxonomy of content kinds. Each type belongs to
// exactly one platform.
type PostType string

const (
	PostTypeXPost          PostType = "x_post"
	PostTypeXQuote         PostType = "x_quote"
	PostTypeNoteArticle    PostType = "note_article"
	PostTypeNoteMembership PostType = "note_membership"
	PostTypeNewsletter     PostType = "newsletter"
	PostTypeNewsletterPaid PostType = "newsletter_paid"
)

// PostTypes returns every post type in display order.
func PostTypes() []PostType {
	return []PostType{
		PostTypeXPost,
		PostTypeXQuote,
		PostTypeNoteArticle,
		PostTypeNoteMembership,
		PostTypeNewsletter,
		PostTypeNewsletterPaid,
	}
}

func (t PostType) Valid() bool {
	switch t {
	case PostTypeXPost, PostTypeXQuote, PostTypeNoteArticle,
		PostTypeNoteMembership, PostTypeNewsletter, PostTypeNewsletterPaid:
		return true
	}
	return false
}

// Platform returns the publishing channel the post type belongs to.
func (t PostType) Platform() Platform {
	switch t {
	case PostTypeXPost, PostTypeXQuote:
		return PlatformX
	case PostTypeNoteArticle, PostTypeNoteMembership:
		return PlatformNote
	case PostTypeNewsletter, PostTypeNewsletterPaid:
		return PlatformMail
	default:
		return PlatformX
	}
}

// PostTypeMeta carries the display metadata for a post type badge.
type PostTypeMeta struct {
	Label  string `json:"label"`
	Icon   string `json:"icon"`
	Color  string `json:"color"`
	Bg     string `json:"bg"`
	Border string `json:"border"`
}

func (t PostType) Meta() PostTypeMeta {
	switch t {
	case PostTypeXPost:
		return PostTypeMeta{Label: "X post", Icon: "X", Color: "#1d9bf0", Bg: "#e8f5fe", Border: "#93d3fc"}
	case PostTypeXQuote:
		return PostTypeMeta{Label: "X quote", Icon: "X", Color: "#1d9bf0", Bg: "#e8f5fe", Border: "#93d3fc"}
	case PostTypeNoteArticle:
		return PostTypeMeta{Label: "note article", Icon: "n", Color: "#3ea8ff", Bg: "#e8f4ff", Border: "#93c9fc"}
	case PostTypeNoteMembership:
		return PostTypeMeta{Label: "note membership", Icon: "n", Color: "#3ea8ff", Bg: "#e8f4ff", Border: "#93c9fc"}
	case PostTypeNewsletter:
		return PostTypeMeta{Label: "Newsletter", Icon: "M", Color: "#9333ea", Bg: "#f3e8ff", Border: "#c4b5fd"}
	case PostTypeNewsletterPaid:
		return PostTypeMeta{Label: "Paid newsletter", Icon: "M", Color: "#9333ea", Bg: "#f3e8ff", Border: "#c4b5fd"}
	default:
		return PostTypeMeta{Label: string(t)}
	}
}

// RepeatRule is accepted on repost and recorded as a label. Nothing
// materializes future recurrences from it.
type RepeatRule string

const (
	RepeatNone     RepeatRule = "none"
	RepeatWeekly   RepeatRule = "weekly"
	RepeatBiweekly RepeatRule = "biweekly"
	RepeatMonthly  RepeatRule = "monthly"
)

func (r RepeatRule) Valid() bool {
	switch r {
	case RepeatNone, RepeatWeekly, RepeatBiweekly, RepeatMonthly:
		return true
	}
	return false
}

// Account identifies one client brand.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Handle    string    `json:"handle"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountPatch is a partial account update. Nil fields are left unchanged.
type AccountPatch struct {
	Name   *string `json:"name,omitempty"`
	Handle *string `json:"handle,omitempty"`
	Color  *string `json:"color,omitempty"`
}

// Fields returns the patch as column name -> value for the remote store.
func (p AccountPatch) Fields() map[string]any {
	fields := make(map[string]any)
	if p.Name != nil {
		fields["name"] = *p.Name
	}
	if p.Handle != nil {
		fields["handle"] = *p.Handle
	}
	if p.Color != nil {
		fields["color"] = *p.Color
	}
	return fields
}

// Comment is a feedback entry appended by a client or admin viewer. Older
// rows stored comments as bare strings, so decoding accepts both forms.
type Comment struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

func (c *Comment) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.At = time.Time{}
		return nil
	}

	type comment Comment
	var v comment
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = Comment(v)
	return nil
}

// HistoryEntry is an append-only audit record. Entries are never edited
// or removed.
type HistoryEntry struct {
	At   time.Time `json:"at"`
	Note string    `json:"note"`
}

// Post is one scheduled content item, owned by exactly one account.
type Post struct {
	ID        int64          `json:"id"`
	AccountID string         `json:"account_id"`
	Title     string         `json:"title"`
	Status    Status         `json:"status"`
	PostType  PostType       `json:"post_type"`
	Datetime  Datetime       `json:"datetime"`
	Threads   []string       `json:"threads"`
	Body      string         `json:"body,omitempty"`
	Memo      string         `json:"memo,omitempty"`
	MemoLinks []string       `json:"memo_links,omitempty"`
	Comments  []Comment      `json:"comments"`
	History   []HistoryEntry `json:"history"`
}

// NewPostID derives a fresh post id from the current wall clock. IDs are
// millisecond timestamps, unique across the whole collection.
func NewPostID() int64 {
	return time.Now().UnixMilli()
}

// Validation errors surfaced before any remote call is attempted.
var (
	ErrEmptyTitle      = errors.New("post title must not be empty")
	ErrInvalidDatetime = errors.New("post datetime is not a valid local date-time")
	ErrNoThreads       = errors.New("post must have at least one thread segment")
	ErrInvalidStatus   = errors.New("unknown post status")
	ErrInvalidPostType = errors.New("unknown post type")
	ErrInvalidMemoLink = errors.New("memo link is not a valid URL")
	ErrLastThread      = errors.New("the last thread segment cannot be removed")
	ErrLastAccount     = errors.New("the last remaining account cannot be deleted")
	ErrUnknownPost     = errors.New("no post with that id")
	ErrUnknownAccount  = errors.New("no account with that id")
)

// Validate checks the local invariants a post must satisfy before a save is
// sent to the remote store.
func (p *Post) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return ErrEmptyTitle
	}
	if !p.Datetime.Valid() {
		return ErrInvalidDatetime
	}
	if len(p.Threads) == 0 {
		return ErrNoThreads
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}
	if !p.PostType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPostType, p.PostType)
	}
	for _, link := range p.MemoLinks {
		if !ValidMemoLink(link) {
			return fmt.Errorf("%w: %q", ErrInvalidMemoLink, link)
		}
	}
	return nil
}

// ValidMemoLink reports whether s is URL-shaped enough to be accepted into
// a post's memo links.
func ValidMemoLink(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// RemoveThreadSegment deletes the i-th thread segment in place. Removing the
// last remaining segment is rejected.
func (p *Post) RemoveThreadSegment(i int) error {
	if len(p.Threads) <= 1 {
		return ErrLastThread
	}
	if i < 0 || i >= len(p.Threads) {
		return fmt.Errorf("thread segment index %d out of range", i)
	}
	p.Threads = append(p.Threads[:i], p.Threads[i+1:]...)
	return nil
}

// Clone returns a deep copy so preview copies never alias collection state.
func (p Post) Clone() Post {
	out := p
	out.Threads = append([]string(nil), p.Threads...)
	out.MemoLinks = append([]string(nil), p.MemoLinks...)
	out.Comments = append([]Comment(nil), p.Comments...)
	out.History = append([]HistoryEntry(nil), p.History...)
	return out
}
