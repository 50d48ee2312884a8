package api

import (
	"github.com/contentos/contentos-backend/internal/calendar"
)

// ErrorResponse is the flat error envelope returned by every handler.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CreateAccountRequest carries the optional fields for a new client account.
// Missing fields fall back to server-side defaults.
type CreateAccountRequest struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Color  string `json:"color"`
}

// PatchAccountRequest carries a partial account update. Nil fields are
// left untouched.
type PatchAccountRequest struct {
	Name   *string `json:"name"`
	Handle *string `json:"handle"`
	Color  *string `json:"color"`
}

// ChangeStatusRequest moves a post to a new workflow status.
type ChangeStatusRequest struct {
	Status calendar.Status `json:"status"`
}

// AddCommentRequest appends a comment to a post's thread.
type AddCommentRequest struct {
	Text string `json:"text"`
}

// RepostRequest schedules a rerun of an existing post.
type RepostRequest struct {
	Datetime   calendar.Datetime   `json:"datetime"`
	RepeatRule calendar.RepeatRule `json:"repeat_rule"`
}

// ShareLinkResponse holds the read-only calendar URL for a client account.
type ShareLinkResponse struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}

// SlotsResponse is the weekly calendar grid: the seven dates of the week,
// the visible hour range, and posts bucketed by "YYYY-MM-DD_HH" slot key.
type SlotsResponse struct {
	WeekDates []string                   `json:"week_dates"`
	Hours     []int                      `json:"hours"`
	Slots     map[string][]calendar.Post `json:"slots"`
}

// StatusMetaDTO describes one workflow status for UI rendering.
type StatusMetaDTO struct {
	ID     calendar.Status `json:"id"`
	Label  string          `json:"label"`
	Chip   string          `json:"chip"`
	Text   string          `json:"text"`
	Border string          `json:"border"`
}

// PostTypeMetaDTO describes one post type and the platform it publishes to.
type PostTypeMetaDTO struct {
	ID       calendar.PostType `json:"id"`
	Label    string            `json:"label"`
	Platform calendar.Platform `json:"platform"`
}

// MetaResponse bundles the static vocabularies a client needs to render
// the calendar: statuses, post types, and the visible hour range.
type MetaResponse struct {
	Statuses  []StatusMetaDTO   `json:"statuses"`
	PostTypes []PostTypeMetaDTO `json:"post_types"`
	Hours     []int             `json:"hours"`
}

// HealthResponse reports liveness or readiness of the service.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
