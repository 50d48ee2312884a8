package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the remote table service the controller writes through. Every
// operation is fallible and confirms explicitly; the controller never
// assumes success before the store does.
type Store interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	ListPosts(ctx context.Context, accountIDs []string) ([]Post, error)
	UpsertPost(ctx context.Context, post Post) error
	PatchPost(ctx context.Context, id int64, fields map[string]any) error
	DeletePost(ctx context.Context, id int64) error
	InsertAccount(ctx context.Context, account Account) error
	PatchAccount(ctx context.Context, id string, fields map[string]any) error
	DeleteAccount(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// Notifier receives the short-lived user-visible notifications the mutation
// boundary emits (the toast surface).
type Notifier interface {
	Notify(level, message string)
}

// NopNotifier discards notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(level, message string) {}

// Broadcaster fans mutation events out to connected calendar sessions.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// MutationRecorder counts mutation outcomes for metrics.
type MutationRecorder interface {
	RecordMutation(ctx context.Context, action string, success bool)
}

// Service is the single authoritative in-memory view of accounts and
// posts-by-account, plus every mutation entry point. All mutations are
// pessimistic: the remote store confirms first, then local state merges.
// There is no retry, no offline queue, and no optimistic rollback.
type Service struct {
	store    Store
	logger   *zap.SugaredLogger
	notifier Notifier
	events   Broadcaster
	mutation MutationRecorder

	mu       sync.Mutex
	accounts []Account
	posts    map[string][]Post
	activeID string
	preview  *Post
}

// Option configures optional service collaborators.
type Option func(*Service)

func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.events = b }
}

func WithMutationRecorder(m MutationRecorder) Option {
	return func(s *Service) { s.mutation = m }
}

func NewService(store Store, notifier Notifier, logger *zap.SugaredLogger, opts ...Option) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &Service{
		store:    store,
		logger:   logger,
		notifier: notifier,
		posts:    make(map[string][]Post),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches accounts and posts from the store. In client mode (non-empty
// clientAccountID) only that account's posts are fetched and the active
// selection is pinned for the session. If the store holds no accounts at all
// a default one is created, keeping the at-least-one-account invariant.
func (s *Service) Load(ctx context.Context, clientAccountID string) error {
	accounts, err := s.store.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}

	if len(accounts) == 0 {
		seed := defaultAccount()
		if err := s.store.InsertAccount(ctx, seed); err != nil {
			return fmt.Errorf("failed to seed initial account: %w", err)
		}
		s.logger.Infow("Seeded initial account", "account_id", seed.ID)
		accounts = []Account{seed}
	}

	activeID := clientAccountID
	if activeID == "" {
		activeID = accounts[0].ID
	} else if !containsAccount(accounts, activeID) {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, activeID)
	}

	targetIDs := make([]string, 0, len(accounts))
	if clientAccountID != "" {
		targetIDs = append(targetIDs, clientAccountID)
	} else {
		for _, a := range accounts {
			targetIDs = append(targetIDs, a.ID)
		}
	}

	posts, err := s.store.ListPosts(ctx, targetIDs)
	if err != nil {
		return fmt.Errorf("failed to load posts: %w", err)
	}

	grouped := make(map[string][]Post)
	for _, p := range posts {
		grouped[p.AccountID] = append(grouped[p.AccountID], p)
	}

	s.mu.Lock()
	s.accounts = accounts
	s.posts = grouped
	s.activeID = activeID
	s.preview = nil
	s.mu.Unlock()

	s.logger.Infow("Calendar state loaded",
		"accounts", len(accounts),
		"posts", len(posts),
		"active_account", activeID,
		"client_mode", clientAccountID != "",
	)
	return nil
}

// mutate is the single remote-then-local gate every mutation passes through.
// The remote call runs outside the state lock; the merge runs under it. On
// remote failure the merge never runs, an error notification naming the
// action is emitted, and prior local state is left intact.
func (s *Service) mutate(ctx context.Context, action string, remote func(context.Context) error, merge func()) error {
	if err := remote(ctx); err != nil {
		s.logger.Errorw("Mutation failed", "action", action, "error", err)
		s.notifier.Notify("error", action+" failed")
		if s.mutation != nil {
			s.mutation.RecordMutation(ctx, action, false)
		}
		return fmt.Errorf("%s failed: %w", action, err)
	}

	s.mu.Lock()
	merge()
	s.mu.Unlock()

	if s.mutation != nil {
		s.mutation.RecordMutation(ctx, action, true)
	}
	return nil
}

// SavePost validates the post, writes the full record to the store, and on
// success merges it into the per-account list (replace by id, else append).
// The saved copy becomes the open preview.
func (s *Service) SavePost(ctx context.Context, post Post) error {
	if err := post.Validate(); err != nil {
		return err
	}

	post.History = append(post.History, HistoryEntry{At: time.Now(), Note: "saved"})

	err := s.mutate(ctx, "save",
		func(ctx context.Context) error { return s.store.UpsertPost(ctx, post) },
		func() {
			list := s.posts[post.AccountID]
			replaced := false
			for i := range list {
				if list[i].ID == post.ID {
					list[i] = post
					replaced = true
					break
				}
			}
			if !replaced {
				list = append(list, post)
			}
			s.posts[post.AccountID] = list
			preview := post.Clone()
			s.preview = &preview
		},
	)
	if err != nil {
		return err
	}

	s.notifier.Notify("success", "saved")
	s.broadcast("post.saved", post)
	return nil
}

// DeletePost removes the post remotely then locally. A currently open
// preview of the same post is closed. Confirmation is the caller's job.
func (s *Service) DeletePost(ctx context.Context, id int64) error {
	post, ok := s.findPost(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPost, id)
	}

	err := s.mutate(ctx, "delete",
		func(ctx context.Context) error { return s.store.DeletePost(ctx, id) },
		func() {
			list := s.posts[post.AccountID]
			out := list[:0]
			for _, p := range list {
				if p.ID != id {
					out = append(out, p)
				}
			}
			s.posts[post.AccountID] = out
			if s.preview != nil && s.preview.ID == id {
				s.preview = nil
			}
		},
	)
	if err != nil {
		return err
	}

	s.notifier.Notify("success", "deleted")
	s.broadcast("post.deleted", map[string]int64{"id": id})
	return nil
}

// ChangeStatus patches only the status field remotely, then updates the
// matching local post. The preview holds a separate copy, not a live
// reference, so it is updated as well when it shows the same post.
func (s *Service) ChangeStatus(ctx context.Context, id int64, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	post, ok := s.findPost(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPost, id)
	}

	err := s.mutate(ctx, "update",
		func(ctx context.Context) error {
			return s.store.PatchPost(ctx, id, map[string]any{"status": status})
		},
		func() {
			list := s.posts[post.AccountID]
			for i := range list {
				if list[i].ID == id {
					list[i].Status = status
					break
				}
			}
			if s.preview != nil && s.preview.ID == id {
				s.preview.Status = status
			}
		},
	)
	if err != nil {
		return err
	}

	s.broadcast("status.changed", map[string]any{"id": id, "status": status})
	return nil
}

// AddComment appends to the post's comment list and writes the whole new
// list remotely; the store has no atomic array-append. Two sessions
// commenting at once can race and silently drop one entry — accepted, since
// posts carry no version token.
func (s *Service) AddComment(ctx context.Context, id int64, comment Comment) error {
	post, ok := s.findPost(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPost, id)
	}
	if comment.At.IsZero() {
		comment.At = time.Now()
	}

	comments := append(append([]Comment(nil), post.Comments...), comment)

	err := s.mutate(ctx, "comment",
		func(ctx context.Context) error {
			return s.store.PatchPost(ctx, id, map[string]any{"comments": comments})
		},
		func() {
			list := s.posts[post.AccountID]
			for i := range list {
				if list[i].ID == id {
					list[i].Comments = comments
					break
				}
			}
			if s.preview != nil && s.preview.ID == id {
				s.preview.Comments = comments
			}
		},
	)
	if err != nil {
		return err
	}

	s.broadcast("comment.added", map[string]any{"id": id, "comment": comment})
	return nil
}

// AddAccount creates a fresh client account in a single store write and
// makes it the active selection. Empty fields get placeholder values.
func (s *Service) AddAccount(ctx context.Context, name, handle, color string) (Account, error) {
	if name == "" {
		name = "New client"
	}
	if handle == "" {
		handle = "@handle"
	}
	if color == "" {
		color = "#6b7280"
	}
	account := Account{
		ID:        "acc_" + uuid.NewString(),
		Name:      name,
		Handle:    handle,
		Color:     color,
		CreatedAt: time.Now(),
	}

	err := s.mutate(ctx, "add",
		func(ctx context.Context) error { return s.store.InsertAccount(ctx, account) },
		func() {
			s.accounts = append(s.accounts, account)
			s.posts[account.ID] = nil
			s.activeID = account.ID
		},
	)
	if err != nil {
		return Account{}, err
	}

	s.broadcast("account.added", account)
	return account, nil
}

// UpdateAccount patches name/handle/color remotely then merges the changed
// fields into the local account.
func (s *Service) UpdateAccount(ctx context.Context, id string, patch AccountPatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}
	if _, ok := s.findAccount(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}

	err := s.mutate(ctx, "update",
		func(ctx context.Context) error { return s.store.PatchAccount(ctx, id, fields) },
		func() {
			for i := range s.accounts {
				if s.accounts[i].ID != id {
					continue
				}
				if patch.Name != nil {
					s.accounts[i].Name = *patch.Name
				}
				if patch.Handle != nil {
					s.accounts[i].Handle = *patch.Handle
				}
				if patch.Color != nil {
					s.accounts[i].Color = *patch.Color
				}
				break
			}
		},
	)
	if err != nil {
		return err
	}

	s.broadcast("account.updated", map[string]any{"id": id, "fields": fields})
	return nil
}

// DeleteAccount removes an account and its local posts. Deleting the last
// remaining account is rejected before any remote call; deleting the active
// account reassigns the selection to an arbitrary remaining one.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	if len(s.accounts) <= 1 {
		s.mu.Unlock()
		s.notifier.Notify("error", "the last account cannot be deleted")
		return ErrLastAccount
	}
	s.mu.Unlock()

	if _, ok := s.findAccount(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}

	err := s.mutate(ctx, "delete",
		func(ctx context.Context) error { return s.store.DeleteAccount(ctx, id) },
		func() {
			out := s.accounts[:0]
			for _, a := range s.accounts {
				if a.ID != id {
					out = append(out, a)
				}
			}
			s.accounts = out
			delete(s.posts, id)
			if s.activeID == id && len(s.accounts) > 0 {
				s.activeID = s.accounts[0].ID
			}
		},
	)
	if err != nil {
		return err
	}

	s.notifier.Notify("success", "deleted")
	s.broadcast("account.deleted", map[string]string{"id": id})
	return nil
}

// Repost builds a new post from an existing one's content: fresh id, draft
// status, empty comments, and a history entry recording provenance and the
// accepted repeat rule. The rule is a label only; nothing schedules future
// recurrences.
func (s *Service) Repost(ctx context.Context, originalID int64, datetime Datetime, rule RepeatRule) (Post, error) {
	original, ok := s.findPost(originalID)
	if !ok {
		return Post{}, fmt.Errorf("%w: %d", ErrUnknownPost, originalID)
	}
	if rule == "" {
		rule = RepeatNone
	}
	if !rule.Valid() {
		return Post{}, fmt.Errorf("unknown repeat rule %q", rule)
	}

	post := derivedPost(original)
	post.Datetime = datetime
	note := fmt.Sprintf("reposted from #%d", originalID)
	if rule != RepeatNone {
		note = fmt.Sprintf("%s (repeat: %s)", note, rule)
	}
	post.History = append(post.History, HistoryEntry{At: time.Now(), Note: note})

	if err := s.SavePost(ctx, post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// Duplicate is the repost variant fixed to exactly one day later, with the
// title visibly marked as a copy.
func (s *Service) Duplicate(ctx context.Context, originalID int64) (Post, error) {
	original, ok := s.findPost(originalID)
	if !ok {
		return Post{}, fmt.Errorf("%w: %d", ErrUnknownPost, originalID)
	}

	post := derivedPost(original)
	post.Title = "Copy of " + original.Title
	post.Datetime = original.Datetime.AddDays(1)
	post.History = append(post.History, HistoryEntry{
		At:   time.Now(),
		Note: fmt.Sprintf("duplicated from #%d", originalID),
	})

	if err := s.SavePost(ctx, post); err != nil {
		return Post{}, err
	}
	return post, nil
}

// derivedPost copies the content fields of original into a fresh draft with
// no comments and no inherited history beyond provenance the caller adds.
func derivedPost(original Post) Post {
	return Post{
		ID:        NewPostID(),
		AccountID: original.AccountID,
		Title:     original.Title,
		Status:    StatusDraft,
		PostType:  original.PostType,
		Datetime:  original.Datetime,
		Threads:   append([]string(nil), original.Threads...),
		Body:      original.Body,
		Memo:      original.Memo,
		MemoLinks: append([]string(nil), original.MemoLinks...),
		Comments:  []Comment{},
	}
}

// NewDraft builds an uncommitted post for the active account at the given
// slot time; callers hold it until an explicit SavePost.
func (s *Service) NewDraft(datetime Datetime) Post {
	s.mu.Lock()
	accountID := s.activeID
	s.mu.Unlock()

	if datetime == "" {
		datetime = Datetime(time.Now().Format(DateLayout) + "T07:00")
	}
	return Post{
		ID:        NewPostID(),
		AccountID: accountID,
		Title:     "",
		Status:    StatusDraft,
		PostType:  PostTypeXPost,
		Datetime:  datetime,
		Threads:   []string{""},
		Comments:  []Comment{},
	}
}

// Preview opens a detached copy of a post in the detail panel.
func (s *Service) Preview(id int64) (Post, error) {
	post, ok := s.findPost(id)
	if !ok {
		return Post{}, fmt.Errorf("%w: %d", ErrUnknownPost, id)
	}
	s.mu.Lock()
	detached := post.Clone()
	s.preview = &detached
	s.mu.Unlock()
	return detached, nil
}

// ClosePreview clears the open preview, if any.
func (s *Service) ClosePreview() {
	s.mu.Lock()
	s.preview = nil
	s.mu.Unlock()
}

// PreviewCopy returns the current preview copy, or false when none is open.
func (s *Service) PreviewCopy() (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.preview == nil {
		return Post{}, false
	}
	return s.preview.Clone(), true
}

// Accounts returns a copy of the account list in creation order.
func (s *Service) Accounts() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Account(nil), s.accounts...)
}

// Account returns the account with the given id.
func (s *Service) Account(id string) (Account, bool) {
	return s.findAccount(id)
}

// Posts returns a copy of the posts for one account.
func (s *Service) Posts(accountID string) []Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.posts[accountID]
	out := make([]Post, len(list))
	for i, p := range list {
		out[i] = p.Clone()
	}
	return out
}

// Post returns the post with the given id, searching every account.
func (s *Service) Post(id int64) (Post, bool) {
	return s.findPost(id)
}

// ActiveAccountID returns the currently selected account.
func (s *Service) ActiveAccountID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// SetActiveAccount switches the admin's account tab.
func (s *Service) SetActiveAccount(id string) error {
	if _, ok := s.findAccount(id); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, id)
	}
	s.mu.Lock()
	s.activeID = id
	s.preview = nil
	s.mu.Unlock()
	return nil
}

func (s *Service) findPost(id int64) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.posts {
		for _, p := range list {
			if p.ID == id {
				return p.Clone(), true
			}
		}
	}
	return Post{}, false
}

func (s *Service) findAccount(id string) (Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

func (s *Service) broadcast(event string, payload any) {
	if s.events != nil {
		s.events.Broadcast(event, payload)
	}
}

func containsAccount(accounts []Account, id string) bool {
	for _, a := range accounts {
		if a.ID == id {
			return true
		}
	}
	return false
}

func defaultAccount() Account {
	return Account{
		ID:        "acc_" + uuid.NewString(),
		Name:      "My brand",
		Handle:    "@handle",
		Color:     "#f59e0b",
		CreatedAt: time.Now(),
	}
}
