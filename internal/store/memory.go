package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/contentos/contentos-backend/internal/calendar"
)

// Memory is an in-process table store with the same contract as Postgres.
// It backs tests and DSN-less local development.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]calendar.Account
	posts    map[int64]calendar.Post
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]calendar.Account),
		posts:    make(map[int64]calendar.Post),
	}
}

var _ calendar.Store = (*Memory)(nil)

func (s *Memory) ListAccounts(ctx context.Context) ([]calendar.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]calendar.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		accounts = append(accounts, a)
	}
	sort.Slice(accounts, func(i, j int) bool {
		if accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].ID < accounts[j].ID
		}
		return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
	})
	return accounts, nil
}

func (s *Memory) ListPosts(ctx context.Context, accountIDs []string) ([]calendar.Post, error) {
	want := make(map[string]struct{}, len(accountIDs))
	for _, id := range accountIDs {
		want[id] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var posts []calendar.Post
	for _, p := range s.posts {
		if _, ok := want[p.AccountID]; ok {
			posts = append(posts, p.Clone())
		}
	}
	sort.Slice(posts, func(i, j int) bool { return posts[i].ID < posts[j].ID })
	return posts, nil
}

func (s *Memory) UpsertPost(ctx context.Context, post calendar.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = post.Clone()
	return nil
}

func (s *Memory) PatchPost(ctx context.Context, id int64, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[id]
	if !ok {
		return ErrNotFound
	}
	for column, value := range fields {
		if !postColumns[column] {
			return fmt.Errorf("column %q is not patchable", column)
		}
		switch column {
		case "status":
			status, ok := value.(calendar.Status)
			if !ok {
				return fmt.Errorf("status patch value has type %T", value)
			}
			post.Status = status
		case "comments":
			comments, ok := value.([]calendar.Comment)
			if !ok {
				return fmt.Errorf("comments patch value has type %T", value)
			}
			post.Comments = append([]calendar.Comment(nil), comments...)
		}
	}
	s.posts[id] = post
	return nil
}

func (s *Memory) DeletePost(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *Memory) InsertAccount(ctx context.Context, account calendar.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return fmt.Errorf("account %s already exists", account.ID)
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *Memory) PatchAccount(ctx context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	for column, value := range fields {
		if !accountColumns[column] {
			return fmt.Errorf("column %q is not patchable", column)
		}
		text, ok := value.(string)
		if !ok {
			return fmt.Errorf("%s patch value has type %T", column, value)
		}
		switch column {
		case "name":
			account.Name = text
		case "handle":
			account.Handle = text
		case "color":
			account.Color = text
		}
	}
	s.accounts[id] = account
	return nil
}

func (s *Memory) DeleteAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return ErrNotFound
	}
	delete(s.accounts, id)
	for postID, p := range s.posts {
		if p.AccountID == id {
			delete(s.posts, postID)
		}
	}
	return nil
}

func (s *Memory) Ping(ctx context.Context) error {
	return nil
}
