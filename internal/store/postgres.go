package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/contentos/contentos-backend/internal/calendar"
	"go.uber.org/zap"
)

// Postgres persists accounts and posts in PostgreSQL. Post sequences
// (threads, memo links, comments, history) live in jsonb columns; absent or
// null values read back as empty sequences.
type Postgres struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

func NewPostgres(db *sql.DB, logger *zap.SugaredLogger) *Postgres {
	return &Postgres{
		db:     db,
		logger: logger,
	}
}

var _ calendar.Store = (*Postgres)(nil)

func (s *Postgres) ListAccounts(ctx context.Context) ([]calendar.Account, error) {
	query := `
		SELECT id, name, handle, color, created_at
		FROM accounts
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []calendar.Account
	for rows.Next() {
		var a calendar.Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Handle, &a.Color, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return accounts, nil
}

func (s *Postgres) ListPosts(ctx context.Context, accountIDs []string) ([]calendar.Post, error) {
	if len(accountIDs) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(accountIDs))
	args := make([]any, len(accountIDs))
	for i, id := range accountIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
		SELECT id, account_id, title, status, post_type, datetime,
		       threads, body, memo, memo_links, comments, history
		FROM posts
		WHERE account_id IN (%s)
	`, strings.Join(placeholders, ", "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []calendar.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return posts, nil
}

func scanPost(rows *sql.Rows) (calendar.Post, error) {
	var p calendar.Post
	var threadsJSON, memoLinksJSON, commentsJSON, historyJSON []byte

	err := rows.Scan(
		&p.ID,
		&p.AccountID,
		&p.Title,
		&p.Status,
		&p.PostType,
		&p.Datetime,
		&threadsJSON,
		&p.Body,
		&p.Memo,
		&memoLinksJSON,
		&commentsJSON,
		&historyJSON,
	)
	if err != nil {
		return calendar.Post{}, fmt.Errorf("failed to scan post: %w", err)
	}

	if err := unmarshalSeq(threadsJSON, &p.Threads); err != nil {
		return calendar.Post{}, fmt.Errorf("failed to unmarshal threads: %w", err)
	}
	if err := unmarshalSeq(memoLinksJSON, &p.MemoLinks); err != nil {
		return calendar.Post{}, fmt.Errorf("failed to unmarshal memo links: %w", err)
	}
	if err := unmarshalSeq(commentsJSON, &p.Comments); err != nil {
		return calendar.Post{}, fmt.Errorf("failed to unmarshal comments: %w", err)
	}
	if err := unmarshalSeq(historyJSON, &p.History); err != nil {
		return calendar.Post{}, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	if p.Threads == nil {
		p.Threads = []string{}
	}
	if p.Comments == nil {
		p.Comments = []calendar.Comment{}
	}
	return p, nil
}

func unmarshalSeq(data []byte, dest any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func (s *Postgres) UpsertPost(ctx context.Context, post calendar.Post) error {
	threadsJSON, err := json.Marshal(post.Threads)
	if err != nil {
		return fmt.Errorf("failed to marshal threads: %w", err)
	}
	memoLinksJSON, err := json.Marshal(post.MemoLinks)
	if err != nil {
		return fmt.Errorf("failed to marshal memo links: %w", err)
	}
	commentsJSON, err := json.Marshal(post.Comments)
	if err != nil {
		return fmt.Errorf("failed to marshal comments: %w", err)
	}
	historyJSON, err := json.Marshal(post.History)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	query := `
		INSERT INTO posts (id, account_id, title, status, post_type, datetime,
		                   threads, body, memo, memo_links, comments, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			post_type = EXCLUDED.post_type,
			datetime = EXCLUDED.datetime,
			threads = EXCLUDED.threads,
			body = EXCLUDED.body,
			memo = EXCLUDED.memo,
			memo_links = EXCLUDED.memo_links,
			comments = EXCLUDED.comments,
			history = EXCLUDED.history
	`

	_, err = s.db.ExecContext(ctx, query,
		post.ID,
		post.AccountID,
		post.Title,
		post.Status,
		post.PostType,
		post.Datetime,
		threadsJSON,
		post.Body,
		post.Memo,
		memoLinksJSON,
		commentsJSON,
		historyJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert post: %w", err)
	}

	return nil
}

func (s *Postgres) PatchPost(ctx context.Context, id int64, fields map[string]any) error {
	sets, args, err := buildPatch(fields, postColumns)
	if err != nil {
		return err
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE posts SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch post: %w", err)
	}
	return requireAffected(res)
}

func (s *Postgres) DeletePost(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	return requireAffected(res)
}

func (s *Postgres) InsertAccount(ctx context.Context, account calendar.Account) error {
	query := `
		INSERT INTO accounts (id, name, handle, color, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		account.ID,
		account.Name,
		account.Handle,
		account.Color,
		account.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

func (s *Postgres) PatchAccount(ctx context.Context, id string, fields map[string]any) error {
	sets, args, err := buildPatch(fields, accountColumns)
	if err != nil {
		return err
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE accounts SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to patch account: %w", err)
	}
	return requireAffected(res)
}

func (s *Postgres) DeleteAccount(ctx context.Context, id string) error {
	// posts cascade via the account_id foreign key
	res, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return requireAffected(res)
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// buildPatch turns a whitelisted field map into SET clauses. Slice and
// struct values are bound as jsonb.
func buildPatch(fields map[string]any, allowed map[string]bool) ([]string, []any, error) {
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("empty patch")
	}

	var sets []string
	var args []any
	i := 1
	for column, value := range fields {
		if !allowed[column] {
			return nil, nil, fmt.Errorf("column %q is not patchable", column)
		}
		switch column {
		case "comments":
			data, err := json.Marshal(value)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to marshal %s: %w", column, err)
			}
			args = append(args, data)
		default:
			args = append(args, value)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", column, i))
		i++
	}
	return sets, args, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
