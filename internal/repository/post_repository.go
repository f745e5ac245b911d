package repository

import (
	"context"
	"errors"
	"fmt"

	"blogpulse/internal/domain"
	"blogpulse/pkg/database"
	apperrors "blogpulse/pkg/errors"

	"github.com/jackc/pgx/v5"
)

type PostgresPostRepository struct {
	db *database.PostgresDB
}

func NewPostRepository(db *database.PostgresDB) *PostgresPostRepository {
	return &PostgresPostRepository{db: db}
}

const postColumns = `id::text, author_id::text, title, slug, status, views, reads, likes, created_at`

func scanPost(row pgx.Row) (domain.PostSummary, error) {
	var p domain.PostSummary
	err := row.Scan(
		&p.ID,
		&p.AuthorID,
		&p.Title,
		&p.Slug,
		&p.Status,
		&p.Views,
		&p.Reads,
		&p.Likes,
		&p.CreatedAt,
	)
	return p, err
}

func collectPosts(rows pgx.Rows) ([]domain.PostSummary, error) {
	defer rows.Close()

	posts := make([]domain.PostSummary, 0)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// GetByID retrieves a single post
func (r *PostgresPostRepository) GetByID(ctx context.Context, id string) (*domain.PostSummary, error) {
	if !domain.ValidPostID(id) {
		return nil, apperrors.NewNotFoundError("post not found")
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	p, err := scanPost(r.db.GetReadPool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("post not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return &p, nil
}

// GetByIDs retrieves posts and returns them in the order of ids. IDs that
// cannot be post keys are skipped.
func (r *PostgresPostRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.PostSummary, error) {
	ids = validPostIDs(ids)
	if len(ids) == 0 {
		return []domain.PostSummary{}, nil
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE id = ANY($1::uuid[])`

	rows, err := r.db.GetReadPool().Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get posts: %w", err)
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}
	return orderByIDs(posts, ids), nil
}

// ListAuthorPostIDs returns all post IDs of an author
func (r *PostgresPostRepository) ListAuthorPostIDs(ctx context.Context, authorID string) ([]string, error) {
	query := `SELECT id::text FROM posts WHERE author_id = $1`

	rows, err := r.db.GetReadPool().Query(ctx, query, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list author posts: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post ids: %w", err)
	}
	return ids, nil
}

// TopByViews returns the author's most viewed posts
func (r *PostgresPostRepository) TopByViews(ctx context.Context, authorID string, limit int) ([]domain.PostSummary, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE author_id = $1
		ORDER BY views DESC, created_at DESC
		LIMIT $2
	`

	rows, err := r.db.GetReadPool().Query(ctx, query, authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top posts: %w", err)
	}
	return collectPosts(rows)
}

// AuthorTotals sums the lifetime counters of an author's posts
func (r *PostgresPostRepository) AuthorTotals(ctx context.Context, authorID string) (domain.AuthorTotals, error) {
	var t domain.AuthorTotals
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(p.views), 0),
			COALESCE(SUM(p.reads), 0),
			COALESCE(SUM(p.likes), 0),
			COALESCE(SUM(p.dislikes), 0),
			(SELECT COUNT(*) FROM comments c JOIN posts cp ON cp.id = c.post_id WHERE cp.author_id = $1)
		FROM posts p
		WHERE p.author_id = $1
	`

	err := r.db.GetReadPool().QueryRow(ctx, query, authorID).Scan(
		&t.Posts,
		&t.Views,
		&t.Reads,
		&t.Likes,
		&t.Dislikes,
		&t.Comments,
	)
	if err != nil {
		return domain.AuthorTotals{}, fmt.Errorf("failed to get author totals: %w", err)
	}
	return t, nil
}

// ListPopular is the relational trending source
func (r *PostgresPostRepository) ListPopular(ctx context.Context, limit int) ([]domain.PostSummary, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE status = 'published'
		ORDER BY views DESC, created_at DESC
		LIMIT $1
	`

	rows, err := r.db.GetReadPool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular posts: %w", err)
	}
	return collectPosts(rows)
}

// IncrementCounter adds one to a whitelisted counter column in a single
// statement
func (r *PostgresPostRepository) IncrementCounter(ctx context.Context, postID string, counter domain.PostCounter) (int64, error) {
	column, err := counterColumn(counter)
	if err != nil {
		return 0, err
	}
	if !domain.ValidPostID(postID) {
		return 0, apperrors.NewNotFoundError("post not found")
	}

	query := fmt.Sprintf(`UPDATE posts SET %[1]s = %[1]s + 1 WHERE id = $1 RETURNING %[1]s`, column)

	var value int64
	err = r.db.Pool.QueryRow(ctx, query, postID).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperrors.NewNotFoundError("post not found")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", column, err)
	}
	return value, nil
}

// counterColumn guards the column name interpolated into SQL
func counterColumn(c domain.PostCounter) (string, error) {
	switch c {
	case domain.CounterViews:
		return "views", nil
	case domain.CounterReads:
		return "reads", nil
	}
	return "", fmt.Errorf("unknown post counter %q", c)
}

func validPostIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if domain.ValidPostID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

func orderByIDs(posts []domain.PostSummary, ids []string) []domain.PostSummary {
	byID := make(map[string]domain.PostSummary, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	ordered := make([]domain.PostSummary, 0, len(posts))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	return ordered
}
