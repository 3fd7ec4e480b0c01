package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"snapfeed/internal/domain"
)

// PostRepository implements domain.PostRepository using SQLite.
//
// A post and its image rows are written in one transaction, so callers can
// assemble the whole candidate post in memory and commit it atomically;
// intermediate states are never visible in the store.
type PostRepository struct {
	db *sql.DB
}

const postColumns = "id, user_id, description, created_at, updated_at"

// sortColumns is the allow-list of fields callers may sort by.
var sortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"description": "description",
}

func (r *PostRepository) Create(ctx context.Context, post *domain.Post) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO posts (user_id, description, created_at, updated_at)
		 VALUES (?, ?, ?, ?)`,
		post.UserID, post.Description, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	if err := insertImages(ctx, tx, id, post.Images); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	post.ID = id
	post.CreatedAt = now
	post.UpdatedAt = now
	for i := range post.Images {
		post.Images[i].PostID = id
		post.Images[i].Position = i
	}
	return nil
}

func (r *PostRepository) GetByID(ctx context.Context, id int64) (*domain.Post, error) {
	return r.getWhere(ctx, "id = ?", id)
}

func (r *PostRepository) GetOwned(ctx context.Context, id, userID int64) (*domain.Post, error) {
	return r.getWhere(ctx, "id = ? AND user_id = ?", id, userID)
}

func (r *PostRepository) getWhere(ctx context.Context, where string, args ...any) (*domain.Post, error) {
	post := &domain.Post{}
	err := r.db.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM posts WHERE "+where, args...,
	).Scan(&post.ID, &post.UserID, &post.Description, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("query post: %w", err)
	}

	images, err := r.imagesFor(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	post.Images = images
	return post, nil
}

// Update rewrites the post row and replaces its entire image list in one
// transaction, mirroring a single whole-document save.
func (r *PostRepository) Update(ctx context.Context, post *domain.Post) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		"UPDATE posts SET description = ?, updated_at = ? WHERE id = ?",
		post.Description, now, post.ID,
	)
	if err != nil {
		return fmt.Errorf("update post: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM post_images WHERE post_id = ?", post.ID); err != nil {
		return fmt.Errorf("clear post images: %w", err)
	}

	if err := insertImages(ctx, tx, post.ID, post.Images); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	post.UpdatedAt = now
	for i := range post.Images {
		post.Images[i].PostID = post.ID
		post.Images[i].Position = i
	}
	return nil
}

func (r *PostRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *PostRepository) ListAll(ctx context.Context) ([]domain.Post, error) {
	return r.list(ctx, "SELECT "+postColumns+" FROM posts ORDER BY id")
}

func (r *PostRepository) ListByUser(ctx context.Context, userID int64, opts domain.ListOptions) ([]domain.Post, error) {
	query := "SELECT " + postColumns + " FROM posts WHERE user_id = ?"
	args := []any{userID}

	order := "id"
	if opts.SortField != "" {
		col, ok := sortColumns[opts.SortField]
		if !ok {
			return nil, fmt.Errorf("%w: unknown sort field %q", domain.ErrInvalidInput, opts.SortField)
		}
		order = col
		if opts.SortDir == domain.SortDesc {
			order += " DESC"
		}
	}
	query += " ORDER BY " + order

	// SQLite requires a LIMIT clause when OFFSET is present; -1 means no limit.
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Skip)

	return r.list(ctx, query, args...)
}

func (r *PostRepository) ListRecent(ctx context.Context, limit int) ([]domain.Post, error) {
	return r.list(ctx, "SELECT "+postColumns+" FROM posts ORDER BY id DESC LIMIT ?", limit)
}

func (r *PostRepository) list(ctx context.Context, query string, args ...any) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.UserID, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range posts {
		images, err := r.imagesFor(ctx, posts[i].ID)
		if err != nil {
			return nil, err
		}
		posts[i].Images = images
	}
	return posts, nil
}

func (r *PostRepository) imagesFor(ctx context.Context, postID int64) ([]domain.PostImage, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, post_id, position, data FROM post_images WHERE post_id = ? ORDER BY position",
		postID,
	)
	if err != nil {
		return nil, fmt.Errorf("query post images: %w", err)
	}
	defer rows.Close()

	var images []domain.PostImage
	for rows.Next() {
		var img domain.PostImage
		if err := rows.Scan(&img.ID, &img.PostID, &img.Position, &img.Data); err != nil {
			return nil, fmt.Errorf("scan post image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func insertImages(ctx context.Context, tx *sql.Tx, postID int64, images []domain.PostImage) error {
	for i, img := range images {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO post_images (post_id, position, data) VALUES (?, ?, ?)",
			postID, i, img.Data,
		); err != nil {
			return fmt.Errorf("insert post image: %w", err)
		}
	}
	return nil
}
