package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TokenRepository implements domain.TokenRepository using SQLite.
type TokenRepository struct {
	db *sql.DB
}

func (r *TokenRepository) Add(ctx context.Context, userID int64, token string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO auth_tokens (user_id, token, created_at) VALUES (?, ?, ?)",
		userID, token, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Exists(ctx context.Context, userID int64, token string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM auth_tokens WHERE user_id = ? AND token = ?",
		userID, token,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query token: %w", err)
	}
	return n > 0, nil
}

func (r *TokenRepository) Remove(ctx context.Context, userID int64, token string) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM auth_tokens WHERE user_id = ? AND token = ?",
		userID, token,
	)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (r *TokenRepository) RemoveAll(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM auth_tokens WHERE user_id = ?", userID,
	)
	if err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	return nil
}

func (r *TokenRepository) ListByUser(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT token FROM auth_tokens WHERE user_id = ? ORDER BY id", userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
