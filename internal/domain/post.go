package domain

import (
	"context"
	"time"
)

// Post is a user-created post with an ordered list of attached images.
type Post struct {
	ID          int64
	UserID      int64
	Description string
	Images      []PostImage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PostImage is one processed image attached to a post.
// Position is the 0-based index within the post's image list.
type PostImage struct {
	ID       int64
	PostID   int64
	Position int
	Data     []byte
}

// SortAsc and SortDesc are the accepted values for ListOptions.SortDir.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ListOptions controls pagination, ordering, and filtering of post listings.
// A zero Limit means no limit. Search filters by substring of the description.
type ListOptions struct {
	Limit     int
	Skip      int
	SortField string
	SortDir   string
	Search    string
}

// PostRepository defines persistence operations for posts.
// GetOwned conflates "does not exist" and "not owned by this user" into
// ErrNotFound so callers cannot probe other users' posts.
type PostRepository interface {
	Create(ctx context.Context, post *Post) error
	GetByID(ctx context.Context, id int64) (*Post, error)
	GetOwned(ctx context.Context, id, userID int64) (*Post, error)
	Update(ctx context.Context, post *Post) error
	Delete(ctx context.Context, id int64) error
	ListAll(ctx context.Context) ([]Post, error)
	ListByUser(ctx context.Context, userID int64, opts ListOptions) ([]Post, error)
	ListRecent(ctx context.Context, limit int) ([]Post, error)
}
