package service

import (
	"context"
	"fmt"
	"strings"

	"snapfeed/internal/domain"
)

const (
	// MaxImagesOnCreate caps the files accepted when creating a post.
	MaxImagesOnCreate = 10
	// MaxImagesOnAppend caps the files accepted per append request.
	MaxImagesOnAppend = 3
	// DefaultTopLimit is used when the top listing gets no usable limit.
	DefaultTopLimit = 10
)

// PostPatch describes an update to a post: an optional new description and
// an optional replacement image for the position given by Index.
type PostPatch struct {
	Description *string
	Index       *int
	Image       []byte
}

// PostService handles post CRUD and image list mutations. Every mutation
// assembles the full candidate post in memory and commits it with a single
// repository write, so a failure anywhere leaves the store untouched.
type PostService struct {
	posts domain.PostRepository
}

// NewPostService creates a new PostService.
func NewPostService(posts domain.PostRepository) *PostService {
	return &PostService{posts: posts}
}

// Create stores a new post owned by the user, with up to MaxImagesOnCreate
// already-processed image buffers.
func (s *PostService) Create(ctx context.Context, user *domain.User, description string, images [][]byte) (*domain.Post, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", domain.ErrInvalidInput)
	}
	if len(images) > MaxImagesOnCreate {
		return nil, fmt.Errorf("%w: at most %d images per post", domain.ErrInvalidInput, MaxImagesOnCreate)
	}

	post := &domain.Post{
		UserID:      user.ID,
		Description: description,
		Images:      toPostImages(images),
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// AddImages appends processed image buffers to a post the user owns.
func (s *PostService) AddImages(ctx context.Context, postID int64, user *domain.User, images [][]byte) (*domain.Post, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: no images provided", domain.ErrInvalidInput)
	}
	if len(images) > MaxImagesOnAppend {
		return nil, fmt.Errorf("%w: at most %d images per request", domain.ErrInvalidInput, MaxImagesOnAppend)
	}

	post, err := s.posts.GetOwned(ctx, postID, user.ID)
	if err != nil {
		return nil, err
	}

	post.Images = append(post.Images, toPostImages(images)...)

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

// Update applies a patch to a post the user owns. A replacement image is
// only accepted for an index within the current image list.
func (s *PostService) Update(ctx context.Context, postID int64, user *domain.User, patch PostPatch) (*domain.Post, error) {
	post, err := s.posts.GetOwned(ctx, postID, user.ID)
	if err != nil {
		return nil, err
	}

	if patch.Description != nil {
		description := strings.TrimSpace(*patch.Description)
		if description == "" {
			return nil, fmt.Errorf("%w: description is required", domain.ErrInvalidInput)
		}
		post.Description = description
	}

	if patch.Index != nil {
		i := *patch.Index
		if i < 0 || i >= len(post.Images) {
			return nil, domain.ErrIndexOutOfRange
		}
		if patch.Image == nil {
			return nil, fmt.Errorf("%w: no replacement image provided", domain.ErrInvalidInput)
		}
		post.Images[i] = domain.PostImage{Position: i, Data: patch.Image}
	}

	if err := s.posts.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

// DeleteImageAt removes the image at the given position from a post the
// user owns; later images shift down to keep positions contiguous.
func (s *PostService) DeleteImageAt(ctx context.Context, postID int64, user *domain.User, index int) error {
	post, err := s.posts.GetOwned(ctx, postID, user.ID)
	if err != nil {
		return err
	}

	if index < 0 || index >= len(post.Images) {
		return domain.ErrIndexOutOfRange
	}

	post.Images = append(post.Images[:index], post.Images[index+1:]...)

	if err := s.posts.Update(ctx, post); err != nil {
		return fmt.Errorf("update post: %w", err)
	}
	return nil
}

// Delete removes a post the user owns and returns it.
func (s *PostService) Delete(ctx context.Context, postID int64, user *domain.User) (*domain.Post, error) {
	post, err := s.posts.GetOwned(ctx, postID, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return nil, fmt.Errorf("delete post: %w", err)
	}
	return post, nil
}

// GetByID fetches any post by id.
func (s *PostService) GetByID(ctx context.Context, postID int64) (*domain.Post, error) {
	return s.posts.GetByID(ctx, postID)
}

// ImageAt returns the stored bytes of the image at the given position of
// any post.
func (s *PostService) ImageAt(ctx context.Context, postID int64, index int) ([]byte, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(post.Images) {
		return nil, domain.ErrIndexOutOfRange
	}
	return post.Images[index].Data, nil
}

// ListAll returns every post in the system, oldest first.
func (s *PostService) ListAll(ctx context.Context) ([]domain.Post, error) {
	return s.posts.ListAll(ctx)
}

// ListMine returns the user's own posts with pagination and sorting, then
// applies the optional case-sensitive description substring filter.
func (s *PostService) ListMine(ctx context.Context, user *domain.User, opts domain.ListOptions) ([]domain.Post, error) {
	posts, err := s.posts.ListByUser(ctx, user.ID, opts)
	if err != nil {
		return nil, err
	}

	if opts.Search == "" {
		return posts, nil
	}

	filtered := posts[:0]
	for _, p := range posts {
		if strings.Contains(p.Description, opts.Search) {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}

// ListTop returns the most recently created posts, newest first. A limit
// of zero or less falls back to DefaultTopLimit.
func (s *PostService) ListTop(ctx context.Context, limit int) ([]domain.Post, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	return s.posts.ListRecent(ctx, limit)
}

func toPostImages(buffers [][]byte) []domain.PostImage {
	images := make([]domain.PostImage, len(buffers))
	for i, b := range buffers {
		images[i] = domain.PostImage{Position: i, Data: b}
	}
	return images
}
