package handler

import (
	"time"

	"snapfeed/internal/domain"
)

// UserDTO is the JSON representation of a user. The password hash, session
// tokens, and avatar bytes are never serialized.
type UserDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Age       int    `json:"age"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toUserDTO(u *domain.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Age:       u.Age,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}

// PostImageDTO describes one attached image by its position; the bytes
// themselves stay out of JSON bodies.
type PostImageDTO struct {
	Index int   `json:"index"`
	Size  int64 `json:"size"`
}

// PostDTO is the JSON representation of a post.
type PostDTO struct {
	ID          int64          `json:"id"`
	Creator     int64          `json:"creator"`
	Description string         `json:"description"`
	Images      []PostImageDTO `json:"images"`
	CreatedAt   string         `json:"createdAt"`
	UpdatedAt   string         `json:"updatedAt"`
}

func toPostDTO(p *domain.Post) PostDTO {
	images := make([]PostImageDTO, len(p.Images))
	for i, img := range p.Images {
		images[i] = PostImageDTO{Index: img.Position, Size: int64(len(img.Data))}
	}
	return PostDTO{
		ID:          p.ID,
		Creator:     p.UserID,
		Description: p.Description,
		Images:      images,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

func toPostDTOs(posts []domain.Post) []PostDTO {
	dtos := make([]PostDTO, len(posts))
	for i := range posts {
		dtos[i] = toPostDTO(&posts[i])
	}
	return dtos
}
