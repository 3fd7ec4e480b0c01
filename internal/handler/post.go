package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"snapfeed/internal/domain"
	"snapfeed/internal/service"
)

// PostHandler handles post CRUD and image attachment requests.
type PostHandler struct {
	posts  *service.PostService
	images *service.ImageProcessor
}

// NewPostHandler creates a new PostHandler.
func NewPostHandler(posts *service.PostService, images *service.ImageProcessor) *PostHandler {
	return &PostHandler{posts: posts, images: images}
}

// HandleListAll returns every post in the system. Deliberately public:
// the feed is the one unauthenticated read surface.
// GET /posts
func (h *PostHandler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	posts, err := h.posts.ListAll(r.Context())
	if err != nil {
		slog.Error("list posts", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPostDTOs(posts))
}

// HandleCreate creates a post with up to 10 images.
// POST /posts, multipart: "description" value + "upload" files
func (h *PostHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	uploads, err := readUploads(r, "upload", service.MaxImagesOnCreate)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buffers, err := h.images.ProcessAll(uploads)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := h.posts.Create(r.Context(), user, r.FormValue("description"), buffers)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("create post", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusCreated, toPostDTO(post))
}

// HandleAddImages appends up to 3 images to an owned post.
// POST /posts/{id}/images, multipart field "images"
func (h *PostHandler) HandleAddImages(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	postID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	uploads, err := readUploads(r, "images", service.MaxImagesOnAppend)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buffers, err := h.images.ProcessAll(uploads)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.posts.AddImages(r.Context(), postID, user, buffers); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("add images", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleUpdate updates the description and/or replaces one image by index.
// PATCH /posts/{id}?index=N, multipart: optional "description" value +
// optional single "upload" file
func (h *PostHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	postID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	uploads, err := readUploads(r, "upload", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var patch service.PostPatch
	if desc := r.FormValue("description"); desc != "" {
		patch.Description = &desc
	}

	if raw := r.URL.Query().Get("index"); raw != "" {
		index, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid index.")
			return
		}
		patch.Index = &index

		// A missing replacement file is reported by the service after the
		// bounds check, so an out-of-range index stays a 404.
		if len(uploads) > 0 {
			buf, err := h.images.Process(uploads[0].Filename, uploads[0].Data)
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			patch.Image = buf
		}
	}

	post, err := h.posts.Update(r.Context(), postID, user, patch)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrIndexOutOfRange):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			slog.Error("update post", "error", err)
			writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		}
		return
	}

	writeJSON(w, http.StatusOK, toPostDTO(post))
}

// HandleDeleteImage removes one image by positional index.
// DELETE /posts/{id}/{index}
func (h *PostHandler) HandleDeleteImage(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	postID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if err := h.posts.DeleteImageAt(r.Context(), postID, user, index); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrIndexOutOfRange) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("delete post image", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleGetImage serves one post image as PNG bytes.
// GET /posts/{id}/images/{index}
func (h *PostHandler) HandleGetImage(w http.ResponseWriter, r *http.Request) {
	postID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	data, err := h.posts.ImageAt(r.Context(), postID, index)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrIndexOutOfRange) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("get post image", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// HandleTop returns the most recently created posts, newest first.
// GET /posts/top?limit=N
func (h *PostHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	posts, err := h.posts.ListTop(r.Context(), limit)
	if err != nil {
		slog.Error("list top posts", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPostDTOs(posts))
}

// HandleMine returns the caller's posts with pagination, sorting, and an
// optional description search.
// GET /posts/me?limit=N&skip=N&sortBy=field:dir&search=term
func (h *PostHandler) HandleMine(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	opts := domain.ListOptions{Search: r.URL.Query().Get("search")}
	opts.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	opts.Skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))

	if sortBy := r.URL.Query().Get("sortBy"); sortBy != "" {
		field, dir, _ := strings.Cut(sortBy, ":")
		opts.SortField = field
		if dir == domain.SortDesc {
			opts.SortDir = domain.SortDesc
		} else {
			opts.SortDir = domain.SortAsc
		}
	}

	posts, err := h.posts.ListMine(r.Context(), user, opts)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("list my posts", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, toPostDTOs(posts))
}

// HandleGet fetches one post by id.
// GET /posts/{id}
func (h *PostHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	postID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	post, err := h.posts.GetByID(r.Context(), postID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("get post", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toPostDTO(post))
}

// HandleDelete deletes an owned post and returns it.
// DELETE /posts/{id}
func (h *PostHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	postID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	post, err := h.posts.Delete(r.Context(), postID, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("delete post", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toPostDTO(post))
}
