package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"snapfeed/internal/domain"
	"snapfeed/internal/service"
)

// UserHandler handles signup, sessions, profile, and avatar requests.
type UserHandler struct {
	auth   *service.AuthService
	users  *service.UserService
	posts  *service.PostService
	images *service.ImageProcessor
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(auth *service.AuthService, users *service.UserService, posts *service.PostService, images *service.ImageProcessor) *UserHandler {
	return &UserHandler{auth: auth, users: users, posts: posts, images: images}
}

// HandleSignup creates a new account and an initial session token.
// POST /users
// Request:  {"name":"...","email":"...","password":"...","age":0}
// Response: 201 {"user": {...}, "token": "..."}
func (h *UserHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Age      int    `json:"age"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	user, token, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password, req.Age)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("register user", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  toUserDTO(user),
		"token": token,
	})
}

// HandleLogin verifies credentials and issues a new session token.
// POST /users/login
// Response: 200 {"user": {...}, "token": "..."}
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	user, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeError(w, http.StatusBadRequest, "Invalid email or password.")
			return
		}
		slog.Error("login user", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  toUserDTO(user),
		"token": token,
	})
}

// HandleLogout revokes the session token the request authenticated with.
// POST /users/logout
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	token := TokenFromContext(r.Context())

	if err := h.auth.Logout(r.Context(), user, token); err != nil {
		slog.Error("logout", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HandleLogoutAll revokes every session token of the user.
// POST /users/logoutAll
func (h *UserHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	if err := h.auth.LogoutAll(r.Context(), user); err != nil {
		slog.Error("logout all", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("All sessions expired"))
}

// HandleMe returns the authenticated user's profile.
// GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// HandleUpdateMe applies a profile patch restricted to the allow-list
// {name, age, email, password}. Any other key fails the whole request.
// PATCH /users/me
func (h *UserHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	var patch map[string]any
	if err := readJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user, patch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidField) {
			writeError(w, http.StatusBadRequest, "Invalid updates.")
			return
		}
		if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrDuplicateEmail) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("update profile", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(updated))
}

// HandleDeleteMe deletes the account; posts and sessions cascade with it.
// DELETE /users/me
func (h *UserHandler) HandleDeleteMe(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	if err := h.users.Delete(r.Context(), user); err != nil {
		slog.Error("delete account", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(user))
}

// HandleUploadAvatar stores a processed avatar image for the user.
// POST /users/me/avatar, multipart field "avatar"
func (h *UserHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	upload, err := readSingleUpload(r, "avatar")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buf, err := h.images.Process(upload.Filename, upload.Data)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("process avatar", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred.")
		return
	}

	if err := h.users.SetAvatar(r.Context(), user, buf); err != nil {
		slog.Error("set avatar", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleDeleteAvatar clears the user's avatar.
// DELETE /users/me/avatar
func (h *UserHandler) HandleDeleteAvatar(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())

	if err := h.users.ClearAvatar(r.Context(), user); err != nil {
		slog.Error("clear avatar", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// HandleGetAvatar serves any user's avatar as PNG bytes.
// GET /users/{id}/avatar
func (h *UserHandler) HandleGetAvatar(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	data, err := h.users.GetAvatar(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("get avatar", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// HandleLookupByEmail finds a user by email and returns them together with
// the caller's own posts.
// GET /users/{email}
func (h *UserHandler) HandleLookupByEmail(w http.ResponseWriter, r *http.Request) {
	caller := UserFromContext(r.Context())

	found, err := h.users.LookupByEmail(r.Context(), r.PathValue("email"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		slog.Error("lookup user", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	posts, err := h.posts.ListMine(r.Context(), caller, domain.ListOptions{})
	if err != nil {
		slog.Error("list caller posts", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":  toUserDTO(found),
		"posts": toPostDTOs(posts),
	})
}
