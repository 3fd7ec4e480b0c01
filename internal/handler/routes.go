package handler

import (
	"net/http"

	"snapfeed/internal/service"
)

// RegisterRoutes sets up all HTTP routes on the given mux. The credential
// endpoints sit behind the rate limiter; everything touching a specific
// user's data sits behind RequireAuth.
func RegisterRoutes(mux *http.ServeMux, auth *service.AuthService, users *service.UserService, posts *service.PostService, images *service.ImageProcessor, limiter *service.TokenBucket) {
	userHandler := NewUserHandler(auth, users, posts, images)
	postHandler := NewPostHandler(posts, images)

	authed := func(fn http.HandlerFunc) http.Handler {
		return RequireAuth(auth, fn)
	}

	mux.HandleFunc("GET /healthz", HandleHealthz)

	mux.Handle("POST /users", RateLimit(limiter, http.HandlerFunc(userHandler.HandleSignup)))
	mux.Handle("POST /users/login", RateLimit(limiter, http.HandlerFunc(userHandler.HandleLogin)))
	mux.Handle("POST /users/logout", authed(userHandler.HandleLogout))
	mux.Handle("POST /users/logoutAll", authed(userHandler.HandleLogoutAll))
	mux.Handle("GET /users/me", authed(userHandler.HandleMe))
	mux.Handle("PATCH /users/me", authed(userHandler.HandleUpdateMe))
	mux.Handle("DELETE /users/me", authed(userHandler.HandleDeleteMe))
	mux.Handle("POST /users/me/avatar", authed(userHandler.HandleUploadAvatar))
	mux.Handle("DELETE /users/me/avatar", authed(userHandler.HandleDeleteAvatar))
	mux.Handle("GET /users/{id}/avatar", authed(userHandler.HandleGetAvatar))
	mux.Handle("GET /users/{email}", authed(userHandler.HandleLookupByEmail))

	mux.HandleFunc("GET /posts", postHandler.HandleListAll)
	mux.Handle("POST /posts", authed(postHandler.HandleCreate))
	mux.Handle("GET /posts/top", authed(postHandler.HandleTop))
	mux.Handle("GET /posts/me", authed(postHandler.HandleMine))
	mux.Handle("GET /posts/{id}", authed(postHandler.HandleGet))
	mux.Handle("GET /posts/{id}/images/{index}", authed(postHandler.HandleGetImage))
	mux.Handle("POST /posts/{id}/images", authed(postHandler.HandleAddImages))
	mux.Handle("PATCH /posts/{id}", authed(postHandler.HandleUpdate))
	mux.Handle("DELETE /posts/{id}", authed(postHandler.HandleDelete))
	mux.Handle("DELETE /posts/{id}/{index}", authed(postHandler.HandleDeleteImage))
}
