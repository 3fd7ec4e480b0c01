package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"snapfeed/internal/handler"
	"snapfeed/internal/service"
)

func newTestServer(t *testing.T) *http.ServeMux {
	t.Helper()
	auth, users, posts, _ := newTestServices(t)

	// Large capacity so the limiter never interferes with test flows.
	limiter := service.NewTokenBucket(1000, 1000)
	t.Cleanup(limiter.Close)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux, auth, users, posts, service.NewImageProcessor(), limiter)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func signup(t *testing.T, mux *http.ServeMux, name, email string) string {
	t.Helper()
	w := doJSON(t, mux, http.MethodPost, "/users", "", map[string]any{
		"name":     name,
		"email":    email,
		"password": "secret123",
		"age":      30,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("signup: expected a token")
	}
	return token
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.RGBA{R: uint8(4 * x), G: uint8(5 * y), B: 60, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, filenames []string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, name := range filenames {
		fw, err := mw.CreateFormFile(fileField, name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(file); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	mw.Close()
	return buf, mw.FormDataContentType()
}

func doMultipart(t *testing.T, mux *http.ServeMux, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestSignupValidation(t *testing.T) {
	mux := newTestServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"malformed email", map[string]any{"name": "A", "email": "nope", "password": "secret123"}},
		{"short password", map[string]any{"name": "A", "email": "a@b.com", "password": "abc"}},
		{"negative age", map[string]any{"name": "A", "email": "a@b.com", "password": "secret123", "age": -2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, mux, http.MethodPost, "/users", "", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestLoginAndLogout(t *testing.T) {
	mux := newTestServer(t)
	signup(t, mux, "Sess", "sess@example.com")

	w := doJSON(t, mux, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "sess@example.com",
		"password": "secret123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	token, _ := decodeBody(t, w)["token"].(string)

	// Wrong password gets 400 and no token.
	w = doJSON(t, mux, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "sess@example.com",
		"password": "wrong-pass",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad login: expected 400, got %d", w.Code)
	}

	// The session token works until logout.
	if w := doJSON(t, mux, http.MethodGet, "/users/me", token, nil); w.Code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodPost, "/users/logout", token, nil); w.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, "/users/me", token, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401, got %d", w.Code)
	}
}

func TestLogoutAll(t *testing.T) {
	mux := newTestServer(t)
	t1 := signup(t, mux, "Multi", "multi@example.com")

	w := doJSON(t, mux, http.MethodPost, "/users/login", "", map[string]any{
		"email":    "multi@example.com",
		"password": "secret123",
	})
	t2, _ := decodeBody(t, w)["token"].(string)

	w = doJSON(t, mux, http.MethodPost, "/users/logoutAll", t1, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logoutAll: expected 200, got %d", w.Code)
	}
	if w.Body.String() != "All sessions expired" {
		t.Fatalf("unexpected body %q", w.Body.String())
	}

	for _, token := range []string{t1, t2} {
		if w := doJSON(t, mux, http.MethodGet, "/users/me", token, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 after logoutAll, got %d", w.Code)
		}
	}
}

func TestAuthGatedRoutesRequireToken(t *testing.T) {
	mux := newTestServer(t)

	gated := []struct{ method, path string }{
		{http.MethodGet, "/users/me"},
		{http.MethodPatch, "/users/me"},
		{http.MethodDelete, "/users/me"},
		{http.MethodPost, "/users/logout"},
		{http.MethodPost, "/posts"},
		{http.MethodGet, "/posts/me"},
		{http.MethodGet, "/posts/top"},
		{http.MethodGet, "/posts/1"},
		{http.MethodDelete, "/posts/1"},
	}

	for _, rt := range gated {
		w := doJSON(t, mux, rt.method, rt.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", rt.method, rt.path, w.Code)
		}
	}

	// The public feed needs no token.
	if w := doJSON(t, mux, http.MethodGet, "/posts", "", nil); w.Code != http.StatusOK {
		t.Fatalf("GET /posts: expected 200, got %d", w.Code)
	}
}

func TestUpdateProfile(t *testing.T) {
	mux := newTestServer(t)
	token := signup(t, mux, "Patch Me", "patch@example.com")

	// Unknown key fails the whole patch.
	w := doJSON(t, mux, http.MethodPatch, "/users/me", token, map[string]any{
		"name":     "Changed",
		"location": "nowhere",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown key, got %d", w.Code)
	}

	w = doJSON(t, mux, http.MethodGet, "/users/me", token, nil)
	if got := decodeBody(t, w)["name"]; got != "Patch Me" {
		t.Fatalf("user modified despite invalid patch: %v", got)
	}

	// Valid patch applies.
	w = doJSON(t, mux, http.MethodPatch, "/users/me", token, map[string]any{
		"name": "Patched",
		"age":  31,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["name"] != "Patched" || body["age"] != float64(31) {
		t.Fatalf("patch not applied: %v", body)
	}
}

func TestAvatarLifecycle(t *testing.T) {
	mux := newTestServer(t)
	token := signup(t, mux, "Ava", "ava@example.com")

	w := doJSON(t, mux, http.MethodGet, "/users/me", token, nil)
	userID := int64(decodeBody(t, w)["id"].(float64))
	avatarPath := fmt.Sprintf("/users/%d/avatar", userID)

	// Disallowed extension is rejected before any processing.
	body, ct := multipartBody(t, nil, "avatar", []string{"pic.gif"}, testPNG(t))
	if w := doMultipart(t, mux, http.MethodPost, "/users/me/avatar", token, body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("gif avatar: expected 400, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, avatarPath, token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, nothing should have been stored, got %d", w.Code)
	}

	body, ct = multipartBody(t, nil, "avatar", []string{"pic.png"}, testPNG(t))
	if w := doMultipart(t, mux, http.MethodPost, "/users/me/avatar", token, body, ct); w.Code != http.StatusOK {
		t.Fatalf("avatar upload: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, mux, http.MethodGet, avatarPath, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get avatar: expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	if _, err := png.Decode(bytes.NewReader(w.Body.Bytes())); err != nil {
		t.Fatalf("avatar is not valid PNG: %v", err)
	}

	if w := doJSON(t, mux, http.MethodDelete, "/users/me/avatar", token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete avatar: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, avatarPath, token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestPostLifecycle(t *testing.T) {
	mux := newTestServer(t)
	token := signup(t, mux, "Poster", "poster@example.com")

	// Create a post with one image.
	body, ct := multipartBody(t, map[string]string{"description": "my first post"}, "upload", []string{"a.png"}, testPNG(t))
	w := doMultipart(t, mux, http.MethodPost, "/posts", token, body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("create post: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	postID := int64(created["id"].(float64))
	postPath := fmt.Sprintf("/posts/%d", postID)

	// Fetch it back: description plus one image entry.
	w = doJSON(t, mux, http.MethodGet, postPath, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get post: expected 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["description"] != "my first post" {
		t.Fatalf("unexpected description %v", got["description"])
	}
	if images := got["images"].([]any); len(images) != 1 {
		t.Fatalf("expected 1 image entry, got %d", len(images))
	}

	// Append two more images.
	body, ct = multipartBody(t, nil, "images", []string{"b.png", "c.png"}, testPNG(t))
	if w := doMultipart(t, mux, http.MethodPost, postPath+"/images", token, body, ct); w.Code != http.StatusOK {
		t.Fatalf("add images: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Replace the image at index 1 and change the description.
	body, ct = multipartBody(t, map[string]string{"description": "updated post"}, "upload", []string{"d.png"}, testPNG(t))
	w = doMultipart(t, mux, http.MethodPatch, postPath+"?index=1", token, body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("patch post: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if patched := decodeBody(t, w); patched["description"] != "updated post" {
		t.Fatalf("description not updated: %v", patched["description"])
	}

	// Out-of-range replacement index.
	body, ct = multipartBody(t, nil, "upload", []string{"e.png"}, testPNG(t))
	if w := doMultipart(t, mux, http.MethodPatch, postPath+"?index=9", token, body, ct); w.Code != http.StatusNotFound {
		t.Fatalf("patch oob index: expected 404, got %d", w.Code)
	}

	// An out-of-range index without a file is still a 404; the bounds check
	// wins over the missing-file complaint.
	body, ct = multipartBody(t, nil, "upload", nil, nil)
	if w := doMultipart(t, mux, http.MethodPatch, postPath+"?index=9", token, body, ct); w.Code != http.StatusNotFound {
		t.Fatalf("patch oob index without file: expected 404, got %d", w.Code)
	}

	// An in-range index without a file is the caller's mistake.
	body, ct = multipartBody(t, nil, "upload", nil, nil)
	if w := doMultipart(t, mux, http.MethodPatch, postPath+"?index=1", token, body, ct); w.Code != http.StatusBadRequest {
		t.Fatalf("patch in-range index without file: expected 400, got %d", w.Code)
	}

	// Delete images one by one.
	for i := 0; i < 3; i++ {
		if w := doJSON(t, mux, http.MethodDelete, postPath+"/0", token, nil); w.Code != http.StatusOK {
			t.Fatalf("delete image %d: expected 200, got %d", i, w.Code)
		}
	}
	w = doJSON(t, mux, http.MethodGet, postPath, token, nil)
	if images := decodeBody(t, w)["images"].([]any); len(images) != 0 {
		t.Fatalf("expected empty image list, got %d", len(images))
	}
	if w := doJSON(t, mux, http.MethodDelete, postPath+"/0", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("delete from empty list: expected 404, got %d", w.Code)
	}

	// Delete the post itself.
	if w := doJSON(t, mux, http.MethodDelete, postPath, token, nil); w.Code != http.StatusOK {
		t.Fatalf("delete post: expected 200, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, postPath, token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get deleted post: expected 404, got %d", w.Code)
	}
}

func TestPostImageRetrieval(t *testing.T) {
	mux := newTestServer(t)
	token := signup(t, mux, "Viewer", "viewer@example.com")

	body, ct := multipartBody(t, map[string]string{"description": "one photo"}, "upload", []string{"a.png"}, testPNG(t))
	w := doMultipart(t, mux, http.MethodPost, "/posts", token, body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("create post: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	postID := int64(decodeBody(t, w)["id"].(float64))
	imagePath := fmt.Sprintf("/posts/%d/images/0", postID)

	w = doJSON(t, mux, http.MethodGet, imagePath, token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get image: expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "image/png" {
		t.Fatalf("expected image/png, got %q", got)
	}
	img, err := png.Decode(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("stored image is not valid PNG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 250 || b.Dy() != 250 {
		t.Fatalf("expected 250x250, got %dx%d", b.Dx(), b.Dy())
	}

	if w := doJSON(t, mux, http.MethodGet, fmt.Sprintf("/posts/%d/images/1", postID), token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("out-of-range index: expected 404, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, "/posts/9999/images/0", token, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing post: expected 404, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, imagePath, "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated: expected 401, got %d", w.Code)
	}
}

func TestOwnershipChecks(t *testing.T) {
	mux := newTestServer(t)
	alice := signup(t, mux, "Alice", "alice@example.com")
	bob := signup(t, mux, "Bob", "bob@example.com")

	body, ct := multipartBody(t, map[string]string{"description": "alice post"}, "upload", nil, nil)
	w := doMultipart(t, mux, http.MethodPost, "/posts", alice, body, ct)
	if w.Code != http.StatusCreated {
		t.Fatalf("create post: expected 201, got %d", w.Code)
	}
	postID := int64(decodeBody(t, w)["id"].(float64))
	postPath := fmt.Sprintf("/posts/%d", postID)

	// Bob cannot delete Alice's post, and it survives.
	if w := doJSON(t, mux, http.MethodDelete, postPath, bob, nil); w.Code != http.StatusNotFound {
		t.Fatalf("bob delete: expected 404, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, postPath, alice, nil); w.Code != http.StatusOK {
		t.Fatalf("post should still exist, got %d", w.Code)
	}

	// /posts/me only shows the caller's posts.
	w = doJSON(t, mux, http.MethodGet, "/posts/me", bob, nil)
	var bobPosts []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &bobPosts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(bobPosts) != 0 {
		t.Fatalf("expected no posts for bob, got %d", len(bobPosts))
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	mux := newTestServer(t)
	alice := signup(t, mux, "Alice", "alice@example.com")
	bob := signup(t, mux, "Bob", "bob@example.com")

	body, ct := multipartBody(t, map[string]string{"description": "doomed"}, "upload", nil, nil)
	w := doMultipart(t, mux, http.MethodPost, "/posts", alice, body, ct)
	postID := int64(decodeBody(t, w)["id"].(float64))

	if w := doJSON(t, mux, http.MethodDelete, "/users/me", alice, nil); w.Code != http.StatusOK {
		t.Fatalf("delete account: expected 200, got %d", w.Code)
	}

	// The account's posts are gone and its token no longer works.
	if w := doJSON(t, mux, http.MethodGet, fmt.Sprintf("/posts/%d", postID), bob, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected post gone, got %d", w.Code)
	}
	if w := doJSON(t, mux, http.MethodGet, "/users/me", alice, nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted account, got %d", w.Code)
	}
}

func TestListMineWithSearchAndTop(t *testing.T) {
	mux := newTestServer(t)
	token := signup(t, mux, "Lister", "lister@example.com")

	for i := 0; i < 5; i++ {
		desc := fmt.Sprintf("cat picture %d", i)
		if i%2 == 1 {
			desc = fmt.Sprintf("dog picture %d", i)
		}
		body, ct := multipartBody(t, map[string]string{"description": desc}, "upload", nil, nil)
		if w := doMultipart(t, mux, http.MethodPost, "/posts", token, body, ct); w.Code != http.StatusCreated {
			t.Fatalf("create post %d: expected 201, got %d", i, w.Code)
		}
	}

	// Search filters the response.
	w := doJSON(t, mux, http.MethodGet, "/posts/me?search=cat", token, nil)
	var mine []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &mine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mine) != 3 {
		t.Fatalf("expected 3 cat posts, got %d", len(mine))
	}
	for _, p := range mine {
		if !strings.Contains(p["description"].(string), "cat") {
			t.Fatalf("unexpected post %v", p["description"])
		}
	}

	// Pagination and descending sort.
	w = doJSON(t, mux, http.MethodGet, "/posts/me?limit=2&skip=1&sortBy=createdAt:desc", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &mine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(mine))
	}

	// Top returns newest first.
	w = doJSON(t, mux, http.MethodGet, "/posts/top?limit=2", token, nil)
	if err := json.Unmarshal(w.Body.Bytes(), &mine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(mine))
	}
	if mine[0]["description"] != "cat picture 4" {
		t.Fatalf("expected newest first, got %v", mine[0]["description"])
	}
}

func TestLookupByEmail(t *testing.T) {
	mux := newTestServer(t)
	alice := signup(t, mux, "Alice", "alice@example.com")
	signup(t, mux, "Bob", "bob@example.com")

	body, ct := multipartBody(t, map[string]string{"description": "alice writes"}, "upload", nil, nil)
	if w := doMultipart(t, mux, http.MethodPost, "/posts", alice, body, ct); w.Code != http.StatusCreated {
		t.Fatalf("create post: expected 201, got %d", w.Code)
	}

	w := doJSON(t, mux, http.MethodGet, "/users/bob@example.com", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	user := got["user"].(map[string]any)
	if user["name"] != "Bob" {
		t.Fatalf("expected Bob, got %v", user["name"])
	}
	// The posts in the response are the caller's, not the looked-up user's.
	posts := got["posts"].([]any)
	if len(posts) != 1 {
		t.Fatalf("expected 1 post (the caller's), got %d", len(posts))
	}

	if w := doJSON(t, mux, http.MethodGet, "/users/missing@example.com", alice, nil); w.Code != http.StatusNotFound {
		t.Fatalf("lookup missing: expected 404, got %d", w.Code)
	}
}
