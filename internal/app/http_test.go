package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"taskboard/api/internal/auth"
	"taskboard/api/internal/store"
)

func newTestHandler(fs *fakeStore) http.Handler {
	svc := newTestService(fs, nil)
	return NewHTTPServer(svc, nil, "*").Handler()
}

func accessToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.IssueToken([]byte("test-secret"), auth.Claims{
		Sub:  userID,
		Name: "User " + userID,
		JTI:  "jti_test",
		Exp:  time.Now().Add(time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	parsed := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("response is not JSON: %v: %s", err, rec.Body.String())
		}
	}
	return rec, parsed
}

func TestHealthEndpoint(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec, body := doJSON(t, handler, http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["ok"] != true {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestBoardsRequireAuth(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec, body := doJSON(t, handler, http.MethodGet, "/api/boards", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestGarbageTokenIsUnauthorized(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/boards", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestBoardDetailForbiddenForNonMember(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	token := accessToken(t, "usr_out")

	rec, body := doJSON(t, handler, http.MethodGet, "/api/boards/brd_1", token, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if body["code"] != "FORBIDDEN" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestListMoveOutOfRangeIsUnprocessable(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: memberOf("brd_1", "usr_1", "member"),
		getListFn: func(context.Context, string) (store.List, error) {
			return store.List{ID: "lst_1", BoardID: "brd_1", Title: "Todo", Position: 0}, nil
		},
		moveListFn: func(context.Context, string, string, int) (store.List, error) {
			return store.List{}, store.ErrPositionOutOfRange
		},
	}
	handler := newTestHandler(fs)
	token := accessToken(t, "usr_1")

	rec, body := doJSON(t, handler, http.MethodPatch, "/api/lists/lst_1", token, `{"position": 9}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", rec.Code, body)
	}
	if body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestCreateListRejectsBlankTitle(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: memberOf("brd_1", "usr_1", "member"),
	}
	handler := newTestHandler(fs)
	token := accessToken(t, "usr_1")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/boards/brd_1/lists", token, `{"title": "   "}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %v", rec.Code, body)
	}
}

func TestMissingTaskIsNotFound(t *testing.T) {
	handler := newTestHandler(&fakeStore{
		getMembershipFn: memberOf("brd_1", "usr_1", "member"),
	})
	token := accessToken(t, "usr_1")

	rec, body := doJSON(t, handler, http.MethodPatch, "/api/tasks/tsk_missing", token, `{"title": "x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %v", rec.Code, body)
	}
	if body["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected error code %v", body["code"])
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	token := accessToken(t, "usr_1")

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/nonsense", token, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	rec, body := doJSON(t, handler, http.MethodGet, "/api/session", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["authenticated"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestSessionEndpointWithToken(t *testing.T) {
	handler := newTestHandler(&fakeStore{})
	token := accessToken(t, "usr_1")

	rec, body := doJSON(t, handler, http.MethodGet, "/api/session", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["authenticated"] != true || body["userId"] != "usr_1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	handler := newTestHandler(&fakeStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("X-Request-ID", "req-abc-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "req-abc-123" {
		t.Fatalf("expected request id to round-trip, got %q", got)
	}
}
