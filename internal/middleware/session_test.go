package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mmeshcher/kassa-system/internal/model"
)

func sessionFromRecorder(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no cookies set")
	}
	return cookies[0]
}

func TestSessionMiddleware_RoundTrip(t *testing.T) {
	m := NewSessionMiddleware("secret")

	rec := httptest.NewRecorder()
	want := model.Session{
		EmployeeID:     "emp-1",
		EmployeeName:   "Ali",
		EmployeeAvatar: "avatar.png",
	}
	if err := m.SetSessionCookie(rec, want); err != nil {
		t.Fatalf("set cookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.AddCookie(sessionFromRecorder(t, rec))

	var got model.Session
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = GetSessionFromContext(r.Context())
	})

	resp := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(resp, req)

	if resp.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.Result().StatusCode, http.StatusOK)
	}
	if !ok {
		t.Fatalf("session must be in context")
	}
	if got != want {
		t.Fatalf("session = %+v, want %+v", got, want)
	}
}

func TestSessionMiddleware_MissingCookie(t *testing.T) {
	m := NewSessionMiddleware("secret")

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	rec := httptest.NewRecorder()

	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called without a cookie")
	})).ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_ForgedSignature(t *testing.T) {
	m := NewSessionMiddleware("secret")
	other := NewSessionMiddleware("another-secret")

	rec := httptest.NewRecorder()
	if err := other.SetSessionCookie(rec, model.Session{EmployeeID: "emp-1"}); err != nil {
		t.Fatalf("set cookie: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.AddCookie(sessionFromRecorder(t, rec))

	resp := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called with a forged cookie")
	})).ServeHTTP(resp, req)

	if resp.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestSessionMiddleware_TamperedPayload(t *testing.T) {
	m := NewSessionMiddleware("secret")

	rec := httptest.NewRecorder()
	if err := m.SetSessionCookie(rec, model.Session{EmployeeID: "emp-1"}); err != nil {
		t.Fatalf("set cookie: %v", err)
	}
	cookie := sessionFromRecorder(t, rec)

	parts := strings.SplitN(cookie.Value, ".", 2)
	cookie.Value = parts[0] + "x." + parts[1]

	req := httptest.NewRequest(http.MethodGet, "/api/invoices", nil)
	req.AddCookie(cookie)

	resp := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not be called with a tampered cookie")
	})).ServeHTTP(resp, req)

	if resp.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestClearSessionCookie(t *testing.T) {
	m := NewSessionMiddleware("secret")

	rec := httptest.NewRecorder()
	m.ClearSessionCookie(rec)

	cookie := sessionFromRecorder(t, rec)
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Fatalf("cookie must be expired: %+v", cookie)
	}
}
