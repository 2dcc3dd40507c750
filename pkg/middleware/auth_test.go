package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/platinummonkey/authsvc/pkg/auth"
	"github.com/platinummonkey/authsvc/pkg/contextkeys"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		ok     bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi", ok: true},
		{name: "lowercase scheme", header: "bearer abc", want: "abc", ok: true},
		{name: "missing", header: ""},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "no token", header: "Bearer "},
		{name: "no space", header: "Bearerabc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, ok := BearerToken(req)
			if ok != tt.ok || got != tt.want {
				t.Errorf("BearerToken() = %q, %v; want %q, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestRequireBearer(t *testing.T) {
	var seen string
	handler := RequireBearer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetToken(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("missing header: status %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status %d, want 200", rec.Code)
	}
	if seen != "tok" {
		t.Errorf("token in context = %q, want tok", seen)
	}
}

type stubResolver struct {
	user *auth.User
	err  error
}

func (s stubResolver) CurrentUser(ctx context.Context, token string) (*auth.User, error) {
	return s.user, s.err
}

func TestResolveUser(t *testing.T) {
	var got *auth.User
	var gotID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetUser(r)
		gotID = contextkeys.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		resolver   stubResolver
		token      string
		wantStatus int
	}{
		{name: "resolved", resolver: stubResolver{user: &auth.User{ID: "u1"}}, token: "t", wantStatus: http.StatusOK},
		{name: "expired", resolver: stubResolver{err: auth.ErrTokenExpired}, token: "t", wantStatus: http.StatusForbidden},
		{name: "gone", resolver: stubResolver{err: auth.ErrNotFound}, token: "t", wantStatus: http.StatusNotFound},
		{name: "no token", resolver: stubResolver{}, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotID = nil, ""
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.token != "" {
				req = req.WithContext(contextkeys.WithToken(req.Context(), tt.token))
			}
			rec := httptest.NewRecorder()
			ResolveUser(tt.resolver)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (got == nil || gotID != "u1") {
				t.Errorf("user not stored in context: %v %q", got, gotID)
			}
		})
	}
}

func TestGetUserWithoutUser(t *testing.T) {
	if GetUser(httptest.NewRequest(http.MethodGet, "/", nil)) != nil {
		t.Error("expected nil user")
	}
}
