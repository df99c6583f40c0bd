package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"evernote-syncd/pkg/jwt"
)

const testSecret = "middleware-test-secret"

func protectedHandler(t *testing.T, gotUserID *string) http.Handler {
	t.Helper()
	return AuthMiddleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUserID = GetUserID(r)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestAuthMiddleware(t *testing.T) {
	token, err := jwt.GenerateToken("operator", time.Hour, testSecret)
	if err != nil {
		t.Fatal(err)
	}
	expired, _ := jwt.GenerateToken("operator", -time.Hour, testSecret)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantUserID string
	}{
		{
			name:       "valid bearer token",
			header:     "Bearer " + token,
			wantStatus: http.StatusOK,
			wantUserID: "operator",
		},
		{
			name:       "valid query token",
			query:      token,
			wantStatus: http.StatusOK,
			wantUserID: "operator",
		},
		{
			name:       "missing token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "malformed header",
			header:     "Token " + token,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			header:     "Bearer " + expired,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			header:     "Bearer not.a.token",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUserID string
			handler := protectedHandler(t, &gotUserID)

			url := "/protected"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && gotUserID != tt.wantUserID {
				t.Errorf("user id = %q, want %q", gotUserID, tt.wantUserID)
			}
		})
	}
}
