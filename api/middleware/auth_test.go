package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/solestack/storefront/pkg/auth"
	"github.com/solestack/storefront/pkg/config"
	"github.com/solestack/storefront/pkg/enums"
)

var testJWT = config.JWTConfig{Secret: "secret", Issuer: "storefront", AccessTTL: 10 * time.Minute}

func mintToken(t *testing.T, role enums.Role) (string, uuid.UUID, uuid.UUID) {
	t.Helper()
	userID, tenantID := uuid.New(), uuid.New()
	token, err := auth.MintAccessToken(testJWT, time.Now(), auth.AccessTokenPayload{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token, userID, tenantID
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthSeedsIdentity(t *testing.T) {
	token, userID, tenantID := mintToken(t, enums.RoleStaff)

	var got Identity
	handler := Auth(testJWT, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = Identity{
			UserID:   UserIDFromContext(r.Context()),
			TenantID: TenantIDFromContext(r.Context()),
			Role:     RoleFromContext(r.Context()),
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got.UserID != userID || got.TenantID != tenantID || got.Role != enums.RoleStaff {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestRequireStaff(t *testing.T) {
	cases := []struct {
		role enums.Role
		want int
	}{
		{enums.RoleCustomer, http.StatusForbidden},
		{enums.RoleStaff, http.StatusOK},
		{enums.RoleAdmin, http.StatusOK},
		{"", http.StatusForbidden},
	}
	for _, tc := range cases {
		handler := RequireStaff(nil)(okHandler())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithIdentity(req.Context(), Identity{UserID: uuid.New(), TenantID: uuid.New(), Role: tc.role}))
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != tc.want {
			t.Fatalf("role %q: expected %d got %d", tc.role, tc.want, resp.Code)
		}
	}
}
