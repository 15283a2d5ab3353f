package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "zapgastos/internal/errors"
	"zapgastos/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAuthenticator struct {
	keys map[string]*models.APIKey
	err  error
}

func (f *fakeAuthenticator) Authenticate(raw string, _ time.Time) (*models.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	key, ok := f.keys[raw]
	if !ok {
		return nil, apperrors.ErrInvalidAPIKey
	}
	return key, nil
}

func setupKeyRouter(auth KeyAuthenticator, scope models.APIKeyScope) *gin.Engine {
	r := gin.New()
	r.Use(APIKeyAuth(auth), RequireScope(scope))
	r.POST("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "user_id": c.GetString(UserIDKey)})
	})
	return r
}

func doRequest(r *gin.Engine, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/test", http.NoBody)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response body: %v", err)
	}
	return result
}

func TestAPIKeyAuth(t *testing.T) {
	auth := &fakeAuthenticator{keys: map[string]*models.APIKey{
		"zpg_budgets": {UserID: "user-1", Scopes: "budgets"},
		"zpg_tx":      {UserID: "user-2", Scopes: "transactions"},
		"zpg_system":  {UserID: "ops", Scopes: "system"},
	}}

	tests := []struct {
		name          string
		auth          KeyAuthenticator
		scope         models.APIKeyScope
		requestKey    string
		wantStatus    int
		wantErrorCode string
		wantUserID    string
	}{
		{
			name:       "valid_key_with_scope",
			auth:       auth,
			scope:      models.ScopeBudgets,
			requestKey: "zpg_budgets",
			wantStatus: http.StatusOK,
			wantUserID: "user-1",
		},
		{
			name:       "system_scope_passes",
			auth:       auth,
			scope:      models.ScopeTransactions,
			requestKey: "zpg_system",
			wantStatus: http.StatusOK,
			wantUserID: "ops",
		},
		{
			name:          "missing_scope",
			auth:          auth,
			scope:         models.ScopeBudgets,
			requestKey:    "zpg_tx",
			wantStatus:    http.StatusForbidden,
			wantErrorCode: "MISSING_SCOPE",
		},
		{
			name:          "unknown_key",
			auth:          auth,
			scope:         models.ScopeBudgets,
			requestKey:    "zpg_nope",
			wantStatus:    http.StatusUnauthorized,
			wantErrorCode: "INVALID_API_KEY",
		},
		{
			name:          "missing_key",
			auth:          auth,
			scope:         models.ScopeBudgets,
			wantStatus:    http.StatusUnauthorized,
			wantErrorCode: "INVALID_API_KEY",
		},
		{
			name:          "store_failure",
			auth:          &fakeAuthenticator{err: errors.New("db down")},
			scope:         models.ScopeBudgets,
			requestKey:    "zpg_budgets",
			wantStatus:    http.StatusInternalServerError,
			wantErrorCode: "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(setupKeyRouter(tt.auth, tt.scope), tt.requestKey)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			body := parseBody(t, rec)
			if tt.wantErrorCode != "" {
				errObj, ok := body["error"].(map[string]interface{})
				if !ok {
					t.Fatal("expected error object in response")
				}
				if code, _ := errObj["code"].(string); code != tt.wantErrorCode {
					t.Errorf("error code = %q, want %q", code, tt.wantErrorCode)
				}
			}
			if tt.wantUserID != "" {
				if got, _ := body["user_id"].(string); got != tt.wantUserID {
					t.Errorf("user_id = %q, want %q", got, tt.wantUserID)
				}
			}
		})
	}
}

func TestRequireScope_WithoutKey(t *testing.T) {
	r := gin.New()
	r.Use(RequireScope(models.ScopeBudgets))
	r.POST("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := doRequest(r, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
