package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

func TestClient_CreateAccount(t *testing.T) {
	t.Parallel()

	var got createUserRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/v1/admin/users", r.URL.Path)
		assert.Equal(t, "Bearer service-key", r.Header.Get("Authorization"))
		assert.Equal(t, "service-key", r.Header.Get("apikey"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"user-123","email":"asha@example.com"}`))
	}))
	defer srv.Close()

	c, err := New(Config{ProjectURL: srv.URL + "/", ServiceKey: "service-key"})
	require.NoError(t, err)

	id, err := c.CreateAccount(context.Background(), core.AccountRequest{
		SchoolID:   "school-1",
		Email:      "asha@example.com",
		Credential: "Student@abcdef12",
		Role:       core.RoleStudent,
		RecordID:   "rec-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-123", id)

	assert.Equal(t, "asha@example.com", got.Email)
	assert.Equal(t, "Student@abcdef12", got.Password)
	assert.True(t, got.EmailConfirm)
	assert.Equal(t, "STUDENT", got.UserMetadata["role"])
	assert.Equal(t, "rec-1", got.UserMetadata["record_id"])
}

func TestClient_CreateAccountError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantMsg  string
		wantCode string
	}{
		{
			name:     "gotrue msg field",
			status:   http.StatusUnprocessableEntity,
			body:     `{"code":422,"error_code":"email_exists","msg":"A user with this email address has already been registered"}`,
			wantMsg:  "A user with this email address has already been registered",
			wantCode: "email_exists",
		},
		{
			name:     "error description",
			status:   http.StatusUnauthorized,
			body:     `{"error":"","error_description":"invalid JWT"}`,
			wantMsg:  "invalid JWT",
			wantCode: "",
		},
		{
			name:     "non json body",
			status:   http.StatusBadGateway,
			body:     "bad gateway",
			wantMsg:  "bad gateway",
			wantCode: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := New(Config{ProjectURL: srv.URL, ServiceKey: "k"})
			require.NoError(t, err)

			_, err = c.CreateAccount(context.Background(), core.AccountRequest{Email: "x@example.com"})

			var apiErr *Error
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}

func TestNew_RequiresSettings(t *testing.T) {
	t.Parallel()

	_, err := New(Config{ServiceKey: "k"})
	require.ErrorContains(t, err, "project URL")

	_, err = New(Config{ProjectURL: "https://example.supabase.co"})
	require.ErrorContains(t, err, "service key")
}
