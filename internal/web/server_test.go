package web

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/schoolbulk/internal/config"
	"github.com/JonMunkholm/schoolbulk/internal/core"
	"github.com/JonMunkholm/schoolbulk/internal/store/memory"
)

func testRegistry(t *testing.T) *core.Registry {
	t.Helper()
	reg := core.NewRegistry()
	require.NoError(t, reg.Add(core.ModuleDefinition{
		ID:   "clubs",
		Name: "Clubs",
		Fields: []core.FieldSpec{
			{Name: "name", Label: "Club Name", Required: true},
			{Name: "room", Label: "Room"},
		},
		NaturalKeys: []string{"name"},
		Exportable:  true,
	}))
	require.NoError(t, reg.Add(core.ModuleDefinition{
		ID:   "members",
		Name: "Members",
		Fields: []core.FieldSpec{
			{Name: "fullName", Label: "Full Name", Required: true},
			{Name: "email", Label: "Email", Type: core.FieldEmail, Required: true},
		},
		RequiresAccount: true,
		AccountRole:     core.RoleStudent,
		NaturalKeys:     []string{"email"},
		Exportable:      true,
	}))
	return reg
}

type testEnv struct {
	server *Server
	store  *memory.Store
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	store := memory.New()
	svc, err := core.NewService(core.Dependencies{
		Registry: testRegistry(t),
		Records:  store,
		History:  store,
		Accounts: store,
	}, core.Options{MaxConcurrent: 2})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Import.MaxFileSize = 1 << 20
	for _, m := range mutate {
		m(cfg)
	}

	return &testEnv{server: NewServer(svc, cfg), store: store}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, target, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	part, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, target string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["modules"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestModules(t *testing.T) {
	env := newTestEnv(t)

	t.Run("list", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/modules", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body := decodeBody[struct {
			Modules []core.ModuleSummary `json:"modules"`
		}](t, rec)
		require.Len(t, body.Modules, 2)
	})

	t.Run("get", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/modules/members", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		def := decodeBody[core.ModuleDefinition](t, rec)
		assert.True(t, def.RequiresAccount)
		assert.Len(t, def.Fields, 2)
	})

	t.Run("unknown module", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/modules/aliens", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)

		body := decodeBody[ErrorResponse](t, rec)
		assert.Equal(t, "MOD001", body.Code)
	})

	t.Run("template", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/modules/clubs/template", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.XLSXMimeType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
		assert.NotZero(t, rec.Body.Len())
	})
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)

	t.Run("pages rows but counts the whole file", func(t *testing.T) {
		csv := "Club Name,Room\nChess,101\n,102\nDrama,103\n"
		req := uploadRequest(t, "/api/schools/s1/imports/clubs/preview?pageSize=1&page=2", "clubs.csv", csv, nil)

		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		result := decodeBody[core.PreviewResult](t, rec)
		assert.Equal(t, 3, result.TotalRows)
		assert.Equal(t, 2, result.ValidRows)
		assert.Equal(t, 1, result.InvalidRows)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, 2, result.Rows[0].RowNumber)
		assert.Equal(t, core.RowInvalid, result.Rows[0].Status)
	})

	t.Run("header mismatch", func(t *testing.T) {
		req := uploadRequest(t, "/api/schools/s1/imports/clubs/preview", "clubs.csv", "Colour,Size\nred,L\n", nil)

		rec := env.do(req)
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var body struct {
			Error   string              `json:"error"`
			Code    string              `json:"code"`
			Details core.HeaderMismatch `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "Template mapping not matched", body.Error)
		assert.Equal(t, "VAL004", body.Code)
		assert.Contains(t, body.Details.MissingColumns, "name")
	})

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("sendEmails", "true"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/schools/s1/imports/clubs/preview", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		rec := env.do(req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "FILE004", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("nothing is written", func(t *testing.T) {
		records, err := env.store.ListRecords(t.Context(), "s1", "clubs")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestCommitAndHistory(t *testing.T) {
	env := newTestEnv(t)

	csv := "Full Name,Email\nAda Lovelace,ada@example.com\nAlan Turing,\nGrace Hopper,grace@example.com\n"
	rec := env.do(uploadRequest(t, "/api/schools/s1/imports/members", "members.csv", csv, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	outcome := decodeBody[core.ImportOutcome](t, rec)
	assert.Equal(t, 3, outcome.Total)
	assert.Equal(t, 2, outcome.Success)
	assert.Equal(t, 1, outcome.Failed)
	assert.Equal(t, 2, outcome.AccountsCreated)
	assert.True(t, outcome.RequiresAccount)
	require.Len(t, outcome.Errors, 1)
	assert.Equal(t, 2, outcome.Errors[0].Row)
	assert.Equal(t, 2, env.store.AccountCount())

	// A second upload of the same file skips the saved rows by default.
	rec = env.do(uploadRequest(t, "/api/schools/s1/imports/members", "members.csv", csv, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	again := decodeBody[core.ImportOutcome](t, rec)
	assert.Equal(t, 2, again.Skipped)
	assert.Equal(t, 0, again.Success)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/schools/s1/imports/history?module=members", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		History []core.ImportHistoryEntry `json:"history"`
	}](t, rec)
	require.Len(t, body.History, 2)
	assert.Equal(t, 2, body.History[0].Skipped, "newest first")
	assert.Equal(t, 2, body.History[1].Success)
	assert.Equal(t, "192.0.2.1", body.History[0].IPAddress, "client address is kept with the entry")
}

func TestCommit_NotBoundByRequestTimeout(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.RequestTimeout = time.Nanosecond
	})

	csv := "Full Name,Email\nAda Lovelace,ada@example.com\nGrace Hopper,grace@example.com\n"
	rec := env.do(uploadRequest(t, "/api/schools/s1/imports/members", "members.csv", csv, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	outcome := decodeBody[core.ImportOutcome](t, rec)
	assert.False(t, outcome.Interrupted)
	assert.Equal(t, 2, outcome.Success)
	assert.Equal(t, 2, outcome.AccountsCreated)
}

func TestRetryAccounts(t *testing.T) {
	env := newTestEnv(t)

	t.Run("module without accounts", func(t *testing.T) {
		req := jsonRequest(t, "/api/schools/s1/imports/clubs/accounts/retry", map[string]any{
			"records": []core.RetryEntry{{Email: "a@example.com", RecordID: "r1"}},
		})
		rec := env.do(req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "IMP002", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("empty entries", func(t *testing.T) {
		rec := env.do(jsonRequest(t, "/api/schools/s1/imports/members/accounts/retry", map[string]any{"records": []any{}}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "IMP003", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/schools/s1/imports/members/accounts/retry", strings.NewReader("{"))
		rec := env.do(req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "IMP004", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("creates accounts", func(t *testing.T) {
		req := jsonRequest(t, "/api/schools/s1/imports/members/accounts/retry", map[string]any{
			"records": []core.RetryEntry{{Email: "late@example.com", RecordID: "r9"}},
		})
		rec := env.do(req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		result := decodeBody[core.RetryOutcome](t, rec)
		assert.Equal(t, 1, result.Success)
		assert.Equal(t, 0, result.Failed)
	})
}

func TestFailureReport(t *testing.T) {
	env := newTestEnv(t)

	outcome := core.ImportOutcome{
		Errors: []core.RowError{{Row: 7, Message: "email is required"}},
		AccountErrors: []core.AccountError{
			{Row: 3, Email: "c@example.com", RecordID: "r3", Message: "timeout"},
		},
	}
	rec := env.do(jsonRequest(t, "/api/schools/s1/imports/members/failures.csv", outcome))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "channel,row,email,record_id,message", lines[0])
	assert.Equal(t, "record,7,,,email is required", lines[1])
	assert.Equal(t, "account,3,c@example.com,r3,timeout", lines[2])

	rec = env.do(jsonRequest(t, "/api/schools/s1/imports/aliens/failures.csv", outcome))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExport(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(uploadRequest(t, "/api/schools/s1/imports/clubs", "clubs.csv", "Club Name,Room\nChess,101\nDrama,103\n", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("exportable modules", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/exports/modules", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[struct {
			Modules []core.ModuleSummary `json:"modules"`
		}](t, rec)
		assert.Len(t, body.Modules, 2)
	})

	t.Run("json job", func(t *testing.T) {
		rec := env.do(jsonRequest(t, "/api/schools/s1/exports", map[string]any{"modules": []string{"clubs", "members"}}))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		job := decodeBody[core.ExportJob](t, rec)
		require.Len(t, job.Modules, 2)
		assert.Equal(t, 2, job.Modules[0].RecordCount)
		assert.Equal(t, 0, job.Modules[1].RecordCount)
		assert.NotEmpty(t, job.Data)
		assert.Equal(t, core.XLSXMimeType, job.MIMEType)
	})

	t.Run("raw download", func(t *testing.T) {
		rec := env.do(jsonRequest(t, "/api/schools/s1/exports?download=1", map[string]any{"modules": []string{"clubs"}}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, core.XLSXMimeType, rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))
	})

	t.Run("no modules", func(t *testing.T) {
		rec := env.do(jsonRequest(t, "/api/schools/s1/exports", map[string]any{"modules": []string{}}))
		require.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "EXP001", decodeBody[ErrorResponse](t, rec).Code)
	})

	t.Run("unknown module", func(t *testing.T) {
		rec := env.do(jsonRequest(t, "/api/schools/s1/exports", map[string]any{"modules": []string{"clubs", "aliens"}}))
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAPIKeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/modules", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/modules", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = env.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health stays open")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge},
		{core.ErrEmptyFile, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
