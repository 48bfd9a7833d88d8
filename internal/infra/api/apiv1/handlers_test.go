//go:build !integration

package apiv1_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"activation-platform/internal/domain"
	"activation-platform/internal/domain/model"
	apiv1 "activation-platform/internal/infra/api/apiv1"
	"activation-platform/internal/usecase"
)

func newLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

func passthrough(next http.Handler) http.Handler { return next }

func newRouter(uc *mockUC) *chi.Mux {
	r := chi.NewRouter()
	h := apiv1.NewHandler(uc, apiv1.Options{DefaultTTL: 365 * 24 * time.Hour, CleanupMaxAge: 5 * time.Minute}, newLogger())
	apiv1.Register(r, h, passthrough, passthrough)
	return r
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v, body=%s", err, rec.Body.String())
	}
	return m
}

func TestCreate_TTLPrecedence(t *testing.T) {
	cases := []struct {
		name string
		body string
		want time.Duration
	}{
		{"default", ``, 365 * 24 * time.Hour},
		{"days", `{"expirationDays":30}`, 30 * 24 * time.Hour},
		{"hours win over days", `{"expirationDays":30,"expirationHours":2}`, 2 * time.Hour},
		{"zero hours", `{"expirationHours":0}`, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &mockUC{}
			rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes", tc.body)
			if rec.Code != http.StatusCreated {
				t.Fatalf("want 201, got %d, body=%s", rec.Code, rec.Body.String())
			}
			if uc.lastCreate.TTL != tc.want {
				t.Fatalf("ttl = %v, want %v", uc.lastCreate.TTL, tc.want)
			}
		})
	}
}

func TestCreate_ResponseShape(t *testing.T) {
	uc := &mockUC{}
	rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes",
		`{"metadata":{"email":"a@b.c"},"productInfo":{"name":"Editor","version":"2.0","features":["sync"]}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	for _, k := range []string{"id", "code", "createdAt", "expiresAt", "productInfo"} {
		if _, ok := data[k]; !ok {
			t.Errorf("missing %q in %v", k, data)
		}
	}
	if data["status"] != "active" {
		t.Errorf("status = %v, want active", data["status"])
	}
	if uc.lastCreate.Metadata["email"] != "a@b.c" {
		t.Errorf("metadata not passed through: %v", uc.lastCreate.Metadata)
	}
	if uc.lastCreate.ProductInfo == nil || uc.lastCreate.ProductInfo.Name != "Editor" {
		t.Errorf("productInfo not passed through: %+v", uc.lastCreate.ProductInfo)
	}
}

func TestCreate_ProductInfoPassesExtraKeys(t *testing.T) {
	uc := &mockUC{}
	uc.CreateFunc = func(_ context.Context, in usecase.CreateCodeInput) (*model.ActivationCode, error) {
		c := sampleCode(in.TTL)
		c.ProductInfo = in.ProductInfo
		return c, nil
	}
	rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes",
		`{"productInfo":{"name":"X","edition":"pro","limits":{"seats":5}}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d: %s", rec.Code, rec.Body.String())
	}
	pi := uc.lastCreate.ProductInfo
	if pi == nil || pi.Name != "X" || pi.Extra["edition"] != "pro" {
		t.Fatalf("productInfo not passed through: %+v", pi)
	}

	data := decodeBody(t, rec)["data"].(map[string]any)
	info := data["productInfo"].(map[string]any)
	if info["name"] != "X" || info["edition"] != "pro" {
		t.Errorf("productInfo in response = %v", info)
	}
	if limits, _ := info["limits"].(map[string]any); limits["seats"] != float64(5) {
		t.Errorf("nested extra lost: %v", info)
	}
}

func TestCreate_BadInput(t *testing.T) {
	for _, body := range []string{
		`{"expirationDays":-1}`,
		`{"expirationHours":-5}`,
		`{"expirationDays":99999999}`,
		`{"unknown":true}`,
		`{not json`,
	} {
		rec := do(t, newRouter(&mockUC{}), http.MethodPost, "/api/v1/activation-codes", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: want 400, got %d", body, rec.Code)
		}
	}
}

func TestCreate_Batch(t *testing.T) {
	uc := &mockUC{}
	rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes", `{"count":3}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("want 201, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 3 || len(body["data"].([]any)) != 3 {
		t.Fatalf("unexpected batch body: %v", body)
	}

	uc.CreateBatchFunc = func(ctx context.Context, in usecase.CreateCodeInput, count int) ([]*model.ActivationCode, error) {
		return []*model.ActivationCode{sampleCode(in.TTL)}, domain.ErrDuplicateCode
	}
	rec = do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes", `{"count":3}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("want 409, got %d", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["retryable"] != true || len(body["created"].([]any)) != 1 {
		t.Fatalf("partial batch not reported: %v", body)
	}
}

func TestVerify_Success(t *testing.T) {
	activated := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	uc := &mockUC{VerifyFunc: func(ctx context.Context, code string) (*usecase.Redemption, error) {
		if code != "abc" {
			t.Errorf("code = %q, want raw input", code)
		}
		return &usecase.Redemption{
			ID: "id1", Code: "ABC", ActivatedAt: activated,
			ProductInfo: &model.ProductInfo{Name: "Editor"},
			Metadata:    map[string]any{"order": "42"},
		}, nil
	}}
	rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes/verify", `{"code":"abc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d, body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success bool             `json:"success"`
		Data    apiv1.Activation `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || body.Data.ID != "id1" || !body.Data.ActivatedAt.Equal(activated) {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Data.Metadata["order"] != "42" || body.Data.ProductInfo.Name != "Editor" {
		t.Fatalf("pass-through fields lost: %+v", body.Data)
	}
}

func TestVerify_ErrorMapping(t *testing.T) {
	usedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	expiresAt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name     string
		err      error
		status   int
		code     string
		extraKey string
	}{
		{"validation", domain.NewValidationError("code", "is required"), http.StatusBadRequest, "validation_error", "field"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not_found", ""},
		{"used", &domain.AlreadyUsedError{Code: "X", UsedAt: usedAt}, http.StatusConflict, "already_used", "usedAt"},
		{"used sentinel", domain.ErrCodeAlreadyUsed, http.StatusConflict, "already_used", ""},
		{"expired", &domain.ExpiredError{Code: "X", ExpiresAt: expiresAt}, http.StatusGone, "expired", "expiresAt"},
		{"storage", domain.NewStorageError("find", errors.New("dial tcp: refused")), http.StatusInternalServerError, "internal_error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &mockUC{VerifyFunc: func(context.Context, string) (*usecase.Redemption, error) { return nil, tc.err }}
			rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes/verify", `{"code":"X"}`)
			if rec.Code != tc.status {
				t.Fatalf("want %d, got %d", tc.status, rec.Code)
			}
			body := decodeBody(t, rec)
			if body["code"] != tc.code || body["success"] != false {
				t.Fatalf("unexpected body: %v", body)
			}
			if tc.extraKey != "" {
				if _, ok := body[tc.extraKey]; !ok {
					t.Fatalf("missing %q in %v", tc.extraKey, body)
				}
			}
			if strings.Contains(rec.Body.String(), "refused") {
				t.Fatal("storage details must not leak to clients")
			}
		})
	}
}

func TestVerify_UsedAtValue(t *testing.T) {
	usedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	uc := &mockUC{VerifyFunc: func(context.Context, string) (*usecase.Redemption, error) {
		return nil, &domain.AlreadyUsedError{Code: "X", UsedAt: usedAt}
	}}
	rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes/verify", `{"code":"X"}`)
	body := decodeBody(t, rec)
	if body["usedAt"] != "2025-05-01T10:00:00Z" {
		t.Fatalf("usedAt = %v", body["usedAt"])
	}
}

func TestList(t *testing.T) {
	uc := &mockUC{ListFunc: func(ctx context.Context, in usecase.ListCodesInput) (*usecase.CodePage, error) {
		if in.Status == "bogus" {
			return nil, domain.NewValidationError("status", "bad")
		}
		return &usecase.CodePage{
			Items: []*model.ActivationCode{sampleCode(time.Hour)},
			Page:  2, Limit: 1, Total: 3, TotalPages: 3,
		}, nil
	}}
	r := newRouter(uc)

	rec := do(t, r, http.MethodGet, "/api/v1/activation-codes?page=2&limit=1&status=active", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	if uc.lastList != (usecase.ListCodesInput{Status: "active", Page: 2, Limit: 1}) {
		t.Fatalf("list input = %+v", uc.lastList)
	}
	var body struct {
		Data       []apiv1.Code     `json:"data"`
		Pagination apiv1.Pagination `json:"pagination"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Pagination != (apiv1.Pagination{Page: 2, Limit: 1, Total: 3, TotalPages: 3}) {
		t.Fatalf("unexpected body: %+v", body)
	}

	if rec := do(t, r, http.MethodGet, "/api/v1/activation-codes?page=x", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric page: want 400, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/activation-codes?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad status: want 400, got %d", rec.Code)
	}
}

func TestStats(t *testing.T) {
	uc := &mockUC{StatsFunc: func(context.Context) (model.CodeStats, error) {
		return model.NewCodeStats(model.CodeCounts{Total: 10, Used: 3, Expired: 2, Active: 5}), nil
	}}
	rec := do(t, newRouter(uc), http.MethodGet, "/api/v1/activation-codes/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
	var body struct {
		Data apiv1.Stats `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := apiv1.Stats{Total: 10, Used: 3, Expired: 2, Active: 5, UsageRate: 0.3, ExpirationRate: 0.2}
	if body.Data != want {
		t.Fatalf("stats = %+v, want %+v", body.Data, want)
	}
}

func TestGetAndDelete(t *testing.T) {
	uc := &mockUC{
		GetFunc: func(ctx context.Context, id string) (*model.ActivationCode, error) {
			if id != "known" {
				return nil, domain.ErrNotFound
			}
			return sampleCode(time.Hour), nil
		},
		DeleteFunc: func(ctx context.Context, id string) error {
			if id != "known" {
				return domain.ErrNotFound
			}
			return nil
		},
	}
	r := newRouter(uc)

	if rec := do(t, r, http.MethodGet, "/api/v1/activation-codes/known", ""); rec.Code != http.StatusOK {
		t.Fatalf("get: want 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/api/v1/activation-codes/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: want 404, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, "/api/v1/activation-codes/known", ""); rec.Code != http.StatusOK {
		t.Fatalf("delete: want 200, got %d", rec.Code)
	}
	if rec := do(t, r, http.MethodDelete, "/api/v1/activation-codes/missing", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("delete missing: want 404, got %d", rec.Code)
	}
}

func TestCleanup(t *testing.T) {
	cases := []struct {
		body string
		want time.Duration
	}{
		{``, 5 * time.Minute},
		{`{"maxAgeMinutes":30}`, 30 * time.Minute},
		{`{"olderThanDays":7,"maxAgeMinutes":30}`, 7 * 24 * time.Hour},
	}
	for _, tc := range cases {
		uc := &mockUC{CleanupFunc: func(context.Context, time.Duration) (int64, error) { return 4, nil }}
		rec := do(t, newRouter(uc), http.MethodPost, "/api/v1/activation-codes/cleanup", tc.body)
		if rec.Code != http.StatusOK {
			t.Fatalf("%q: want 200, got %d", tc.body, rec.Code)
		}
		if uc.lastCleanup != tc.want {
			t.Fatalf("%q: maxAge = %v, want %v", tc.body, uc.lastCleanup, tc.want)
		}
		data := decodeBody(t, rec)["data"].(map[string]any)
		if data["deleted"].(float64) != 4 {
			t.Fatalf("deleted = %v", data["deleted"])
		}
	}

	rec := do(t, newRouter(&mockUC{}), http.MethodPost, "/api/v1/activation-codes/cleanup", `{"olderThanDays":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("zero days: want 400, got %d", rec.Code)
	}
}
