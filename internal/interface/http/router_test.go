package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/shim-server/internal/domain/auth"
	"github.com/yanqian/shim-server/internal/domain/shim"
	"github.com/yanqian/shim-server/internal/infra/config"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

var fixedNow = time.Date(2024, 1, 10, 15, 30, 0, 0, time.UTC)

func TestRouter_Healthz(t *testing.T) {
	server := newRouterUnderTest(t, &stubShimService{}, &stubAuth{}, false)
	rec := performRequest(server, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_GetDataDefaults(t *testing.T) {
	var got shim.DataRequest
	svc := &stubShimService{
		getDataFn: func(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error) {
			got = req
			return shim.DataResponse{Shim: "withings", Timestamp: 1704900600, Body: []shim.DataPoint{}}, nil
		},
	}
	server := newRouterUnderTest(t, svc, &stubAuth{}, false)

	rec := performRequest(server, http.MethodGet, "/api/v1/data/withings?username=alice&dataType=body_weight", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "withings", got.ShimKey)
	require.Equal(t, "alice", got.Username)
	require.Equal(t, "body_weight", got.DataType)
	require.True(t, got.Normalize)
	require.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), got.End)
	require.Equal(t, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), got.Start)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "withings", body["shim"])
	require.EqualValues(t, 1704900600, body["timeStamp"])
	require.Equal(t, []any{}, body["body"])
}

func TestRouter_GetDataExplicitRangeAndRaw(t *testing.T) {
	var got shim.DataRequest
	svc := &stubShimService{
		getDataFn: func(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error) {
			got = req
			return shim.DataResponse{Shim: "withings", Body: json.RawMessage(`{"status":0}`)}, nil
		},
	}
	server := newRouterUnderTest(t, svc, &stubAuth{}, false)

	rec := performRequest(server, http.MethodGet,
		"/api/v1/data/withings?username=alice&dataType=step_count&normalize=false&dateStart=2024-01-01&dateEnd=2024-01-03T12:00:00Z", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, got.Normalize)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got.Start)
	require.Equal(t, time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC), got.End.UTC())
	require.JSONEq(t, `{"shim":"withings","timeStamp":0,"body":{"status":0}}`, rec.Body.String())
}

func TestRouter_GetDataValidation(t *testing.T) {
	svc := &stubShimService{
		getDataFn: func(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error) {
			t.Errorf("service must not be called")
			return shim.DataResponse{}, nil
		},
	}
	server := newRouterUnderTest(t, svc, &stubAuth{}, false)

	cases := []string{
		"/api/v1/data/withings?dataType=body_weight",
		"/api/v1/data/withings?username=alice",
		"/api/v1/data/withings?username=alice&dataType=body_weight&normalize=maybe",
		"/api/v1/data/withings?username=alice&dataType=body_weight&dateStart=01/02/2024",
	}
	for _, path := range cases {
		rec := performRequest(server, http.MethodGet, path, "", "")
		require.Equal(t, http.StatusBadRequest, rec.Code, path)
		require.Equal(t, shim.CodeInvalidInput, decodeErrorBody(t, rec.Body.Bytes())["error"]["code"], path)
	}
}

func TestRouter_ErrorCodeMapping(t *testing.T) {
	cases := map[string]int{
		shim.CodeInvalidInput:      http.StatusBadRequest,
		shim.CodeUnknownShim:       http.StatusNotFound,
		shim.CodeUnknownDataType:   http.StatusBadRequest,
		shim.CodeAccountNotFound:   http.StatusNotFound,
		shim.CodeAccountIncomplete: http.StatusUnprocessableEntity,
		shim.CodeTransportFailure:  http.StatusBadGateway,
		shim.CodeMalformedResponse: http.StatusBadGateway,
		shim.CodeDefect:            http.StatusInternalServerError,
		shim.CodeAccountError:      http.StatusInternalServerError,
	}
	for code, status := range cases {
		svc := &stubShimService{
			getDataFn: func(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error) {
				return shim.DataResponse{}, apperrors.Wrap(code, "boom", nil)
			},
		}
		server := newRouterUnderTest(t, svc, &stubAuth{}, false)
		rec := performRequest(server, http.MethodGet, "/api/v1/data/withings?username=alice&dataType=heart_rate", "", "")
		require.Equal(t, status, rec.Code, code)
		errBody := decodeErrorBody(t, rec.Body.Bytes())
		require.Equal(t, code, errBody["error"]["code"])
		require.Equal(t, "boom", errBody["error"]["message"])
	}
}

func TestRouter_AuthEnabled(t *testing.T) {
	authSvc := &stubAuth{
		validateFn: func(ctx context.Context, token string) (auth.Claims, error) {
			if token != "good" {
				return auth.Claims{}, apperrors.Wrap("invalid_token", "token invalid", nil)
			}
			return auth.Claims{ClientID: "reporting"}, nil
		},
	}
	server := newRouterUnderTest(t, &stubShimService{}, authSvc, true)

	rec := performRequest(server, http.MethodGet, "/api/v1/shims", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = performRequest(server, http.MethodGet, "/api/v1/shims", "", "Bearer bad")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_token", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	rec = performRequest(server, http.MethodGet, "/api/v1/shims", "", "Bearer good")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"shims":[{"key":"withings","label":"Withings","dataTypes":["body_weight"]}]}`, rec.Body.String())

	rec = performRequest(server, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_IssueToken(t *testing.T) {
	expires := time.Date(2024, 1, 10, 16, 30, 0, 0, time.UTC)
	authSvc := &stubAuth{
		issueFn: func(ctx context.Context, req auth.TokenRequest) (auth.TokenResponse, error) {
			if req.ClientID == "reporting" && req.ClientSecret == "s3cret" {
				return auth.TokenResponse{Token: "jwt", ExpiresAt: expires}, nil
			}
			return auth.TokenResponse{}, apperrors.Wrap("invalid_credentials", "invalid client credentials", nil)
		},
	}
	server := newRouterUnderTest(t, &stubShimService{}, authSvc, true)

	rec := performRequest(server, http.MethodPost, "/api/v1/auth/token", `{"clientId":"reporting","clientSecret":"s3cret"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"token":"jwt","expiresAt":"2024-01-10T16:30:00Z"}`, rec.Body.String())

	rec = performRequest(server, http.MethodPost, "/api/v1/auth/token", `{"clientId":"reporting","clientSecret":"nope"}`, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid_credentials", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])

	rec = performRequest(server, http.MethodPost, "/api/v1/auth/token", `{"clientId":`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_AccountLifecycle(t *testing.T) {
	var saved shim.AccountRequest
	var deleted []string
	svc := &stubShimService{
		saveFn: func(ctx context.Context, req shim.AccountRequest) (shim.AccountView, error) {
			saved = req
			return shim.AccountView{ShimKey: req.ShimKey, Username: req.Username, Scheme: req.Scheme}, nil
		},
		getAccountFn: func(ctx context.Context, shimKey, username string) (shim.AccountView, error) {
			return shim.AccountView{}, apperrors.Wrap(shim.CodeAccountNotFound, "account not found", nil)
		},
		deleteFn: func(ctx context.Context, shimKey, username string) error {
			deleted = append(deleted, shimKey+"/"+username)
			return nil
		},
	}
	server := newRouterUnderTest(t, svc, &stubAuth{}, false)

	rec := performRequest(server, http.MethodPut, "/api/v1/accounts/withings/alice",
		`{"scheme":"oauth1","accessToken":"tok","tokenSecret":"sec","additionalParameters":{"userid":"42"}}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "withings", saved.ShimKey)
	require.Equal(t, "alice", saved.Username)
	require.Equal(t, "tok", saved.AccessToken)
	require.Equal(t, "42", saved.AdditionalParameters["userid"])
	require.NotContains(t, rec.Body.String(), "tok")

	rec = performRequest(server, http.MethodGet, "/api/v1/accounts/withings/bob", "", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = performRequest(server, http.MethodDelete, "/api/v1/accounts/withings/alice", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"withings/alice"}, deleted)
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig(false)
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	server := NewRouter(cfg, NewHandler(&stubShimService{}, &stubAuth{}, newTestLogger()), &stubAuth{}, newTestLogger())

	rec := performRequest(server, http.MethodGet, "/api/v1/shims", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = performRequest(server, http.MethodGet, "/api/v1/shims", "", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limit_exceeded", decodeErrorBody(t, rec.Body.Bytes())["error"]["code"])
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.Greater(t, retryAfter, 0)
	require.LessOrEqual(t, retryAfter, 60)

	rec = performRequest(server, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimitIsPerClient(t *testing.T) {
	authSvc := &stubAuth{
		validateFn: func(ctx context.Context, token string) (auth.Claims, error) {
			return auth.Claims{ClientID: token}, nil
		},
	}
	cfg := testConfig(true)
	cfg.HTTP.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}
	server := NewRouter(cfg, NewHandler(&stubShimService{}, authSvc, newTestLogger()), authSvc, newTestLogger())

	// Both clients share one source IP in httptest.
	rec := performRequest(server, http.MethodGet, "/api/v1/shims", "", "Bearer reporting")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = performRequest(server, http.MethodGet, "/api/v1/shims", "", "Bearer dashboard")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = performRequest(server, http.MethodGet, "/api/v1/shims", "", "Bearer reporting")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCallerRateLimiter_RetryAfterTracksRefill(t *testing.T) {
	limiter := newCallerRateLimiter(config.RateLimitConfig{Enabled: true, RequestsPerMinute: 6, Burst: 1})
	now := fixedNow
	limiter.now = func() time.Time { return now }

	ok, _ := limiter.allow("client:a")
	require.True(t, ok)
	ok, wait := limiter.allow("client:a")
	require.False(t, ok)
	require.InDelta(t, float64(10*time.Second), float64(wait), float64(time.Millisecond))

	now = now.Add(4 * time.Second)
	ok, wait = limiter.allow("client:a")
	require.False(t, ok)
	require.InDelta(t, float64(6*time.Second), float64(wait), float64(time.Millisecond))

	now = now.Add(7 * time.Second)
	ok, _ = limiter.allow("client:a")
	require.True(t, ok)

	now = now.Add(10 * time.Minute)
	ok, _ = limiter.allow("client:b")
	require.True(t, ok)
	require.Len(t, limiter.buckets, 1)
}

func TestCallerRateLimiter_DisabledIsNil(t *testing.T) {
	require.Nil(t, newCallerRateLimiter(config.RateLimitConfig{Enabled: false, RequestsPerMinute: 10}))
	require.Nil(t, newCallerRateLimiter(config.RateLimitConfig{Enabled: true}))
}

func TestRouter_ServerErrorsHideCause(t *testing.T) {
	cause := errors.New("pq: password authentication failed for user \"shim\" at 10.0.0.5")
	cases := map[string]error{
		shim.CodeAccountError:     apperrors.Wrap(shim.CodeAccountError, "failed to load account", cause),
		shim.CodeDefect:           apperrors.Wrap(shim.CodeDefect, "failed to load account", cause),
		shim.CodeTransportFailure: apperrors.Wrap(shim.CodeTransportFailure, "failed to load account", cause),
	}
	for code, failure := range cases {
		svc := &stubShimService{
			getDataFn: func(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error) {
				return shim.DataResponse{}, failure
			},
		}
		server := newRouterUnderTest(t, svc, &stubAuth{}, false)
		rec := performRequest(server, http.MethodGet, "/api/v1/data/withings?username=alice&dataType=heart_rate", "", "")
		require.GreaterOrEqual(t, rec.Code, http.StatusInternalServerError, code)
		errBody := decodeErrorBody(t, rec.Body.Bytes())
		require.Equal(t, code, errBody["error"]["code"])
		require.Equal(t, "failed to load account", errBody["error"]["message"])
		require.NotContains(t, rec.Body.String(), "10.0.0.5")
	}
}

func TestRouter_ClientErrorsKeepDetail(t *testing.T) {
	svc := &stubShimService{
		getDataFn: func(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error) {
			return shim.DataResponse{}, apperrors.Wrap(shim.CodeInvalidInput, "invalid date range", errors.New("dateStart after dateEnd"))
		},
	}
	server := newRouterUnderTest(t, svc, &stubAuth{}, false)
	rec := performRequest(server, http.MethodGet, "/api/v1/data/withings?username=alice&dataType=heart_rate", "", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid date range: dateStart after dateEnd", decodeErrorBody(t, rec.Body.Bytes())["error"]["message"])
}

func TestRouter_CORSPreflight(t *testing.T) {
	cfg := testConfig(false)
	cfg.HTTP.AllowedOrigins = []string{"https://dash.example.com"}
	server := NewRouter(cfg, NewHandler(&stubShimService{}, &stubAuth{}, newTestLogger()), &stubAuth{}, newTestLogger())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/shims", nil)
	req.Header.Set("Origin", "https://Dash.example.com")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://Dash.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	require.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestRouter_CORSRejectsUnknownOrigin(t *testing.T) {
	cfg := testConfig(false)
	cfg.HTTP.AllowedOrigins = []string{"https://dash.example.com"}
	server := NewRouter(cfg, NewHandler(&stubShimService{}, &stubAuth{}, newTestLogger()), &stubAuth{}, newTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/shims", nil)
	req.Header.Set("Origin", "https://evil.example.org")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "Retry-After", rec.Header().Get("Access-Control-Expose-Headers"))
}

func TestRouter_CORSWildcardWhenUnconfigured(t *testing.T) {
	server := newRouterUnderTest(t, &stubShimService{}, &stubAuth{}, false)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/shims", nil)
	req.Header.Set("Origin", "https://anything.example.net")
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func performRequest(server *http.Server, method, path, body, authorization string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func testConfig(authEnabled bool) *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{
			Address:      ":0",
			ReadTimeout:  time.Second,
			WriteTimeout: time.Second,
		},
		Auth: config.AuthConfig{Enabled: authEnabled},
	}
}

func newRouterUnderTest(t *testing.T, svc shim.Service, authSvc auth.Service, authEnabled bool) *http.Server {
	t.Helper()
	handler := NewHandler(svc, authSvc, newTestLogger())
	handler.now = func() time.Time { return fixedNow }
	return NewRouter(testConfig(authEnabled), handler, authSvc, newTestLogger())
}

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(io.Discard, nil)
	return slog.New(handler)
}

type stubShimService struct {
	getDataFn    func(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error)
	saveFn       func(ctx context.Context, req shim.AccountRequest) (shim.AccountView, error)
	getAccountFn func(ctx context.Context, shimKey, username string) (shim.AccountView, error)
	deleteFn     func(ctx context.Context, shimKey, username string) error
}

func (s *stubShimService) Shims(ctx context.Context) []shim.Info {
	return []shim.Info{{Key: "withings", Label: "Withings", DataTypes: []string{"body_weight"}}}
}

func (s *stubShimService) GetData(ctx context.Context, req shim.DataRequest) (shim.DataResponse, error) {
	if s.getDataFn != nil {
		return s.getDataFn(ctx, req)
	}
	return shim.DataResponse{}, nil
}

func (s *stubShimService) SaveAccount(ctx context.Context, req shim.AccountRequest) (shim.AccountView, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, req)
	}
	return shim.AccountView{}, nil
}

func (s *stubShimService) GetAccount(ctx context.Context, shimKey, username string) (shim.AccountView, error) {
	if s.getAccountFn != nil {
		return s.getAccountFn(ctx, shimKey, username)
	}
	return shim.AccountView{}, nil
}

func (s *stubShimService) ListAccounts(ctx context.Context) ([]shim.AccountView, error) {
	return nil, nil
}

func (s *stubShimService) DeleteAccount(ctx context.Context, shimKey, username string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, shimKey, username)
	}
	return nil
}

type stubAuth struct {
	issueFn    func(ctx context.Context, req auth.TokenRequest) (auth.TokenResponse, error)
	validateFn func(ctx context.Context, token string) (auth.Claims, error)
}

func (s *stubAuth) IssueToken(ctx context.Context, req auth.TokenRequest) (auth.TokenResponse, error) {
	if s.issueFn != nil {
		return s.issueFn(ctx, req)
	}
	return auth.TokenResponse{}, nil
}

func (s *stubAuth) ValidateToken(ctx context.Context, token string) (auth.Claims, error) {
	if s.validateFn != nil {
		return s.validateFn(ctx, token)
	}
	return auth.Claims{}, nil
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
