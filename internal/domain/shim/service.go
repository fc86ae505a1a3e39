package shim

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	apperrors "github.com/yanqian/shim-server/pkg/errors"
	"github.com/yanqian/shim-server/pkg/util"
)

// Service exposes data retrieval and access parameter management across registered shims.
type Service interface {
	Shims(ctx context.Context) []Info
	GetData(ctx context.Context, req DataRequest) (DataResponse, error)
	SaveAccount(ctx context.Context, req AccountRequest) (AccountView, error)
	GetAccount(ctx context.Context, shimKey, username string) (AccountView, error)
	ListAccounts(ctx context.Context) ([]AccountView, error)
	DeleteAccount(ctx context.Context, shimKey, username string) error
}

type service struct {
	shims  map[string]Shim
	keys   []string
	repo   Repository
	cipher *tokenCipher
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service over the given shims.
func NewService(cfg Config, shims []Shim, repo Repository, logger *slog.Logger) (Service, error) {
	tc, err := newTokenCipher(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("token cipher: %w", err)
	}
	logger = logger.With("component", "shim.service")
	if !tc.enabled() {
		logger.Warn("token encryption key not configured; access tokens are stored in plaintext")
	}
	registry := make(map[string]Shim, len(shims))
	keys := make([]string, 0, len(shims))
	for _, sh := range shims {
		key := normalizeKey(sh.Key())
		if _, dup := registry[key]; dup {
			return nil, fmt.Errorf("duplicate shim key %q", key)
		}
		registry[key] = sh
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return &service{
		shims:  registry,
		keys:   keys,
		repo:   repo,
		cipher: tc,
		logger: logger,
		now:    util.NowUTC,
	}, nil
}

func (s *service) Shims(ctx context.Context) []Info {
	out := make([]Info, 0, len(s.keys))
	for _, key := range s.keys {
		sh := s.shims[key]
		out = append(out, Info{Key: key, Label: sh.Label(), DataTypes: sh.DataTypes()})
	}
	return out
}

func (s *service) GetData(ctx context.Context, req DataRequest) (DataResponse, error) {
	sh, err := s.lookup(req.ShimKey)
	if err != nil {
		return DataResponse{}, err
	}
	dataType := strings.ToLower(strings.TrimSpace(req.DataType))
	if !supports(sh, dataType) {
		return DataResponse{}, apperrors.Wrap(CodeUnknownDataType, fmt.Sprintf("data type %q is not supported by %s", req.DataType, sh.Key()), nil)
	}
	req.DataType = dataType
	req.ShimKey = normalizeKey(req.ShimKey)
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		return DataResponse{}, apperrors.Wrap(CodeInvalidInput, "username cannot be empty", nil)
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return DataResponse{}, apperrors.Wrap(CodeInvalidInput, "date range is required", nil)
	}
	if req.End.Before(req.Start) {
		return DataResponse{}, apperrors.Wrap(CodeInvalidInput, "dateStart must not be after dateEnd", nil)
	}

	access, err := s.loadAccess(ctx, req.ShimKey, req.Username)
	if err != nil {
		return DataResponse{}, err
	}

	result, err := sh.GetData(ctx, req, access)
	if err != nil {
		s.logger.Warn("shim request failed",
			"shim", req.ShimKey,
			"dataType", req.DataType,
			"username", req.Username,
			"code", apperrors.CodeOf(err),
			"error", err,
		)
		return DataResponse{}, err
	}
	return DataResponse{
		Shim:      req.ShimKey,
		Timestamp: s.now().Unix(),
		Body:      result.Body(),
	}, nil
}

func (s *service) SaveAccount(ctx context.Context, req AccountRequest) (AccountView, error) {
	sh, err := s.lookup(req.ShimKey)
	if err != nil {
		return AccountView{}, err
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return AccountView{}, apperrors.Wrap(CodeInvalidInput, "username cannot be empty", nil)
	}
	scheme := req.Scheme
	if scheme == "" {
		scheme = SchemeOAuth1
	}
	switch scheme {
	case SchemeOAuth1:
		if strings.TrimSpace(req.TokenSecret) == "" {
			return AccountView{}, apperrors.Wrap(CodeInvalidInput, "oauth1 accounts require a token secret", nil)
		}
	case SchemeOAuth2:
	default:
		return AccountView{}, apperrors.Wrap(CodeInvalidInput, fmt.Sprintf("unsupported scheme %q", req.Scheme), nil)
	}
	if strings.TrimSpace(req.AccessToken) == "" {
		return AccountView{}, apperrors.Wrap(CodeInvalidInput, "access token cannot be empty", nil)
	}

	params := AccessParameters{
		ShimKey:              normalizeKey(req.ShimKey),
		Username:             username,
		Scheme:               scheme,
		AccessToken:          strings.TrimSpace(req.AccessToken),
		TokenSecret:          strings.TrimSpace(req.TokenSecret),
		RefreshToken:         strings.TrimSpace(req.RefreshToken),
		ExpiresAt:            req.ExpiresAt,
		AdditionalParameters: trimParams(req.AdditionalParameters),
	}
	if v, ok := sh.(AccountValidator); ok {
		if err := v.ValidateAccount(params); err != nil {
			return AccountView{}, err
		}
	}
	sealed, err := s.cipher.sealAccess(params)
	if err != nil {
		return AccountView{}, apperrors.Wrap(CodeAccountError, "failed to encrypt access tokens", err)
	}
	saved, err := s.repo.Save(ctx, sealed)
	if err != nil {
		return AccountView{}, apperrors.Wrap(CodeAccountError, "failed to save account", err)
	}
	s.logger.Info("account saved", "shim", saved.ShimKey, "username", saved.Username, "scheme", saved.Scheme)
	return toView(saved), nil
}

func (s *service) GetAccount(ctx context.Context, shimKey, username string) (AccountView, error) {
	if _, err := s.lookup(shimKey); err != nil {
		return AccountView{}, err
	}
	params, found, err := s.repo.Get(ctx, normalizeKey(shimKey), strings.TrimSpace(username))
	if err != nil {
		return AccountView{}, apperrors.Wrap(CodeAccountError, "failed to load account", err)
	}
	if !found {
		return AccountView{}, apperrors.Wrap(CodeAccountNotFound, "account not found", nil)
	}
	return toView(params), nil
}

func (s *service) ListAccounts(ctx context.Context) ([]AccountView, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(CodeAccountError, "failed to list accounts", err)
	}
	out := make([]AccountView, 0, len(all))
	for _, params := range all {
		out = append(out, toView(params))
	}
	return out, nil
}

func (s *service) DeleteAccount(ctx context.Context, shimKey, username string) error {
	if _, err := s.lookup(shimKey); err != nil {
		return err
	}
	removed, err := s.repo.Delete(ctx, normalizeKey(shimKey), strings.TrimSpace(username))
	if err != nil {
		return apperrors.Wrap(CodeAccountError, "failed to delete account", err)
	}
	if !removed {
		return apperrors.Wrap(CodeAccountNotFound, "account not found", nil)
	}
	return nil
}

func (s *service) lookup(shimKey string) (Shim, error) {
	key := normalizeKey(shimKey)
	if key == "" {
		return nil, apperrors.Wrap(CodeInvalidInput, "shim cannot be empty", nil)
	}
	sh, ok := s.shims[key]
	if !ok {
		return nil, apperrors.Wrap(CodeUnknownShim, fmt.Sprintf("unknown shim %q", shimKey), nil)
	}
	return sh, nil
}

func (s *service) loadAccess(ctx context.Context, shimKey, username string) (AccessParameters, error) {
	params, found, err := s.repo.Get(ctx, shimKey, username)
	if err != nil {
		return AccessParameters{}, apperrors.Wrap(CodeAccountError, "failed to load access parameters", err)
	}
	if !found {
		return AccessParameters{}, apperrors.Wrap(CodeAccountNotFound, fmt.Sprintf("no %s account for user %q", shimKey, username), nil)
	}
	opened, err := s.cipher.openAccess(params)
	if err != nil {
		return AccessParameters{}, apperrors.Wrap(CodeAccountError, "failed to decrypt access tokens", err)
	}
	return opened, nil
}

func supports(sh Shim, dataType string) bool {
	for _, dt := range sh.DataTypes() {
		if dt == dataType {
			return true
		}
	}
	return false
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func trimParams(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

func toView(params AccessParameters) AccountView {
	return AccountView{
		ShimKey:              params.ShimKey,
		Username:             params.Username,
		Scheme:               params.Scheme,
		ExpiresAt:            params.ExpiresAt,
		AdditionalParameters: params.AdditionalParameters,
		CreatedAt:            params.CreatedAt,
		UpdatedAt:            params.UpdatedAt,
	}
}
