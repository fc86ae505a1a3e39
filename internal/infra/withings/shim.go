package withings

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

// Key identifies the Withings shim.
const Key = "withings"

// Config holds process-wide Withings settings.
type Config struct {
	BaseURL string
	// IntradayDataAvailable is the default for accounts without an "intraday" parameter.
	IntradayDataAvailable bool
}

// Shim serves Withings data through a Fetcher.
type Shim struct {
	builder         RequestBuilder
	dispatcher      *Dispatcher
	fetcher         shim.Fetcher
	intradayDefault bool
	logger          *slog.Logger
}

var _ shim.Shim = (*Shim)(nil)
var _ shim.AccountValidator = (*Shim)(nil)

// NewShim wires the builder and dispatcher around fetcher.
func NewShim(cfg Config, fetcher shim.Fetcher, logger *slog.Logger) (*Shim, error) {
	dispatcher, err := NewDispatcher(DefaultMappers())
	if err != nil {
		return nil, err
	}
	return &Shim{
		builder:         NewRequestBuilder(cfg.BaseURL),
		dispatcher:      dispatcher,
		fetcher:         fetcher,
		intradayDefault: cfg.IntradayDataAvailable,
		logger:          logger.With("component", "withings.shim"),
	}, nil
}

func (s *Shim) Key() string   { return Key }
func (s *Shim) Label() string { return "Withings" }

func (s *Shim) DataTypes() []string {
	keys := make([]string, 0, len(DataTypes))
	for _, dt := range DataTypes {
		keys = append(keys, dt.String())
	}
	return keys
}

// ValidateAccount rejects access parameters that cannot produce a vendor query.
func (s *Shim) ValidateAccount(access shim.AccessParameters) error {
	_, err := ResolveCapabilities(access, s.intradayDefault)
	return err
}

// GetData builds, fetches and dispatches one request.
func (s *Shim) GetData(ctx context.Context, req shim.DataRequest, access shim.AccessParameters) (shim.Result, error) {
	dt, err := ParseDataType(req.DataType)
	if err != nil {
		return shim.Result{}, err
	}
	scope := describe(dt, req.Start, req.End)

	caps, err := ResolveCapabilities(access, s.intradayDefault)
	if err != nil {
		return shim.Result{}, fmt.Errorf("%s: %w", scope, err)
	}
	query, err := s.builder.Build(Request{DataType: dt, Start: req.Start, End: req.End}, caps)
	if err != nil {
		return shim.Result{}, fmt.Errorf("%s: %w", scope, err)
	}

	body, err := s.fetcher.Fetch(ctx, shim.VendorRequest{
		ShimKey:   Key,
		DataType:  dt.String(),
		URL:       query.URL(),
		Access:    access,
		Cacheable: cacheable,
	})
	if err != nil {
		if apperrors.CodeOf(err) == "" {
			err = apperrors.Wrap(shim.CodeTransportFailure, "could not fetch data", err)
		}
		return shim.Result{}, fmt.Errorf("%s: %w", scope, err)
	}

	result, err := s.dispatcher.Dispatch(dt, caps, req.Normalize, body)
	if err != nil {
		return shim.Result{}, fmt.Errorf("%s: %w", scope, err)
	}
	s.logger.Debug("withings data served",
		"dataType", dt.String(),
		"intraday", IsIntradayActiveFor(dt, caps),
		"normalized", req.Normalize,
		"points", len(result.DataPoints),
	)
	return result, nil
}

func describe(dt DataType, start, end time.Time) string {
	return fmt.Sprintf("withings %s [%s, %s]", dt, start.Format(time.RFC3339), end.Format(time.RFC3339))
}
