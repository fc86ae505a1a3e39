package withings

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

type fakeFetcher struct {
	body     []byte
	err      error
	requests []shim.VendorRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req shim.VendorRequest) ([]byte, error) {
	f.requests = append(f.requests, req)
	return f.body, f.err
}

type failingFetcher struct {
	t *testing.T
}

func (f failingFetcher) Fetch(context.Context, shim.VendorRequest) ([]byte, error) {
	f.t.Fatal("fetcher must not be invoked")
	return nil, nil
}

func newTestShim(t *testing.T, cfg Config, fetcher shim.Fetcher) *Shim {
	t.Helper()
	s, err := NewShim(cfg, fetcher, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func testAccess(params map[string]string) shim.AccessParameters {
	return shim.AccessParameters{
		ShimKey:              Key,
		Username:             "alice",
		Scheme:               shim.SchemeOAuth1,
		AccessToken:          "token",
		TokenSecret:          "secret",
		AdditionalParameters: params,
	}
}

func TestShim_UnknownDataTypeNeverReachesTransport(t *testing.T) {
	s := newTestShim(t, Config{}, failingFetcher{t: t})
	_, err := s.GetData(context.Background(), shim.DataRequest{
		ShimKey:  Key,
		Username: "alice",
		DataType: "blood_glucose",
		Start:    jan1,
		End:      jan3,
	}, testAccess(map[string]string{"userid": "1"}))
	require.True(t, apperrors.IsCode(err, shim.CodeUnknownDataType))
}

func TestShim_MissingUserIDNeverReachesTransport(t *testing.T) {
	s := newTestShim(t, Config{}, failingFetcher{t: t})
	_, err := s.GetData(context.Background(), shim.DataRequest{DataType: "body_weight", Start: jan1, End: jan3}, testAccess(nil))
	require.True(t, apperrors.IsCode(err, shim.CodeAccountIncomplete))
	require.Error(t, s.ValidateAccount(testAccess(nil)))
	require.NoError(t, s.ValidateAccount(testAccess(map[string]string{"userid": "9"})))
}

func TestShim_NormalizedIntradaySteps(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`{"status":0,"body":{"series":{"1704067200":{"steps":40,"duration":60}}}}`)}
	s := newTestShim(t, Config{BaseURL: "https://api.test", IntradayDataAvailable: true}, fetcher)

	res, err := s.GetData(context.Background(), shim.DataRequest{
		DataType:  "step_count",
		Start:     jan1,
		End:       jan3,
		Normalize: true,
	}, testAccess(map[string]string{"userid": "42"}))
	require.NoError(t, err)
	require.True(t, res.Normalized())
	require.Len(t, res.DataPoints, 1)
	require.Equal(t, 40.0, res.DataPoints[0].Body.(shim.StepCount).StepCount)

	require.Len(t, fetcher.requests, 1)
	sent := fetcher.requests[0]
	require.Equal(t, Key, sent.ShimKey)
	require.Equal(t, "step_count", sent.DataType)
	require.Equal(t, "token", sent.Access.AccessToken)
	u, err := url.Parse(sent.URL)
	require.NoError(t, err)
	require.Equal(t, "/v2/measure", u.Path)
	require.Equal(t, "getintradayactivity", u.Query().Get("action"))
	require.Equal(t, "42", u.Query().Get("userid"))
}

func TestShim_AccountOverridesIntradayDefault(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`{"status":0,"body":{"activities":[{"date":"2024-01-01","steps":5}]}}`)}
	s := newTestShim(t, Config{IntradayDataAvailable: true}, fetcher)

	res, err := s.GetData(context.Background(), shim.DataRequest{DataType: "step_count", Start: jan1, End: jan3, Normalize: true},
		testAccess(map[string]string{"userid": "42", "intraday": "false"}))
	require.NoError(t, err)
	require.Len(t, res.DataPoints, 1)
	u, err := url.Parse(fetcher.requests[0].URL)
	require.NoError(t, err)
	require.Equal(t, "getactivity", u.Query().Get("action"))
	require.Equal(t, "2024-01-01", u.Query().Get("startdateymd"))
}

func TestShim_RawResponse(t *testing.T) {
	doc := `{"status":0,"body":{"measuregrps":[]}}`
	s := newTestShim(t, Config{}, &fakeFetcher{body: []byte(doc)})

	res, err := s.GetData(context.Background(), shim.DataRequest{DataType: "blood_pressure", Start: jan1, End: jan3}, testAccess(map[string]string{"userid": "1"}))
	require.NoError(t, err)
	require.False(t, res.Normalized())
	require.JSONEq(t, doc, string(res.Raw))
}

func TestShim_OnlySuccessfulEnvelopesAreCacheable(t *testing.T) {
	fetcher := &fakeFetcher{body: []byte(`{"status":401,"error":"invalid_token"}`)}
	s := newTestShim(t, Config{}, fetcher)

	_, err := s.GetData(context.Background(), shim.DataRequest{DataType: "body_weight", Start: jan1, End: jan3}, testAccess(map[string]string{"userid": "1"}))
	require.NoError(t, err)
	require.Len(t, fetcher.requests, 1)

	isCacheable := fetcher.requests[0].Cacheable
	require.NotNil(t, isCacheable)
	require.False(t, isCacheable([]byte(`{"status":401,"error":"invalid_token"}`)))
	require.False(t, isCacheable([]byte(`not json`)))
	require.True(t, isCacheable([]byte(`{"status":0,"body":{}}`)))
}

func TestShim_TransportFailureCarriesContext(t *testing.T) {
	s := newTestShim(t, Config{}, &fakeFetcher{err: errors.New("connection reset")})

	_, err := s.GetData(context.Background(), shim.DataRequest{DataType: "heart_rate", Start: jan1, End: jan3}, testAccess(map[string]string{"userid": "1"}))
	require.True(t, apperrors.IsCode(err, shim.CodeTransportFailure))
	require.Contains(t, err.Error(), "could not fetch data")
	require.Contains(t, err.Error(), "heart_rate")
	require.Contains(t, err.Error(), "2024-01-01T00:00:00Z")
}

func TestShim_MalformedResponse(t *testing.T) {
	s := newTestShim(t, Config{}, &fakeFetcher{body: []byte(`{"status":0,"body":{"series":`)})

	_, err := s.GetData(context.Background(), shim.DataRequest{DataType: "sleep_duration", Start: jan1, End: jan3, Normalize: true}, testAccess(map[string]string{"userid": "1"}))
	require.True(t, apperrors.IsCode(err, shim.CodeMalformedResponse))
	require.Contains(t, err.Error(), "sleep_duration")
}

func TestShim_Describe(t *testing.T) {
	s := newTestShim(t, Config{}, &fakeFetcher{})
	require.Equal(t, "withings", s.Key())
	require.Equal(t, "Withings", s.Label())
	require.Equal(t, []string{
		"blood_pressure", "body_height", "body_weight", "calories_burned", "heart_rate", "sleep_duration", "step_count",
	}, s.DataTypes())
}
