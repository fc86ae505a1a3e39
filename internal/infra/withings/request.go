package withings

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

const (
	defaultBaseURL = "https://wbsapi.withings.net"
	ymdLayout      = "2006-01-02"
	realMeasures   = "1"
)

// Request asks for one data type over an inclusive range of instants.
type Request struct {
	DataType DataType
	Start    time.Time
	End      time.Time
}

// Query is an assembled, unsigned vendor request.
type Query struct {
	BaseURL string
	Path    string
	Params  url.Values
}

// URL renders the query with parameters in sorted order, so equal queries render identically.
func (q Query) URL() string {
	return q.BaseURL + "/" + q.Path + "?" + q.Params.Encode()
}

// RequestBuilder turns requests into vendor queries.
type RequestBuilder struct {
	baseURL string
}

// NewRequestBuilder returns a builder rooted at baseURL, or the public Withings API when empty.
func NewRequestBuilder(baseURL string) RequestBuilder {
	base := strings.TrimSpace(baseURL)
	if base == "" {
		base = defaultBaseURL
	}
	return RequestBuilder{baseURL: strings.TrimRight(base, "/")}
}

// Build assembles the vendor query for req.
func (b RequestBuilder) Build(req Request, caps AccountCapabilities) (Query, error) {
	desc, err := DescriptorFor(req.DataType)
	if err != nil {
		return Query{}, err
	}
	if req.End.Before(req.Start) {
		return Query{}, apperrors.Wrap(shim.CodeInvalidInput, "start must not be after end", nil)
	}
	if strings.TrimSpace(caps.ExternalUserID) == "" {
		return Query{}, apperrors.Wrap(shim.CodeAccountIncomplete, "external user id is required", nil)
	}
	intraday := IsIntradayActiveFor(req.DataType, caps)

	params := url.Values{}
	params.Set("userid", caps.ExternalUserID)

	if desc.UsesEpochSeconds || intraday {
		// the vendor end bound is exclusive at day granularity
		params.Set("startdate", strconv.FormatInt(req.Start.Unix(), 10))
		params.Set("enddate", strconv.FormatInt(req.End.AddDate(0, 0, 1).Unix(), 10))
	} else {
		params.Set("startdateymd", req.Start.Format(ymdLayout))
		params.Set("enddateymd", req.End.Format(ymdLayout))
	}

	action := desc.Action
	if intraday {
		action = actionGetIntradayActivity
	}
	params.Set("action", action)

	if desc.Action == actionGetMeas {
		if code, ok := measureTypes[req.DataType]; ok {
			params.Set("meastype", strconv.Itoa(int(code)))
		} else if req.DataType != BloodPressure {
			return Query{}, apperrors.Wrap(shim.CodeDefect, fmt.Sprintf("no measure type for %s", req.DataType), nil)
		}
		params.Set("category", realMeasures)
	}

	return Query{BaseURL: b.baseURL, Path: desc.Endpoint, Params: params}, nil
}
