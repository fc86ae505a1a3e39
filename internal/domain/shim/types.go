package shim

import (
	"encoding/json"
	"time"
)

// Config drives shim service behavior.
type Config struct {
	// TokenEncryptionKey enables AES-GCM encryption of stored tokens when set (16, 24 or 32 bytes).
	TokenEncryptionKey string
}

// Scheme names the authorization scheme an account's tokens belong to.
type Scheme string

const (
	SchemeOAuth1 Scheme = "oauth1"
	SchemeOAuth2 Scheme = "oauth2"
)

// AccessParameters are the stored credentials of one user at one vendor.
type AccessParameters struct {
	ShimKey              string
	Username             string
	Scheme               Scheme
	AccessToken          string
	TokenSecret          string
	RefreshToken         string
	ExpiresAt            *time.Time
	AdditionalParameters map[string]string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Param looks up a vendor specific additional parameter.
func (a AccessParameters) Param(key string) (string, bool) {
	if a.AdditionalParameters == nil {
		return "", false
	}
	v, ok := a.AdditionalParameters[key]
	return v, ok
}

// DataRequest is a caller's request for one data type over a date range.
type DataRequest struct {
	ShimKey   string
	Username  string
	DataType  string
	Start     time.Time
	End       time.Time
	Normalize bool
}

// Result is what a shim produced: normalized data points or the untouched vendor document.
type Result struct {
	normalized bool
	DataPoints []DataPoint
	Raw        json.RawMessage
}

// NormalizedResult wraps mapped data points.
func NormalizedResult(points []DataPoint) Result {
	if points == nil {
		points = []DataPoint{}
	}
	return Result{normalized: true, DataPoints: points}
}

// RawResult wraps a vendor document verbatim.
func RawResult(raw json.RawMessage) Result {
	return Result{Raw: raw}
}

// Normalized reports whether the result holds data points.
func (r Result) Normalized() bool {
	return r.normalized
}

// Body returns the value to serialize as the response body.
func (r Result) Body() any {
	if r.normalized {
		return r.DataPoints
	}
	return r.Raw
}

// DataResponse is the envelope returned to API callers.
type DataResponse struct {
	Shim      string `json:"shim"`
	Timestamp int64  `json:"timeStamp"`
	Body      any    `json:"body"`
}

// Info describes a registered shim.
type Info struct {
	Key       string   `json:"key"`
	Label     string   `json:"label"`
	DataTypes []string `json:"dataTypes"`
}

// VendorRequest is one authorized GET against a vendor API.
type VendorRequest struct {
	ShimKey  string
	DataType string
	URL      string
	Access   AccessParameters
	// Cacheable reports whether a fetched body may be served again from cache.
	// A nil func caches every successful body.
	Cacheable func(body []byte) bool
}

// AccountRequest carries access parameters obtained from a completed authorization handshake.
type AccountRequest struct {
	ShimKey              string            `json:"-"`
	Username             string            `json:"-"`
	Scheme               Scheme            `json:"scheme"`
	AccessToken          string            `json:"accessToken"`
	TokenSecret          string            `json:"tokenSecret"`
	RefreshToken         string            `json:"refreshToken"`
	ExpiresAt            *time.Time        `json:"expiresAt"`
	AdditionalParameters map[string]string `json:"additionalParameters"`
}

// AccountView trims token material.
type AccountView struct {
	ShimKey              string            `json:"shim"`
	Username             string            `json:"username"`
	Scheme               Scheme            `json:"scheme"`
	ExpiresAt            *time.Time        `json:"expiresAt,omitempty"`
	AdditionalParameters map[string]string `json:"additionalParameters,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}
