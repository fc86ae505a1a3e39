package withings

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

const sourceName = "Withings"

// envelope is the wrapper every Withings response shares.
type envelope struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
	Error  string          `json:"error"`
}

// decodeBody checks the vendor status and decodes the body into v.
func decodeBody(response json.RawMessage, v any) error {
	var env envelope
	if err := json.Unmarshal(response, &env); err != nil {
		return malformed("decode response envelope", err)
	}
	if env.Status != 0 {
		msg := fmt.Sprintf("vendor status %d", env.Status)
		if env.Error != "" {
			msg += ": " + env.Error
		}
		return malformed(msg, nil)
	}
	if len(env.Body) == 0 || string(env.Body) == "null" {
		return malformed("response has no body", nil)
	}
	if err := json.Unmarshal(env.Body, v); err != nil {
		return malformed("decode response body", err)
	}
	return nil
}

// cacheable accepts only successful envelopes, since Withings reports
// authorization and quota errors with HTTP 200.
func cacheable(body []byte) bool {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	return env.Status == 0
}

func malformed(message string, err error) error {
	return apperrors.Wrap(shim.CodeMalformedResponse, message, err)
}

func provenance(modality shim.Modality) shim.AcquisitionProvenance {
	return shim.AcquisitionProvenance{SourceName: sourceName, Modality: modality}
}

// locationOf resolves a vendor timezone name, falling back to UTC.
func locationOf(tz string) *time.Location {
	if strings.TrimSpace(tz) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func epoch(seconds int64, loc *time.Location) time.Time {
	return time.Unix(seconds, 0).In(loc)
}
