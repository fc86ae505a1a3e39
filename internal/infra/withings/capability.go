package withings

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

const (
	paramUserID   = "userid"
	paramIntraday = "intraday"
)

// AccountCapabilities are the per-account facts that shape a vendor query.
type AccountCapabilities struct {
	IntradayAvailable bool
	ExternalUserID    string
}

// intradayTypes is the closed set of types with a vendor-side intraday variant.
var intradayTypes = map[DataType]bool{
	StepCount:      true,
	CaloriesBurned: true,
}

// IsIntradayActiveFor reports whether dt should be served from the intraday activity operation.
func IsIntradayActiveFor(dt DataType, caps AccountCapabilities) bool {
	return caps.IntradayAvailable && intradayTypes[dt]
}

// ResolveCapabilities derives capabilities from stored access parameters.
// A per-account "intraday" parameter overrides the process-wide default.
func ResolveCapabilities(access shim.AccessParameters, intradayDefault bool) (AccountCapabilities, error) {
	userID, _ := access.Param(paramUserID)
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return AccountCapabilities{}, apperrors.Wrap(shim.CodeAccountIncomplete, "withings account is missing the userid parameter", nil)
	}
	caps := AccountCapabilities{IntradayAvailable: intradayDefault, ExternalUserID: userID}
	if raw, ok := access.Param(paramIntraday); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return AccountCapabilities{}, apperrors.Wrap(shim.CodeAccountIncomplete, fmt.Sprintf("invalid intraday parameter %q", raw), err)
		}
		caps.IntradayAvailable = v
	}
	return caps, nil
}
