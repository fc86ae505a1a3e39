package withings

import (
	"fmt"
	"strings"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

// DataType enumerates the data types the Withings API can serve.
type DataType int

const (
	BloodPressure DataType = iota + 1
	BodyHeight
	BodyWeight
	CaloriesBurned
	HeartRate
	SleepDuration
	StepCount
)

// DataTypes lists every supported type in key order.
var DataTypes = []DataType{
	BloodPressure,
	BodyHeight,
	BodyWeight,
	CaloriesBurned,
	HeartRate,
	SleepDuration,
	StepCount,
}

var dataTypeKeys = map[DataType]string{
	BloodPressure:  "blood_pressure",
	BodyHeight:     "body_height",
	BodyWeight:     "body_weight",
	CaloriesBurned: "calories_burned",
	HeartRate:      "heart_rate",
	SleepDuration:  "sleep_duration",
	StepCount:      "step_count",
}

func (dt DataType) String() string {
	if key, ok := dataTypeKeys[dt]; ok {
		return key
	}
	return fmt.Sprintf("DataType(%d)", int(dt))
}

// ParseDataType resolves a request key such as "step_count", ignoring case and surrounding space.
func ParseDataType(key string) (DataType, error) {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for dt, k := range dataTypeKeys {
		if k == normalized {
			return dt, nil
		}
	}
	return 0, apperrors.Wrap(shim.CodeUnknownDataType, fmt.Sprintf("unknown withings data type %q", key), nil)
}

// Descriptor is how the vendor exposes one data type.
type Descriptor struct {
	Endpoint         string
	Action           string
	UsesEpochSeconds bool
}

const (
	actionGetMeas             = "getmeas"
	actionGetActivity         = "getactivity"
	actionGetSummary          = "getsummary"
	actionGetIntradayActivity = "getintradayactivity"
)

var descriptors = map[DataType]Descriptor{
	BloodPressure:  {Endpoint: "measure", Action: actionGetMeas, UsesEpochSeconds: true},
	BodyHeight:     {Endpoint: "measure", Action: actionGetMeas, UsesEpochSeconds: true},
	BodyWeight:     {Endpoint: "measure", Action: actionGetMeas, UsesEpochSeconds: true},
	CaloriesBurned: {Endpoint: "v2/measure", Action: actionGetActivity},
	HeartRate:      {Endpoint: "measure", Action: actionGetMeas, UsesEpochSeconds: true},
	SleepDuration:  {Endpoint: "v2/sleep", Action: actionGetSummary},
	StepCount:      {Endpoint: "v2/measure", Action: actionGetActivity},
}

// DescriptorFor returns the vendor descriptor of dt.
func DescriptorFor(dt DataType) (Descriptor, error) {
	d, ok := descriptors[dt]
	if !ok {
		return Descriptor{}, apperrors.Wrap(shim.CodeUnknownDataType, fmt.Sprintf("no descriptor for %s", dt), nil)
	}
	return d, nil
}

// MeasureType is the vendor's numeric code for a single body measure.
type MeasureType int

const (
	MeasureWeight            MeasureType = 1
	MeasureHeight            MeasureType = 4
	MeasureDiastolicPressure MeasureType = 9
	MeasureSystolicPressure  MeasureType = 10
	MeasureHeartPulse        MeasureType = 11
)

// measureTypes narrows getmeas to one metric. Blood pressure is absent because it spans two measures.
var measureTypes = map[DataType]MeasureType{
	BodyHeight: MeasureHeight,
	BodyWeight: MeasureWeight,
	HeartRate:  MeasureHeartPulse,
}
