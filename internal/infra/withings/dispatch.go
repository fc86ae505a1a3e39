package withings

import (
	"encoding/json"
	"fmt"

	"github.com/yanqian/shim-server/internal/domain/shim"
	apperrors "github.com/yanqian/shim-server/pkg/errors"
)

// Mapper converts vendor response documents into normalized data points.
type Mapper interface {
	AsDataPoints(responses []json.RawMessage) ([]shim.DataPoint, error)
}

// Variant is a data type together with whether its intraday operation was requested.
type Variant struct {
	DataType DataType
	Intraday bool
}

func (v Variant) String() string {
	if v.Intraday {
		return v.DataType.String() + "/intraday"
	}
	return v.DataType.String()
}

// Variants lists every combination the request builder can produce.
func Variants() []Variant {
	out := make([]Variant, 0, len(DataTypes)+len(intradayTypes))
	for _, dt := range DataTypes {
		out = append(out, Variant{DataType: dt})
		if intradayTypes[dt] {
			out = append(out, Variant{DataType: dt, Intraday: true})
		}
	}
	return out
}

// DefaultMappers returns the normalizer for every variant.
func DefaultMappers() map[Variant]Mapper {
	return map[Variant]Mapper{
		{DataType: BloodPressure}:                  bloodPressureMapper{},
		{DataType: BodyHeight}:                     newBodyHeightMapper(),
		{DataType: BodyWeight}:                     newBodyWeightMapper(),
		{DataType: CaloriesBurned}:                 dailyActivityMapper{field: fieldCalories},
		{DataType: CaloriesBurned, Intraday: true}: intradayActivityMapper{field: fieldCalories},
		{DataType: HeartRate}:                      newHeartRateMapper(),
		{DataType: SleepDuration}:                  sleepDurationMapper{},
		{DataType: StepCount}:                      dailyActivityMapper{field: fieldSteps},
		{DataType: StepCount, Intraday: true}:      intradayActivityMapper{field: fieldSteps},
	}
}

// Dispatcher routes vendor responses to the mapper of the variant that was requested.
type Dispatcher struct {
	mappers map[Variant]Mapper
}

// NewDispatcher fails when any reachable variant has no mapper.
func NewDispatcher(mappers map[Variant]Mapper) (*Dispatcher, error) {
	table := make(map[Variant]Mapper, len(mappers))
	for _, v := range Variants() {
		m, ok := mappers[v]
		if !ok || m == nil {
			return nil, apperrors.Wrap(shim.CodeDefect, fmt.Sprintf("no mapper registered for %s", v), nil)
		}
		table[v] = m
	}
	return &Dispatcher{mappers: table}, nil
}

// Dispatch returns body verbatim when normalize is false, otherwise the mapped data points.
func (d *Dispatcher) Dispatch(dt DataType, caps AccountCapabilities, normalize bool, body []byte) (shim.Result, error) {
	if _, ok := descriptors[dt]; !ok {
		return shim.Result{}, apperrors.Wrap(shim.CodeDefect, fmt.Sprintf("dispatch reached with unsupported %s", dt), nil)
	}
	if !json.Valid(body) {
		return shim.Result{}, malformed("response is not valid json", nil)
	}
	raw := json.RawMessage(append([]byte(nil), body...))
	if !normalize {
		return shim.RawResult(raw), nil
	}
	v := Variant{DataType: dt, Intraday: IsIntradayActiveFor(dt, caps)}
	m, ok := d.mappers[v]
	if !ok {
		return shim.Result{}, apperrors.Wrap(shim.CodeDefect, fmt.Sprintf("no mapper registered for %s", v), nil)
	}
	points, err := m.AsDataPoints([]json.RawMessage{raw})
	if err != nil {
		return shim.Result{}, err
	}
	return shim.NormalizedResult(points), nil
}
