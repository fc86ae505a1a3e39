package withings

import (
	"encoding/json"
	"math"
	"time"

	"github.com/yanqian/shim-server/internal/domain/shim"
)

type measureBody struct {
	MeasureGroups []measureGroup `json:"measuregrps"`
}

type measureGroup struct {
	GroupID  int64     `json:"grpid"`
	Attrib   int       `json:"attrib"`
	Date     int64     `json:"date"`
	Category int       `json:"category"`
	Measures []measure `json:"measures"`
	Comment  string    `json:"comment"`
}

type measure struct {
	Value int64       `json:"value"`
	Type  MeasureType `json:"type"`
	Unit  int         `json:"unit"`
}

// actual scales the integer mantissa by its power of ten.
func (m measure) actual() float64 {
	if m.Unit < 0 {
		return float64(m.Value) / math.Pow10(-m.Unit)
	}
	return float64(m.Value) * math.Pow10(m.Unit)
}

func (g measureGroup) find(mt MeasureType) (measure, bool) {
	for _, m := range g.Measures {
		if m.Type == mt {
			return m, true
		}
	}
	return measure{}, false
}

func (g measureGroup) modality() shim.Modality {
	switch g.Attrib {
	case 0, 1:
		return shim.ModalitySensed
	case 2, 4:
		return shim.ModalitySelfReported
	default:
		return ""
	}
}

func (g measureGroup) effectiveTime() time.Time {
	return epoch(g.Date, time.UTC)
}

// measureGroups decodes every response and keeps real measurements only.
func measureGroups(responses []json.RawMessage) ([]measureGroup, error) {
	var groups []measureGroup
	for _, response := range responses {
		var body measureBody
		if err := decodeBody(response, &body); err != nil {
			return nil, err
		}
		for _, g := range body.MeasureGroups {
			if g.Category != 1 {
				continue
			}
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// singleMeasureMapper maps groups carrying one measure type into one data point each.
type singleMeasureMapper struct {
	measureType MeasureType
	schema      shim.SchemaID
	unit        string
	body        func(value shim.UnitValue, frame shim.TimeFrame, notes string) any
}

func (m singleMeasureMapper) AsDataPoints(responses []json.RawMessage) ([]shim.DataPoint, error) {
	groups, err := measureGroups(responses)
	if err != nil {
		return nil, err
	}
	points := make([]shim.DataPoint, 0, len(groups))
	for _, g := range groups {
		ms, ok := g.find(m.measureType)
		if !ok {
			continue
		}
		value := shim.UnitValue{Value: ms.actual(), Unit: m.unit}
		body := m.body(value, shim.AtTime(g.effectiveTime()), g.Comment)
		points = append(points, shim.NewDataPoint(m.schema, provenance(g.modality()), body))
	}
	return points, nil
}

func newBodyWeightMapper() Mapper {
	return singleMeasureMapper{
		measureType: MeasureWeight,
		schema:      shim.SchemaBodyWeight,
		unit:        "kg",
		body: func(value shim.UnitValue, frame shim.TimeFrame, notes string) any {
			return shim.BodyWeight{BodyWeight: value, EffectiveTimeFrame: frame, UserNotes: notes}
		},
	}
}

func newBodyHeightMapper() Mapper {
	return singleMeasureMapper{
		measureType: MeasureHeight,
		schema:      shim.SchemaBodyHeight,
		unit:        "m",
		body: func(value shim.UnitValue, frame shim.TimeFrame, notes string) any {
			return shim.BodyHeight{BodyHeight: value, EffectiveTimeFrame: frame, UserNotes: notes}
		},
	}
}

func newHeartRateMapper() Mapper {
	return singleMeasureMapper{
		measureType: MeasureHeartPulse,
		schema:      shim.SchemaHeartRate,
		unit:        "beats/min",
		body: func(value shim.UnitValue, frame shim.TimeFrame, notes string) any {
			return shim.HeartRate{HeartRate: value, EffectiveTimeFrame: frame, UserNotes: notes}
		},
	}
}

// bloodPressureMapper needs both pressures present in the same group.
type bloodPressureMapper struct{}

func (bloodPressureMapper) AsDataPoints(responses []json.RawMessage) ([]shim.DataPoint, error) {
	groups, err := measureGroups(responses)
	if err != nil {
		return nil, err
	}
	points := make([]shim.DataPoint, 0, len(groups))
	for _, g := range groups {
		systolic, ok := g.find(MeasureSystolicPressure)
		if !ok {
			continue
		}
		diastolic, ok := g.find(MeasureDiastolicPressure)
		if !ok {
			continue
		}
		body := shim.BloodPressure{
			SystolicBloodPressure:  shim.UnitValue{Value: systolic.actual(), Unit: "mmHg"},
			DiastolicBloodPressure: shim.UnitValue{Value: diastolic.actual(), Unit: "mmHg"},
			EffectiveTimeFrame:     shim.AtTime(g.effectiveTime()),
			UserNotes:              g.Comment,
		}
		points = append(points, shim.NewDataPoint(shim.SchemaBloodPressure, provenance(g.modality()), body))
	}
	return points, nil
}
