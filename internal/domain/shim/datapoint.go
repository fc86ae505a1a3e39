package shim

import (
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/shim-server/pkg/util"
)

// SchemaID identifies the schema a data point body conforms to.
type SchemaID struct {
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Version   string `json:"version"`
}

// Schemas emitted by the normalizers.
var (
	SchemaBloodPressure  = SchemaID{Namespace: "omh", Name: "blood-pressure", Version: "1.0"}
	SchemaBodyHeight     = SchemaID{Namespace: "omh", Name: "body-height", Version: "1.0"}
	SchemaBodyWeight     = SchemaID{Namespace: "omh", Name: "body-weight", Version: "1.0"}
	SchemaCaloriesBurned = SchemaID{Namespace: "omh", Name: "calories-burned", Version: "1.0"}
	SchemaHeartRate      = SchemaID{Namespace: "omh", Name: "heart-rate", Version: "1.0"}
	SchemaSleepDuration  = SchemaID{Namespace: "omh", Name: "sleep-duration", Version: "1.0"}
	SchemaStepCount      = SchemaID{Namespace: "omh", Name: "step-count", Version: "1.0"}
)

// Modality describes how a measurement was captured.
type Modality string

const (
	ModalitySensed       Modality = "sensed"
	ModalitySelfReported Modality = "self-reported"
)

// AcquisitionProvenance records where a data point came from.
type AcquisitionProvenance struct {
	SourceName             string     `json:"source_name"`
	Modality               Modality   `json:"modality,omitempty"`
	SourceCreationDateTime *time.Time `json:"source_creation_date_time,omitempty"`
}

// DataPointHeader is the metadata envelope of a normalized data point.
type DataPointHeader struct {
	ID                    string                `json:"id"`
	CreationDateTime      time.Time             `json:"creation_date_time"`
	SchemaID              SchemaID              `json:"schema_id"`
	AcquisitionProvenance AcquisitionProvenance `json:"acquisition_provenance"`
}

// DataPoint is the normalized, vendor-independent unit returned to callers.
type DataPoint struct {
	Header DataPointHeader `json:"header"`
	Body   any             `json:"body"`
}

// NewDataPoint stamps a body with a fresh header.
func NewDataPoint(schema SchemaID, provenance AcquisitionProvenance, body any) DataPoint {
	return DataPoint{
		Header: DataPointHeader{
			ID:                    uuid.NewString(),
			CreationDateTime:      util.NowUTC(),
			SchemaID:              schema,
			AcquisitionProvenance: provenance,
		},
		Body: body,
	}
}

// UnitValue is a measured quantity.
type UnitValue struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// TimeInterval is a closed-open span of time.
type TimeInterval struct {
	StartDateTime time.Time `json:"start_date_time"`
	EndDateTime   time.Time `json:"end_date_time"`
}

// TimeFrame holds either a point in time or an interval.
type TimeFrame struct {
	DateTime     *time.Time    `json:"date_time,omitempty"`
	TimeInterval *TimeInterval `json:"time_interval,omitempty"`
}

// AtTime builds a point-in-time frame.
func AtTime(t time.Time) TimeFrame {
	return TimeFrame{DateTime: &t}
}

// Between builds an interval frame.
func Between(start, end time.Time) TimeFrame {
	return TimeFrame{TimeInterval: &TimeInterval{StartDateTime: start, EndDateTime: end}}
}

type BodyWeight struct {
	BodyWeight         UnitValue `json:"body_weight"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
	UserNotes          string    `json:"user_notes,omitempty"`
}

type BodyHeight struct {
	BodyHeight         UnitValue `json:"body_height"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
	UserNotes          string    `json:"user_notes,omitempty"`
}

type HeartRate struct {
	HeartRate          UnitValue `json:"heart_rate"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
	UserNotes          string    `json:"user_notes,omitempty"`
}

type BloodPressure struct {
	SystolicBloodPressure  UnitValue `json:"systolic_blood_pressure"`
	DiastolicBloodPressure UnitValue `json:"diastolic_blood_pressure"`
	EffectiveTimeFrame     TimeFrame `json:"effective_time_frame"`
	UserNotes              string    `json:"user_notes,omitempty"`
}

type StepCount struct {
	StepCount          float64   `json:"step_count"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
}

type CaloriesBurned struct {
	KcalBurned         UnitValue `json:"kcal_burned"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
}

type SleepDuration struct {
	SleepDuration      UnitValue `json:"sleep_duration"`
	EffectiveTimeFrame TimeFrame `json:"effective_time_frame"`
}
