package withings

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/yanqian/shim-server/internal/domain/shim"
)

type activityField int

const (
	fieldSteps activityField = iota
	fieldCalories
)

type activityBody struct {
	Activities []dailyActivity `json:"activities"`
}

type dailyActivity struct {
	Date     string   `json:"date"`
	Timezone string   `json:"timezone"`
	Steps    *float64 `json:"steps"`
	Calories *float64 `json:"calories"`
}

type intradayBody struct {
	Series map[string]intradayEntry `json:"series"`
}

type intradayEntry struct {
	Steps    *float64 `json:"steps"`
	Calories *float64 `json:"calories"`
	Duration int64    `json:"duration"`
}

func pick(field activityField, steps, calories *float64) *float64 {
	if field == fieldSteps {
		return steps
	}
	return calories
}

func activityPoint(field activityField, value float64, frame shim.TimeFrame) shim.DataPoint {
	if field == fieldSteps {
		return shim.NewDataPoint(shim.SchemaStepCount, provenance(shim.ModalitySensed),
			shim.StepCount{StepCount: value, EffectiveTimeFrame: frame})
	}
	return shim.NewDataPoint(shim.SchemaCaloriesBurned, provenance(shim.ModalitySensed),
		shim.CaloriesBurned{KcalBurned: shim.UnitValue{Value: value, Unit: "kcal"}, EffectiveTimeFrame: frame})
}

// dailyActivityMapper emits one data point per day summary.
type dailyActivityMapper struct {
	field activityField
}

func (m dailyActivityMapper) AsDataPoints(responses []json.RawMessage) ([]shim.DataPoint, error) {
	var points []shim.DataPoint
	for _, response := range responses {
		var body activityBody
		if err := decodeBody(response, &body); err != nil {
			return nil, err
		}
		for _, a := range body.Activities {
			value := pick(m.field, a.Steps, a.Calories)
			if value == nil || *value == 0 {
				continue
			}
			day, err := time.ParseInLocation(ymdLayout, a.Date, locationOf(a.Timezone))
			if err != nil {
				return nil, malformed(fmt.Sprintf("invalid activity date %q", a.Date), err)
			}
			points = append(points, activityPoint(m.field, *value, shim.Between(day, day.AddDate(0, 0, 1))))
		}
	}
	return points, nil
}

// intradayActivityMapper emits one data point per intraday series entry, ordered by start.
type intradayActivityMapper struct {
	field activityField
}

func (m intradayActivityMapper) AsDataPoints(responses []json.RawMessage) ([]shim.DataPoint, error) {
	type sample struct {
		start    time.Time
		duration time.Duration
		value    float64
	}
	var samples []sample
	for _, response := range responses {
		var body intradayBody
		if err := decodeBody(response, &body); err != nil {
			return nil, err
		}
		for key, entry := range body.Series {
			value := pick(m.field, entry.Steps, entry.Calories)
			if value == nil {
				continue
			}
			seconds, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, malformed(fmt.Sprintf("invalid intraday timestamp %q", key), err)
			}
			samples = append(samples, sample{
				start:    epoch(seconds, time.UTC),
				duration: time.Duration(entry.Duration) * time.Second,
				value:    *value,
			})
		}
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].start.Before(samples[j].start)
	})
	points := make([]shim.DataPoint, 0, len(samples))
	for _, s := range samples {
		points = append(points, activityPoint(m.field, s.value, shim.Between(s.start, s.start.Add(s.duration))))
	}
	return points, nil
}
