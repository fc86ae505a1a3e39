package withings

import (
	"encoding/json"

	"github.com/yanqian/shim-server/internal/domain/shim"
)

type sleepBody struct {
	Series []sleepSummary `json:"series"`
}

type sleepSummary struct {
	StartDate int64     `json:"startdate"`
	EndDate   int64     `json:"enddate"`
	Timezone  string    `json:"timezone"`
	Data      sleepData `json:"data"`
}

type sleepData struct {
	Light *int64 `json:"lightsleepduration"`
	Deep  *int64 `json:"deepsleepduration"`
	REM   *int64 `json:"remsleepduration"`
}

// seconds sums the reported sleep phases; ok is false when no phase was reported.
func (d sleepData) seconds() (total int64, ok bool) {
	for _, phase := range []*int64{d.Light, d.Deep, d.REM} {
		if phase == nil {
			continue
		}
		total += *phase
		ok = true
	}
	return total, ok
}

type sleepDurationMapper struct{}

func (sleepDurationMapper) AsDataPoints(responses []json.RawMessage) ([]shim.DataPoint, error) {
	var points []shim.DataPoint
	for _, response := range responses {
		var body sleepBody
		if err := decodeBody(response, &body); err != nil {
			return nil, err
		}
		for _, s := range body.Series {
			total, ok := s.Data.seconds()
			if !ok {
				continue
			}
			loc := locationOf(s.Timezone)
			frame := shim.Between(epoch(s.StartDate, loc), epoch(s.EndDate, loc))
			points = append(points, shim.NewDataPoint(shim.SchemaSleepDuration, provenance(shim.ModalitySensed),
				shim.SleepDuration{SleepDuration: shim.UnitValue{Value: float64(total), Unit: "sec"}, EffectiveTimeFrame: frame}))
		}
	}
	return points, nil
}
