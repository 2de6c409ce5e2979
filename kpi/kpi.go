// Package kpi derives the weekly cost/benefit figures of a running bot from
// the post-implementation KPI inputs.
package kpi

import (
	"math"

	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// WeeksPerYear scales weekly figures to a year.
const WeeksPerYear = 52

// Defaults used when the inputs were never recorded.
const (
	DefaultRunsPerWeek = 50
	DefaultHourlyCost  = 20.0
)

// Inputs are the five numeric KPI values the figures depend on.
type Inputs struct {
	ErrorRate        float64 `json:"error_rate"`
	FixMinutes       float64 `json:"fix_minutes"`
	SavedMinutesWeek float64 `json:"saved_minutes_week"`
	RunsPerWeek      float64 `json:"runs_per_week"`
	HourlyCost       float64 `json:"hourly_cost"`
}

// Figures are the derived weekly and yearly amounts.
type Figures struct {
	Inputs
	ErrorCostWeek  float64 `json:"error_cost_week"`
	SavingCostWeek float64 `json:"saving_cost_week"`
	NetBenefitWeek float64 `json:"net_benefit_week"`
	NetBenefitYear float64 `json:"net_benefit_year"`
}

// Compute derives the figures. Runs per week count whole runs only.
func Compute(in Inputs) Figures {
	runs := math.Trunc(in.RunsPerWeek)
	errorMinutes := runs * (in.ErrorRate / 100.0) * in.FixMinutes
	errorCost := errorMinutes / 60.0 * in.HourlyCost
	saving := in.SavedMinutesWeek / 60.0 * in.HourlyCost
	net := saving - errorCost
	in.RunsPerWeek = runs
	return Figures{
		Inputs:         in,
		ErrorCostWeek:  errorCost,
		SavingCostWeek: saving,
		NetBenefitWeek: net,
		NetBenefitYear: net * WeeksPerYear,
	}
}

// Reader is the numeric read side of a state transaction.
type Reader interface {
	Number(k state.Key) (float64, bool)
}

// FromState collects the inputs from stored answers, falling back to zero
// and to the run/cost defaults for values never recorded.
func FromState(r Reader) Inputs {
	get := func(k state.Key, def float64) float64 {
		if v, ok := r.Number(k); ok {
			return v
		}
		return def
	}
	return Inputs{
		ErrorRate:        get(stage.KeyErrorRate, 0),
		FixMinutes:       get(stage.KeyFixMinutes, 0),
		SavedMinutesWeek: get(stage.KeySavedMinutes, 0),
		RunsPerWeek:      get(stage.KeyRunsPerWeek, DefaultRunsPerWeek),
		HourlyCost:       get(stage.KeyHourlyCost, DefaultHourlyCost),
	}
}
