// Package score computes the RPA suitability score used by the scored gate.
//
// The model is fixed-weight and linear. Eleven ternary criteria contribute
// 0, 0.5 or 1 each; the weekly time load and the selected benefits add at
// most one point each; the sum is normalized against 12, not 13, because
// duration and frequency are counted as one combined criterion.
package score

import (
	"fmt"
	"math"
)

// Ternary is an answer label in {Yes, No, Unknown}.
type Ternary string

const (
	Yes     Ternary = "Yes"
	No      Ternary = "No"
	Unknown Ternary = "Unknown"
)

// Weight maps a ternary answer to its score contribution.
func (t Ternary) Weight() (float64, bool) {
	switch t {
	case Yes:
		return 1.0, true
	case No:
		return 0.0, true
	case Unknown:
		return 0.5, true
	}
	return 0, false
}

// CriteriaCount is the number of ternary criteria.
const CriteriaCount = 11

// Denominator normalizes the raw sum to 0..100.
const Denominator = 12.0

// PassThreshold is the minimum normalized score for the gate to pass.
const PassThreshold = 50.0

// Benefits is the fixed catalog of automation benefits.
var Benefits = []string{
	"Reduced process time",
	"Relief from routine work",
	"Lower error rate",
	"Improved customer satisfaction and service",
	"24/7 operation",
	"Improved employee skills",
	"Standardisation",
}

// Verdict categorizes a normalized score.
type Verdict string

const (
	VerdictUnsuitable     Verdict = "unsuitable"
	VerdictSuitable       Verdict = "suitable"
	VerdictHighlySuitable Verdict = "highly suitable"
)

// Inputs are the raw answers fed into Compute.
type Inputs struct {
	Answers          []Ternary `json:"answers"`
	DurationMinutes  float64   `json:"duration_minutes"`
	WeeklyFrequency  float64   `json:"weekly_frequency"`
	SelectedBenefits []string  `json:"selected_benefits"`
}

// Result exposes every intermediate value for display.
type Result struct {
	BinarySum      float64 `json:"binary_sum"`
	MinutesPerWeek float64 `json:"minutes_per_week"`
	DurationScore  float64 `json:"duration_score"`
	BenefitCount   int     `json:"benefit_count"`
	BenefitScore   float64 `json:"benefit_score"`
	Raw            float64 `json:"raw"`
	Normalized     float64 `json:"normalized"`
	Verdict        Verdict `json:"verdict"`
}

// Passed reports whether the score clears the gate threshold.
func (r Result) Passed() bool {
	return r.Normalized >= PassThreshold
}

// Compute scores the inputs. It fails only on malformed input: a wrong
// number of answers, an unknown label, or a negative or non-finite
// duration/frequency.
func Compute(in Inputs) (Result, error) {
	if len(in.Answers) != CriteriaCount {
		return Result{}, fmt.Errorf("expected %d ternary answers, got %d", CriteriaCount, len(in.Answers))
	}
	if !finite(in.DurationMinutes) || !finite(in.WeeklyFrequency) {
		return Result{}, fmt.Errorf("duration and frequency must be finite")
	}
	if in.DurationMinutes < 0 || in.WeeklyFrequency < 0 {
		return Result{}, fmt.Errorf("duration and frequency must be non-negative")
	}

	var binSum float64
	for i, a := range in.Answers {
		w, ok := a.Weight()
		if !ok {
			return Result{}, fmt.Errorf("answer %d: invalid label %q", i+1, a)
		}
		binSum += w
	}

	t := in.DurationMinutes * in.WeeklyFrequency
	if !finite(t) {
		return Result{}, fmt.Errorf("minutes per week overflow: %v x %v", in.DurationMinutes, in.WeeklyFrequency)
	}
	tScore := DurationScore(t)
	count := CountBenefits(in.SelectedBenefits)
	bScore := float64(count) / float64(len(Benefits))

	x := binSum + tScore + bScore
	n := round2(x * 100.0 / Denominator)

	return Result{
		BinarySum:      binSum,
		MinutesPerWeek: t,
		DurationScore:  tScore,
		BenefitCount:   count,
		BenefitScore:   bScore,
		Raw:            x,
		Normalized:     n,
		Verdict:        Classify(n),
	}, nil
}

// DurationScore buckets weekly minutes into 0, 0.25, 0.5 or 1.
func DurationScore(minutesPerWeek float64) float64 {
	switch {
	case minutesPerWeek < 30:
		return 0.0
	case minutesPerWeek < 60:
		return 0.25
	case minutesPerWeek < 180:
		return 0.5
	default:
		return 1.0
	}
}

// CountBenefits counts the distinct catalog entries in selected.
func CountBenefits(selected []string) int {
	seen := make(map[string]bool, len(selected))
	for _, s := range selected {
		if IsBenefit(s) {
			seen[s] = true
		}
	}
	return len(seen)
}

// IsBenefit reports whether label is in the catalog.
func IsBenefit(label string) bool {
	for _, b := range Benefits {
		if b == label {
			return true
		}
	}
	return false
}

// Classify maps a normalized score to its verdict.
func Classify(n float64) Verdict {
	switch {
	case n < 50:
		return VerdictUnsuitable
	case n < 70:
		return VerdictSuitable
	default:
		return VerdictHighlySuitable
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
