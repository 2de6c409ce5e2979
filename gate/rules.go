package gate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/DarlingtonDeveloper/StageGate/score"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidEmail reports whether s, trimmed, looks like an email address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(strings.TrimSpace(s))
}

// Reader is the read side of a transaction the rules need.
type Reader interface {
	Get(k state.Key) (any, bool)
	String(k state.Key) string
	Number(k state.Key) (float64, bool)
	Strings(k state.Key) []string
}

func evaluate(r Reader, s stage.Stage) Result {
	res := Result{Stage: s.ID}
	switch s.ID {
	case stage.Gate2:
		res.Criteria, res.Score = scoredCriteria(r)
	case stage.PostImpl:
		res.Criteria = kpiCriteria(r)
	default:
		for _, q := range stage.Questions(s.ID) {
			if c, ok := check(r, q); ok {
				res.Criteria = append(res.Criteria, c)
			}
		}
	}
	res.Passed = len(res.Criteria) > 0
	for _, c := range res.Criteria {
		if !c.Met {
			res.Passed = false
			break
		}
	}
	return res
}

// check evaluates one catalog question. Questions that are not pass/fail
// conditions return false.
func check(r Reader, q stage.Question) (Criterion, bool) {
	c := Criterion{Key: q.Key, Name: q.Prompt}
	switch q.Type {
	case stage.AnswerYesNo:
		got := r.String(q.Key)
		c.Met = got == q.Expect
		switch {
		case got == "":
			c.Detail = "unanswered"
		case !c.Met:
			c.Detail = fmt.Sprintf("answered %q, must be %q", got, q.Expect)
		}
	case stage.AnswerText:
		c.Met = strings.TrimSpace(r.String(q.Key)) != ""
		if !c.Met {
			c.Detail = "must not be empty"
		}
	case stage.AnswerEmail:
		c.Met = ValidEmail(r.String(q.Key))
		if !c.Met {
			c.Detail = "must be a valid email address"
		}
	case stage.AnswerNumber:
		v, ok := r.Number(q.Key)
		if !ok {
			if q.Default == nil {
				c.Detail = "required"
				return c, true
			}
			v, _ = state.ToFloat(q.Default)
		}
		c.Met = v >= q.Min && v <= q.Max
		if !c.Met {
			c.Detail = fmt.Sprintf("%v is out of range", v)
		}
	default:
		return c, false
	}
	return c, true
}

// ScoreInputs gathers the Gate 2 score inputs from stored answers. missing
// lists the ternary criteria without an answer.
func ScoreInputs(r Reader) (in score.Inputs, missing []state.Key) {
	for _, q := range stage.Questions(stage.Gate2) {
		switch {
		case q.Type == stage.AnswerTernary:
			label := r.String(q.Key)
			if label == "" {
				missing = append(missing, q.Key)
				continue
			}
			in.Answers = append(in.Answers, score.Ternary(label))
		case q.Key == stage.KeyDurationMinutes:
			in.DurationMinutes, _ = r.Number(q.Key)
		case q.Key == stage.KeyWeeklyFrequency:
			in.WeeklyFrequency, _ = r.Number(q.Key)
		case q.Key == stage.KeyBenefits:
			in.SelectedBenefits = r.Strings(q.Key)
		}
	}
	return in, missing
}

func scoredCriteria(r Reader) ([]Criterion, *score.Result) {
	in, missing := ScoreInputs(r)
	if len(missing) > 0 {
		var out []Criterion
		for _, k := range missing {
			q, _ := stage.QuestionFor(stage.Gate2, k)
			out = append(out, Criterion{Key: k, Name: q.Prompt, Detail: "unanswered"})
		}
		return out, nil
	}
	res, err := score.Compute(in)
	if err != nil {
		return []Criterion{{Name: "RPA score", Detail: err.Error()}}, nil
	}
	c := Criterion{
		Name:   fmt.Sprintf("RPA score of at least %.0f", score.PassThreshold),
		Met:    res.Passed(),
		Detail: fmt.Sprintf("%.2f / 100 (%s)", res.Normalized, res.Verdict),
	}
	return []Criterion{c}, &res
}

func kpiCriteria(r Reader) []Criterion {
	measured := Criterion{Key: stage.KeyKPIMeasured, Name: "KPIs are measured"}
	measured.Met = r.String(stage.KeyKPIMeasured) == stage.LabelYes
	if !measured.Met {
		measured.Detail = "establish KPI measurement before completing the check"
		return []Criterion{measured}
	}
	out := []Criterion{measured}
	for _, q := range stage.Questions(stage.PostImpl) {
		if q.Type != stage.AnswerNumber {
			continue
		}
		c, _ := check(r, q)
		out = append(out, c)
	}
	return out
}
