// Package gate implements the stage-gate state machine over a state.Store.
//
// Every action runs inside one store transaction: answers are recorded, the
// stage's completion predicate is evaluated and flags are updated together,
// or nothing changes at all.
package gate

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/DarlingtonDeveloper/StageGate/kpi"
	"github.com/DarlingtonDeveloper/StageGate/score"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

var (
	ErrUnknownStage  = errors.New("unknown stage")
	ErrStageLocked   = errors.New("stage is locked until its predecessor is complete")
	ErrForeignKey    = errors.New("key does not belong to stage")
	ErrInvalidAnswer = errors.New("invalid answer")
)

// Answers maps question keys of one stage to raw answer values. A nil value
// clears the stored answer.
type Answers map[state.Key]any

// Criterion is one checked condition of a stage.
type Criterion struct {
	Key    state.Key `json:"key,omitempty"`
	Name   string    `json:"name"`
	Met    bool      `json:"met"`
	Detail string    `json:"detail,omitempty"`
}

// Result is the outcome of a submit action.
type Result struct {
	Stage    stage.ID      `json:"stage"`
	Passed   bool          `json:"passed"`
	Criteria []Criterion   `json:"criteria"`
	Score    *score.Result `json:"score,omitempty"`
	// Reset lists the flags cleared by a rejected go-live decision.
	Reset []state.Key `json:"reset,omitempty"`
	Next  stage.ID    `json:"next,omitempty"`
}

// Unmet returns the criteria that failed.
func (r Result) Unmet() []Criterion {
	var out []Criterion
	for _, c := range r.Criteria {
		if !c.Met {
			out = append(out, c)
		}
	}
	return out
}

// ResetOnRejection are the flags cleared when go-live is rejected, in
// addition to the go-live gate's own flag.
var ResetOnRejection = []state.Key{
	stage.FlagPhase2,
	stage.FlagGate3,
	stage.FlagPhase3,
	stage.FlagGate4,
}

// Machine drives the workflow of one session.
type Machine struct {
	store *state.Store
}

// New creates a machine over store.
func New(store *state.Store) *Machine {
	return &Machine{store: store}
}

// Store returns the underlying state container.
func (m *Machine) Store() *state.Store {
	return m.store
}

// Record stores answers for a visible stage without evaluating it.
func (m *Machine) Record(id stage.ID, answers Answers) error {
	return m.store.Update(func(tx *state.Tx) error {
		s, err := enter(tx, id)
		if err != nil {
			return err
		}
		return record(tx, s, answers)
	})
}

// Submit records answers and evaluates the stage. Unmet criteria are not an
// error: they come back in the result and the flag stays as it was.
func (m *Machine) Submit(id stage.ID, answers Answers) (Result, error) {
	var res Result
	err := m.store.Update(func(tx *state.Tx) error {
		s, err := enter(tx, id)
		if err != nil {
			return err
		}
		if err := record(tx, s, answers); err != nil {
			return err
		}

		res = evaluate(tx, s)
		if res.Passed {
			tx.Set(s.Flag, true)
			if s.Kind == stage.KindEnd {
				tx.Set(stage.FlagAllComplete, true)
			}
			if next, ok := stage.Next(s.ID); ok {
				res.Next = next.ID
			}
			return nil
		}

		if s.ID == stage.Gate5 && tx.String(stage.KeyGoLiveAccepted) == stage.LabelNo {
			tx.Set(s.Flag, false)
			for _, k := range ResetOnRejection {
				tx.Set(k, false)
			}
			res.Reset = append([]state.Key(nil), ResetOnRejection...)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Answers returns the stored answers of a stage.
func (m *Machine) Answers(id stage.ID) (Answers, error) {
	if _, ok := stage.Lookup(id); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, id)
	}
	out := make(Answers)
	m.store.View(func(tx *state.Tx) {
		for _, q := range stage.Questions(id) {
			if v, ok := tx.Get(q.Key); ok {
				out[q.Key] = v
			}
		}
	})
	return out, nil
}

// StageView is a stage together with its live status.
type StageView struct {
	stage.Stage
	Complete bool `json:"complete"`
	Visible  bool `json:"visible"`
}

// Progress is what the progress-diagram renderer consumes.
type Progress struct {
	SessionID    string      `json:"session_id"`
	Stages       []StageView `json:"stages"`
	CurrentIndex int         `json:"current_index"`
	AllComplete  bool        `json:"all_complete"`
}

// Progress reports the completion and visibility of every stage.
func (m *Machine) Progress() Progress {
	p := Progress{SessionID: m.store.SessionID()}
	m.store.View(func(tx *state.Tx) {
		for _, s := range stage.All() {
			p.Stages = append(p.Stages, StageView{
				Stage:    s,
				Complete: stage.IsComplete(tx, s.ID),
				Visible:  stage.IsVisible(tx, s.ID),
			})
		}
		p.CurrentIndex = stage.CurrentIndex(tx)
		p.AllComplete = tx.Bool(stage.FlagAllComplete)
	})
	return p
}

// CostBenefit returns the KPI figures. The second result is false while KPIs
// are not reported as measured.
func (m *Machine) CostBenefit() (kpi.Figures, bool) {
	var (
		f  kpi.Figures
		ok bool
	)
	m.store.View(func(tx *state.Tx) {
		if tx.String(stage.KeyKPIMeasured) != stage.LabelYes {
			return
		}
		f, ok = kpi.Compute(kpi.FromState(tx)), true
	})
	return f, ok
}

// ScorePreview scores the stored Gate 2 answers without submitting. It
// fails while any ternary criterion is unanswered.
func (m *Machine) ScorePreview() (score.Result, error) {
	var (
		res score.Result
		err error
	)
	m.store.View(func(tx *state.Tx) {
		in, missing := ScoreInputs(tx)
		if len(missing) > 0 {
			err = fmt.Errorf("%d score criteria unanswered", len(missing))
			return
		}
		res, err = score.Compute(in)
	})
	return res, err
}

func enter(tx *state.Tx, id stage.ID) (stage.Stage, error) {
	s, ok := stage.Lookup(id)
	if !ok {
		return stage.Stage{}, fmt.Errorf("%w: %s", ErrUnknownStage, id)
	}
	if !stage.IsVisible(tx, id) {
		return stage.Stage{}, fmt.Errorf("%w: %s", ErrStageLocked, s.Label)
	}
	return s, nil
}

func record(tx *state.Tx, s stage.Stage, answers Answers) error {
	for k, v := range answers {
		q, ok := stage.QuestionFor(s.ID, k)
		if !ok {
			return fmt.Errorf("%w: %s is not a %s question", ErrForeignKey, k, s.Label)
		}
		if v == nil {
			tx.Delete(k)
			continue
		}
		nv, err := normalize(q, v)
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		tx.Set(k, nv)
	}
	if s.ID == stage.PostImpl && len(answers) > 0 {
		e := tx.Ephemeral()
		e.ShowChart = tx.String(stage.KeyKPIMeasured) == stage.LabelYes
		tx.SetEphemeral(e)
	}
	return nil
}

// normalize checks the shape of an answer and returns the value to store.
func normalize(q stage.Question, v any) (any, error) {
	switch q.Type {
	case stage.AnswerYesNo, stage.AnswerTernary:
		label, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected a label, got %T", ErrInvalidAnswer, v)
		}
		label = stage.NormalizeLabel(label)
		for _, l := range q.Labels() {
			if l == label {
				return label, nil
			}
		}
		return nil, fmt.Errorf("%w: %q not in %s", ErrInvalidAnswer, label, strings.Join(q.Labels(), "/"))

	case stage.AnswerText, stage.AnswerEmail:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: expected text, got %T", ErrInvalidAnswer, v)
		}
		return s, nil

	case stage.AnswerNumber:
		f, ok := state.ToFloat(v)
		if !ok {
			return nil, fmt.Errorf("%w: expected a number, got %T", ErrInvalidAnswer, v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %v is not a finite number", ErrInvalidAnswer, f)
		}
		if f < q.Min {
			return nil, fmt.Errorf("%w: %v is below %v", ErrInvalidAnswer, f, q.Min)
		}
		return f, nil

	case stage.AnswerMulti:
		var items []string
		switch vv := v.(type) {
		case []string:
			items = vv
		case []any:
			for _, item := range vv {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("%w: expected a list of labels", ErrInvalidAnswer)
				}
				items = append(items, s)
			}
		default:
			return nil, fmt.Errorf("%w: expected a list, got %T", ErrInvalidAnswer, v)
		}
		out := make([]string, 0, len(items))
		for _, s := range items {
			if !contains(q.Options, s) {
				return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, s)
			}
			if !contains(out, s) {
				out = append(out, s)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported answer type %s", ErrInvalidAnswer, q.Type)
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
