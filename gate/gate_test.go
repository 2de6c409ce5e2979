package gate

import (
	"errors"
	"math"
	"testing"

	"github.com/DarlingtonDeveloper/StageGate/score"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// passing builds an answer set that satisfies every criterion of id.
func passing(id stage.ID) Answers {
	a := make(Answers)
	for _, q := range stage.Questions(id) {
		switch q.Type {
		case stage.AnswerYesNo:
			a[q.Key] = q.Expect
		case stage.AnswerTernary:
			a[q.Key] = stage.LabelYes
		case stage.AnswerText:
			a[q.Key] = "Accounts payable"
		case stage.AnswerEmail:
			a[q.Key] = "ops@example.com"
		case stage.AnswerNumber:
			a[q.Key] = 10.0
		}
	}
	return a
}

func newTestMachine() *Machine {
	return New(state.NewStore())
}

// advance passes every stage before id.
func advance(t *testing.T, m *Machine, id stage.ID) {
	t.Helper()
	for _, s := range stage.All() {
		if s.ID == id {
			return
		}
		res, err := m.Submit(s.ID, passing(s.ID))
		if err != nil {
			t.Fatalf("submit %s: %v", s.ID, err)
		}
		if !res.Passed {
			t.Fatalf("submit %s failed: %+v", s.ID, res.Unmet())
		}
	}
}

func flag(m *Machine, k state.Key) bool {
	var b bool
	m.Store().View(func(tx *state.Tx) { b = tx.Bool(k) })
	return b
}

func TestSubmitUnknownStage(t *testing.T) {
	m := newTestMachine()
	_, err := m.Submit("g9", nil)
	if !errors.Is(err, ErrUnknownStage) {
		t.Errorf("err = %v, want ErrUnknownStage", err)
	}
}

func TestSubmitLockedStage(t *testing.T) {
	m := newTestMachine()
	_, err := m.Submit(stage.Gate1, passing(stage.Gate1))
	if !errors.Is(err, ErrStageLocked) {
		t.Fatalf("err = %v, want ErrStageLocked", err)
	}
	if flag(m, stage.FlagGate1) {
		t.Error("locked stage must not complete")
	}
	if m.Store().Len() != 0 {
		t.Error("locked submit must not record answers")
	}
}

func TestSubmitForeignKeyLeavesStoreUntouched(t *testing.T) {
	m := newTestMachine()
	answers := passing(stage.Start)
	answers["g1_rule_based"] = stage.LabelYes
	_, err := m.Submit(stage.Start, answers)
	if !errors.Is(err, ErrForeignKey) {
		t.Fatalf("err = %v, want ErrForeignKey", err)
	}
	if m.Store().Len() != 0 {
		t.Errorf("store has %d values after failed submit", m.Store().Len())
	}
}

func TestSubmitInvalidAnswerIsAtomic(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate1)
	answers := passing(stage.Gate1)
	answers["g1_regular"] = "Maybe"
	if _, err := m.Submit(stage.Gate1, answers); !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("err = %v, want ErrInvalidAnswer", err)
	}
	got, _ := m.Answers(stage.Gate1)
	if len(got) != 0 {
		t.Errorf("answers recorded despite error: %v", got)
	}
}

func TestStartRequiresTrimmedProfile(t *testing.T) {
	m := newTestMachine()
	res, err := m.Submit(stage.Start, Answers{
		stage.KeyProcessName:  "Invoice intake",
		stage.KeyProcessOwner: "   ",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatal("expected failure with blank owner")
	}
	if unmet := res.Unmet(); len(unmet) != 1 || unmet[0].Key != stage.KeyProcessOwner {
		t.Errorf("unmet = %+v", unmet)
	}

	res, _ = m.Submit(stage.Start, Answers{stage.KeyProcessOwner: "Finance"})
	if !res.Passed || res.Next != stage.Gate1 {
		t.Errorf("result = %+v", res)
	}
}

func TestGateRequiresAllYes(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate1)
	answers := passing(stage.Gate1)
	answers["g1_error_prone"] = stage.LabelNo

	res, err := m.Submit(stage.Gate1, answers)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed || flag(m, stage.FlagGate1) {
		t.Fatal("gate 1 passed with a No answer")
	}
	unmet := res.Unmet()
	if len(unmet) != 1 || unmet[0].Key != "g1_error_prone" {
		t.Errorf("unmet = %+v", unmet)
	}
}

func TestLegacyLabelsAccepted(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate1)
	answers := make(Answers)
	for k := range passing(stage.Gate1) {
		answers[k] = "Ja"
	}
	res, err := m.Submit(stage.Gate1, answers)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Passed {
		t.Errorf("unmet = %+v", res.Unmet())
	}
}

func TestGate3NegativeCriterion(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate3)

	answers := passing(stage.Gate3)
	answers["g3_causes_sys_errors"] = stage.LabelYes
	res, _ := m.Submit(stage.Gate3, answers)
	if res.Passed {
		t.Fatal("gate 3 passed although the bot causes system errors")
	}

	answers["g3_causes_sys_errors"] = stage.LabelNo
	res, _ = m.Submit(stage.Gate3, answers)
	if !res.Passed {
		t.Errorf("unmet = %+v", res.Unmet())
	}
}

func TestPhase1ValidatesEmailsAndSystems(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Phase1)

	answers := passing(stage.Phase1)
	answers[stage.KeyOperatorEmail] = "not-an-email"
	answers[stage.KeySystems] = " \t "
	res, _ := m.Submit(stage.Phase1, answers)
	if res.Passed {
		t.Fatal("phase 1 passed with invalid fields")
	}
	keys := map[state.Key]bool{}
	for _, c := range res.Unmet() {
		keys[c.Key] = true
	}
	if !keys[stage.KeyOperatorEmail] || !keys[stage.KeySystems] || len(keys) != 2 {
		t.Errorf("unmet keys = %v", keys)
	}

	res, _ = m.Submit(stage.Phase1, Answers{
		stage.KeyOperatorEmail: "  bot.ops@corp.example.org ",
		stage.KeySystems:       "SAP, Outlook",
	})
	if !res.Passed {
		t.Errorf("unmet = %+v", res.Unmet())
	}
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"a@b.de", true},
		{"first.last+tag@sub.example.com", true},
		{"a@b", false},
		{"@b.de", false},
		{"a b@c.de", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidEmail(tt.in); got != tt.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func gate2Answers(label string) Answers {
	a := make(Answers)
	for _, q := range stage.Questions(stage.Gate2) {
		if q.Type == stage.AnswerTernary {
			a[q.Key] = label
		}
	}
	return a
}

func TestGate2HighlySuitable(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate2)

	answers := gate2Answers(stage.LabelYes)
	answers[stage.KeyDurationMinutes] = 10.0
	answers[stage.KeyWeeklyFrequency] = 2.0
	answers[stage.KeyBenefits] = []string{score.Benefits[0], score.Benefits[1], score.Benefits[2]}

	res, err := m.Submit(stage.Gate2, answers)
	if err != nil {
		t.Fatal(err)
	}
	if res.Score == nil {
		t.Fatal("score not exposed")
	}
	if res.Score.Normalized != 95.24 || res.Score.Verdict != score.VerdictHighlySuitable {
		t.Errorf("score = %+v", res.Score)
	}
	if !res.Passed || !flag(m, stage.FlagGate2) {
		t.Error("gate 2 should pass")
	}
}

func TestGate2UnsuitableStillExposesScore(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate2)

	res, err := m.Submit(stage.Gate2, gate2Answers(stage.LabelUnknown))
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed || flag(m, stage.FlagGate2) {
		t.Fatal("gate 2 should fail")
	}
	if res.Score == nil || res.Score.Normalized != 45.83 || res.Score.Verdict != score.VerdictUnsuitable {
		t.Errorf("score = %+v", res.Score)
	}
}

func TestGate2MissingAnswers(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate2)
	answers := gate2Answers(stage.LabelYes)
	delete(answers, "g2_complex")

	res, _ := m.Submit(stage.Gate2, answers)
	if res.Passed || res.Score != nil {
		t.Fatalf("result = %+v", res)
	}
	if unmet := res.Unmet(); len(unmet) != 1 || unmet[0].Key != "g2_complex" {
		t.Errorf("unmet = %+v", unmet)
	}
	if _, err := m.ScorePreview(); err == nil {
		t.Error("preview should fail with unanswered criteria")
	}
}

func TestFailedResubmitKeepsFlag(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Phase1)
	answers := passing(stage.Gate1)
	answers["g1_regular"] = stage.LabelNo
	res, _ := m.Submit(stage.Gate1, answers)
	if res.Passed {
		t.Fatal("expected failure")
	}
	if !flag(m, stage.FlagGate1) {
		t.Error("a failed resubmit must not clear an earned flag")
	}
}

func TestGate5RejectionResetsDevelopmentFlags(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate5)

	res, err := m.Submit(stage.Gate5, Answers{stage.KeyGoLiveAccepted: stage.LabelNo})
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed {
		t.Fatal("go-live must be rejected")
	}
	if len(res.Reset) != 4 {
		t.Errorf("reset = %v", res.Reset)
	}
	for _, k := range append(ResetOnRejection, stage.FlagGate5) {
		if flag(m, k) {
			t.Errorf("%s still set", k)
		}
	}
	for _, k := range []state.Key{stage.FlagPhase0, stage.FlagGate1, stage.FlagPhase1, stage.FlagGate2, stage.FlagPhase4} {
		if !flag(m, k) {
			t.Errorf("%s was cleared", k)
		}
	}

	// Workflow is pushed back: gate 3 locked again, phase 2 reachable.
	p := m.Progress()
	if p.Stages[stage.Index(stage.Gate3)].Visible {
		t.Error("gate 3 should be locked after rejection")
	}
	if !p.Stages[stage.Index(stage.Phase2)].Visible {
		t.Error("phase 2 should be visible")
	}
	if p.CurrentIndex != stage.Index(stage.Gate2) {
		t.Errorf("current index = %d", p.CurrentIndex)
	}
}

func TestGate5RejectionResetsRegardlessOfPriorValue(t *testing.T) {
	tests := []struct {
		name string
		seed func(tx *state.Tx)
	}{
		{"gate 3 flag missing", func(tx *state.Tx) { tx.Delete(stage.FlagGate3) }},
		{"gate 3 flag false", func(tx *state.Tx) { tx.Set(stage.FlagGate3, false) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine()
			advance(t, m, stage.Gate5)
			if err := m.Store().Update(func(tx *state.Tx) error {
				tt.seed(tx)
				return nil
			}); err != nil {
				t.Fatal(err)
			}

			res, err := m.Submit(stage.Gate5, Answers{stage.KeyGoLiveAccepted: stage.LabelNo})
			if err != nil {
				t.Fatal(err)
			}
			if res.Passed {
				t.Fatal("go-live must be rejected")
			}

			m.Store().View(func(tx *state.Tx) {
				for _, k := range append(append([]state.Key(nil), ResetOnRejection...), stage.FlagGate5) {
					v, ok := tx.Get(k)
					if !ok {
						t.Errorf("%s missing after rejection", k)
						continue
					}
					if v != false {
						t.Errorf("%s = %v, want false", k, v)
					}
				}
			})
			for _, k := range []state.Key{stage.FlagPhase0, stage.FlagGate1, stage.FlagPhase1, stage.FlagGate2, stage.FlagPhase4} {
				if !flag(m, k) {
					t.Errorf("%s was cleared", k)
				}
			}
		})
	}
}

func TestGate5ApprovalPasses(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate5)
	res, _ := m.Submit(stage.Gate5, Answers{stage.KeyGoLiveAccepted: "Ja"})
	if !res.Passed || res.Next != stage.Phase5 {
		t.Errorf("result = %+v", res)
	}
	if res.Reset != nil {
		t.Errorf("unexpected reset %v", res.Reset)
	}
}

func TestPostImplRequiresMeasuredKPIs(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.PostImpl)

	res, _ := m.Submit(stage.PostImpl, Answers{stage.KeyKPIMeasured: stage.LabelNo})
	if res.Passed || len(res.Criteria) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if m.Store().Ephemeral().ShowChart {
		t.Error("chart shown although KPIs are not measured")
	}
	if _, ok := m.CostBenefit(); ok {
		t.Error("cost/benefit available without measurement")
	}

	res, _ = m.Submit(stage.PostImpl, Answers{
		stage.KeyKPIMeasured:  stage.LabelYes,
		stage.KeyErrorRate:    150.0,
		stage.KeyExecMinutes:  2.0,
		stage.KeyFixMinutes:   15.0,
		stage.KeySavedMinutes: 300.0,
	})
	if res.Passed {
		t.Fatal("error rate above 100 accepted")
	}
	if unmet := res.Unmet(); len(unmet) != 1 || unmet[0].Key != stage.KeyErrorRate {
		t.Errorf("unmet = %+v", unmet)
	}
	if !m.Store().Ephemeral().ShowChart {
		t.Error("chart should be shown once KPIs are measured")
	}

	res, _ = m.Submit(stage.PostImpl, Answers{stage.KeyErrorRate: 4.0})
	if !res.Passed {
		t.Fatalf("unmet = %+v", res.Unmet())
	}
	if !flag(m, stage.FlagPostImpl) || !flag(m, stage.FlagAllComplete) {
		t.Error("terminal flags not set")
	}
	if p := m.Progress(); !p.AllComplete || p.CurrentIndex != stage.Count()-1 {
		t.Errorf("progress = %+v", p)
	}

	f, ok := m.CostBenefit()
	if !ok {
		t.Fatal("cost/benefit unavailable")
	}
	// 50 runs * 4% * 15 min = 30 min at 20/h
	if f.ErrorCostWeek != 10 || f.SavingCostWeek != 100 {
		t.Errorf("figures = %+v", f)
	}
}

func TestNegativeNumberRejected(t *testing.T) {
	tests := []struct {
		name string
		v    float64
	}{
		{"negative", -5},
		{"nan", math.NaN()},
		{"positive infinity", math.Inf(1)},
		{"negative infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMachine()
			advance(t, m, stage.Gate2)
			err := m.Record(stage.Gate2, Answers{stage.KeyDurationMinutes: tt.v})
			if !errors.Is(err, ErrInvalidAnswer) {
				t.Errorf("err = %v, want ErrInvalidAnswer", err)
			}
			var stored bool
			m.Store().View(func(tx *state.Tx) { stored = tx.Has(stage.KeyDurationMinutes) })
			if stored {
				t.Error("rejected value was stored")
			}
		})
	}
}

func TestNaNDurationCannotPassScoreGate(t *testing.T) {
	m := newTestMachine()
	advance(t, m, stage.Gate2)

	answers := Answers{stage.KeyDurationMinutes: math.NaN(), stage.KeyWeeklyFrequency: 1.0}
	for _, q := range stage.Questions(stage.Gate2) {
		if q.Type == stage.AnswerTernary {
			answers[q.Key] = stage.LabelUnknown
		}
	}
	res, err := m.Submit(stage.Gate2, answers)
	if !errors.Is(err, ErrInvalidAnswer) {
		t.Fatalf("err = %v, want ErrInvalidAnswer", err)
	}
	if res.Passed || flag(m, stage.FlagGate2) {
		t.Fatal("gate 2 passed on a NaN duration")
	}

	// A non-finite value that reaches the store without validation
	// still cannot produce a passing score.
	if err := m.Store().Update(func(tx *state.Tx) error {
		tx.Set(stage.KeyDurationMinutes, math.NaN())
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	delete(answers, stage.KeyDurationMinutes)
	res, err = m.Submit(stage.Gate2, answers)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed || flag(m, stage.FlagGate2) {
		t.Errorf("gate 2 passed on a stored NaN duration: %+v", res)
	}
}

func TestRecordClearsOnNil(t *testing.T) {
	m := newTestMachine()
	if err := m.Record(stage.Start, Answers{stage.KeyProcessName: "X"}); err != nil {
		t.Fatal(err)
	}
	if err := m.Record(stage.Start, Answers{stage.KeyProcessName: nil}); err != nil {
		t.Fatal(err)
	}
	got, _ := m.Answers(stage.Start)
	if _, ok := got[stage.KeyProcessName]; ok {
		t.Error("nil should clear the answer")
	}
}

func TestStageOnlyCompletesAfterPredecessor(t *testing.T) {
	all := stage.All()
	for i := 1; i < len(all); i++ {
		m := newTestMachine()
		advance(t, m, all[i-1].ID)
		if _, err := m.Submit(all[i].ID, passing(all[i].ID)); !errors.Is(err, ErrStageLocked) {
			t.Errorf("%s: err = %v, want ErrStageLocked", all[i].ID, err)
		}
		if flag(m, all[i].Flag) {
			t.Errorf("%s completed before its predecessor", all[i].ID)
		}
	}
}
