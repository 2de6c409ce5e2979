package stage

import (
	"strings"
	"testing"

	"github.com/DarlingtonDeveloper/StageGate/state"
)

type flags map[state.Key]bool

func (f flags) Bool(k state.Key) bool { return f[k] }

func TestStageOrder(t *testing.T) {
	all := All()
	if len(all) != 12 {
		t.Fatalf("expected 12 stages, got %d", len(all))
	}
	if all[0].ID != Start || all[0].Kind != KindStart {
		t.Errorf("first stage = %+v", all[0])
	}
	if all[len(all)-1].ID != PostImpl || all[len(all)-1].Kind != KindEnd {
		t.Errorf("last stage = %+v", all[len(all)-1])
	}
	for i, s := range all {
		if s.Ordinal != i {
			t.Errorf("%s ordinal = %d, want %d", s.ID, s.Ordinal, i)
		}
		if i > 0 && i < len(all)-1 {
			want := KindGate
			if i%2 == 0 {
				want = KindPhase
			}
			if s.Kind != want {
				t.Errorf("%s kind = %s, want %s", s.ID, s.Kind, want)
			}
		}
	}
}

func TestNextPrev(t *testing.T) {
	if _, ok := Prev(Start); ok {
		t.Error("start should have no predecessor")
	}
	if _, ok := Next(PostImpl); ok {
		t.Error("end should have no successor")
	}
	n, ok := Next(Gate2)
	if !ok || n.ID != Phase2 {
		t.Errorf("Next(g2) = %v, %v", n.ID, ok)
	}
	p, ok := Prev(Gate1)
	if !ok || p.ID != Start {
		t.Errorf("Prev(g1) = %v, %v", p.ID, ok)
	}
	if Index("nope") != -1 {
		t.Error("unknown stage should have index -1")
	}
}

func TestVisibility(t *testing.T) {
	f := flags{}
	if !IsVisible(f, Start) {
		t.Error("start always visible")
	}
	if IsVisible(f, Gate1) {
		t.Error("gate 1 visible without start complete")
	}
	f[FlagPhase0] = true
	if !IsVisible(f, Gate1) {
		t.Error("gate 1 should be visible")
	}
	if IsVisible(f, Phase1) {
		t.Error("phase 1 should not be visible")
	}
	if IsVisible(f, "nope") {
		t.Error("unknown stage visible")
	}
}

func TestCurrentIndex(t *testing.T) {
	f := flags{}
	if got := CurrentIndex(f); got != 0 {
		t.Errorf("empty = %d, want 0", got)
	}
	f[FlagGate1] = true
	f[FlagPhase1] = true
	if got := CurrentIndex(f); got != 2 {
		t.Errorf("after phase 1 = %d, want 2", got)
	}
	for _, s := range All() {
		f[s.Flag] = true
	}
	if got := CurrentIndex(f); got != Count()-1 {
		t.Errorf("all done = %d, want %d", got, Count()-1)
	}
}

func TestEndCompleteViaAllComplete(t *testing.T) {
	f := flags{FlagAllComplete: true}
	if !IsComplete(f, PostImpl) {
		t.Error("end stage should count all_complete")
	}
	if IsComplete(f, Phase5) {
		t.Error("phase 5 should not be complete")
	}
}

func TestKeysCarryStagePrefix(t *testing.T) {
	for _, s := range All() {
		prefix := Prefix(s.ID)
		for _, q := range Questions(s.ID) {
			if s.ID == Start {
				if strings.Contains(string(q.Key), "_") && !strings.HasPrefix(string(q.Key), "process_") {
					t.Errorf("profile key %q", q.Key)
				}
				continue
			}
			if !strings.HasPrefix(string(q.Key), prefix) {
				t.Errorf("%s: key %q lacks prefix %q", s.ID, q.Key, prefix)
			}
			if owner, ok := Owner(q.Key); !ok || owner != s.ID {
				t.Errorf("Owner(%q) = %v, %v", q.Key, owner, ok)
			}
		}
	}
}

func TestCatalogShape(t *testing.T) {
	var ternaries int
	for _, q := range Questions(Gate2) {
		if q.Type == AnswerTernary {
			ternaries++
		}
	}
	if ternaries != 11 {
		t.Errorf("gate 2 ternary criteria = %d, want 11", ternaries)
	}
	var negative int
	for _, q := range Questions(Gate3) {
		if q.Expect == LabelNo {
			negative++
		}
	}
	if negative != 1 {
		t.Errorf("gate 3 negative criteria = %d, want 1", negative)
	}
	if q, ok := QuestionFor(PostImpl, KeyRunsPerWeek); !ok || q.Default != 50 {
		t.Errorf("runs per week default = %v", q.Default)
	}
}

func TestIsPersistable(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"gate1_complete", true},
		{"all_complete", true},
		{"process_name", true},
		{"g2_benefits", true},
		{"pic_hourly_cost", true},
		{"pic_show_chart", false},
		{"_loaded_sig", false},
		{"uploader", false},
		{"g1_made_up", false},
		{"gate3_complet", false},
	}
	for _, tt := range tests {
		if got := IsPersistable(tt.key); got != tt.want {
			t.Errorf("IsPersistable(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
	if len(StatusKeys()) != 13 {
		t.Errorf("status keys = %d, want 13", len(StatusKeys()))
	}
}

func TestLegacyRenamesTargetPersistableKeys(t *testing.T) {
	for _, r := range LegacyRenames {
		if !IsPersistable(string(r.New)) {
			t.Errorf("rename %q -> %q targets unknown key", r.Old, r.New)
		}
		if !IsLegacy(string(r.Old)) {
			t.Errorf("IsLegacy(%q) = false", r.Old)
		}
		if IsPersistable(string(r.Old)) {
			t.Errorf("legacy key %q is also current", r.Old)
		}
	}
}

func TestControlKeysNeverPersistable(t *testing.T) {
	for k := range controlKeys {
		if IsPersistable(k) {
			t.Errorf("control key %q is persistable", k)
		}
	}
}
