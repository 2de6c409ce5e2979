// Package stage defines the fixed, ordered stage-gate workflow: the stages,
// the key recording each stage's completion, the question catalog of every
// stage and the closed set of state keys that may be persisted.
package stage

import "github.com/DarlingtonDeveloper/StageGate/state"

// Kind classifies a stage.
type Kind string

const (
	KindStart Kind = "start"
	KindGate  Kind = "gate"
	KindPhase Kind = "phase"
	KindEnd   Kind = "end"
)

// ID is the short unique identifier of a stage.
type ID string

const (
	Start    ID = "start"
	Gate1    ID = "g1"
	Phase1   ID = "p1"
	Gate2    ID = "g2"
	Phase2   ID = "p2"
	Gate3    ID = "g3"
	Phase3   ID = "p3"
	Gate4    ID = "g4"
	Phase4   ID = "p4"
	Gate5    ID = "g5"
	Phase5   ID = "p5"
	PostImpl ID = "end"
)

// Completion flag keys.
const (
	FlagPhase0      state.Key = "phase0_complete"
	FlagGate1       state.Key = "gate1_complete"
	FlagPhase1      state.Key = "phase1_complete"
	FlagGate2       state.Key = "gate2_complete"
	FlagPhase2      state.Key = "phase2_complete"
	FlagGate3       state.Key = "gate3_complete"
	FlagPhase3      state.Key = "phase3_complete"
	FlagGate4       state.Key = "gate4_complete"
	FlagPhase4      state.Key = "phase4_complete"
	FlagGate5       state.Key = "gate5_complete"
	FlagPhase5      state.Key = "phase5_complete"
	FlagPostImpl    state.Key = "postimpl_complete"
	FlagAllComplete state.Key = "all_complete"
)

// Stage is the static descriptor of one workflow step.
type Stage struct {
	ID      ID        `json:"key"`
	Kind    Kind      `json:"kind"`
	Ordinal int       `json:"ordinal"`
	Label   string    `json:"label"`
	Caption string    `json:"caption,omitempty"`
	Flag    state.Key `json:"flag"`
}

var stages = []Stage{
	{ID: Start, Kind: KindStart, Label: "Potential process", Flag: FlagPhase0},
	{ID: Gate1, Kind: KindGate, Label: "Gate 1", Caption: "RPA suitability test", Flag: FlagGate1},
	{ID: Phase1, Kind: KindPhase, Label: "Phase 1", Caption: "Process analysis and preparation", Flag: FlagPhase1},
	{ID: Gate2, Kind: KindGate, Label: "Gate 2", Caption: "RPA score", Flag: FlagGate2},
	{ID: Phase2, Kind: KindPhase, Label: "Phase 2", Caption: "Design and development", Flag: FlagPhase2},
	{ID: Gate3, Kind: KindGate, Label: "Gate 3", Caption: "Prototype approval", Flag: FlagGate3},
	{ID: Phase3, Kind: KindPhase, Label: "Phase 3", Caption: "Testing", Flag: FlagPhase3},
	{ID: Gate4, Kind: KindGate, Label: "Gate 4", Caption: "Production approval", Flag: FlagGate4},
	{ID: Phase4, Kind: KindPhase, Label: "Phase 4", Caption: "Implementation and go-live", Flag: FlagPhase4},
	{ID: Gate5, Kind: KindGate, Label: "Gate 5", Caption: "Go-live approval", Flag: FlagGate5},
	{ID: Phase5, Kind: KindPhase, Label: "Phase 5", Caption: "Maintenance and support", Flag: FlagPhase5},
	{ID: PostImpl, Kind: KindEnd, Label: "Post-implementation check", Flag: FlagPostImpl},
}

func init() {
	for i := range stages {
		stages[i].Ordinal = i
	}
}

// All returns the stages in workflow order.
func All() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// Count is the number of stages.
func Count() int {
	return len(stages)
}

// Lookup returns the stage with the given id.
func Lookup(id ID) (Stage, bool) {
	i := Index(id)
	if i < 0 {
		return Stage{}, false
	}
	return stages[i], true
}

// Index returns the ordinal of id, or -1 if unknown.
func Index(id ID) int {
	for i, s := range stages {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Prev returns the predecessor of id. The start stage has none.
func Prev(id ID) (Stage, bool) {
	i := Index(id)
	if i <= 0 {
		return Stage{}, false
	}
	return stages[i-1], true
}

// Next returns the successor of id. The end stage has none.
func Next(id ID) (Stage, bool) {
	i := Index(id)
	if i < 0 || i == len(stages)-1 {
		return Stage{}, false
	}
	return stages[i+1], true
}

// FlagReader is the read side of the state store needed to evaluate flags.
type FlagReader interface {
	Bool(k state.Key) bool
}

// IsComplete reports whether the stage's completion flag is set. The end
// stage also counts as complete once the global all-complete flag is set.
func IsComplete(r FlagReader, id ID) bool {
	s, ok := Lookup(id)
	if !ok {
		return false
	}
	if s.Kind == KindEnd {
		return r.Bool(s.Flag) || r.Bool(FlagAllComplete)
	}
	return r.Bool(s.Flag)
}

// IsVisible reports whether id may be entered: the start stage always, any
// other stage only once its predecessor is complete.
func IsVisible(r FlagReader, id ID) bool {
	prev, ok := Prev(id)
	if !ok {
		return Index(id) == 0
	}
	return IsComplete(r, prev.ID)
}

// CurrentIndex returns the ordinal of the last completed stage before the
// first incomplete one, clamped to 0. It only drives the progress indicator.
func CurrentIndex(r FlagReader) int {
	for i, s := range stages {
		if s.Kind == KindStart {
			continue
		}
		if !IsComplete(r, s.ID) {
			if i-1 < 0 {
				return 0
			}
			return i - 1
		}
	}
	return len(stages) - 1
}
