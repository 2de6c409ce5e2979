package stage

import (
	"math"

	"github.com/DarlingtonDeveloper/StageGate/score"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// AnswerType is the value domain of a question.
type AnswerType string

const (
	AnswerYesNo   AnswerType = "yes_no"
	AnswerTernary AnswerType = "ternary"
	AnswerText    AnswerType = "text"
	AnswerEmail   AnswerType = "email"
	AnswerNumber  AnswerType = "number"
	AnswerMulti   AnswerType = "multi"
)

// Answer labels.
const (
	LabelYes     = "Yes"
	LabelNo      = "No"
	LabelUnknown = "Unknown"
)

// Question is one entry of a stage's form.
type Question struct {
	Key    state.Key  `json:"key"`
	Prompt string     `json:"prompt"`
	Type   AnswerType `json:"type"`
	// Expect is the label a yes/no question must carry for the stage to
	// pass. Empty for questions that are not pass/fail criteria.
	Expect  string   `json:"expect,omitempty"`
	Options []string `json:"options,omitempty"`
	Min     float64  `json:"min"`
	Max     float64  `json:"-"`
	Default any      `json:"default,omitempty"`
}

// Labels returns the allowed labels for choice questions.
func (q Question) Labels() []string {
	switch q.Type {
	case AnswerYesNo:
		return []string{LabelYes, LabelNo}
	case AnswerTernary:
		return []string{LabelYes, LabelNo, LabelUnknown}
	case AnswerMulti:
		return q.Options
	}
	return nil
}

// IsChoice reports whether the question takes a fixed label.
func (q Question) IsChoice() bool {
	return q.Type == AnswerYesNo || q.Type == AnswerTernary
}

func yes(key state.Key, prompt string) Question {
	return Question{Key: key, Prompt: prompt, Type: AnswerYesNo, Expect: LabelYes}
}

func no(key state.Key, prompt string) Question {
	return Question{Key: key, Prompt: prompt, Type: AnswerYesNo, Expect: LabelNo}
}

func ternary(key state.Key, prompt string) Question {
	return Question{Key: key, Prompt: prompt, Type: AnswerTernary}
}

func text(key state.Key, prompt string) Question {
	return Question{Key: key, Prompt: prompt, Type: AnswerText}
}

func email(key state.Key, prompt string) Question {
	return Question{Key: key, Prompt: prompt, Type: AnswerEmail}
}

func number(key state.Key, prompt string, min, max float64, def any) Question {
	return Question{Key: key, Prompt: prompt, Type: AnswerNumber, Min: min, Max: max, Default: def}
}

// Profile keys.
const (
	KeyProcessName  state.Key = "process_name"
	KeyProcessOwner state.Key = "process_owner"
)

// Phase 1 free-text keys.
const (
	KeyOperatorEmail   state.Key = "p1_operator_email"
	KeyMaintainerEmail state.Key = "p1_maintainer_email"
	KeySystems         state.Key = "p1_systems"
)

// Gate 2 score input keys.
const (
	KeyDurationMinutes state.Key = "g2_duration_min"
	KeyWeeklyFrequency state.Key = "g2_frequency_week"
	KeyBenefits        state.Key = "g2_benefits"
)

// Phase 2 and Gate 5 keys used by the state machine directly.
const (
	KeyDeveloper      state.Key = "p2_developer"
	KeyGoLiveAccepted state.Key = "g5_user_acceptance"
)

// Post-implementation KPI keys.
const (
	KeyKPIMeasured  state.Key = "pic_measured"
	KeyErrorRate    state.Key = "pic_err_rate"
	KeyExecMinutes  state.Key = "pic_exec_min"
	KeyFixMinutes   state.Key = "pic_fix_min"
	KeySavedMinutes state.Key = "pic_save_min"
	KeyRunsPerWeek  state.Key = "pic_runs_week"
	KeyHourlyCost   state.Key = "pic_hourly_cost"
)

var inf = math.Inf(1)

var catalog = map[ID][]Question{
	Start: {
		text(KeyProcessName, "What is the process called?"),
		text(KeyProcessOwner, "Who owns the process?"),
	},
	Gate1: {
		yes("g1_rule_based", "Is the process rule-based?"),
		yes("g1_changes_soon", "Will the process or its IT systems change in the near future?"),
		yes("g1_structured_docs", "Are the documents used in the process structured?"),
		yes("g1_frequent_or_shared", "Is the process run frequently or handled by more than one person?"),
		yes("g1_digital_io", "Are the inputs and outputs of the process digital?"),
		yes("g1_regular", "Is the process run regularly?"),
		yes("g1_few_exceptions", "Does the process have few exceptions?"),
		yes("g1_multiple_systems", "Are several systems used to handle the process?"),
		yes("g1_error_prone", "Is the process prone to human error?"),
		yes("g1_interaction_documented", "Is there a detailed description of the interaction with IT systems, files and interfaces?"),
	},
	Phase1: {
		yes("p1_management_support", "Does management support the automation?"),
		yes("p1_it_feasible", "Is the process technically feasible on the IT infrastructure?"),
		yes("p1_maintenance_capacity", "Is there capacity for maintenance and operation?"),
		email(KeyOperatorEmail, "Who operates the RPA bot? (email)"),
		email(KeyMaintainerEmail, "Who maintains the RPA bot? (email)"),
		yes("p1_end_users_considered", "Have all end users of the process been considered?"),
		text(KeySystems, "Which existing IT systems are involved?"),
		yes("p1_documented", "Has the process been documented in detail?"),
		yes("p1_time_log", "Has a time log of the process been recorded?"),
		yes("p1_documentation_accepted", "Does the documentation meet the process owners' requirements?"),
	},
	Gate2: {
		ternary("g2_apps_accessible", "Are all applications accessible?"),
		ternary("g2_already_automated", "Is the process already automated in another form?"),
		ternary("g2_complex", "Is the process complex?"),
		ternary("g2_digital_only", "Is only digital data used?"),
		ternary("g2_changes_soon", "Will the process change in the near future?"),
		ternary("g2_stable", "Is the process stable and does it use stable applications?"),
		ternary("g2_standardised", "Is the process standardised?"),
		ternary("g2_structured_data", "Does the process use structured data?"),
		ternary("g2_limited_exceptions", "Does the process have limited exceptions or alternatives?"),
		ternary("g2_clear_guidelines", "Are the process guidelines unambiguous and clearly documented?"),
		ternary("g2_repetitive", "Is the process highly repetitive?"),
		number(KeyDurationMinutes, "How long does one run of the process take? (minutes)", 0, inf, 0),
		number(KeyWeeklyFrequency, "How often does the process occur per week?", 0, inf, 0),
		{Key: KeyBenefits, Prompt: "Which benefits will the automation bring?", Type: AnswerMulti, Options: score.Benefits},
	},
	Phase2: {
		text(KeyDeveloper, "Who develops the bot? (name or team)"),
		yes("p2_requirements_clarified", "Has the process been reviewed and the requirements agreed with the process owner?"),
		yes("p2_code_reuse", "Can existing code from other bots be reused?"),
	},
	Gate3: {
		yes("g3_modular", "Is the RPA bot built in a modular way?"),
		yes("g3_friendly_errors", "Are the error messages understandable?"),
		yes("g3_manual_fallback", "Can users finish the process manually if the bot fails?"),
		yes("g3_notify_users", "Are users notified when the bot succeeds or fails?"),
		yes("g3_error_msg", "Is an error message emitted on failure?"),
		yes("g3_privacy", "Is the RPA bot privacy compliant and tamper-proof?"),
		yes("g3_consistent_output", "Does the bot always produce the same output?"),
		yes("g3_access_control", "Is access to the output restricted to users of the process?"),
		yes("g3_works_as_intended", "Does the RPA bot work as intended?"),
		yes("g3_doc_complete", "Is the RPA bot documented in detail?"),
		no("g3_causes_sys_errors", "Does the bot cause system errors in the IT systems it works in?"),
	},
	Phase3: {
		yes("p3_test_environment", "Is a test environment set up?"),
		yes("p3_test_plan", "Is there a test plan for the bot?"),
	},
	Gate4: {
		yes("g4_component_test", "Was a component test (each module on its own) carried out?"),
		yes("g4_integration_test", "Was an integration test (interaction with systems) carried out?"),
		yes("g4_functional_test", "Was a functional test (from the user's view) carried out?"),
		yes("g4_user_criteria", "Were the approval criteria agreed with the users?"),
		yes("g4_user_demo", "Was the bot demonstrated to the end users?"),
		yes("g4_written_approval", "Did the users give written approval?"),
	},
	Phase4: {
		yes("p4_plan", "Is there an implementation plan?"),
		yes("p4_transport", "Has the bot been transported successfully?"),
		yes("p4_golive_comm", "Has the go-live of the bot been communicated?"),
		yes("p4_benefits_comm", "Have the benefits of the bot been communicated?"),
		yes("p4_training", "Was training offered to the users?"),
		yes("p4_manuals", "Are user manuals provided?"),
		yes("p4_strategy", "Is there a strategy for continuous maintenance and improvement of the bot?"),
	},
	Gate5: {
		yes(KeyGoLiveAccepted, "Does the bot work as the end users expect?"),
	},
	Phase5: {
		yes("p5_daily_monitor", "Is the RPA bot monitored daily?"),
		yes("p5_contin_improve", "Is the RPA bot continuously improved?"),
		yes("p5_adapt_updates", "Is the RPA bot adapted to IT system changes and updates?"),
		yes("p5_log_error_rate", "Is the bot's error rate recorded?"),
		yes("p5_dashboard", "Can users monitor the bot on a dashboard?"),
		yes("p5_suggestions", "Can users submit improvement suggestions?"),
		yes("p5_sla_outage", "Is there an agreement with users for outages?"),
	},
	PostImpl: {
		yes(KeyKPIMeasured, "Are KPIs being measured?"),
		number(KeyErrorRate, "Error rate (%)", 0, 100, nil),
		number(KeyExecMinutes, "Average execution time (minutes)", 0, inf, nil),
		number(KeyFixMinutes, "Average time to fix an error (minutes)", 0, inf, nil),
		number(KeySavedMinutes, "Manual effort saved (minutes per week)", 0, inf, nil),
		number(KeyRunsPerWeek, "Bot runs per week", 0, inf, 50),
		number(KeyHourlyCost, "Hourly cost rate", 0, inf, 20.0),
	},
}

var prefixes = map[ID]string{
	Gate1: "g1_", Phase1: "p1_", Gate2: "g2_", Phase2: "p2_", Gate3: "g3_",
	Phase3: "p3_", Gate4: "g4_", Phase4: "p4_", Gate5: "g5_", Phase5: "p5_",
	PostImpl: "pic_",
}

// Questions returns the question catalog of a stage.
func Questions(id ID) []Question {
	qs := catalog[id]
	out := make([]Question, len(qs))
	copy(out, qs)
	return out
}

// QuestionFor looks up a single question of a stage.
func QuestionFor(id ID, key state.Key) (Question, bool) {
	for _, q := range catalog[id] {
		if q.Key == key {
			return q, true
		}
	}
	return Question{}, false
}

// Prefix returns the key namespace of a stage. The start stage owns the
// un-prefixed profile keys.
func Prefix(id ID) string {
	return prefixes[id]
}

// Owner returns the stage whose catalog contains key.
func Owner(key state.Key) (ID, bool) {
	id, ok := owners[key]
	return id, ok
}

var owners = func() map[state.Key]ID {
	m := make(map[state.Key]ID)
	for id, qs := range catalog {
		for _, q := range qs {
			m[q.Key] = id
		}
	}
	return m
}()
