package stage

import (
	"sort"

	"github.com/DarlingtonDeveloper/StageGate/state"
)

// StatusKeys lists every completion flag, including the global
// all-complete flag, in workflow order.
func StatusKeys() []state.Key {
	keys := make([]state.Key, 0, len(stages)+1)
	for _, s := range stages {
		keys = append(keys, s.Flag)
	}
	return append(keys, FlagAllComplete)
}

var persistable = func() map[state.Key]bool {
	m := make(map[state.Key]bool)
	for _, k := range StatusKeys() {
		m[k] = true
	}
	for _, qs := range catalog {
		for _, q := range qs {
			m[q.Key] = true
		}
	}
	return m
}()

// IsPersistable reports whether key belongs to the closed set of keys a
// snapshot may carry: completion flags, profile fields and every catalog
// question key.
func IsPersistable(key string) bool {
	return persistable[state.Key(key)]
}

// PersistableKeys returns the whitelist, sorted.
func PersistableKeys() []state.Key {
	out := make([]state.Key, 0, len(persistable))
	for k := range persistable {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rename maps a key used by older snapshots onto its current name.
type Rename struct {
	Old state.Key
	New state.Key
}

// LegacyRenames is applied, in order, to every imported document.
var LegacyRenames = []Rename{
	{"gate3_complet", FlagGate3},
	{"stage1_complete", FlagGate1},
	{"stage2_complete", FlagPhase1},
	{"prozessname", KeyProcessName},
	{"prozesseigentuemer", KeyProcessOwner},
	{"g1_regelbasiert", "g1_rule_based"},
	{"g1_änderung", "g1_changes_soon"},
	{"g1_strukturiert", "g1_structured_docs"},
	{"g1_häufig_mehrere", "g1_frequent_or_shared"},
	{"g1_digital", "g1_digital_io"},
	{"g1_regelmäßig", "g1_regular"},
	{"g1_wenig_ausnahmen", "g1_few_exceptions"},
	{"g1_mehrere_systeme", "g1_multiple_systems"},
	{"g1_fehleranfällig", "g1_error_prone"},
	{"g1_beschreibung", "g1_interaction_documented"},
	{"p3_testumgebung", "p3_test_environment"},
	{"p3_testplan", "p3_test_plan"},
	{"g4_komponententest", "g4_component_test"},
	{"g4_integrationstest", "g4_integration_test"},
	{"g4_funktionstest", "g4_functional_test"},
	{"g4_kriterien_user", "g4_user_criteria"},
	{"g4_demo_user", "g4_user_demo"},
	{"g4_schriftliche_freigabe", "g4_written_approval"},
	{"g5_ok", KeyGoLiveAccepted},
}

var legacy = func() map[state.Key]bool {
	m := make(map[state.Key]bool, len(LegacyRenames))
	for _, r := range LegacyRenames {
		m[r.Old] = true
	}
	return m
}()

// IsLegacy reports whether key is an old name listed in LegacyRenames.
func IsLegacy(key string) bool {
	return legacy[state.Key(key)]
}

// LegacyLabels maps answer labels written by older snapshots.
var LegacyLabels = map[string]string{
	"Ja":        LabelYes,
	"Nein":      LabelNo,
	"Unbekannt": LabelUnknown,
}

// controlKeys are runtime identities of upload/download widgets and display
// flags. They are never persisted and are stripped from imported documents.
var controlKeys = map[string]bool{
	"uploader":         true,
	"uploader_fast":    true,
	"dl_json":          true,
	"dl_gz":            true,
	"dl_json_fast":     true,
	"dl_gz_fast":       true,
	"btn_clear_upload": true,
	"pic_show_chart":   true,
	"pic_cost_benefit": true,
	"_loaded_sig":      true,
	"_uploader_key":    true,
}

// IsControlKey reports whether key names a runtime widget or display flag.
func IsControlKey(key string) bool {
	return controlKeys[key]
}

// NormalizeLabel maps a legacy answer label onto the current one and
// returns any other label unchanged.
func NormalizeLabel(label string) string {
	if l, ok := LegacyLabels[label]; ok {
		return l
	}
	return label
}
