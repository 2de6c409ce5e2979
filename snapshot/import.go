package snapshot

import (
	"sort"

	"github.com/DarlingtonDeveloper/StageGate/hashid"
	"github.com/DarlingtonDeveloper/StageGate/stage"
	"github.com/DarlingtonDeveloper/StageGate/state"
)

// Report describes the outcome of an import.
type Report struct {
	Signature string `json:"signature"`
	// Skipped is true when the same bytes were already applied.
	Skipped bool `json:"skipped"`
	Applied int  `json:"applied"`
	// Renamed lists legacy keys that were mapped onto current names.
	Renamed []string `json:"renamed,omitempty"`
	// Stripped lists widget and session control keys carried by the file.
	Stripped []string `json:"stripped,omitempty"`
	// Dropped lists other keys rejected by the whitelist, including legacy
	// keys whose current name was already present.
	Dropped []string `json:"dropped,omitempty"`
}

// Import decodes data and merges it into store. name is the file name as
// supplied by the user; together with the content it forms the signature
// that makes repeated imports of the same file a no-op. On any decode
// failure the store is left untouched.
func Import(store *state.Store, name string, data []byte) (Report, error) {
	sig := hashid.Signature(name, data)
	if store.Ephemeral().LoadedSignature == sig {
		return Report{Signature: sig, Skipped: true}, nil
	}

	doc, err := Decode(data)
	if err != nil {
		return Report{Signature: sig}, err
	}

	cleaned, rep := Reconcile(doc)
	rep.Signature = sig

	err = store.Update(func(tx *state.Tx) error {
		for k, v := range cleaned {
			tx.Set(state.Key(k), v)
		}
		e := tx.Ephemeral()
		e.LoadedSignature = sig
		e.UploaderToken = state.NewUploaderToken()
		tx.SetEphemeral(e)
		return nil
	})
	if err != nil {
		return Report{Signature: sig}, err
	}
	rep.Applied = len(cleaned)
	return rep, nil
}

// Reconcile strips control keys and filters a decoded document down to
// persistable keys, applying the legacy rename table. A legacy key never overwrites its current name
// when both are present. Legacy answer labels of choice questions are
// mapped to the current labels.
func Reconcile(doc Document) (Document, Report) {
	var rep Report
	cleaned := make(Document, len(doc))
	for k, v := range doc {
		if stage.IsControlKey(k) {
			rep.Stripped = append(rep.Stripped, k)
			continue
		}
		if stage.IsPersistable(k) || stage.IsLegacy(k) {
			cleaned[k] = v
			continue
		}
		rep.Dropped = append(rep.Dropped, k)
	}

	for _, r := range stage.LegacyRenames {
		old, cur := string(r.Old), string(r.New)
		v, ok := cleaned[old]
		if !ok {
			continue
		}
		delete(cleaned, old)
		if _, exists := cleaned[cur]; exists {
			rep.Dropped = append(rep.Dropped, old)
			continue
		}
		cleaned[cur] = v
		rep.Renamed = append(rep.Renamed, old)
	}

	for k, v := range cleaned {
		if !stage.IsPersistable(k) {
			delete(cleaned, k)
			rep.Dropped = append(rep.Dropped, k)
			continue
		}
		label, ok := v.(string)
		if !ok {
			continue
		}
		owner, _ := stage.Owner(state.Key(k))
		if q, found := stage.QuestionFor(owner, state.Key(k)); found && q.IsChoice() {
			cleaned[k] = stage.NormalizeLabel(label)
		}
	}

	sort.Strings(rep.Stripped)
	sort.Strings(rep.Dropped)
	sort.Strings(rep.Renamed)
	return cleaned, rep
}

// ClearUpload forgets the last imported signature and rotates the upload
// widget identity, so the same file can deliberately be loaded again.
func ClearUpload(store *state.Store) {
	store.Update(func(tx *state.Tx) error {
		e := tx.Ephemeral()
		e.LoadedSignature = ""
		e.UploaderToken = state.NewUploaderToken()
		tx.SetEphemeral(e)
		return nil
	})
}
