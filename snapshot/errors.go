package snapshot

import "fmt"

// Kind is the category of a decode failure.
type Kind string

const (
	KindCompression Kind = "compression"
	KindEncoding    Kind = "encoding"
	KindSyntax      Kind = "syntax"
	KindShape       Kind = "shape"
)

// DecodeError reports why snapshot bytes could not be turned into a
// document. Line and Column are set for syntax errors only.
type DecodeError struct {
	Kind   Kind
	Line   int
	Column int
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Kind == KindSyntax && e.Line > 0 {
		return fmt.Sprintf("decode snapshot: %s error at line %d, column %d: %v", e.Kind, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("decode snapshot: %s error: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Message is the user-facing explanation for the failure category.
func (e *DecodeError) Message() string {
	switch e.Kind {
	case KindCompression:
		return "The gzip file is corrupt. Load a valid .json or an intact .json.gz file."
	case KindEncoding:
		return "The file is not UTF-8. Use the originally exported JSON (do not open and re-save it in a spreadsheet)."
	case KindSyntax:
		return fmt.Sprintf("The JSON is not readable: line %d, column %d.", e.Line, e.Column)
	case KindShape:
		return "Invalid format: expected a JSON object (key to value)."
	}
	return e.Error()
}
