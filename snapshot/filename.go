package snapshot

import (
	"strings"
	"time"
	"unicode"
)

// DefaultProcessName names exports of processes without a name.
const DefaultProcessName = "Unnamed process"

const maxSlugRunes = 80

// Slug turns a process name into a file-name safe token: letters, digits,
// '_' and '-' are kept, whitespace runs become '_', everything else is
// dropped.
func Slug(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultProcessName
	}

	var b strings.Builder
	inSpace := false
	for _, r := range name {
		switch {
		case unicode.IsSpace(r):
			if !inSpace {
				b.WriteRune('_')
			}
			inSpace = true
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', r == '-':
			b.WriteRune(r)
			inSpace = false
		}
	}

	out := []rune(b.String())
	if len(out) > maxSlugRunes {
		out = out[:maxSlugRunes]
	}
	if len(out) == 0 {
		return strings.ReplaceAll(DefaultProcessName, " ", "_")
	}
	return string(out)
}

// FileName returns the export file name for a process on a given day.
func FileName(processName string, day time.Time, f Format) string {
	return Slug(processName) + "_rpa_stagegate_" + day.Format("2006-01-02") + f.Ext()
}
