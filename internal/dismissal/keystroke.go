package dismissal

import (
	"strings"
	"unicode/utf8"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
)

// FilterKeystroke returns the input that results from editing current into
// proposed. An edit inserting more than one character at once (a paste) is
// rejected and current is kept. Accepted input is uppercased, stripped to
// [A-Z0-9] and cut to the code length.
func FilterKeystroke(current, proposed string) string {
	if utf8.RuneCountInString(proposed)-utf8.RuneCountInString(current) > 1 {
		return current
	}

	var b strings.Builder
	for _, r := range strings.ToUpper(proposed) {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			continue
		}
		b.WriteRune(r)
		if b.Len() == alarm.CodeLength {
			break
		}
	}
	return b.String()
}

func normalize(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}
