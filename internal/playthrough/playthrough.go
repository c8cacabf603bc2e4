// Package playthrough maps raw save filenames onto canonical campaign ids.
// Victoria 3 rotates autosave slots and writes dated backups, so many
// filenames belong to one campaign; grouping them under a single id is what
// makes per-playthrough dedup and storage possible.
package playthrough

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultID is used when a filename consists only of rotation tokens and
// date fragments.
const DefaultID = "campaign"

var (
	rotationTokens  = regexp.MustCompile(`(?i)_?(?:autosave|backup)`)
	datedSuffix     = regexp.MustCompile(`_\d{4}_\d{1,2}_\d{1,2}`)
	bareYear        = regexp.MustCompile(`_\d{4}`)
	trailingCounter = regexp.MustCompile(`_\d+$`)
	separatorRuns   = regexp.MustCompile(`_+`)
)

// Identify resolves the canonical playthrough id for a save file path.
// Filenames differing only in rotation tokens, embedded dates, or a trailing
// slot counter resolve to the same id.
func Identify(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	name = rotationTokens.ReplaceAllString(name, "")
	name = datedSuffix.ReplaceAllString(name, "")
	name = bareYear.ReplaceAllString(name, "")
	name = trailingCounter.ReplaceAllString(name, "")
	name = separatorRuns.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")

	if name == "" {
		return DefaultID
	}
	return name
}

// DisplayName renders a playthrough id as a human-readable title for status
// output and tables.
func DisplayName(id string) string {
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range id {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		title = DefaultID
	}
	return cases.Title(language.Und).String(title)
}
