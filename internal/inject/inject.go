// Package inject reconstructs script content from the untouched original text
// plus translated units. Match spans are re-derived by re-running the same
// pattern scan instead of trusting stored byte offsets, so the only state the
// dump needs to carry is the unit's extraction ordinal.
package inject

import (
	"fmt"
	"regexp"
	"strings"

	"script-patcher/internal/dump"
	"script-patcher/internal/extract"
	"script-patcher/internal/pattern"
	"script-patcher/internal/subst"
)

// CountMismatchError reports that the re-derived match count differs from the
// supplied unit count: the script file changed between extraction and
// injection, and guessing an alignment would corrupt it.
type CountMismatchError struct {
	Matches int
	Units   int
	Kind    string // "text" or "speaker"
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("inject: %d %s matches but %d units", e.Matches, e.Kind, e.Units)
}

// Run rebuilds script content with translated text in place of each capture
// span. Units without translated text keep their original captured text, so a
// partially translated file stays structurally valid. Everything outside the
// capture spans is copied through unchanged. A nil table applies the identity
// substitution; allow restricts substitution to the listed characters.
func Run(original string, spec *pattern.Spec, units []dump.Unit, table *subst.Table, allow string) (string, error) {
	out, err := replaceCaptures(original, spec.Primary, units, "text", func(u dump.Unit, capture string) string {
		if u.TranslatedText == "" {
			return capture
		}
		return table.Apply(u.TranslatedText, allow)
	})
	if err != nil {
		return "", err
	}

	if spec.Secondary == nil || !anyTranslatedSpeaker(units) {
		return out, nil
	}

	// The speaker pass runs over the already-rewritten content. A secondary
	// pattern spans names, not message text, so the primary rewrite does not
	// disturb its match count; a pattern pair that does overlap fails the
	// count check below instead of guessing.
	return replaceCaptures(out, spec.Secondary, units, "speaker", func(u dump.Unit, capture string) string {
		if u.TranslatedSpeaker == "" {
			return capture
		}
		return table.Apply(u.TranslatedSpeaker, allow)
	})
}

func anyTranslatedSpeaker(units []dump.Unit) bool {
	for _, u := range units {
		if u.TranslatedSpeaker != "" {
			return true
		}
	}
	return false
}

// replaceCaptures rewrites each match's capture span through replace while
// copying every other byte unchanged. The match count must equal the unit
// count before any output is produced.
func replaceCaptures(content string, re *regexp.Regexp, units []dump.Unit, kind string, replace func(u dump.Unit, capture string) string) (string, error) {
	var matches []extract.Match
	for m := range extract.Matches(content, re) {
		matches = append(matches, m)
	}
	if len(matches) != len(units) {
		return "", &CountMismatchError{Matches: len(matches), Units: len(units), Kind: kind}
	}

	var b strings.Builder
	b.Grow(len(content))
	last := 0
	for i, m := range matches {
		// A match whose group did not participate has no capture span to
		// rewrite; the whole match passes through untouched.
		if m.CapStart < 0 {
			continue
		}
		b.WriteString(content[last:m.CapStart])
		b.WriteString(replace(units[i], content[m.CapStart:m.CapEnd]))
		last = m.CapEnd
	}
	b.WriteString(content[last:])
	return b.String(), nil
}
