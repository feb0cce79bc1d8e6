// Package extract locates translatable text in decoded script content and
// produces the ordered translation units the reinjection side re-aligns
// against.
package extract

import (
	"fmt"
	"iter"
	"regexp"

	"script-patcher/internal/dump"
	"script-patcher/internal/pattern"
)

// Match is one primary-pattern occurrence. Start/End span the whole match in
// byte offsets; CapStart/CapEnd span the capture group, or -1 when the group
// did not participate in the match.
type Match struct {
	Start, End       int
	CapStart, CapEnd int
}

// Capture returns the captured text within content.
func (m Match) Capture(content string) string {
	if m.CapStart < 0 {
		return ""
	}
	return content[m.CapStart:m.CapEnd]
}

// Matches yields the non-overlapping matches of re in content, in order.
// The sequence is finite and restartable: re-invoking it on the same inputs
// reproduces the identical sequence, which is what lets injection re-derive
// the exact extraction-time boundaries.
func Matches(content string, re *regexp.Regexp) iter.Seq[Match] {
	return func(yield func(Match) bool) {
		for _, idx := range re.FindAllStringSubmatchIndex(content, -1) {
			m := Match{Start: idx[0], End: idx[1], CapStart: idx[2], CapEnd: idx[3]}
			if !yield(m) {
				return
			}
		}
	}
}

// AlignmentError reports primary and secondary patterns that matched a
// different number of times; pairing them positionally would be a guess.
type AlignmentError struct {
	Primary   int
	Secondary int
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("extract: %d primary matches but %d speaker matches", e.Primary, e.Secondary)
}

// Run extracts the ordered translation units from decoded script content.
// Unit i carries position i. When a secondary pattern is set, its k-th
// match supplies the speaker of the k-th unit; a match-count mismatch fails
// rather than truncating.
func Run(content string, spec *pattern.Spec) ([]dump.Unit, error) {
	var units []dump.Unit
	for m := range Matches(content, spec.Primary) {
		units = append(units, dump.Unit{
			Position:   len(units),
			SourceText: m.Capture(content),
		})
	}

	if spec.Secondary == nil {
		return units, nil
	}

	var speakers []string
	for m := range Matches(content, spec.Secondary) {
		speakers = append(speakers, m.Capture(content))
	}
	if len(speakers) != len(units) {
		return nil, &AlignmentError{Primary: len(units), Secondary: len(speakers)}
	}
	for i := range units {
		units[i].Speaker = speakers[i]
	}

	return units, nil
}
