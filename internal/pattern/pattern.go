// Package pattern compiles and validates the extraction patterns. A pattern
// must carry exactly one capturing group: the group marks the translatable
// span, and any other count makes the round trip ambiguous.
package pattern

import (
	"fmt"
	"regexp"
)

// Spec is a validated pair of extraction patterns. Primary locates the
// translatable text; Secondary, when present, locates the speaker name.
type Spec struct {
	Primary   *regexp.Regexp
	Secondary *regexp.Regexp
}

// InvalidPatternError reports a pattern that compiled but does not have
// exactly one capturing group.
type InvalidPatternError struct {
	Pattern string
	Groups  int
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("pattern: %q has %d capturing groups, want exactly 1", e.Pattern, e.Groups)
}

// Compile validates and compiles a primary pattern and an optional secondary
// pattern. An empty secondary disables speaker extraction. Validation runs
// before any file is read.
func Compile(primary, secondary string) (*Spec, error) {
	p, err := compileOne(primary)
	if err != nil {
		return nil, err
	}

	spec := &Spec{Primary: p}
	if secondary != "" {
		s, err := compileOne(secondary)
		if err != nil {
			return nil, err
		}
		spec.Secondary = s
	}
	return spec, nil
}

func compileOne(expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern: compile %q: %w", expr, err)
	}
	if re.NumSubexp() != 1 {
		return nil, &InvalidPatternError{Pattern: expr, Groups: re.NumSubexp()}
	}
	return re, nil
}

// HasSpeaker reports whether a secondary speaker pattern is configured.
func (s *Spec) HasSpeaker() bool {
	return s.Secondary != nil
}
