// Package subst implements the character substitution table used to adapt
// translated text to a target script's supported character repertoire
// (typically simplified hanzi mapped onto cp932 kanji).
package subst

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Table is an immutable source-character to destination-character mapping.
// It is loaded once and safe for unsynchronized concurrent reads.
type Table struct {
	mapping map[rune]rune
}

// DuplicateMappingError reports a source character mapped to two different
// destinations. Picking either silently would be a guess.
type DuplicateMappingError struct {
	Char rune
	Line int
}

func (e *DuplicateMappingError) Error() string {
	return fmt.Sprintf("subst: duplicate mapping for %q at line %d", e.Char, e.Line)
}

// ChainError reports a destination character that is also a source key,
// which would make Apply non-idempotent.
type ChainError struct {
	Char rune
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("subst: destination %q is also a source character", e.Char)
}

// Load parses a line-oriented table of tab-separated source/destination
// character pairs. Blank lines and lines starting with '#' are skipped.
func Load(r io.Reader) (*Table, error) {
	mapping := make(map[rune]rune)

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}

		src := []rune(parts[0])
		dst := []rune(parts[1])
		if len(src) != 1 || len(dst) != 1 {
			return nil, fmt.Errorf("subst: line %d: entries must be single characters", lineNum)
		}

		if prev, ok := mapping[src[0]]; ok {
			if prev != dst[0] {
				return nil, &DuplicateMappingError{Char: src[0], Line: lineNum}
			}
			continue
		}
		mapping[src[0]] = dst[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("subst: read table: %w", err)
	}

	// Idempotence check: no destination may reappear as a source key.
	for _, dst := range mapping {
		if _, ok := mapping[dst]; ok {
			return nil, &ChainError{Char: dst}
		}
	}

	return &Table{mapping: mapping}, nil
}

// LoadFile loads a table from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("subst: open table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Len returns the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.mapping)
}

// Lookup returns the destination for a source character.
func (t *Table) Lookup(r rune) (rune, bool) {
	if t == nil {
		return 0, false
	}
	dst, ok := t.mapping[r]
	return dst, ok
}

// Apply replaces every mapped source character in text. When allow is
// non-empty, only characters present in allow are substituted; an empty allow
// string means full-replacement mode.
func (t *Table) Apply(text, allow string) string {
	out, _ := t.apply(text, allow, nil)
	return out
}

// Pair is one substitution actually performed during an Apply call.
type Pair struct {
	Source      rune
	Destination rune
}

// Report summarizes what a substitution pass changed.
type Report struct {
	// Pairs lists the unique substitutions in first-use order.
	Pairs []Pair
	// Count is the total number of characters replaced.
	Count int
}

// ConfigString renders the source/target character block consumed by
// downstream patch tooling.
// The tool-side convention is inverted: source_characters are the glyphs
// present in the patched script (our destinations), target_characters the
// glyphs they render as (our sources).
func (r Report) ConfigString() string {
	var sources, destinations strings.Builder
	for _, p := range r.Pairs {
		sources.WriteRune(p.Source)
		destinations.WriteRune(p.Destination)
	}
	return fmt.Sprintf("\"source_characters\":\"%s\",\n\"target_characters\":\"%s\"", destinations.String(), sources.String())
}

// ApplyReport is Apply plus a summary of the substitutions performed.
func (t *Table) ApplyReport(text, allow string) (string, Report) {
	var rep Report
	out, _ := t.apply(text, allow, &rep)
	return out, rep
}

func (t *Table) apply(text, allow string, rep *Report) (string, bool) {
	if t == nil || len(t.mapping) == 0 {
		return text, false
	}

	var allowSet map[rune]struct{}
	if allow != "" {
		allowSet = make(map[rune]struct{}, len(allow))
		for _, r := range allow {
			allowSet[r] = struct{}{}
		}
	}

	var b strings.Builder
	b.Grow(len(text))
	seen := make(map[rune]struct{})
	changed := false

	for _, r := range text {
		dst, ok := t.mapping[r]
		if ok && allowSet != nil {
			_, ok = allowSet[r]
		}
		if !ok {
			b.WriteRune(r)
			continue
		}
		b.WriteRune(dst)
		changed = true
		if rep != nil {
			rep.Count++
			if _, dup := seen[r]; !dup {
				seen[r] = struct{}{}
				rep.Pairs = append(rep.Pairs, Pair{Source: r, Destination: dst})
			}
		}
	}

	if !changed {
		return text, false
	}
	return b.String(), true
}
