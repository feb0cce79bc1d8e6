// Package dump defines the translation-unit intermediate form and its JSON
// serialization. One dump file holds the ordered units extracted from one
// script file; array order always equals position order.
package dump

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Unit is one matched text occurrence in a script file. Position is the
// 0-based extraction ordinal and the sole key used to re-align the unit at
// injection time.
type Unit struct {
	Position          int    `json:"position"`
	SourceText        string `json:"source_text"`
	Speaker           string `json:"speaker,omitempty"`
	TranslatedText    string `json:"translated_text,omitempty"`
	TranslatedSpeaker string `json:"translated_speaker,omitempty"`
}

// OrderError reports a dump whose positions are not strictly increasing.
type OrderError struct {
	Index    int
	Position int
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("dump: entry %d has out-of-order position %d", e.Index, e.Position)
}

// wireUnit accepts both our field names and the message/name keys written by
// the external extraction tools.
type wireUnit struct {
	Position          *int   `json:"position"`
	SourceText        string `json:"source_text"`
	Speaker           string `json:"speaker"`
	TranslatedText    string `json:"translated_text"`
	TranslatedSpeaker string `json:"translated_speaker"`
	Message           string `json:"message"`
	Name              string `json:"name"`
}

// Write serializes units as an indented JSON array without HTML escaping, so
// CJK text and script markup stay readable in the editable dump.
func Write(w io.Writer, units []Unit) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if units == nil {
		units = []Unit{}
	}
	if err := enc.Encode(units); err != nil {
		return fmt.Errorf("dump: encode: %w", err)
	}
	return nil
}

// Read deserializes a dump and validates the position invariant. Legacy dumps
// that carry no positions (external tool output) are assigned ordinals in
// array order.
func Read(r io.Reader) ([]Unit, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("dump: read: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var wire []wireUnit
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("dump: decode: %w", err)
	}

	units := make([]Unit, len(wire))
	explicit := false
	for i, wu := range wire {
		u := Unit{
			SourceText:        wu.SourceText,
			Speaker:           wu.Speaker,
			TranslatedText:    wu.TranslatedText,
			TranslatedSpeaker: wu.TranslatedSpeaker,
		}
		if u.SourceText == "" {
			u.SourceText = wu.Message
		}
		if u.Speaker == "" {
			u.Speaker = wu.Name
		}
		if wu.Position != nil {
			explicit = true
			u.Position = *wu.Position
		} else {
			u.Position = i
		}
		units[i] = u
	}

	if explicit {
		for i, u := range units {
			if u.Position != i {
				return nil, &OrderError{Index: i, Position: u.Position}
			}
		}
	}

	return units, nil
}

// WriteFile writes a dump file with 0644 permissions.
func WriteFile(path string, units []Unit) error {
	var buf bytes.Buffer
	if err := Write(&buf, units); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("dump: write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a dump file.
func ReadFile(path string) ([]Unit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dump: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Pair merges a source dump with a translated dump of equal length into one
// populated collection: unit i keeps the source text and speaker and gains
// translated[i]'s text and speaker as translations.
func Pair(source, translated []Unit) ([]Unit, error) {
	if len(source) != len(translated) {
		return nil, fmt.Errorf("dump: pair length mismatch: %d source vs %d translated", len(source), len(translated))
	}

	out := make([]Unit, len(source))
	for i, src := range source {
		out[i] = Unit{
			Position:          src.Position,
			SourceText:        src.SourceText,
			Speaker:           src.Speaker,
			TranslatedText:    translated[i].SourceText,
			TranslatedSpeaker: translated[i].Speaker,
		}
	}
	return out, nil
}
