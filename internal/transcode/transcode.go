// Package transcode converts raw script bytes to and from UTF-8 text for a
// closed set of legacy encodings. Decoding is strict: invalid byte sequences
// and unencodable characters are surfaced as errors instead of being silently
// replaced, since a lossy conversion would corrupt the reinjected script.
package transcode

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// Encoding identifies a supported script-file encoding.
type Encoding int

const (
	// Auto selects an encoding by inspecting the input bytes.
	Auto Encoding = iota
	UTF8
	ShiftJIS // cp932
	GBK      // cp936
	EUCJP
)

func (e Encoding) String() string {
	switch e {
	case Auto:
		return "auto"
	case UTF8:
		return "utf-8"
	case ShiftJIS:
		return "sjis"
	case GBK:
		return "gbk"
	case EUCJP:
		return "euc-jp"
	default:
		return fmt.Sprintf("encoding(%d)", int(e))
	}
}

// Parse resolves an encoding name, accepting the common aliases used by
// legacy tooling. The empty string means Auto.
func Parse(name string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return Auto, nil
	case "utf-8", "utf8":
		return UTF8, nil
	case "sjis", "shift_jis", "shift-jis", "shiftjis", "cp932":
		return ShiftJIS, nil
	case "gbk", "cp936", "gb2312", "chinese":
		return GBK, nil
	case "euc-jp", "euc_jp", "eucjp":
		return EUCJP, nil
	default:
		return Auto, fmt.Errorf("unsupported encoding: %q", name)
	}
}

// ErrDetectionFailed reports that no supported encoding decodes the input
// cleanly.
var ErrDetectionFailed = errors.New("transcode: encoding detection failed")

// InvalidByteSequenceError reports input bytes that the chosen encoding
// cannot decode.
type InvalidByteSequenceError struct {
	Encoding Encoding
}

func (e *InvalidByteSequenceError) Error() string {
	return fmt.Sprintf("transcode: invalid byte sequence for %s", e.Encoding)
}

// UnencodableCharError reports a character the destination encoding has no
// representation for. Position is the 0-based rune index in the input text.
type UnencodableCharError struct {
	Char     rune
	Position int
	Encoding Encoding
}

func (e *UnencodableCharError) Error() string {
	return fmt.Sprintf("transcode: character %q at rune %d not encodable in %s", e.Char, e.Position, e.Encoding)
}

func codec(enc Encoding) encoding.Encoding {
	switch enc {
	case ShiftJIS:
		return japanese.ShiftJIS
	case GBK:
		return simplifiedchinese.GBK
	case EUCJP:
		return japanese.EUCJP
	default:
		return nil
	}
}

// detectionOrder lists trial candidates for Auto, UTF-8 first. The legacy
// order follows the original tooling: GBK before Shift-JIS.
var detectionOrder = []Encoding{UTF8, GBK, ShiftJIS, EUCJP}

// Decode converts raw bytes to UTF-8 text. When hint is Auto the encoding is
// detected; the encoding actually used is returned alongside the text.
func Decode(data []byte, hint Encoding) (string, Encoding, error) {
	if hint == Auto {
		detected, err := Detect(data)
		if err != nil {
			return "", Auto, err
		}
		hint = detected
	}

	text, err := decodeStrict(data, hint)
	if err != nil {
		return "", hint, err
	}
	return text, hint, nil
}

func decodeStrict(data []byte, enc Encoding) (string, error) {
	if enc == UTF8 {
		if !utf8.Valid(data) {
			return "", &InvalidByteSequenceError{Encoding: UTF8}
		}
		return string(data), nil
	}

	c := codec(enc)
	if c == nil {
		return "", fmt.Errorf("transcode: %s is not decodable", enc)
	}

	text, _, err := transform.String(c.NewDecoder(), string(data))
	if err != nil {
		return "", &InvalidByteSequenceError{Encoding: enc}
	}
	// The x/text decoders substitute U+FFFD for undecodable input instead of
	// failing. None of the legacy encodings can encode U+FFFD itself, so its
	// presence always marks an invalid input sequence.
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", &InvalidByteSequenceError{Encoding: enc}
	}
	return text, nil
}

// Detect chooses an encoding by trial decoding. A candidate is accepted only
// when it decodes the whole input without a single invalid sequence, which
// keeps detection consistent with the strict Decode path.
func Detect(data []byte) (Encoding, error) {
	if len(data) == 0 {
		return UTF8, nil
	}
	for _, enc := range detectionOrder {
		if _, err := decodeStrict(data, enc); err == nil {
			return enc, nil
		}
	}
	return Auto, ErrDetectionFailed
}

// Encode converts UTF-8 text to destination bytes. A character without a
// representation in enc fails with UnencodableCharError; it is never dropped
// or replaced.
func Encode(text string, enc Encoding) ([]byte, error) {
	if enc == Auto {
		return nil, errors.New("transcode: cannot encode to auto")
	}
	if enc == UTF8 {
		return []byte(text), nil
	}

	c := codec(enc)
	if c == nil {
		return nil, fmt.Errorf("transcode: %s is not encodable", enc)
	}

	out, _, err := transform.String(c.NewEncoder(), text)
	if err == nil {
		return []byte(out), nil
	}

	// Re-scan rune by rune to name the offending character.
	pos := 0
	for _, r := range text {
		if _, _, rerr := transform.String(c.NewEncoder(), string(r)); rerr != nil {
			return nil, &UnencodableCharError{Char: r, Position: pos, Encoding: enc}
		}
		pos++
	}
	return nil, fmt.Errorf("transcode: encode to %s: %w", enc, err)
}
