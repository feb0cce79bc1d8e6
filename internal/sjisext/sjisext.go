// Package sjisext reads and writes sjis_ext.bin files: the bare list of
// UTF-16 code units some patch tools emit for characters they appended to the
// extended Shift-JIS range.
package sjisext

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"
)

// Read decodes a sjis_ext.bin stream into its character string. A trailing
// odd byte is ignored, matching the tools that produce these files.
func Read(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("sjisext: read: %w", err)
	}

	var b strings.Builder
	for i := 0; i+1 < len(data); i += 2 {
		b.WriteRune(rune(binary.LittleEndian.Uint16(data[i : i+2])))
	}
	return b.String(), nil
}

// Write encodes text as little-endian 16-bit code units. Characters outside
// the BMP have no representation in this format.
func Write(w io.Writer, text string) error {
	buf := make([]byte, 2)
	for _, r := range text {
		if r > 0xFFFF {
			return fmt.Errorf("sjisext: character %q outside the BMP", r)
		}
		binary.LittleEndian.PutUint16(buf, uint16(r))
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("sjisext: write: %w", err)
		}
	}
	return nil
}

// ReadFile loads the character string from a sjis_ext.bin on disk, returning
// "" without error when the file does not exist.
func ReadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("sjisext: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}
