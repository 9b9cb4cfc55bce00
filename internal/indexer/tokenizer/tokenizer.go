// Package tokenizer turns document text into term frequencies. Input is read
// line by line, each line is lower-cased, and every maximal run of four or
// more characters from [a-z0-9_-] counts as one occurrence of a term.
package tokenizer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinTermLength is the shortest run that counts as a term.
const MinTermLength = 4

var termPattern = regexp.MustCompile(`[a-z0-9_-]{4,}`)

// ErrNotUTF8 is returned for input that is not valid UTF-8 text.
var ErrNotUTF8 = errors.New("input is not valid UTF-8")

// Frequencies maps a term to its number of occurrences in one document.
type Frequencies map[string]int64

// Terms returns the terms of a single line in order of appearance.
func Terms(line string) []string {
	return termPattern.FindAllString(strings.ToLower(line), -1)
}

// Extract reads r line by line and counts its terms. A line that is not
// valid UTF-8 aborts extraction with ErrNotUTF8.
func Extract(r io.Reader) (Frequencies, error) {
	freqs := make(Frequencies)
	br := bufio.NewReader(r)
	lineNo := 0
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			lineNo++
			if !utf8.ValidString(line) {
				return nil, fmt.Errorf("line %d: %w", lineNo, ErrNotUTF8)
			}
			for _, term := range Terms(line) {
				freqs[term]++
			}
		}
		if errors.Is(err, io.EOF) {
			return freqs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", lineNo+1, err)
		}
	}
}

// ExtractFile counts the terms of the file at path and returns its size in
// bytes. On error the file contributes nothing.
func ExtractFile(path string) (Frequencies, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat %s: %w", path, err)
	}

	freqs, err := Extract(f)
	if err != nil {
		return nil, 0, fmt.Errorf("extracting %s: %w", path, err)
	}
	return freqs, info.Size(), nil
}
