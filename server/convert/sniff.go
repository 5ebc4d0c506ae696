package convert

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const sniffLineCount = 20

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// Values treated as null markers; the canonical format stores all of
// them as empty string so is-null filters behave uniformly.
var nullMarkers = map[string]struct{}{
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
	"#n/a": {},
}

// normalizeCell coerces a raw cell to canonical text.
func normalizeCell(s string) string {
	trimmed := strings.TrimSpace(s)
	if _, isNull := nullMarkers[strings.ToLower(trimmed)]; isNull {
		return ""
	}
	return trimmed
}

// normalizeColumns guarantees non-empty, unique column names. Blank
// headers become col_<i>; duplicates get a numeric suffix.
func normalizeColumns(raw []string) []string {
	seen := make(map[string]int, len(raw))
	out := make([]string, len(raw))

	for i, name := range raw {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("col_%d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		}
		if _, dup := seen[name]; !dup {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}

// decodeReader wraps r with a charset decoder chosen from the leading
// bytes: UTF-8/UTF-16 BOMs are honored, and content that is not valid
// UTF-8 is read as latin-1, which can decode any byte sequence.
func decodeReader(r io.Reader) io.Reader {
	br := bufio.NewReaderSize(r, 64*1024)

	peek, _ := br.Peek(4096)
	switch {
	case bytes.HasPrefix(peek, []byte{0xEF, 0xBB, 0xBF}):
		br.Discard(3)
		return br
	case bytes.HasPrefix(peek, []byte{0xFF, 0xFE}):
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder())
	case bytes.HasPrefix(peek, []byte{0xFE, 0xFF}):
		return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder())
	}

	// Trim the sample to a rune boundary before validating, otherwise a
	// multi-byte character split at the buffer edge reads as invalid.
	sample := peek
	for len(sample) > 0 && !utf8.Valid(sample) {
		sample = sample[:len(sample)-1]
		if len(peek)-len(sample) > utf8.UTFMax {
			return transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
		}
	}

	return br
}

// sniffDelimiter scores each candidate by how consistently it appears
// across the sampled lines: the winner has the same nonzero count on the
// largest share of lines, with the count itself as tiebreaker.
func sniffDelimiter(lines []string) rune {
	bestDelim := ','
	bestScore := -1
	bestCount := 0

	for _, delim := range delimiterCandidates {
		counts := make(map[int]int)
		for _, line := range lines {
			if n := strings.Count(line, string(delim)); n > 0 {
				counts[n]++
			}
		}

		modalCount, score := 0, 0
		for n, freq := range counts {
			if freq > score || (freq == score && n > modalCount) {
				score, modalCount = freq, n
			}
		}

		if score > bestScore || (score == bestScore && modalCount > bestCount) {
			bestScore, bestCount, bestDelim = score, modalCount, delim
		}
	}

	return bestDelim
}

// sampleLines reads up to sniffLineCount non-empty lines through the
// charset decoder for delimiter detection.
func sampleLines(r io.Reader) []string {
	scanner := bufio.NewScanner(decodeReader(r))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() && len(lines) < sniffLineCount {
		if line := scanner.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
