// Package phonetic converts 3-letter confirmation codes to and from the
// spoken transcription a voice agent reads to a caller ("A for Alpha,
// B for Bravo, C for Charlie").
package phonetic

import (
	"regexp"
	"strings"
)

var alphabet = map[byte]string{
	'A': "Alpha", 'B': "Bravo", 'C': "Charlie", 'D': "Delta",
	'E': "Echo", 'F': "Foxtrot", 'G': "Golf", 'H': "Hotel",
	'I': "India", 'J': "Juliet", 'K': "Kilo", 'L': "Lima",
	'M': "Mike", 'N': "November", 'O': "Oscar", 'P': "Papa",
	'Q': "Quebec", 'R': "Romeo", 'S': "Sierra", 'T': "Tango",
	'U': "Uniform", 'V': "Victor", 'W': "Whiskey", 'X': "X-ray",
	'Y': "Yankee", 'Z': "Zulu",
}

// wordToLetter is the lowercase inverse of alphabet.
var wordToLetter = func() map[string]byte {
	m := make(map[string]byte, len(alphabet))
	for l, w := range alphabet {
		m[strings.ToLower(w)] = l
	}
	return m
}()

var (
	bareCodeRe = regexp.MustCompile(`^[A-Za-z]{3}$`)
	spelledRe  = regexp.MustCompile(`\b([A-Za-z]) for \w+`)
	spaceSplit = regexp.MustCompile(`\s+`)
	dashSplit  = regexp.MustCompile(`[\s-]+`)
)

// Encode renders a 3-letter uppercase code as its phonetic phrase. Letters
// outside A-Z are the caller's problem; codes are validated on creation.
func Encode(code string) string {
	parts := make([]string, 0, len(code))
	for i := 0; i < len(code); i++ {
		parts = append(parts, string(code[i])+" for "+alphabet[code[i]])
	}
	return strings.Join(parts, ", ")
}

// Decode normalizes caller input to a 3-letter uppercase code. It accepts a
// bare code, the "<L> for <Word>" phrase Encode produces, or three phonetic
// words ("alpha bravo charlie"). Anything else degrades to the raw input
// uppercased with whitespace stripped; the downstream lookup will simply
// miss for garbage.
func Decode(input string) string {
	in := strings.TrimSpace(input)

	if bareCodeRe.MatchString(in) {
		return strings.ToUpper(in)
	}

	if ms := spelledRe.FindAllStringSubmatch(in, -1); len(ms) == 3 {
		var b strings.Builder
		for _, m := range ms {
			b.WriteString(strings.ToUpper(m[1]))
		}
		return b.String()
	}

	// Whitespace split first so "x-ray" survives as a single word, then
	// retry with hyphens as separators ("mike-november-oscar").
	if code, ok := resolveWords(spaceSplit.Split(in, -1)); ok {
		return code
	}
	if code, ok := resolveWords(dashSplit.Split(in, -1)); ok {
		return code
	}

	return strings.ToUpper(spaceSplit.ReplaceAllString(in, ""))
}

func resolveWords(words []string) (string, bool) {
	if len(words) != 3 {
		return "", false
	}
	var b strings.Builder
	for _, w := range words {
		l, ok := wordToLetter[strings.ToLower(w)]
		if !ok {
			return "", false
		}
		b.WriteByte(l)
	}
	return b.String(), true
}
