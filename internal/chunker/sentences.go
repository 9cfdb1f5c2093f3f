package chunker

import (
	"strings"
	"unicode"
)

// abbreviations lists lowercase tokens after which a period does not end a
// sentence. Single-letter tokens (initials, "U.S." style) are suppressed
// separately. This is a best-effort heuristic, not a full sentence tokenizer.
var abbreviations = map[string]bool{
	"dr":   true,
	"mr":   true,
	"mrs":  true,
	"ms":   true,
	"prof": true,
	"sr":   true,
	"jr":   true,
	"st":   true,
	"vs":   true,
	"etc":  true,
	"inc":  true,
	"ltd":  true,
	"no":   true,
	"vol":  true,
	"fig":  true,
	"al":   true, // "et al."
}

// SplitSentences splits normalized text on sentence-terminal punctuation
// (".", "!", "?") followed by whitespace and a capital letter. Splits are
// suppressed when the token preceding a period is a single letter or a known
// abbreviation, so "Dr. Smith" and "U.S. Navy" stay intact.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	runes := []rune(text)
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}

		// Require whitespace then an uppercase letter after the terminator.
		j := i + 1
		if j >= len(runes) || !unicode.IsSpace(runes[j]) {
			continue
		}
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if j >= len(runes) || !unicode.IsUpper(runes[j]) {
			continue
		}

		if r == '.' && isAbbreviationBefore(runes, i) {
			continue
		}

		sentences = append(sentences, strings.TrimSpace(string(runes[start:i+1])))
		start = j
		i = j - 1
	}

	if start < len(runes) {
		if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
			sentences = append(sentences, tail)
		}
	}

	return sentences
}

// isAbbreviationBefore reports whether the word ending at the period at
// runes[dot] looks like an abbreviation: a single letter ("J.", the segments
// of "U.S.") or a token in the abbreviations table.
func isAbbreviationBefore(runes []rune, dot int) bool {
	end := dot
	begin := end
	for begin > 0 && (unicode.IsLetter(runes[begin-1]) || runes[begin-1] == '.') {
		begin--
	}
	token := strings.Trim(string(runes[begin:end]), ".")
	if token == "" {
		return false
	}
	// Initials and acronym segments: "J", "U.S" → last segment length 1.
	segs := strings.Split(token, ".")
	last := segs[len(segs)-1]
	if len([]rune(last)) == 1 {
		return true
	}
	return abbreviations[strings.ToLower(last)]
}
