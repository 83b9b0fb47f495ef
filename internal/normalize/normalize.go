// Package normalize cleans raw transcribed or typed input before it
// reaches intent matching and reference resolution. Everything here is
// pure and deterministic so the pipeline stays testable.
package normalize

import "strings"

// Utterance is the cleaned form of one user turn.
type Utterance struct {
	Raw     string
	Text    string
	Numbers []int
}

// Spelled-out numbers show up instead of digits in voice transcripts.
// Ordinals are included because "read the second one" is common speech.
var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

// Filler tokens transcription engines tend to inject at the start of
// short utterances.
var fillerWords = map[string]bool{
	"um": true, "uh": true, "erm": true, "hmm": true,
	"please": true, "like": true, "so": true, "well": true,
	"hey": true, "ok": true, "okay": true,
}

// Normalize lower-cases the input, strips transcription noise, and
// converts spelled-out small numbers to digits. Text after "saying" is
// carried through untouched since it is verbatim reply content.
func Normalize(raw string) Utterance {
	head, tail := splitReplyHint(raw)

	text := strings.ToLower(strings.TrimSpace(head))
	text = strings.Trim(text, ".!?,;: ")

	var numbers []int
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	prev := ""
	for i, word := range words {
		cleaned := strings.Trim(word, ".,!?;:")
		if cleaned == "" {
			continue
		}
		if fillerWords[cleaned] && i < 2 {
			continue
		}
		if n, ok := wordNumbers[cleaned]; ok && !pronounOne(cleaned, prev) {
			numbers = append(numbers, n)
			out = append(out, itoa(n))
			prev = itoa(n)
			continue
		}
		if n, ok := parseDigits(cleaned); ok {
			numbers = append(numbers, n)
		}
		out = append(out, cleaned)
		prev = cleaned
	}

	normalized := strings.Join(out, " ")
	if tail != "" {
		normalized = normalized + " saying " + tail
	}

	return Utterance{Raw: raw, Text: normalized, Numbers: numbers}
}

// ReplyHint extracts verbatim reply content after the hint markers the
// draft flow understands ("reply saying I will attend").
func ReplyHint(text string) string {
	lower := strings.ToLower(text)
	for _, marker := range []string{" saying ", " that ", " with ", " message "} {
		if idx := strings.Index(lower, marker); idx >= 0 {
			return strings.TrimSpace(text[idx+len(marker):])
		}
	}
	return ""
}

// splitReplyHint separates the command head from verbatim reply content
// so lower-casing never rewrites what the user dictated.
func splitReplyHint(raw string) (head, tail string) {
	lower := strings.ToLower(raw)
	if idx := strings.Index(lower, " saying "); idx >= 0 {
		return raw[:idx], strings.TrimSpace(raw[idx+len(" saying "):])
	}
	return raw, ""
}

// pronounOne reports whether "one" is the pronoun rather than a count:
// "the last one", "that one", "the second one". Converting those to a
// digit would turn a deictic reference into an index.
func pronounOne(word, prev string) bool {
	if word != "one" {
		return false
	}
	switch prev {
	case "last", "this", "that":
		return true
	}
	_, isNumber := parseDigits(prev)
	return isNumber
}

func parseDigits(word string) (int, bool) {
	n := 0
	for _, r := range word {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > 1000 {
			return 0, false
		}
	}
	if word == "" {
		return 0, false
	}
	return n, true
}

func itoa(n int) string {
	if n == 10 {
		return "10"
	}
	return string(rune('0' + n))
}
