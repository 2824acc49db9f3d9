package matcher

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinEffortLength is the trimmed length below which unmatched input counts as low effort.
const MinEffortLength = 10

var fillerTokens = map[string]bool{
	"ok": true, "okay": true, "k": true, "kk": true,
	"hi": true, "hello": true, "hey": true,
	"idk": true, "dunno": true, "hmm": true, "um": true, "uh": true,
	"yes": true, "no": true, "yeah": true, "yep": true, "nope": true, "sure": true,
	"thanks": true, "thank you": true, "cool": true, "fine": true, "great": true,
	"nothing": true, "go on": true, "got it": true, "i see": true,
	"sounds good": true, "makes sense": true, "no questions": true,
}

var (
	helpRegex    = regexp.MustCompile(`(?i)\b(help|hints?|stuck|clue|no idea|i don'?t know|guide me|walk me through)\b`)
	proceedRegex = regexp.MustCompile(`(?i)\b(ready to (proceed|move on|continue|structure|calculate)|let'?s (move on|proceed|continue)|move forward|next step|i have enough( info| information)?|that'?s all (my|the) questions|proceed)\b`)
)

// IsLowEffort reports whether input is too trivial to count as an attempt.
// A keyword match always wins: when matched is true the answer is false.
func IsLowEffort(input string, matched bool) bool {
	if matched {
		return false
	}
	trimmed := strings.TrimSpace(input)
	if utf8.RuneCountInString(trimmed) < MinEffortLength {
		return true
	}
	token := strings.TrimRight(Normalize(trimmed), ".!?…, ")
	return fillerTokens[token]
}

// IsHelpRequest reports whether the student explicitly asked for help.
func IsHelpRequest(input string) bool {
	return helpRegex.MatchString(Normalize(input))
}

// IsProceed reports whether the student explicitly asked to move on.
func IsProceed(input string) bool {
	return proceedRegex.MatchString(Normalize(input))
}
