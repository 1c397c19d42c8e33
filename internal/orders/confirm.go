package orders

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// "es correcto" / "es correcta" as whole words. "es correctísimo" has a letter
// after the stem and does not match.
var (
	confirmationPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(es\s+correct[oa])(?:$|[^\p{L}\p{N}])`)
	wordPattern         = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// maxLeadWords bounds the affirmative words allowed before the phrase
// ("sí, todo es correcto").
const maxLeadWords = 3

// leadWords may precede the phrase. Anything else in front of it, a negator
// or order text, means the message does not affirm the draft.
var leadWords = map[string]bool{
	"si": true, "sí": true, "sip": true, "ok": true, "okay": true, "vale": true,
	"bueno": true, "pues": true, "perfecto": true, "genial": true, "todo": true,
	"eso": true, "asi": true, "así": true, "entonces": true, "yo": true, "creo": true,
	"que": true, "gracias": true,
}

// trailWords after the phrase turn it into a correction ("es correcto pero
// ponme 4 del A1").
var trailWords = map[string]bool{
	"pero": true, "aunque": true, "salvo": true, "excepto": true, "menos": true,
	"cambia": true, "quita": true, "añade": true, "ponme": true, "pasame": true, "pásame": true,
}

// IsConfirmation reports whether message affirms a previously shown draft: the
// phrase opens the message, or follows only a few short affirmatives, and is
// not followed by a correction.
func IsConfirmation(message string) bool {
	text := strings.ToLower(norm.NFC.String(strings.TrimSpace(message)))
	if text == "" {
		return false
	}
	loc := confirmationPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return false
	}

	lead := wordPattern.FindAllString(text[:loc[2]], -1)
	if len(lead) > maxLeadWords {
		return false
	}
	for _, w := range lead {
		if !leadWords[w] {
			return false
		}
	}

	for _, w := range wordPattern.FindAllString(text[loc[3]:], -1) {
		if trailWords[w] {
			return false
		}
	}
	return true
}
