package orders

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Model output is untrusted text. Every parser here returns "nothing found"
// instead of an error when the text does not look like what was asked for.

var (
	itemPairPattern  = regexp.MustCompile(`\[\s*"([^"]+)"\s*,\s*(?:"([^"]*)"|(\d+))\s*\]`)
	orderTruePattern = regexp.MustCompile(`(?i)"order"\s*:\s*true`)
	replyPattern     = regexp.MustCompile(`"responder"\s*:\s*true\s*,\s*"respuesta"\s*:\s*"?([^"]+)"?`)
)

// ParseProposals extracts every ["code", "qty"] pair from raw extractor output.
// Unquoted integer quantities are accepted.
func ParseProposals(raw string) []ItemProposal {
	matches := itemPairPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]ItemProposal, 0, len(matches))
	for _, m := range matches {
		// Runs of whitespace collapse to one space so the code renders on one line.
		code := strings.Join(strings.Fields(m[1]), " ")
		if code == "" {
			continue
		}
		qty := m[2]
		if m[3] != "" {
			qty = m[3]
		}
		out = append(out, ItemProposal{Code: code, Quantity: strings.TrimSpace(qty)})
	}
	return out
}

// ParseOrderVerdict reports whether the classifier answered {"order": true}.
// Anything else, including garbage, is "not an order".
func ParseOrderVerdict(raw string) bool {
	var v struct {
		Order *bool `json:"order"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err == nil && v.Order != nil {
		return *v.Order
	}
	return orderTruePattern.MatchString(raw)
}

// ParseAssistantReply returns the reply text when the assistant decided to answer.
func ParseAssistantReply(raw string) (string, bool) {
	var v struct {
		Responder bool   `json:"responder"`
		Respuesta string `json:"respuesta"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v); err == nil {
		text := strings.TrimSpace(v.Respuesta)
		return text, v.Responder && text != ""
	}

	m := replyPattern.FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	text := strings.TrimSpace(m[1])
	return text, text != ""
}
