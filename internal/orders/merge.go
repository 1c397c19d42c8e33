package orders

import (
	"strconv"
	"strings"
)

// Merge folds proposals, oldest first, into a Draft.
//
// Integer quantities for the same code are summed. A code seen only with an
// empty quantity stays as an ambiguous line; a later integer for it clears the
// ambiguity. Codes are matched exactly (case-sensitive) and keep the position
// of their first appearance. Tokens that are neither empty nor a non-negative
// integer are ignored.
func Merge(proposals []ItemProposal) Draft {
	type acc struct {
		sum      int
		resolved bool
	}

	order := make([]string, 0, len(proposals))
	seen := make(map[string]*acc, len(proposals))

	for _, p := range proposals {
		code := strings.Join(strings.Fields(p.Code), " ")
		if code == "" {
			continue
		}
		qty := strings.TrimSpace(p.Quantity)

		var n int
		switch {
		case qty == "":
		case isUint(qty):
			v, err := strconv.Atoi(qty)
			if err != nil {
				continue
			}
			n = v
		default:
			continue
		}

		a, ok := seen[code]
		if !ok {
			a = &acc{}
			seen[code] = a
			order = append(order, code)
		}
		if qty != "" {
			a.sum += n
			a.resolved = true
		}
	}

	lines := make([]Line, 0, len(order))
	for _, code := range order {
		a := seen[code]
		if a.resolved {
			lines = append(lines, Line{Code: code, Quantity: a.sum})
		} else {
			lines = append(lines, Line{Code: code, Ambiguous: true})
		}
	}
	return Draft{Lines: lines}
}

func isUint(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
