package orders

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	// Disclaimer is appended to every automated text reply.
	Disclaimer = "[Este mensaje fue generado automáticamente por un asistente en versión de pruebas]"

	// DraftHeader opens every rendered draft. ConfirmedDraft looks for it.
	DraftHeader = "Tu pedido:"

	// ConfirmPrompt asks the client to confirm or correct a draft.
	ConfirmPrompt = "Confirma si el pedido es correcto respondiendo con *Es correcto*. " +
		"Se lo pasaremos a tu comercial que se encargará de todo o te contactará si hay alguna duda. " +
		"En caso de que no sea correcto, siéntete libre de repetirme el pedido o indicar únicamente las correcciones."

	ambiguousNote = "sin cantidad, indícala por favor"
)

// A line runs from "- " to " x QTY". Codes may contain single spaces; they end
// at a newline or at the " \" a flattened newline leaves behind.
var draftLinePattern = regexp.MustCompile(`-[ \t]*([^\n\\]+?)[ \t]+x[ \t]+(\d+)\b`)

// WithDisclaimer appends the bot disclaimer on its own line.
func WithDisclaimer(text string) string {
	text = strings.TrimRight(text, " \n")
	if strings.HasSuffix(text, Disclaimer) {
		return text
	}
	return text + "\n" + Disclaimer
}

// RenderDraftMessage renders d as the chat text sent to the client: one line
// per resolved product, ambiguous codes flagged, then the confirmation prompt.
func RenderDraftMessage(d Draft) string {
	var b strings.Builder
	b.WriteString(DraftHeader)
	b.WriteString("\n")
	for _, l := range d.Lines {
		if l.Ambiguous {
			fmt.Fprintf(&b, "- %s x ? (%s)\n", l.Code, ambiguousNote)
			continue
		}
		fmt.Fprintf(&b, "- %s x %d\n", l.Code, l.Quantity)
	}
	b.WriteString("\n")
	b.WriteString(ConfirmPrompt)
	return WithDisclaimer(b.String())
}

// ParseDraftMessage reads the resolved lines back out of a rendered draft.
// It tolerates drafts whose newlines were flattened by the transport.
func ParseDraftMessage(text string) (Draft, bool) {
	idx := strings.LastIndex(text, DraftHeader)
	if idx < 0 {
		return Draft{}, false
	}
	body := text[idx+len(DraftHeader):]
	if end := strings.Index(body, ConfirmPrompt[:20]); end >= 0 {
		body = body[:end]
	}

	var proposals []ItemProposal
	for _, m := range draftLinePattern.FindAllStringSubmatch(body, -1) {
		proposals = append(proposals, ItemProposal{Code: m[1], Quantity: m[2]})
	}
	d := Merge(proposals)
	return d, !d.Empty()
}

// ConfirmedDraft scans bot messages newest first and returns the last draft
// that was shown to the client.
func ConfirmedDraft(sentNewestFirst []string) (Draft, bool) {
	for _, text := range sentNewestFirst {
		if d, ok := ParseDraftMessage(text); ok {
			return d, true
		}
	}
	return Draft{}, false
}

// FormatLines renders lines as "CODE x QTY" joined by sep.
func FormatLines(lines []Line, sep string) string {
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		if l.Ambiguous {
			parts = append(parts, l.Code+" x ?")
			continue
		}
		parts = append(parts, l.Code+" x "+strconv.Itoa(l.Quantity))
	}
	return strings.Join(parts, sep)
}
