// Package pdf renders order documents using maroto/v2: the printable order
// sent to the client on confirmation and the draft preview attached to a
// proposed order.
package pdf

import (
	"fmt"
	"strconv"
	"time"

	"orderbot_backend/internal/orders"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// ── Colour palette ──────────────────────────────────────────────────────

var (
	colorPrimary   = &props.Color{Red: 17, Green: 24, Blue: 39}    // near-black
	colorSecondary = &props.Color{Red: 107, Green: 114, Blue: 128} // gray-500
	colorAccent    = &props.Color{Red: 37, Green: 99, Blue: 235}   // blue-600
	colorTableHead = &props.Color{Red: 241, Green: 245, Blue: 249} // slate-100
	colorTableAlt  = &props.Color{Red: 249, Green: 250, Blue: 251} // gray-50
	colorAmber     = &props.Color{Red: 254, Green: 243, Blue: 199} // amber-100
	colorBorder    = &props.Color{Red: 226, Green: 232, Blue: 240} // slate-200
)

// DocumentKind selects the title and notes of the document.
type DocumentKind int

const (
	KindOrder DocumentKind = iota
	KindDraft
)

// OrderPDFData holds everything printed on an order document.
type OrderPDFData struct {
	Kind        DocumentKind
	CompanyName string
	ClientCode  string
	ClientName  string
	ClientPhone string
	Date        time.Time
	Lines       []orders.Line
}

// GenerateOrderPDF creates the PDF bytes for data.
func GenerateOrderPDF(data OrderPDFData) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(12).
		WithRightMargin(15).
		Build()

	m := maroto.New(cfg)

	if err := m.RegisterFooter(buildFooter(data)); err != nil {
		return nil, fmt.Errorf("register footer: %w", err)
	}

	m.AddRows(buildHeader(data)...)
	m.AddRows(row.New(1).WithStyle(&props.Cell{
		BorderType:  border.Bottom,
		BorderColor: colorBorder,
	}))
	m.AddRows(row.New(6))

	m.AddRows(buildClientBlock(data)...)
	m.AddRows(row.New(6))

	m.AddRows(buildLinesTable(data.Lines)...)
	m.AddRows(row.New(4))
	m.AddRows(buildTotals(data.Lines))

	if data.Kind == KindDraft {
		m.AddRows(row.New(8))
		m.AddRows(buildDraftNote(data.Lines)...)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate PDF: %w", err)
	}

	return doc.GetBytes(), nil
}

// ── Header ──────────────────────────────────────────────────────────────

func buildHeader(data OrderPDFData) []core.Row {
	title := "PEDIDO"
	if data.Kind == KindDraft {
		title = "BORRADOR DE PEDIDO"
	}

	return []core.Row{
		row.New(20).Add(
			col.New(5).Add(
				text.New(data.CompanyName, props.Text{
					Size:  14,
					Style: fontstyle.Bold,
					Color: colorPrimary,
					Top:   4,
				}),
			),
			col.New(7).Add(
				text.New(title, props.Text{
					Size:  20,
					Style: fontstyle.Bold,
					Align: align.Right,
					Color: colorAccent,
				}),
				text.New(data.Date.Format("02/01/2006 15:04"), props.Text{
					Size:  10,
					Align: align.Right,
					Color: colorSecondary,
					Top:   11,
				}),
			),
		),
	}
}

func buildClientBlock(data OrderPDFData) []core.Row {
	label := props.Text{Size: 8, Color: colorSecondary}
	value := props.Text{Size: 10, Style: fontstyle.Bold, Color: colorPrimary, Top: 4}

	return []core.Row{
		row.New(12).Add(
			col.New(4).Add(text.New("Cliente", label), text.New(data.ClientName, value)),
			col.New(4).Add(text.New("Código", label), text.New(data.ClientCode, value)),
			col.New(4).Add(text.New("Teléfono", label), text.New(formatPhone(data.ClientPhone), value)),
		),
	}
}

// ── Lines table ─────────────────────────────────────────────────────────

func buildLinesTable(lines []orders.Line) []core.Row {
	head := props.Text{Size: 9, Style: fontstyle.Bold, Color: colorPrimary, Top: 2}
	headRight := head
	headRight.Align = align.Right

	rows := []core.Row{
		row.New(8).Add(
			col.New(2).Add(text.New("#", head)),
			col.New(6).Add(text.New("Código", head)),
			col.New(4).Add(text.New("Cantidad", headRight)),
		).WithStyle(&props.Cell{
			BackgroundColor: colorTableHead,
			BorderType:      border.Bottom,
			BorderColor:     colorBorder,
		}),
	}

	for i, l := range lines {
		rows = append(rows, buildLineRow(l, i))
	}
	return rows
}

func buildLineRow(l orders.Line, idx int) core.Row {
	cell := props.Text{Size: 9, Color: colorPrimary, Top: 2}
	right := cell
	right.Align = align.Right

	qty := strconv.Itoa(l.Quantity)
	if l.Ambiguous {
		qty = "? (sin cantidad)"
	}

	r := row.New(7).Add(
		col.New(2).Add(text.New(strconv.Itoa(idx+1), cell)),
		col.New(6).Add(text.New(l.Code, cell)),
		col.New(4).Add(text.New(qty, right)),
	)

	switch {
	case l.Ambiguous:
		r.WithStyle(&props.Cell{BackgroundColor: colorAmber})
	case idx%2 == 1:
		r.WithStyle(&props.Cell{BackgroundColor: colorTableAlt})
	}
	return r
}

func buildTotals(lines []orders.Line) core.Row {
	units := 0
	for _, l := range lines {
		if !l.Ambiguous {
			units += l.Quantity
		}
	}

	return row.New(8).Add(
		col.New(8).Add(text.New("Total unidades", props.Text{Size: 10, Style: fontstyle.Bold, Top: 2})),
		col.New(4).Add(text.New(strconv.Itoa(units), props.Text{Size: 10, Style: fontstyle.Bold, Align: align.Right, Top: 2})),
	).WithStyle(&props.Cell{
		BorderType:  border.Top,
		BorderColor: colorBorder,
	})
}

func buildDraftNote(lines []orders.Line) []core.Row {
	note := "Este documento es un borrador. Responde *Es correcto* en el chat para confirmar el pedido."
	for _, l := range lines {
		if l.Ambiguous {
			note += " Las líneas resaltadas no tienen cantidad: indícala antes de confirmar."
			break
		}
	}

	return []core.Row{
		row.New(12).Add(
			col.New(12).Add(text.New(note, props.Text{Size: 9, Color: colorSecondary})),
		),
	}
}

// ── Footer (registered, repeats on every page) ──────────────────────────

func buildFooter(data OrderPDFData) core.Row {
	footer := data.CompanyName
	if footer == "" {
		footer = "Pedido"
	}
	footer += "  ·  Documento generado automáticamente"

	return row.New(10).Add(
		col.New(12).Add(
			text.New(footer, props.Text{
				Size:  6.5,
				Color: colorSecondary,
				Align: align.Center,
				Top:   4,
			}),
		),
	).WithStyle(&props.Cell{
		BorderType:  border.Top,
		BorderColor: colorBorder,
	})
}

func formatPhone(p string) string {
	if p == "" {
		return "-"
	}
	return "+" + p
}
