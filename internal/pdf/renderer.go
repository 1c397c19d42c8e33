package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/orders"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Renderer writes order documents into dir.
type Renderer struct {
	dir     string
	company string
	now     func() time.Time
}

func NewRenderer(dir, company string) *Renderer {
	return &Renderer{dir: dir, company: company, now: time.Now}
}

// RenderOrder writes the printable confirmed order and returns its path.
func (r *Renderer) RenderOrder(ctx context.Context, order orders.Order) (string, error) {
	date := order.ConfirmedAt
	if date.IsZero() {
		date = r.now()
	}
	return r.write(ctx, "pedido", order.ClientCode, date, OrderPDFData{
		Kind:        KindOrder,
		CompanyName: r.company,
		ClientCode:  order.ClientCode,
		ClientName:  order.ClientName,
		ClientPhone: order.ClientPhone,
		Date:        date,
		Lines:       order.Lines,
	})
}

// RenderDraft writes the preview of a proposed order. The caller owns the file.
func (r *Renderer) RenderDraft(ctx context.Context, client conversation.Client, draft orders.Draft) (string, error) {
	date := r.now()
	return r.write(ctx, "borrador", client.Code, date, OrderPDFData{
		Kind:        KindDraft,
		CompanyName: r.company,
		ClientCode:  client.Code,
		ClientName:  client.Name,
		ClientPhone: client.Phone,
		Date:        date,
		Lines:       draft.Lines,
	})
}

func (r *Renderer) write(ctx context.Context, prefix, clientCode string, at time.Time, data OrderPDFData) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(data.Lines) == 0 {
		return "", fmt.Errorf("%s for %s has no lines", prefix, clientCode)
	}

	content, err := GenerateOrderPDF(data)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	code := unsafeFileChars.ReplaceAllString(clientCode, "_")
	if code == "" {
		code = "cliente"
	}
	name := fmt.Sprintf("%s_%s_%s.pdf", prefix, code, at.Format("20060102-150405.000"))
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("write pdf: %w", err)
	}
	return path, nil
}
