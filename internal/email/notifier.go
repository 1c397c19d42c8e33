package email

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/orders"
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/logger"
)

const spreadsheetMIMEType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// OrderNotifier emails the operator when a client confirms an order.
type OrderNotifier struct {
	sender Sender
	log    *logger.Logger
}

func NewOrderNotifier(sender Sender, log *logger.Logger) *OrderNotifier {
	return &OrderNotifier{sender: sender, log: log}
}

// NotifyOrder sends the confirmation mail listing the order lines, with the
// spreadsheet attached when attachmentPath is set and readable.
func (n *OrderNotifier) NotifyOrder(ctx context.Context, operator conversation.Operator, client conversation.Client, order orders.Order, attachmentPath string) error {
	if operator.Email == "" {
		return apperr.Validation("operator has no email address").WithOp("email.NotifyOrder")
	}

	mail := OrderConfirmedEmail{
		OperatorName: operator.DisplayName(),
		ClientName:   client.Name,
		ClientCode:   client.Code,
		ClientPhone:  order.ClientPhone,
		Lines:        make([]OrderLine, 0, len(order.Lines)),
	}
	for _, l := range order.Lines {
		mail.Lines = append(mail.Lines, OrderLine{Code: l.Code, Quantity: l.Quantity})
	}

	var attachments []Attachment
	if attachmentPath != "" {
		data, err := os.ReadFile(attachmentPath)
		if err != nil {
			n.log.Warn("spreadsheet unreadable, sending without attachment", "path", attachmentPath, "error", err)
		} else {
			attachments = append(attachments, Attachment{
				Content:  data,
				FileName: filepath.Base(attachmentPath),
				MIMEType: spreadsheetMIMEType,
			})
		}
	}

	if err := n.sender.SendOrderConfirmed(ctx, operator.Email, mail, attachments...); err != nil {
		return apperr.Unavailable("order email failed", fmt.Errorf("to %s: %w", operator.Email, err)).WithOp("email.NotifyOrder")
	}
	n.log.Info("operator notified of confirmed order", "operatorId", operator.ID, "clientId", client.ID)
	return nil
}
