package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation      = "23505"
	automatedReplyIndex    = "uq_messages_automated_reply"
	messageColumns         = "id, client_id, operator_id, direction, content, sent_at, automated, reply_to, provider_id"
	prefixedMessageColumns = "m.id, m.client_id, m.operator_id, m.direction, m.content, m.sent_at, m.automated, m.reply_to, m.provider_id"
)

// Repository provides Postgres access to clients, operators and messages.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new conversation repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetClientByPhone looks a client up by normalized phone (digits only).
func (r *Repository) GetClientByPhone(ctx context.Context, phone string) (Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name, phone, operator_id FROM clients WHERE phone = $1`, phone,
	).Scan(&c.ID, &c.Code, &c.Name, &c.Phone, &c.OperatorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Client{}, ErrClientNotFound
		}
		return Client{}, fmt.Errorf("failed to get client by phone: %w", err)
	}
	return c, nil
}

// GetOperatorForClient resolves the operator assigned to c.
func (r *Repository) GetOperatorForClient(ctx context.Context, c Client) (Operator, error) {
	if c.OperatorID == nil {
		return Operator{}, ErrOperatorNotFound
	}
	return r.getOperator(ctx, `WHERE id = $1`, *c.OperatorID)
}

// GetOperatorByPhone resolves an operator by the phone their WhatsApp device uses.
func (r *Repository) GetOperatorByPhone(ctx context.Context, phone string) (Operator, error) {
	return r.getOperator(ctx, `WHERE phone = $1`, phone)
}

func (r *Repository) getOperator(ctx context.Context, where string, arg any) (Operator, error) {
	var (
		o    Operator
		name *string
		role string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, phone, email, name, role FROM operators `+where, arg,
	).Scan(&o.ID, &o.Phone, &o.Email, &name, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Operator{}, ErrOperatorNotFound
		}
		return Operator{}, fmt.Errorf("failed to get operator: %w", err)
	}
	if name != nil {
		o.Name = *name
	}
	o.Role = Role(role)
	return o, nil
}

// LatestReceivedPerClient returns every client's newest inbound message.
func (r *Repository) LatestReceivedPerClient(ctx context.Context) ([]LatestReceived, error) {
	query := `
		SELECT DISTINCT ON (m.client_id)
			c.id, c.code, c.name, c.phone, c.operator_id,
			` + prefixedMessageColumns + `
		FROM messages m
		JOIN clients c ON c.id = m.client_id
		WHERE m.direction = 'received'
		ORDER BY m.client_id, m.sent_at DESC, m.id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list latest received messages: %w", err)
	}
	defer rows.Close()

	var out []LatestReceived
	for rows.Next() {
		var lr LatestReceived
		var dir string
		if err := rows.Scan(
			&lr.Client.ID, &lr.Client.Code, &lr.Client.Name, &lr.Client.Phone, &lr.Client.OperatorID,
			&lr.Message.ID, &lr.Message.ClientID, &lr.Message.OperatorID, &dir, &lr.Message.Content,
			&lr.Message.SentAt, &lr.Message.Automated, &lr.Message.ReplyTo, &lr.Message.ProviderID,
		); err != nil {
			return nil, fmt.Errorf("failed to scan latest received message: %w", err)
		}
		lr.Message.Direction = Direction(dir)
		out = append(out, lr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate latest received messages: %w", err)
	}
	return out, nil
}

// HasAnswerAfter reports whether a sent message exists strictly after at.
func (r *Repository) HasAnswerAfter(ctx context.Context, clientID int64, at time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM messages
			WHERE client_id = $1 AND direction = 'sent' AND sent_at > $2
		)`, clientID, at,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check answer: %w", err)
	}
	return exists, nil
}

// RecentMessages returns up to limit messages for a client, newest first.
func (r *Repository) RecentMessages(ctx context.Context, clientID int64, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE client_id = $1
		ORDER BY sent_at DESC, id DESC
		LIMIT $2`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recent messages: %w", err)
	}
	return out, nil
}

// AppendMessage stores m and returns it with its id.
// A repeated provider id yields ErrDuplicateMessage; a second automated reply
// to the same inbound message yields ErrDuplicateReply.
func (r *Repository) AppendMessage(ctx context.Context, m Message) (Message, error) {
	if !m.Direction.Valid() {
		return Message{}, fmt.Errorf("invalid direction %q", m.Direction)
	}
	if m.SentAt.IsZero() {
		m.SentAt = time.Now()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO messages (client_id, operator_id, direction, content, sent_at, automated, reply_to, provider_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (provider_id) WHERE provider_id IS NOT NULL DO NOTHING
		RETURNING `+messageColumns,
		m.ClientID, m.OperatorID, string(m.Direction), m.Content, m.SentAt, m.Automated, m.ReplyTo, m.ProviderID,
	)
	stored, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrDuplicateMessage
	}
	if err != nil {
		return Message{}, mapWriteError(err, "failed to append message")
	}
	return stored, nil
}

// MarkAutomatedReply flags the message stored under providerID as the
// automated reply to replyTo. The transport can echo a bot message back
// through the webhook before the pipeline records it; the echo row is then
// the only copy and must carry the marker.
func (r *Repository) MarkAutomatedReply(ctx context.Context, providerID string, replyTo *int64) (Message, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE messages SET automated = TRUE, reply_to = COALESCE($2, reply_to)
		WHERE provider_id = $1
		RETURNING `+messageColumns,
		providerID, replyTo,
	)
	stored, err := scanMessage(row)
	if err != nil {
		return Message{}, mapWriteError(err, "failed to mark automated reply")
	}
	return stored, nil
}

func mapWriteError(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMessageNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == automatedReplyIndex {
		return ErrDuplicateReply
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m   Message
		dir string
	)
	if err := row.Scan(&m.ID, &m.ClientID, &m.OperatorID, &dir, &m.Content, &m.SentAt, &m.Automated, &m.ReplyTo, &m.ProviderID); err != nil {
		return Message{}, err
	}
	m.Direction = Direction(dir)
	return m, nil
}
