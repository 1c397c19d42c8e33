// Package pipeline runs one conversation turn to completion: classify the
// client's message, then confirm, extract a draft or answer free-form.
// A turn keeps no state beyond what it re-reads from the message log.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/events"
	"orderbot_backend/internal/orders"
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/logger"
)

// State is where a turn ended up.
type State string

const (
	StateIdle            State = "IDLE"
	StateClassifying     State = "CLASSIFYING"
	StateConfirming      State = "CONFIRMING"
	StateExtracting      State = "EXTRACTING"
	StateFinalized       State = "FINALIZED"
	StateDraftRendered   State = "DRAFT_RENDERED"
	StateFreeformReplied State = "FREEFORM_REPLIED"
	// StateSilent means the assistant decided not to answer.
	StateSilent State = "SILENT"
	// StateAnswered means a reply already exists after the triggering message.
	StateAnswered State = "ANSWERED"
	// StateAbandoned means a lookup or collaborator failed; nothing was sent.
	StateAbandoned State = "ABANDONED"
)

// Source tells where a turn came from.
type Source string

const (
	SourceLive       Source = "live"
	SourceUnattended Source = "unattended"
	SourceCLI        Source = "cli"
)

// Turn is one inbound message to process.
type Turn struct {
	ClientPhone string
	// Message is the stored inbound message that triggers the turn. ID may be
	// zero for ad-hoc turns that were never stored.
	Message conversation.Message
	Source  Source
}

// Outcome is the terminal state of a turn.
type Outcome struct {
	State  State
	Reason string
}

const (
	draftDocumentCaption = "Resumen de tu pedido"
	orderDocumentCaption = "Pedido confirmado. Tu comercial %s se encargará de todo."
)

// Deps groups the collaborators of a Pipeline.
type Deps struct {
	Store       Store
	Classifier  Classifier
	Extractor   Extractor
	Assistant   Assistant
	Dispatcher  Dispatcher
	Spreadsheet SpreadsheetRenderer
	Documents   DocumentRenderer
	Notifier    Notifier
	Guard       ClientGuard
	// Events is optional.
	Events Publisher
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	deps          Deps
	historyWindow int
	log           *logger.Logger
	now           func() time.Time
}

func New(deps Deps, historyWindow int, log *logger.Logger) *Pipeline {
	if historyWindow <= 0 {
		historyWindow = conversation.DefaultHistoryWindow
	}
	return &Pipeline{deps: deps, historyWindow: historyWindow, log: log, now: time.Now}
}

// turnContext carries everything resolved for one run.
type turnContext struct {
	turn     Turn
	client   conversation.Client
	operator conversation.Operator
	history  conversation.History
	log      *logger.Logger
}

// HandleTurn runs the state machine once. Failures are logged and reported as
// StateAbandoned together with the cause; nothing is dispatched in that case.
func (p *Pipeline) HandleTurn(ctx context.Context, turn Turn) (Outcome, error) {
	ctx = context.WithValue(ctx, logger.ClientPhoneKey, turn.ClientPhone)
	ctx = context.WithValue(ctx, logger.TurnSourceKey, string(turn.Source))
	log := p.log.WithContext(ctx)

	if strings.TrimSpace(turn.Message.Content) == "" {
		return Outcome{State: StateSilent, Reason: "empty message"}, nil
	}

	client, err := p.deps.Store.GetClientByPhone(ctx, turn.ClientPhone)
	if err != nil {
		return p.abandon(log, "client lookup", lookupError("client lookup", err))
	}
	operator, err := p.deps.Store.GetOperatorForClient(ctx, client)
	if err != nil {
		return p.abandon(log, "operator lookup", lookupError("operator lookup", err))
	}

	var out Outcome
	err = p.deps.Guard.WithClient(ctx, client.ID, func(ctx context.Context) error {
		var runErr error
		out, runErr = p.run(ctx, &turnContext{turn: turn, client: client, operator: operator, log: log})
		return runErr
	})
	if err != nil {
		if out.State == "" || out.State == StateIdle {
			return p.abandon(log, "client guard", err)
		}
		return out, err
	}
	log.Info("turn finished", "clientId", client.ID, "state", out.State)
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, tc *turnContext) (Outcome, error) {
	if !tc.turn.Message.SentAt.IsZero() {
		answered, err := p.deps.Store.HasAnswerAfter(ctx, tc.client.ID, tc.turn.Message.SentAt)
		if err != nil {
			tc.log.DatabaseError("has_answer_after", err)
			return p.abandon(tc.log, "answered check", err)
		}
		if answered {
			return Outcome{State: StateAnswered, Reason: "already answered"}, nil
		}
	}

	recent, err := p.deps.Store.RecentMessages(ctx, tc.client.ID, p.historyWindow)
	if err != nil {
		tc.log.DatabaseError("recent_messages", err)
		return p.abandon(tc.log, "history", err)
	}
	tc.history = conversation.BuildHistory(recent, p.historyWindow)

	message := tc.turn.Message.Content
	isOrder, err := p.deps.Classifier.IsOrder(ctx, tc.history.String(), message)
	if err != nil {
		return p.abandon(tc.log, string(StateClassifying), err)
	}
	if !isOrder {
		return p.freeform(ctx, tc)
	}
	if orders.IsConfirmation(message) {
		return p.confirm(ctx, tc)
	}
	return p.extract(ctx, tc)
}

func (p *Pipeline) confirm(ctx context.Context, tc *turnContext) (Outcome, error) {
	draft, ok := orders.ConfirmedDraft(tc.history.SentNewestFirst())
	if !ok || len(draft.Resolved()) == 0 {
		tc.log.Warn("confirmation without a draft in history", "clientId", tc.client.ID)
		return Outcome{State: StateAbandoned, Reason: "no draft to confirm"}, nil
	}

	order := orders.Order{
		ClientCode:  tc.client.Code,
		ClientName:  tc.client.Name,
		ClientPhone: tc.client.Phone,
		Lines:       draft.Resolved(),
		ConfirmedAt: p.now(),
	}

	sheet, err := p.deps.Spreadsheet.RenderSpreadsheet(ctx, order)
	if err != nil {
		tc.log.Warn("spreadsheet export failed, notifying without attachment", "error", err)
		sheet = ""
	}
	doc, err := p.deps.Documents.RenderOrder(ctx, order)
	if err != nil {
		return p.abandon(tc.log, "render order", err)
	}
	if err := p.deps.Notifier.NotifyOrder(ctx, tc.operator, tc.client, order, sheet); err != nil {
		return p.abandon(tc.log, "notify operator", err)
	}

	caption := fmt.Sprintf(orderDocumentCaption, tc.operator.DisplayName())
	providerID, err := p.deps.Dispatcher.SendFile(ctx, tc.client.Phone, doc, caption, tc.operator.Phone)
	if err != nil {
		return p.abandon(tc.log, "send order document", err)
	}
	p.record(ctx, tc, caption, providerID)

	if p.deps.Events != nil {
		p.deps.Events.Publish(ctx, events.OrderConfirmed{
			BaseEvent:       events.NewBaseEvent(),
			ClientID:        tc.client.ID,
			ClientCode:      tc.client.Code,
			ClientName:      tc.client.Name,
			ClientPhone:     tc.client.Phone,
			OperatorID:      tc.operator.ID,
			OperatorEmail:   tc.operator.Email,
			Lines:           order.Lines,
			DocumentPath:    doc,
			SpreadsheetPath: sheet,
			TriggerMessage:  tc.turn.Message.ID,
		})
	}
	return Outcome{State: StateFinalized}, nil
}

func (p *Pipeline) extract(ctx context.Context, tc *turnContext) (Outcome, error) {
	raw, err := p.deps.Extractor.Extract(ctx, tc.history.String(), tc.turn.Message.Content)
	if err != nil {
		return p.abandon(tc.log, string(StateExtracting), err)
	}
	draft := orders.Merge(orders.ParseProposals(raw))
	if draft.Empty() {
		tc.log.Info("no items extracted, falling back to assistant")
		return p.freeform(ctx, tc)
	}

	doc, err := p.deps.Documents.RenderDraft(ctx, tc.client, draft)
	if err != nil {
		return p.abandon(tc.log, "render draft", err)
	}
	defer p.removeFile(tc.log, doc)

	text := orders.RenderDraftMessage(draft)
	providerID, err := p.deps.Dispatcher.SendMessage(ctx, tc.client.Phone, text, tc.operator.Phone)
	if err != nil {
		return p.abandon(tc.log, "send draft", err)
	}
	p.record(ctx, tc, text, providerID)

	if _, err := p.deps.Dispatcher.SendFile(ctx, tc.client.Phone, doc, draftDocumentCaption, tc.operator.Phone); err != nil {
		tc.log.Warn("draft document not delivered", "error", err)
	}
	return Outcome{State: StateDraftRendered}, nil
}

func (p *Pipeline) freeform(ctx context.Context, tc *turnContext) (Outcome, error) {
	raw, err := p.deps.Assistant.Reply(ctx, tc.operator.DisplayName(), tc.history.String(), tc.turn.Message.Content)
	if err != nil {
		return p.abandon(tc.log, "freeform reply", err)
	}
	reply, ok := orders.ParseAssistantReply(raw)
	if !ok {
		tc.log.Info("assistant chose not to reply")
		return Outcome{State: StateSilent}, nil
	}

	text := orders.WithDisclaimer(reply)
	providerID, err := p.deps.Dispatcher.SendMessage(ctx, tc.client.Phone, text, tc.operator.Phone)
	if err != nil {
		return p.abandon(tc.log, "send reply", err)
	}
	p.record(ctx, tc, text, providerID)
	return Outcome{State: StateFreeformReplied}, nil
}

// record stores the automated reply. The reply has already been delivered,
// so failures are logged and not returned.
func (p *Pipeline) record(ctx context.Context, tc *turnContext, content, providerID string) {
	at := p.now()
	if trigger := tc.turn.Message.SentAt; !trigger.IsZero() && !at.After(trigger) {
		at = trigger.Add(time.Millisecond)
	}
	msg := conversation.Message{
		ClientID:   tc.client.ID,
		OperatorID: &tc.operator.ID,
		Direction:  conversation.DirectionSent,
		Content:    content,
		SentAt:     at,
		Automated:  true,
	}
	if tc.turn.Message.ID != 0 {
		id := tc.turn.Message.ID
		msg.ReplyTo = &id
	}
	if providerID != "" {
		msg.ProviderID = &providerID
	}

	ctx = context.WithoutCancel(ctx)
	_, err := p.deps.Store.AppendMessage(ctx, msg)
	if errors.Is(err, conversation.ErrDuplicateMessage) && msg.ProviderID != nil {
		// The webhook stored the transport's echo first.
		_, err = p.deps.Store.MarkAutomatedReply(ctx, providerID, msg.ReplyTo)
	}
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrDuplicateReply):
		tc.log.Error("second automated reply recorded for the same message", "clientId", tc.client.ID, "replyTo", tc.turn.Message.ID)
	default:
		tc.log.DatabaseError("append_message", err)
	}
}

func (p *Pipeline) removeFile(log *logger.Logger, path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("failed to remove temporary file", "path", path, "error", err)
	}
}

func (p *Pipeline) abandon(log *logger.Logger, step string, err error) (Outcome, error) {
	switch apperr.GetKind(err) {
	case apperr.KindNotFound:
		log.Warn("turn abandoned", "step", step, "error", err)
	default:
		log.Error("turn abandoned", "step", step, "error", err)
	}
	return Outcome{State: StateAbandoned, Reason: step}, err
}

func lookupError(op string, err error) error {
	if errors.Is(err, conversation.ErrClientNotFound) || errors.Is(err, conversation.ErrOperatorNotFound) {
		return apperr.Wrap(apperr.KindNotFound, err.Error(), err).WithOp(op)
	}
	return apperr.Internal("lookup failed", err).WithOp(op)
}
