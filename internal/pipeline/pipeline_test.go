package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"orderbot_backend/internal/conversation"
	"orderbot_backend/internal/events"
	"orderbot_backend/internal/orders"
	"orderbot_backend/internal/replyguard"
	"orderbot_backend/platform/apperr"
	"orderbot_backend/platform/logger"
)

const (
	clientPhone   = "34600111222"
	operatorPhone = "34911000000"
)

type harness struct {
	p     *Pipeline
	store *fakeStore
	cls   *fakeClassifier
	ext   *fakeExtractor
	asst  *fakeAssistant
	disp  *fakeDispatcher
	sheet *fakeSpreadsheet
	docs  *fakeDocuments
	notif *fakeNotifier
	pub   *fakePublisher
}

func newHarness(t *testing.T, guard ClientGuard) *harness {
	t.Helper()
	store := newFakeStore()
	opID := int64(10)
	store.addOperator(conversation.Operator{ID: opID, Phone: operatorPhone, Email: "lucia@kapalua.es", Name: "Lucía", Role: conversation.RoleOperator})
	store.addClient(conversation.Client{ID: 1, Code: "C001", Name: "Perfumería Sol", Phone: clientPhone, OperatorID: &opID})

	h := &harness{
		store: store,
		cls:   &fakeClassifier{},
		ext:   &fakeExtractor{},
		asst:  &fakeAssistant{},
		disp:  &fakeDispatcher{},
		sheet: &fakeSpreadsheet{path: "/tmp/pedido.xlsx"},
		docs:  &fakeDocuments{dir: t.TempDir()},
		notif: &fakeNotifier{},
		pub:   &fakePublisher{},
	}
	if guard == nil {
		guard = passGuard{}
	}
	h.p = New(Deps{
		Store:       store,
		Classifier:  h.cls,
		Extractor:   h.ext,
		Assistant:   h.asst,
		Dispatcher:  h.disp,
		Spreadsheet: h.sheet,
		Documents:   h.docs,
		Notifier:    h.notif,
		Guard:       guard,
		Events:      h.pub,
	}, 6, logger.Discard())
	return h
}

func (h *harness) inbound(content string, age time.Duration) Turn {
	m := h.store.seed(1, conversation.DirectionReceived, content, time.Now().Add(-age))
	return Turn{ClientPhone: clientPhone, Message: m, Source: SourceLive}
}

func TestUnknownClientIsAbandonedBeforeClassification(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.p.HandleTurn(context.Background(), Turn{ClientPhone: "34999999999", Message: conversation.Message{Content: "hola"}})

	if out.State != StateAbandoned {
		t.Fatalf("expected ABANDONED, got %s", out.State)
	}
	if !apperr.Is(err, apperr.KindNotFound) || !errors.Is(err, conversation.ErrClientNotFound) {
		t.Fatalf("expected not-found client error, got %v", err)
	}
	if h.cls.calls != 0 {
		t.Fatalf("classifier must not run for unknown clients")
	}
}

func TestClientWithoutOperatorIsAbandoned(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addClient(conversation.Client{ID: 2, Code: "C002", Phone: "34600999888"})

	out, err := h.p.HandleTurn(context.Background(), Turn{ClientPhone: "34600999888", Message: conversation.Message{Content: "pasame 2 del A100"}})

	if out.State != StateAbandoned || !errors.Is(err, conversation.ErrOperatorNotFound) {
		t.Fatalf("expected ABANDONED with operator lookup failure, got %s / %v", out.State, err)
	}
	if h.cls.calls != 0 {
		t.Fatalf("classifier must not run without an operator")
	}
}

func TestFreeformReplyIsDispatchedWithDisclaimer(t *testing.T) {
	h := newHarness(t, nil)
	h.asst.raw = `{"responder": true, "respuesta": "Envíame códigos y cantidades, por ejemplo 2 x KG500."}`
	turn := h.inbound("¿cómo hago un pedido?", time.Minute)

	out, err := h.p.HandleTurn(context.Background(), turn)
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if out.State != StateFreeformReplied {
		t.Fatalf("expected FREEFORM_REPLIED, got %s", out.State)
	}
	if len(h.disp.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(h.disp.messages))
	}
	m := h.disp.messages[0]
	if m.to != clientPhone || m.from != operatorPhone {
		t.Fatalf("unexpected routing %+v", m)
	}
	if !strings.HasSuffix(m.text, orders.Disclaimer) {
		t.Fatalf("expected disclaimer suffix, got %q", m.text)
	}
	if h.asst.operatorName != "Lucía" {
		t.Fatalf("expected operator name in assistant call, got %q", h.asst.operatorName)
	}
	if h.store.automatedReplies(turn.Message.ID) != 1 {
		t.Fatalf("expected reply to be recorded against the inbound message")
	}
	if h.ext.calls != 0 {
		t.Fatalf("extractor must not run for non-order messages")
	}
}

func TestAssistantSilenceSendsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.asst.raw = `{"responder": false}`

	out, err := h.p.HandleTurn(context.Background(), h.inbound("jaja genial", time.Minute))

	if err != nil || out.State != StateSilent {
		t.Fatalf("expected SILENT, got %s / %v", out.State, err)
	}
	if n, f := h.disp.counts(); n+f != 0 {
		t.Fatalf("expected nothing dispatched")
	}
}

func TestClassifierFailureAbandonsWithoutFallback(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.err = apperr.Timeout("classify timed out", context.DeadlineExceeded)

	out, err := h.p.HandleTurn(context.Background(), h.inbound("pasame 2 del A100", time.Minute))

	if out.State != StateAbandoned || err == nil {
		t.Fatalf("expected ABANDONED with error, got %s / %v", out.State, err)
	}
	if h.ext.calls != 0 || h.asst.calls != 0 {
		t.Fatalf("a failed classification must not fall through to other capabilities")
	}
	if n, f := h.disp.counts(); n+f != 0 {
		t.Fatalf("expected nothing dispatched")
	}
}

func TestOrderMessageRendersDraft(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.verdict = true
	h.ext.raw = `{"items": [["A1", "2"], ["A1", "3"], ["B2", ""]]}`
	turn := h.inbound("pasame 2 del A1, 3 más del A1 y el B2", time.Minute)

	out, err := h.p.HandleTurn(context.Background(), turn)
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if out.State != StateDraftRendered {
		t.Fatalf("expected DRAFT_RENDERED, got %s", out.State)
	}
	if len(h.disp.messages) != 1 || len(h.disp.files) != 1 {
		t.Fatalf("expected draft text and document, got %d messages / %d files", len(h.disp.messages), len(h.disp.files))
	}
	text := h.disp.messages[0].text
	for _, want := range []string{"- A1 x 5", "- B2 x ?", orders.ConfirmPrompt} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected draft to contain %q, got %q", want, text)
		}
	}
	if _, err := os.Stat(h.docs.lastDraft); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temporary draft document to be removed")
	}
	if h.store.automatedReplies(turn.Message.ID) != 1 {
		t.Fatalf("expected draft to be recorded once")
	}
}

func TestUnparsableExtractionFallsBackToAssistant(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.verdict = true
	h.ext.raw = "lo siento, no entiendo"
	h.asst.raw = `{"responder": true, "respuesta": "Tu comercial Lucía te atenderá pronto."}`

	out, err := h.p.HandleTurn(context.Background(), h.inbound("quiero lo de siempre", time.Minute))

	if err != nil || out.State != StateFreeformReplied {
		t.Fatalf("expected FREEFORM_REPLIED, got %s / %v", out.State, err)
	}
	if h.asst.calls != 1 {
		t.Fatalf("expected assistant fallback")
	}
	if len(h.disp.files) != 0 {
		t.Fatalf("no draft document expected")
	}
}

func TestConfirmationFinalizesLastDraft(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.verdict = true
	base := time.Now().Add(-10 * time.Minute)
	h.store.seed(1, conversation.DirectionReceived, "pasame 2 del A1", base)
	h.store.seed(1, conversation.DirectionSent, orders.RenderDraftMessage(orders.Draft{Lines: []orders.Line{{Code: "A1", Quantity: 2}}}), base.Add(time.Second))
	h.store.seed(1, conversation.DirectionReceived, "mejor 4 del A1 y 1 del C3", base.Add(2*time.Second))
	h.store.seed(1, conversation.DirectionSent, orders.RenderDraftMessage(orders.Draft{Lines: []orders.Line{
		{Code: "A1", Quantity: 4}, {Code: "C3", Quantity: 1}, {Code: "D4", Ambiguous: true},
	}}), base.Add(3*time.Second))
	turn := h.inbound("Sí, es correcto", 0)

	out, err := h.p.HandleTurn(context.Background(), turn)
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if out.State != StateFinalized {
		t.Fatalf("expected FINALIZED, got %s", out.State)
	}
	if h.ext.calls != 0 {
		t.Fatalf("confirmation must not re-run extraction")
	}
	want := []orders.Line{{Code: "A1", Quantity: 4}, {Code: "C3", Quantity: 1}}
	if got := h.sheet.got.Lines; len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("expected confirmed lines %+v, got %+v", want, got)
	}
	if len(h.notif.calls) != 1 || h.notif.calls[0].attachment != "/tmp/pedido.xlsx" {
		t.Fatalf("expected operator notified with spreadsheet, got %+v", h.notif.calls)
	}
	if len(h.disp.files) != 1 || !strings.HasSuffix(h.disp.files[0].path, "pedido.pdf") {
		t.Fatalf("expected order document sent to client, got %+v", h.disp.files)
	}
	if len(h.pub.events) != 1 {
		t.Fatalf("expected one OrderConfirmed event, got %d", len(h.pub.events))
	}
	if ev, ok := h.pub.events[0].(events.OrderConfirmed); !ok || ev.TriggerMessage != turn.Message.ID {
		t.Fatalf("unexpected event %+v", h.pub.events[0])
	}
	if h.store.automatedReplies(turn.Message.ID) != 1 {
		t.Fatalf("expected finalization to be recorded")
	}
}

func TestRejectedDraftIsExtractedAgain(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.verdict = true
	h.ext.raw = `{"items": [["A1", "4"]]}`
	h.store.seed(1, conversation.DirectionSent, orders.RenderDraftMessage(orders.Draft{Lines: []orders.Line{{Code: "A1", Quantity: 2}}}), time.Now().Add(-time.Minute))

	out, err := h.p.HandleTurn(context.Background(), h.inbound("No, no es correcto, ponme 4 del A1", 0))
	if err != nil {
		t.Fatalf("HandleTurn returned error: %v", err)
	}
	if out.State != StateDraftRendered {
		t.Fatalf("expected DRAFT_RENDERED, got %s", out.State)
	}
	if h.ext.calls != 1 {
		t.Fatalf("expected the correction to be extracted, got %d extractor calls", h.ext.calls)
	}
	if len(h.notif.calls) != 0 || len(h.pub.events) != 0 {
		t.Fatalf("a rejected draft must not be finalized")
	}
	if !strings.Contains(h.disp.messages[0].text, "- A1 x 4") {
		t.Fatalf("expected corrected draft, got %q", h.disp.messages[0].text)
	}
}

func TestEchoStoredFirstIsMarkedAsAutomatedReply(t *testing.T) {
	h := newHarness(t, nil)
	h.asst.raw = `{"responder": true, "respuesta": "Tu comercial Lucía te atenderá pronto."}`
	h.disp.providerID = "3EB0ECHO"
	h.disp.echo = func(id, text string) {
		if _, err := h.store.AppendMessage(context.Background(), conversation.Message{
			ClientID: 1, Direction: conversation.DirectionSent, Content: text, SentAt: time.Now().Add(time.Millisecond), ProviderID: &id,
		}); err != nil {
			t.Errorf("echo append: %v", err)
		}
	}
	turn := h.inbound("hola, ¿a qué hora abrís?", 0)

	out, err := h.p.HandleTurn(context.Background(), turn)
	if err != nil || out.State != StateFreeformReplied {
		t.Fatalf("expected FREEFORM_REPLIED, got %s / %v", out.State, err)
	}

	var sent []conversation.Message
	for _, m := range h.store.messages {
		if m.Direction == conversation.DirectionSent {
			sent = append(sent, m)
		}
	}
	if len(sent) != 1 {
		t.Fatalf("expected the echo to be the only stored reply, got %d", len(sent))
	}
	if !sent[0].Automated || sent[0].ReplyTo == nil || *sent[0].ReplyTo != turn.Message.ID {
		t.Fatalf("expected echo marked as automated reply to %d, got %+v", turn.Message.ID, sent[0])
	}

	// A second pass over the same message must see it as answered.
	again, err := h.p.HandleTurn(context.Background(), Turn{ClientPhone: clientPhone, Message: turn.Message, Source: SourceUnattended})
	if err != nil || again.State != StateAnswered {
		t.Fatalf("expected ANSWERED on the second pass, got %s / %v", again.State, err)
	}
}

func TestConfirmationWithoutSpreadsheetStillFinalizes(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.verdict = true
	h.sheet.err = errBoom
	h.store.seed(1, conversation.DirectionSent, orders.RenderDraftMessage(orders.Draft{Lines: []orders.Line{{Code: "A1", Quantity: 2}}}), time.Now().Add(-time.Minute))

	out, err := h.p.HandleTurn(context.Background(), h.inbound("es correcta", 0))

	if err != nil || out.State != StateFinalized {
		t.Fatalf("expected FINALIZED, got %s / %v", out.State, err)
	}
	if h.notif.calls[0].attachment != "" {
		t.Fatalf("expected notification without attachment")
	}
	if got := h.notif.calls[0].lines; len(got) != 1 || got[0] != (orders.Line{Code: "A1", Quantity: 2}) {
		t.Fatalf("expected the confirmed lines in the notification, got %+v", got)
	}
}

func TestConfirmationEmailFailureAbandons(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.verdict = true
	h.notif.err = errBoom
	h.store.seed(1, conversation.DirectionSent, orders.RenderDraftMessage(orders.Draft{Lines: []orders.Line{{Code: "A1", Quantity: 2}}}), time.Now().Add(-time.Minute))

	out, err := h.p.HandleTurn(context.Background(), h.inbound("es correcto", 0))

	if out.State != StateAbandoned || !errors.Is(err, errBoom) {
		t.Fatalf("expected ABANDONED, got %s / %v", out.State, err)
	}
	if n, f := h.disp.counts(); n+f != 0 {
		t.Fatalf("nothing may be sent when the operator was not notified")
	}
	if len(h.pub.events) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestConfirmationWithoutDraftIsAbandoned(t *testing.T) {
	h := newHarness(t, nil)
	h.cls.verdict = true

	out, err := h.p.HandleTurn(context.Background(), h.inbound("es correcto", 0))

	if err != nil || out.State != StateAbandoned {
		t.Fatalf("expected ABANDONED without error, got %s / %v", out.State, err)
	}
	if len(h.notif.calls) != 0 {
		t.Fatalf("operator must not be notified without a draft")
	}
}

func TestAlreadyAnsweredTurnIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	turn := h.inbound("hola", 20*time.Minute)
	h.store.seed(1, conversation.DirectionSent, "Hola, ¿en qué te ayudo?", time.Now().Add(-19*time.Minute))

	out, err := h.p.HandleTurn(context.Background(), turn)

	if err != nil || out.State != StateAnswered {
		t.Fatalf("expected ANSWERED, got %s / %v", out.State, err)
	}
	if h.cls.calls != 0 {
		t.Fatalf("answered turns must not reach the classifier")
	}
}

func TestDispatchFailureRecordsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.asst.raw = `{"responder": true, "respuesta": "Hola"}`
	h.disp.err = errBoom
	turn := h.inbound("¿precio del A100?", time.Minute)

	out, err := h.p.HandleTurn(context.Background(), turn)

	if out.State != StateAbandoned || !errors.Is(err, errBoom) {
		t.Fatalf("expected ABANDONED, got %s / %v", out.State, err)
	}
	if h.store.automatedReplies(turn.Message.ID) != 0 {
		t.Fatalf("undelivered replies must not be recorded")
	}
}

func TestConcurrentLiveAndUnattendedRunsReplyOnce(t *testing.T) {
	guard := replyguard.NewGuard(replyguard.NewMemoryLocker(), replyguard.Options{TTL: time.Minute, Wait: 5 * time.Second}, logger.Discard())
	h := newHarness(t, guard)
	h.asst.raw = `{"responder": true, "respuesta": "Tu comercial te atenderá pronto."}`
	h.asst.delay = 30 * time.Millisecond
	live := h.inbound("¿tenés el A100 en rojo?", 20*time.Minute)
	unattended := live
	unattended.Source = SourceUnattended

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	for i, turn := range []Turn{live, unattended} {
		wg.Add(1)
		go func(i int, turn Turn) {
			defer wg.Done()
			outcomes[i], _ = h.p.HandleTurn(context.Background(), turn)
		}(i, turn)
	}
	wg.Wait()

	if n, _ := h.disp.counts(); n != 1 {
		t.Fatalf("expected exactly one dispatched reply, got %d", n)
	}
	if got := h.store.automatedReplies(live.Message.ID); got != 1 {
		t.Fatalf("expected exactly one recorded reply, got %d", got)
	}
	states := map[State]int{}
	for _, o := range outcomes {
		states[o.State]++
	}
	if states[StateFreeformReplied] != 1 || states[StateAnswered] != 1 {
		t.Fatalf("expected one reply and one skip, got %v", states)
	}
}

func TestEmptyMessageIsIgnored(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.p.HandleTurn(context.Background(), Turn{ClientPhone: clientPhone, Message: conversation.Message{Content: "  "}})

	if err != nil || out.State != StateSilent {
		t.Fatalf("expected SILENT, got %s / %v", out.State, err)
	}
}
