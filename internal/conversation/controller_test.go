package conversation

import (
	"context"
	"errors"
	"testing"

	"kaipiao/agent/internal/interpret"
	"kaipiao/agent/internal/receipt"
)

// scriptedInterp returns canned results and can block until released to
// simulate a slow interpretation in flight.
type scriptedInterp struct {
	result  interpret.Result
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *scriptedInterp) Interpret(ctx context.Context, text string, current receipt.Draft) (interpret.Result, error) {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	if s.result.Draft.Empty() && !s.result.Changed {
		return interpret.Result{Draft: current, Reason: interpret.ReasonUnrecognized}, s.err
	}
	return s.result, s.err
}

func changedResult() interpret.Result {
	return interpret.Result{
		Draft: receipt.Draft{
			CustomerName: "张三便利店",
			Items:        []receipt.LineItem{{ProductName: "可口可乐", Quantity: 10, UnitPrice: 3.5}},
		},
		Changed: true,
		Reason:  interpret.ReasonCreated,
	}
}

func TestSubmitAppendsUserAndAssistantMessages(t *testing.T) {
	c := NewController("", &scriptedInterp{result: changedResult()}, receipt.NewStore("RC"))

	msg, err := c.SubmitUtterance(context.Background(), "给张三便利店开票，10箱可口可乐")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Role != RoleAssistant || msg.Draft == nil {
		t.Fatalf("expected assistant message with snapshot, got %+v", msg)
	}
	if msg.Draft.TotalAmount != 35.00 {
		t.Fatalf("expected recomputed total 35.00, got %v", msg.Draft.TotalAmount)
	}

	msgs := c.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Text != "给张三便利店开票，10箱可口可乐" {
		t.Fatalf("bad user entry: %+v", msgs[0])
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle after submit, got %s", c.State())
	}
}

func TestSubmitWhileBusyIsRejected(t *testing.T) {
	interp := &scriptedInterp{
		result:  changedResult(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewController("", interp, receipt.NewStore("RC"))

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitUtterance(context.Background(), "first")
		done <- err
	}()
	<-interp.started

	if c.State() != StateAwaiting {
		t.Fatalf("expected awaiting state, got %s", c.State())
	}
	if _, err := c.SubmitUtterance(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := c.Confirm(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("confirm mid-flight should be ErrBusy, got %v", err)
	}

	// The rejected submission must leave no trace in the transcript.
	if got := len(c.Messages()); got != 1 {
		t.Fatalf("expected only the first user message, got %d entries", got)
	}

	close(interp.release)
	if err := <-done; err != nil {
		t.Fatalf("first submission failed: %v", err)
	}
	if c.State() != StateIdle {
		t.Fatalf("busy flag not cleared, state %s", c.State())
	}
	if got := len(c.Messages()); got != 2 {
		t.Fatalf("expected 2 entries after resolution, got %d", got)
	}
}

func TestInterpreterErrorYieldsFailureReply(t *testing.T) {
	c := NewController("", &scriptedInterp{err: errors.New("stt upstream 503")}, receipt.NewStore("RC"))

	msg, err := c.SubmitUtterance(context.Background(), "anything")
	if err != nil {
		t.Fatalf("backend failure must not error the submission: %v", err)
	}
	if msg.Text != textBackendFailure || msg.Draft != nil {
		t.Fatalf("expected failure reply without snapshot, got %+v", msg)
	}
	if c.State() != StateIdle {
		t.Fatalf("expected idle after failure, got %s", c.State())
	}
}

func TestUnrecognizedLeavesDraftAlone(t *testing.T) {
	c := NewController("", &scriptedInterp{result: changedResult()}, receipt.NewStore("RC"))
	if _, err := c.SubmitUtterance(context.Background(), "create"); err != nil {
		t.Fatalf("seed submit failed: %v", err)
	}
	before := c.CurrentDraft()

	// Second interpreter sees Changed=false via the scripted default.
	c.interp = &scriptedInterp{}
	msg, err := c.SubmitUtterance(context.Background(), "thanks")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Text != textClarify || msg.Draft != nil {
		t.Fatalf("expected clarification reply, got %+v", msg)
	}
	after := c.CurrentDraft()
	if after.TotalAmount != before.TotalAmount || len(after.Items) != len(before.Items) {
		t.Fatalf("draft drifted on unrecognized input: %+v vs %+v", after, before)
	}
}

func TestSnapshotImmutableAfterLaterEdits(t *testing.T) {
	c := NewController("", &scriptedInterp{result: changedResult()}, receipt.NewStore("RC"))
	first, err := c.SubmitUtterance(context.Background(), "create")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	edited := changedResult()
	edited.Draft.Items[0].Quantity = 15
	edited.Reason = interpret.ReasonUpdated
	c.interp = &scriptedInterp{result: edited}
	if _, err := c.SubmitUtterance(context.Background(), "change to 15"); err != nil {
		t.Fatalf("edit submit failed: %v", err)
	}

	if first.Draft.Items[0].Quantity != 10 {
		t.Fatalf("earlier snapshot mutated by later edit: %+v", first.Draft.Items[0])
	}
	if c.CurrentDraft().Items[0].Quantity != 15 {
		t.Fatalf("current draft missing the edit: %+v", c.CurrentDraft().Items[0])
	}
}

func TestMessagesReturnsDetachedSnapshots(t *testing.T) {
	c := NewController("", &scriptedInterp{result: changedResult()}, receipt.NewStore("RC"))
	if _, err := c.SubmitUtterance(context.Background(), "create"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	msgs := c.Messages()
	msgs[1].Draft.Items[0].Quantity = 999

	if got := c.Messages()[1].Draft.Items[0].Quantity; got != 10 {
		t.Fatalf("transcript snapshot mutated through Messages copy: %d", got)
	}
	if got := c.CurrentDraft().Items[0].Quantity; got != 10 {
		t.Fatalf("current draft mutated through Messages copy: %d", got)
	}
}

func TestConfirmIssuesLatestSnapshotAndCloses(t *testing.T) {
	store := receipt.NewStore("RC")
	c := NewController("", &scriptedInterp{result: changedResult()}, store)
	if _, err := c.SubmitUtterance(context.Background(), "create"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	edited := changedResult()
	edited.Draft.Items[0].Quantity = 15
	edited.Reason = interpret.ReasonUpdated
	c.interp = &scriptedInterp{result: edited}
	if _, err := c.SubmitUtterance(context.Background(), "change to 15"); err != nil {
		t.Fatalf("edit submit failed: %v", err)
	}

	issued, err := c.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if issued.Draft.Items[0].Quantity != 15 || issued.Draft.TotalAmount != 52.50 {
		t.Fatalf("confirmed the wrong snapshot: %+v", issued.Draft)
	}
	if issued.No == "" {
		t.Fatalf("issued receipt has no number")
	}
	if store.Count() != 1 {
		t.Fatalf("expected 1 stored receipt, got %d", store.Count())
	}
	if c.State() != StateClosed {
		t.Fatalf("confirm must close the conversation, got %s", c.State())
	}
	if _, err := c.SubmitUtterance(context.Background(), "more"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after confirm, got %v", err)
	}
}

func TestConfirmWithoutSnapshotFails(t *testing.T) {
	c := NewController("", &scriptedInterp{}, receipt.NewStore("RC"))
	if _, err := c.Confirm(context.Background()); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}

	// A clarification reply carries no snapshot either.
	if _, err := c.SubmitUtterance(context.Background(), "thanks"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := c.Confirm(context.Background()); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft after clarification, got %v", err)
	}
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	interp := &scriptedInterp{
		result:  changedResult(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewController("", interp, receipt.NewStore("RC"))

	done := make(chan error, 1)
	go func() {
		_, err := c.SubmitUtterance(context.Background(), "create")
		done <- err
	}()
	<-interp.started

	c.Close()
	close(interp.release)

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Fatalf("resolved submission on a closed conversation should be ErrClosed, got %v", err)
	}
	if d := c.CurrentDraft(); !d.Empty() {
		t.Fatalf("in-flight result leaked into closed conversation: %+v", d)
	}
	// Only the user entry remains; no assistant reply for a discarded result.
	if got := len(c.Messages()); got != 1 {
		t.Fatalf("expected 1 transcript entry, got %d", got)
	}
}

func TestAppendAssistantNote(t *testing.T) {
	c := NewController("", &scriptedInterp{}, receipt.NewStore("RC"))
	msg, err := c.AppendAssistantNote("语音识别失败，请重试或改用文字输入。")
	if err != nil {
		t.Fatalf("append note failed: %v", err)
	}
	if msg.Role != RoleAssistant || msg.Draft != nil {
		t.Fatalf("note should be a plain assistant message: %+v", msg)
	}
	c.Close()
	if _, err := c.AppendAssistantNote("again"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(&scriptedInterp{result: changedResult()}, receipt.NewStore("RC"))

	c := m.Create()
	if m.Get(c.ID()) != c {
		t.Fatalf("created conversation not retrievable")
	}
	if len(m.ListIDs()) != 1 {
		t.Fatalf("expected 1 live conversation, got %d", len(m.ListIDs()))
	}

	if err := m.End(c.ID()); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if m.Get(c.ID()) != nil {
		t.Fatalf("ended conversation still retrievable")
	}
	if c.State() != StateClosed {
		t.Fatalf("ending must close the controller, got %s", c.State())
	}
	if err := m.End(c.ID()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double end, got %v", err)
	}

	evts := m.ListEvents(c.ID())
	if len(evts) != 2 || evts[0].Type != "conversation_created" || evts[1].Type != "conversation_ended" {
		t.Fatalf("unexpected event log: %+v", evts)
	}
}

func TestEventLogIsCapped(t *testing.T) {
	m := NewManager(&scriptedInterp{}, receipt.NewStore("RC"))
	c := m.Create()
	for i := 0; i < 400; i++ {
		m.AppendEvent(c.ID(), "noise", nil)
	}
	evts := m.ListEvents(c.ID())
	if len(evts) > 201 {
		t.Fatalf("event log unbounded: %d entries", len(evts))
	}
	if evts[len(evts)-1].Type != "events_truncated" {
		t.Fatalf("expected truncation marker last, got %s", evts[len(evts)-1].Type)
	}
}
