package conversation

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"sync"

	"github.com/google/uuid"

	"kaipiao/agent/internal/interpret"
	"kaipiao/agent/internal/receipt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// State is the conversation's single-flight position.
type State string

const (
	StateIdle     State = "idle"
	StateAwaiting State = "awaiting_interpretation"
	StateClosed   State = "closed"
)

var (
	ErrBusy    = errors.New("interpretation already in flight")
	ErrClosed  = errors.New("conversation closed")
	ErrNoDraft = errors.New("no draft snapshot to confirm")
)

// Canned assistant replies, matching the original app's voice.
const (
	textDraftReady     = "好的，我已经为您整理好开票信息，请确认："
	textDraftUpdated   = "好的，我已经更新了票据信息，请再次确认："
	textClarify        = "抱歉，我没有听懂。您可以说：把可乐改成15箱，或者：修改客户为\"李四超市\""
	textBackendFailure = "语音服务暂时不可用，请稍后再试。"
)

// Message is one transcript entry. Draft, when present, is an immutable
// snapshot taken at creation time; later edits never touch it.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Text      string         `json:"text"`
	Draft     *receipt.Draft `json:"draft,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Interpreter turns one utterance plus the current draft into a result.
// Implementations may be remote; an error here is a BackendFailure, not
// the end of the conversation.
type Interpreter interface {
	Interpret(ctx context.Context, utterance string, current receipt.Draft) (interpret.Result, error)
}

// Sink is the receipt persistence boundary handed the confirmed draft.
type Sink interface {
	Issue(d receipt.Draft) receipt.Issued
}

// Controller owns one conversation: its append-only transcript, its
// draft lineage, and the busy flag that keeps interpretations
// single-flight. Each conversation gets its own instance; nothing is
// shared across conversations.
type Controller struct {
	id     string
	interp Interpreter
	sink   Sink

	mu         sync.Mutex
	state      State
	draft      receipt.Draft
	transcript []Message
}

func NewController(id string, interp Interpreter, sink Sink) *Controller {
	if id == "" {
		id = uuid.New().String()
	}
	return &Controller{
		id:     id,
		interp: interp,
		sink:   sink,
		state:  StateIdle,
		draft:  receipt.NewDraft(),
	}
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentDraft returns a detached copy of the latest draft.
func (c *Controller) CurrentDraft() receipt.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Clone()
}

// Messages returns a copy of the transcript. Draft snapshots are
// cloned so no caller can mutate transcript history through them.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	for i := range out {
		if out[i].Draft != nil {
			snap := out[i].Draft.Clone()
			out[i].Draft = &snap
		}
	}
	return out
}

// SubmitUtterance runs one utterance through the interpreter. The busy
// flag is raised before the interpreter is dispatched and lowered only
// after the outcome is applied, so a second submission can never race
// the draft; it is rejected with ErrBusy instead.
func (c *Controller) SubmitUtterance(ctx context.Context, text string) (Message, error) {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return Message{}, ErrClosed
	case StateAwaiting:
		c.mu.Unlock()
		metricBusyRejections.Inc()
		return Message{}, ErrBusy
	}
	userMsg := Message{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	c.transcript = append(c.transcript, userMsg)
	c.setStateLocked(StateAwaiting)
	current := c.draft.Clone()
	c.mu.Unlock()

	metricUtterances.Inc()
	res, err := c.interp.Interpret(ctx, text, current)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		// The pending call resolved after Close; the busy flag is
		// already moot and the result must not leak into anything.
		return Message{}, ErrClosed
	}
	c.setStateLocked(StateIdle)

	msg := Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case err != nil:
		log.Printf("[conversation] interpreter failed id=%s: %v", c.id, err)
		msg.Text = textBackendFailure
	case res.Changed:
		next := receipt.Recompute(res.Draft)
		c.draft = next
		snap := next.Clone()
		msg.Draft = &snap
		if res.Reason == interpret.ReasonCreated {
			msg.Text = textDraftReady
		} else {
			msg.Text = textDraftUpdated
		}
		if len(res.Notes) > 0 {
			msg.Text += "\n" + strings.Join(res.Notes, "\n")
		}
	default:
		msg.Text = textClarify
	}
	c.transcript = append(c.transcript, msg)
	return msg, nil
}

// AppendAssistantNote surfaces a collaborator failure (e.g. a failed
// transcription) as an assistant message with no draft attached.
func (c *Controller) AppendAssistantNote(text string) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return Message{}, ErrClosed
	}
	msg := Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	c.transcript = append(c.transcript, msg)
	return msg, nil
}

// Confirm hands the most recent assistant draft snapshot to the
// persistence sink and closes the conversation. Valid only while idle,
// never mid-interpretation.
func (c *Controller) Confirm(ctx context.Context) (receipt.Issued, error) {
	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return receipt.Issued{}, ErrClosed
	case StateAwaiting:
		c.mu.Unlock()
		return receipt.Issued{}, ErrBusy
	}
	var snap *receipt.Draft
	for i := len(c.transcript) - 1; i >= 0; i-- {
		m := c.transcript[i]
		if m.Role == RoleAssistant && m.Draft != nil {
			snap = m.Draft
			break
		}
	}
	if snap == nil {
		c.mu.Unlock()
		return receipt.Issued{}, ErrNoDraft
	}
	d := snap.Clone()
	c.setStateLocked(StateClosed)
	c.mu.Unlock()

	metricConfirmations.Inc()
	return c.sink.Issue(d), nil
}

// Close abandons the conversation. An in-flight interpretation still
// resolves its busy flag but its result is discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateClosed {
		c.setStateLocked(StateClosed)
	}
}

func (c *Controller) setStateLocked(to State) {
	from := c.state
	if from == to {
		return
	}
	metricStateTransitions.WithLabelValues(string(from), string(to)).Inc()
	c.state = to
}
