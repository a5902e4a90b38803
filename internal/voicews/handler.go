package voicews

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	ws "nhooyr.io/websocket"

	"kaipiao/agent/internal/auth"
	"kaipiao/agent/internal/config"
	"kaipiao/agent/internal/conversation"
	"kaipiao/agent/internal/gesture"
	"kaipiao/agent/internal/transcribe"
)

// Message is the JSON envelope on the voice channel, both directions.
// Client → server: press_start, press_cancel, press_end, audio_chunk.
// Server → client: manual_entry, recording_started, recording_stopped,
// vibrate, transcript, assistant_message, error.
type Message struct {
	Type    string         `json:"type"`
	TsMs    int64          `json:"ts_ms,omitempty"`
	Audio   string         `json:"audio,omitempty"`
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Server accepts one websocket per conversation and drives the press
// gesture classifier from the client's raw press events.
type Server struct {
	Cfg     config.Config
	Manager *conversation.Manager
	STT     transcribe.Transcriber
	Reg     *Registry
}

func NewServer(cfg config.Config, mgr *conversation.Manager, stt transcribe.Transcriber, reg *Registry) *Server {
	return &Server{Cfg: cfg, Manager: mgr, STT: stt, Reg: reg}
}

// wsFeedback forwards haptic feedback to the client, best-effort.
type wsFeedback struct {
	send func(Message)
}

func (f wsFeedback) Vibrate(d time.Duration) error {
	f.send(Message{Type: "vibrate", Payload: map[string]any{"duration_ms": d.Milliseconds()}})
	return nil
}

func (s *Server) HandleVoiceWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	convID := q.Get("conversation_id")
	if convID == "" {
		http.Error(w, "missing conversation_id", http.StatusBadRequest)
		return
	}
	ctrl := s.Manager.Get(convID)
	if ctrl == nil {
		http.Error(w, "unknown conversation", http.StatusNotFound)
		return
	}
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	if s.Cfg.Voice.TokenSecret == "" {
		http.Error(w, "voice auth not configured", http.StatusUnauthorized)
		return
	}
	token := strings.TrimPrefix(authz, "Bearer ")
	if _, _, err := auth.ValidateVoiceToken(s.Cfg.Voice.TokenSecret, token, convID, time.Now(), s.Cfg.Voice.TokenSkewSecs); err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.Printf("[voicews] accept: %v", err)
		return
	}
	if s.Reg.Replace(convID, c) {
		s.Manager.AppendEvent(convID, "voice_channel_replaced", nil)
	}
	s.Manager.AppendEvent(convID, "voice_channel_connected", nil)

	ctx := r.Context()
	sess := &session{
		srv:    s,
		ctx:    ctx,
		convID: convID,
		ctrl:   ctrl,
	}
	threshold := time.Duration(s.Cfg.Gesture.LongPressMs) * time.Millisecond
	sess.clf = gesture.NewClassifier(threshold, wsFeedback{send: sess.send}, sess.onGesture)

	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageText {
			continue
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.Manager.AppendEvent(convID, "voice_msg_invalid", map[string]any{"error": err.Error()})
			continue
		}
		sess.handle(msg)
	}
	// The press must never leak an active recording across a dropped
	// connection.
	sess.clf.PressCancel()
	_ = c.Close(ws.StatusNormalClosure, "done")
	s.Reg.RemoveIfSame(convID, c)
	s.Manager.AppendEvent(convID, "voice_channel_disconnected", nil)
}

// session is the per-connection state: the gesture classifier and the
// audio buffer accumulated while the long press is active.
type session struct {
	srv    *Server
	ctx    context.Context
	convID string
	ctrl   *conversation.Controller
	clf    *gesture.Classifier

	mu  sync.Mutex
	buf []byte
}

func (s *session) handle(msg Message) {
	switch msg.Type {
	case "press_start":
		s.mu.Lock()
		s.buf = nil
		s.mu.Unlock()
		s.clf.PressStart()
	case "press_end":
		s.clf.PressEnd()
	case "press_cancel":
		s.clf.PressCancel()
	case "audio_chunk":
		b, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			s.srv.Manager.AppendEvent(s.convID, "voice_audio_invalid", map[string]any{"error": err.Error()})
			return
		}
		s.mu.Lock()
		s.buf = append(s.buf, b...)
		s.mu.Unlock()
	default:
		// Unknown client messages are ignored for forward compatibility.
	}
}

func (s *session) onGesture(ev gesture.Event) {
	s.srv.Manager.AppendEvent(s.convID, "gesture_"+ev.Kind.String(), map[string]any{"elapsed_ms": ev.Elapsed.Milliseconds()})
	switch ev.Kind {
	case gesture.KindTap:
		// Tap chooses the manual entry path; the draft stays untouched.
		s.send(Message{Type: "manual_entry"})
	case gesture.KindLongPressStarted:
		s.send(Message{Type: "recording_started"})
	case gesture.KindLongPressEnded:
		s.send(Message{Type: "recording_stopped", Payload: map[string]any{"elapsed_ms": ev.Elapsed.Milliseconds()}})
		s.mu.Lock()
		audio := s.buf
		s.buf = nil
		s.mu.Unlock()
		go s.runTranscription(audio)
	}
}

// runTranscription turns the captured audio into an utterance and feeds
// it to the conversation. Any failure becomes an assistant message; the
// conversation stays usable either way.
func (s *session) runTranscription(audio []byte) {
	text, err := s.srv.STT.Transcribe(s.ctx, audio)
	if err != nil {
		log.Printf("[voicews] transcription failed conv=%s: %v", s.convID, err)
		s.srv.Manager.AppendEvent(s.convID, "transcription_failed", map[string]any{"error": err.Error()})
		if msg, err := s.ctrl.AppendAssistantNote("语音识别失败，请重试或改用文字输入。"); err == nil {
			s.sendAssistant(msg)
		}
		return
	}
	s.send(Message{Type: "transcript", Text: text})

	reply, err := s.ctrl.SubmitUtterance(s.ctx, text)
	switch err {
	case nil:
		s.sendAssistant(reply)
	case conversation.ErrBusy:
		s.send(Message{Type: "error", Text: "busy"})
	default:
		s.send(Message{Type: "error", Text: err.Error()})
	}
}

func (s *session) sendAssistant(msg conversation.Message) {
	s.send(Message{Type: "assistant_message", Text: msg.Text, Payload: map[string]any{"message": msg}})
}

func (s *session) send(msg Message) {
	if msg.TsMs == 0 {
		msg.TsMs = time.Now().UnixMilli()
	}
	if err := s.srv.Reg.SendJSON(s.ctx, s.convID, msg); err != nil {
		log.Printf("[voicews] send failed conv=%s type=%s: %v", s.convID, msg.Type, err)
	}
}
