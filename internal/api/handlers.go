package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"kaipiao/agent/internal/auth"
	"kaipiao/agent/internal/catalog"
	"kaipiao/agent/internal/config"
	"kaipiao/agent/internal/conversation"
	"kaipiao/agent/internal/receipt"
)

type Handlers struct {
	cfg      config.Config
	mgr      *conversation.Manager
	catalog  *catalog.Store
	receipts *receipt.Store
}

func NewHandlers(cfg config.Config, mgr *conversation.Manager, cat *catalog.Store, rec *receipt.Store) *Handlers {
	return &Handlers{cfg: cfg, mgr: mgr, catalog: cat, receipts: rec}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	c := h.mgr.Create()
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": c.ID(),
		"state":           c.State(),
		"draft":           c.CurrentDraft(),
	})
}

func (h *Handlers) HandleSubmitUtterance(w http.ResponseWriter, r *http.Request, id string) {
	c := h.mgr.Get(id)
	if c == nil {
		http.NotFound(w, r)
		return
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Text == "" {
		http.Error(w, "missing text", http.StatusBadRequest)
		return
	}

	msg, err := c.SubmitUtterance(r.Context(), in.Text)
	switch {
	case errors.Is(err, conversation.ErrBusy):
		h.mgr.AppendEvent(id, "utterance_rejected_busy", nil)
		http.Error(w, "interpretation in flight", http.StatusConflict)
		return
	case errors.Is(err, conversation.ErrClosed):
		http.Error(w, "conversation closed", http.StatusGone)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.mgr.AppendEvent(id, "utterance_interpreted", map[string]any{"has_draft": msg.Draft != nil})
	writeJSON(w, http.StatusOK, map[string]any{"message": msg, "state": c.State()})
}

func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request, id string) {
	c := h.mgr.Get(id)
	if c == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"state":           c.State(),
		"messages":        c.Messages(),
	})
}

func (h *Handlers) HandleConfirm(w http.ResponseWriter, r *http.Request, id string) {
	c := h.mgr.Get(id)
	if c == nil {
		http.NotFound(w, r)
		return
	}
	issued, err := c.Confirm(r.Context())
	switch {
	case errors.Is(err, conversation.ErrBusy):
		http.Error(w, "interpretation in flight", http.StatusConflict)
		return
	case errors.Is(err, conversation.ErrNoDraft):
		http.Error(w, "nothing to confirm", http.StatusBadRequest)
		return
	case errors.Is(err, conversation.ErrClosed):
		http.Error(w, "conversation closed", http.StatusGone)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.mgr.AppendEvent(id, "draft_confirmed", map[string]any{"receipt_no": issued.No})
	_ = h.mgr.End(id)
	writeJSON(w, http.StatusOK, map[string]any{"receipt": issued})
}

func (h *Handlers) HandleEndConversation(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.mgr.End(id); err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"events":          h.mgr.ListEvents(id),
	})
}

// HandleMintVoiceToken issues the bearer token for the voice channel.
func (h *Handlers) HandleMintVoiceToken(w http.ResponseWriter, r *http.Request, id string) {
	if h.mgr.Get(id) == nil {
		http.NotFound(w, r)
		return
	}
	if h.cfg.Voice.TokenSecret == "" {
		http.Error(w, "voice auth not configured", http.StatusBadRequest)
		return
	}
	exp := time.Now().Add(time.Duration(h.cfg.Voice.TokenExpMin) * time.Minute).Unix()
	token := auth.GenerateVoiceToken(h.cfg.Voice.TokenSecret, id, exp)
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "exp": exp})
}

func (h *Handlers) HandleListReceipts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"receipts": h.receipts.List()})
}

func (h *Handlers) HandleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"products": h.catalog.Products()})
	case http.MethodPost:
		var p catalog.Product
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "invalid product", http.StatusBadRequest)
			return
		}
		if err := h.catalog.AddProduct(p); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) HandleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"customers": h.catalog.Customers()})
	case http.MethodPost:
		var c catalog.Customer
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			http.Error(w, "invalid customer", http.StatusBadRequest)
			return
		}
		if err := h.catalog.AddCustomer(c); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
