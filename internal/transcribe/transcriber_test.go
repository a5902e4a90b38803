package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestTranscribeHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("missing bearer auth, got %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "pcm-bytes" {
			t.Errorf("audio body not forwarded: %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"把可乐改成15箱"}`))
	}))
	defer srv.Close()

	tr := NewHTTP(srv.URL, "key-1", 2*time.Second)
	text, err := tr.Transcribe(context.Background(), []byte("pcm-bytes"))
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if text != "把可乐改成15箱" {
		t.Fatalf("unexpected transcript: %q", text)
	}
}

func TestTranscribeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := NewHTTP(srv.URL, "", time.Second)
	_, err := tr.Transcribe(context.Background(), []byte("x"))
	if err == nil {
		t.Fatalf("expected error on provider failure")
	}
	if !strings.Contains(err.Error(), "429") || !strings.Contains(err.Error(), "quota") {
		t.Fatalf("error should carry status and body excerpt: %v", err)
	}
}

func TestTranscribeUnconfigured(t *testing.T) {
	tr := NewHTTP("", "", time.Second)
	if _, err := tr.Transcribe(context.Background(), nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
