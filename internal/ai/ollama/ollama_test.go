package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kiliankoe/georacer/internal/ai"
)

func TestCompleteWithImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model    string    `json:"model"`
			Messages []message `json:"messages"`
			Stream   bool      `json:"stream"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("should be able to decode request: %v", err)
		}
		if body.Stream || body.Model != "llava" {
			t.Errorf("unexpected request: %+v", body)
		}
		if imgs := body.Messages[1].Images; len(imgs) != 2 || imgs[0] != "AAAA" {
			t.Errorf("images should be raw base64, got %v", imgs)
		}
		w.Write([]byte(`{"message":{"role":"assistant","content":"No."}}`))
	}))
	defer srv.Close()

	out, err := New(srv.URL).CompleteWithImages(context.Background(), "llava", "prompt", []ai.Image{
		{MimeType: "image/png", Data: "AAAA"},
		{MimeType: "image/png", Data: "BBBB"},
	})
	if err != nil {
		t.Fatalf("should be able to complete: %v", err)
	}
	if out != "No." {
		t.Fatalf("unexpected answer %q", out)
	}
}

func TestCompleteWithImagesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	if _, err := New(srv.URL).CompleteWithImages(context.Background(), "llava", "p", nil); err == nil {
		t.Fatal("non-2xx status should fail")
	}
}
