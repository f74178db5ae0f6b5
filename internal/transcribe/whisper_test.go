package transcribe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/heydoc/booking-platform/pkg/logging"
)

func TestWhisperClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("authorization = %s", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %s", got)
		}
		if got := r.FormValue("language"); got != "fr" {
			t.Errorf("language = %s", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "note.ogg" {
			t.Errorf("filename = %s", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "je voudrais un rendez-vous demain"}`))
	}))
	defer server.Close()

	client, err := NewWhisperClient("key-123", "", logging.Default(),
		WithWhisperBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewWhisperClient: %v", err)
	}

	text, err := client.Transcribe(context.Background(), Audio{
		Data:     []byte("fake-ogg-bytes"),
		Filename: "note.ogg",
		Language: "fr",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "je voudrais un rendez-vous demain" {
		t.Fatalf("text = %q", text)
	}
}

func TestWhisperClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "invalid file"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client, err := NewWhisperClient("key-123", "", logging.Default(),
		WithWhisperBaseURL(server.URL))
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Transcribe(context.Background(), Audio{Data: []byte("x")})
	if err == nil || !strings.Contains(err.Error(), "status 400") {
		t.Fatalf("err = %v", err)
	}
}

func TestWhisperClientRejectsEmptyAudio(t *testing.T) {
	client, err := NewWhisperClient("key-123", "", logging.Default())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.Transcribe(context.Background(), Audio{}); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestNewWhisperClientRequiresKey(t *testing.T) {
	if _, err := NewWhisperClient("", "", logging.Default()); err == nil {
		t.Fatal("expected error for missing api key")
	}
}
