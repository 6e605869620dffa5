package elevenlabs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-voice/core/audio"
	"github.com/koscakluka/ema-voice/core/speechtotext"
)

func testBlob() audio.Blob {
	return audio.Blob{Data: make([]byte, 3200), EncodingInfo: audio.GetDefaultEncodingInfo()}
}

func TestTranscribeUploadsWAVForm(t *testing.T) {
	var (
		gotKey      string
		gotModel    string
		gotLanguage string
		gotFile     []byte
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech-to-text" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotKey = r.Header.Get("xi-api-key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse form: %v", err)
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model_id")
		gotLanguage = r.FormValue("language_code")
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotFile, _ = io.ReadAll(file)
		_, _ = io.WriteString(w, `{"language_code":"en","text":"  hello there  "}`)
	}))
	defer server.Close()

	client, err := NewTranscriptionClient("key", WithBaseURL(server.URL), WithModel("scribe_test"), WithLanguage("hr"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var partial string
	transcript, err := client.Transcribe(context.Background(), testBlob(),
		speechtotext.WithLanguage("en"),
		speechtotext.WithPartialTranscriptionCallback(func(text string) { partial = text }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transcript != "hello there" {
		t.Fatalf("expected trimmed transcript, got %q", transcript)
	}
	if partial != transcript {
		t.Fatalf("expected callback with transcript, got %q", partial)
	}
	if gotKey != "key" {
		t.Fatalf("expected api key header, got %q", gotKey)
	}
	if gotModel != "scribe_test" {
		t.Fatalf("expected model scribe_test, got %q", gotModel)
	}
	if gotLanguage != "en" {
		t.Fatalf("expected per-call language to win, got %q", gotLanguage)
	}
	if len(gotFile) != 44+3200 || string(gotFile[:4]) != "RIFF" {
		t.Fatalf("expected a WAV upload, got %d bytes", len(gotFile))
	}
}

func TestTranscribeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		blob    audio.Blob
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", http.StatusUnauthorized)
			},
			blob: testBlob(),
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "{not json")
			},
			blob: testBlob(),
		},
		{
			name: "empty recording",
			handler: func(w http.ResponseWriter, r *http.Request) {
				t.Errorf("empty recording should not be uploaded")
			},
			blob: audio.Blob{EncodingInfo: audio.GetDefaultEncodingInfo()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client, err := NewTranscriptionClient("key", WithBaseURL(server.URL))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, err := client.Transcribe(context.Background(), tt.blob); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}
}

func TestNewTranscriptionClientRequiresKey(t *testing.T) {
	if _, err := NewTranscriptionClient(""); err == nil {
		t.Fatalf("expected missing key error")
	}
}
