package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/manasdhir/Voice-Bot/pkg/core"
)

func TestMurf_SynthesizeStreamForwardsChunks(t *testing.T) {
	var got murfRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != murfStreamPath {
			t.Errorf("path=%q", r.URL.Path)
		}
		gotKey = r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		flusher, _ := w.(http.Flusher)
		for _, part := range []string{"ID3", "frame1", "frame2"} {
			_, _ = w.Write([]byte(part))
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer srv.Close()

	m := NewMurf(MurfConfig{APIKey: "murf-key", BaseURL: srv.URL})
	stream, err := m.SynthesizeStream(context.Background(), "hello there", SynthesizeOptions{Voice: "en-US-davis"})
	if err != nil {
		t.Fatalf("SynthesizeStream error: %v", err)
	}
	audio, err := ReadAll(stream)
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if string(audio) != "ID3frame1frame2" {
		t.Fatalf("audio=%q", audio)
	}
	if gotKey != "murf-key" {
		t.Fatalf("api-key=%q", gotKey)
	}
	if got.VoiceID != "en-US-davis" || got.Text != "hello there" {
		t.Fatalf("request=%+v", got)
	}
	if got.Format != "MP3" || got.SampleRate != murfDefaultRateHz {
		t.Fatalf("format=%q rate=%d", got.Format, got.SampleRate)
	}
}

func TestMurf_DefaultVoice(t *testing.T) {
	var got murfRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("a"))
	}))
	defer srv.Close()

	m := NewMurf(MurfConfig{BaseURL: srv.URL})
	syn, err := m.Synthesize(context.Background(), "hi", SynthesizeOptions{})
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if string(syn.Audio) != "a" {
		t.Fatalf("audio=%q", syn.Audio)
	}
	if got.VoiceID != DefaultMurfVoice {
		t.Fatalf("voice=%q, want %q", got.VoiceID, DefaultMurfVoice)
	}
}

func TestMurf_StatusErrorIsSynthesisError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewMurf(MurfConfig{BaseURL: srv.URL})
	_, err := m.SynthesizeStream(context.Background(), "hi", SynthesizeOptions{})
	if !core.IsType(err, core.ErrSynthesis) {
		t.Fatalf("err=%v, want synthesis error", err)
	}
}

func TestMurf_EmptyText(t *testing.T) {
	m := NewMurf(MurfConfig{BaseURL: "http://127.0.0.1:1"})
	if _, err := m.SynthesizeStream(context.Background(), "   ", SynthesizeOptions{}); err == nil {
		t.Fatalf("expected error for empty text")
	}
}
