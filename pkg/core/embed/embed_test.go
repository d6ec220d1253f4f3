package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAI_EmbedOrdersByIndex(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("path=%q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[
			{"object":"embedding","index":1,"embedding":[0.5,0.25]},
			{"object":"embedding","index":0,"embedding":[1,2]}
		],"usage":{"prompt_tokens":2,"total_tokens":2}}`))
	}))
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Dimensions: 2})
	vecs, err := e.Embed(context.Background(), "first", "second")
	if err != nil {
		t.Fatalf("Embed error: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1 || vecs[1][1] != 0.25 {
		t.Fatalf("vecs=%v", vecs)
	}
	if got["model"] != DefaultModel {
		t.Fatalf("model=%v", got["model"])
	}
	if got["dimensions"] != float64(2) {
		t.Fatalf("dimensions=%v", got["dimensions"])
	}
}

func TestOpenAI_EmbedRejectsEmptyInput(t *testing.T) {
	e := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	if _, err := e.Embed(context.Background()); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err=%v, want ErrEmptyInput", err)
	}
	if _, err := e.Embed(context.Background(), "  "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err=%v, want ErrEmptyInput", err)
	}
}
