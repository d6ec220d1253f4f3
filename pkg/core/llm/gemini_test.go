package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/manasdhir/Voice-Bot/pkg/core/types"
)

type geminiServer struct {
	mu       sync.Mutex
	paths    []string
	requests []map[string]any
	replies  []string
}

func (g *geminiServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	g.mu.Lock()
	idx := len(g.requests)
	g.requests = append(g.requests, body)
	g.paths = append(g.paths, r.URL.Path)
	g.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if idx >= len(g.replies) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":500,"message":"no more replies","status":"INTERNAL"}}`))
		return
	}
	_, _ = w.Write([]byte(g.replies[idx]))
}

func TestGemini_GenerateRunsToolLoop(t *testing.T) {
	gs := &geminiServer{replies: []string{
		`{"candidates":[{"content":{"role":"model","parts":[{"functionCall":{"name":"search_docs","args":{"query":"refund"}}}]},"finishReason":"STOP"}]}`,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"Refunds take thirty days."}]},"finishReason":"STOP"}]}`,
	}}
	srv := httptest.NewServer(gs)
	defer srv.Close()

	e, err := NewGemini(context.Background(), GeminiConfig{APIKey: "k", BaseURL: srv.URL, Model: "gemini-2.0-flash"})
	if err != nil {
		t.Fatalf("NewGemini error: %v", err)
	}
	tool := &recordingTool{out: "[policy.pdf]\nRefunds within 30 days."}
	out, err := e.Generate(context.Background(), []types.Message{
		types.SystemMessage("be brief"),
		types.HumanMessage("refund?"),
	}, []Tool{tool})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out != "Refunds take thirty days." {
		t.Fatalf("out=%q", out)
	}
	if tool.callCount() != 1 || tool.calls[0] != `{"query":"refund"}` {
		t.Fatalf("calls=%v", tool.calls)
	}
	if len(gs.paths) != 2 || !strings.Contains(gs.paths[0], "gemini-2.0-flash:generateContent") {
		t.Fatalf("paths=%v", gs.paths)
	}
	if _, ok := gs.requests[0]["systemInstruction"]; !ok {
		t.Fatalf("expected systemInstruction in request")
	}
	contents := gs.requests[1]["contents"].([]any)
	if len(contents) != 3 {
		t.Fatalf("len(contents)=%d, want 3", len(contents))
	}
}

func TestNewGemini_RequiresKey(t *testing.T) {
	if _, err := NewGemini(context.Background(), GeminiConfig{}); err == nil {
		t.Fatalf("expected error")
	}
}
