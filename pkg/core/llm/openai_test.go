package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/manasdhir/Voice-Bot/pkg/core"
	"github.com/manasdhir/Voice-Bot/pkg/core/types"
)

type chatServer struct {
	mu       sync.Mutex
	requests []map[string]any
	replies  []string
}

func (c *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	c.mu.Lock()
	idx := len(c.requests)
	c.requests = append(c.requests, body)
	c.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if idx >= len(c.replies) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"no more replies"}}`))
		return
	}
	_, _ = w.Write([]byte(c.replies[idx]))
}

const toolCallReply = `{"id":"c1","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_docs","arguments":"{\"query\":\"refund\"}"}}]}}]}`

func textReply(text string) string {
	b, _ := json.Marshal(text)
	return `{"id":"c2","object":"chat.completion","created":0,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":` + string(b) + `}}]}`
}

func TestOpenAI_GenerateWithoutTools(t *testing.T) {
	cs := &chatServer{replies: []string{textReply("  We offer a 30 day refund. ")}}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "test-model"})
	out, err := e.Generate(context.Background(), []types.Message{
		types.SystemMessage("be brief"),
		types.HumanMessage("What is the refund policy?"),
	}, nil)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out != "We offer a 30 day refund." {
		t.Fatalf("out=%q", out)
	}

	req := cs.requests[0]
	if req["model"] != "test-model" {
		t.Fatalf("model=%v", req["model"])
	}
	msgs := req["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("len(messages)=%d", len(msgs))
	}
	if msgs[0].(map[string]any)["role"] != "system" || msgs[1].(map[string]any)["role"] != "user" {
		t.Fatalf("roles=%v", msgs)
	}
	if _, ok := req["tools"]; ok {
		t.Fatalf("tools should be omitted when none are bound")
	}
}

func TestOpenAI_GenerateRunsToolLoop(t *testing.T) {
	cs := &chatServer{replies: []string{toolCallReply, textReply("Refunds take thirty days.")}}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	tool := &recordingTool{out: "[policy.pdf]\nRefunds within 30 days."}
	e := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	out, err := e.Generate(context.Background(), []types.Message{types.HumanMessage("refund?")}, []Tool{tool})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out != "Refunds take thirty days." {
		t.Fatalf("out=%q", out)
	}
	if tool.callCount() != 1 || tool.calls[0] != `{"query":"refund"}` {
		t.Fatalf("calls=%v", tool.calls)
	}
	if len(cs.requests) != 2 {
		t.Fatalf("requests=%d, want 2", len(cs.requests))
	}
	second := cs.requests[1]["messages"].([]any)
	last := second[len(second)-1].(map[string]any)
	if last["role"] != "tool" || last["tool_call_id"] != "call_1" {
		t.Fatalf("last message=%v", last)
	}
	if !strings.Contains(last["content"].(string), "Refunds within 30 days.") {
		t.Fatalf("tool content=%v", last["content"])
	}
}

func TestOpenAI_ToolRoundLimitForcesAnswer(t *testing.T) {
	cs := &chatServer{replies: []string{toolCallReply, textReply("done")}}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	tool := &recordingTool{out: "nothing"}
	e := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, MaxToolRounds: 1})
	out, err := e.Generate(context.Background(), []types.Message{types.HumanMessage("q")}, []Tool{tool})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if out != "done" {
		t.Fatalf("out=%q", out)
	}
	if _, ok := cs.requests[1]["tools"]; ok {
		t.Fatalf("tools should be withheld after the round limit")
	}
}

func TestOpenAI_RejectsMisplacedSystemMessage(t *testing.T) {
	e := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: "http://127.0.0.1:1"})
	_, err := e.Generate(context.Background(), []types.Message{
		types.HumanMessage("hi"),
		types.SystemMessage("late"),
	}, nil)
	if !core.IsType(err, core.ErrGeneration) {
		t.Fatalf("err=%v, want generation error", err)
	}
}

func TestOpenAI_UpstreamErrorIsGenerationError(t *testing.T) {
	cs := &chatServer{}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	e := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := e.Generate(context.Background(), []types.Message{types.HumanMessage("hi")}, nil)
	if !core.IsType(err, core.ErrGeneration) {
		t.Fatalf("err=%v, want generation error", err)
	}
}
