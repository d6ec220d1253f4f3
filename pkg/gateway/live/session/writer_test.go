package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error { return nil }

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	normal <- outboundFrame{turnID: 1, textPayload: []byte(`{"type":"llm_response","text":"hi"}`)}
	priority <- outboundFrame{textPayload: []byte(`{"type":"warning","code":"server_draining","message":"bye"}`)}
	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d: %+v", len(writes), writes)
	}
	if !strings.Contains(writes[0].data, `"type":"warning"`) {
		t.Fatalf("first write was not the warning: %q", writes[0].data)
	}
}

func TestOutboundWriter_CanceledTurnDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{turnID: 3, textPayload: []byte(`{"type":"tts_start"}`)}
	normal <- outboundFrame{turnID: 3, binaryPayload: []byte{0x01, 0x02}}
	normal <- outboundFrame{turnID: 3, textPayload: []byte(`{"type":"tts_end"}`)}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		isCanceled: func(id int64) bool {
			return id == 3
		},
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if writes := ws.snapshot(); len(writes) != 0 {
		t.Fatalf("expected zero writes, got %d: %+v", len(writes), writes)
	}
}

func TestOutboundWriter_UntaggedFramesUnaffectedByCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{textPayload: []byte(`{"type":"error","detail":"invalid message"}`)}
	normal <- outboundFrame{turnID: 2, textPayload: []byte(`{"type":"transcription","text":"hello"}`)}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
		isCanceled: func(id int64) bool {
			return id == 1
		},
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	writes := ws.snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d: %+v", len(writes), writes)
	}
}

func TestOutboundWriter_BinaryFrameType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 2)

	normal <- outboundFrame{turnID: 1, textPayload: []byte(`{"type":"tts_start"}`)}
	normal <- outboundFrame{turnID: 1, binaryPayload: []byte{0x01, 0x02}}

	close(priority)
	close(normal)

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	writes := ws.snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d: %+v", len(writes), writes)
	}
	if writes[0].messageType != websocket.TextMessage {
		t.Fatalf("first write type=%d, want TextMessage", writes[0].messageType)
	}
	if writes[1].messageType != websocket.BinaryMessage {
		t.Fatalf("second write type=%d, want BinaryMessage", writes[1].messageType)
	}
}

func TestOutboundWriter_FlushesQueuedFramesOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	priority <- outboundFrame{textPayload: []byte(`{"type":"warning","code":"server_draining","message":"bye"}`)}
	normal <- outboundFrame{textPayload: []byte(`{"type":"error","detail":"late"}`)}

	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:       ws,
		ctx:      ctx,
		cfg:      Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority: priority,
		normal:   normal,
	}

	cancel()
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	writes := ws.snapshot()
	if len(writes) != 3 {
		t.Fatalf("expected two flushed frames and a close frame, got %+v", writes)
	}
	if !strings.Contains(writes[0].data, `"type":"warning"`) || !strings.Contains(writes[1].data, `"detail":"late"`) {
		t.Fatalf("unexpected flush order: %+v", writes)
	}
	if writes[2].messageType != websocket.CloseMessage {
		t.Fatalf("last write type=%d, want CloseMessage", writes[2].messageType)
	}
}
