package session

import (
	"sync"

	"github.com/manasdhir/Voice-Bot/pkg/core/types"
)

// historyManager holds the conversation of one session. Only the
// session's own task mutates it; the mutex guards reads from accessors.
type historyManager struct {
	mu      sync.Mutex
	msgs    []types.Message
	pending bool // trailing human message awaits its reply
}

func newHistoryManager() *historyManager {
	return &historyManager{msgs: make([]types.Message, 0, 16)}
}

// reset replaces the history wholesale. Only used at session start.
func (h *historyManager) reset(system string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = h.msgs[:0]
	h.pending = false
	if system != "" {
		h.msgs = append(h.msgs, types.SystemMessage(system))
	}
}

// appendHuman appends a pending human message and returns the history
// including it.
func (h *historyManager) appendHuman(text string) []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, types.HumanMessage(text))
	h.pending = true
	return h.snapshotLocked()
}

// rollbackHuman drops the pending human message.
func (h *historyManager) rollbackHuman() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.pending {
		return
	}
	h.msgs = h.msgs[:len(h.msgs)-1]
	h.pending = false
}

func (h *historyManager) appendAssistant(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, types.AssistantMessage(text))
	h.pending = false
}

func (h *historyManager) snapshot() []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

// with returns the history followed by extra, without recording extra.
func (h *historyManager) with(extra types.Message) []types.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]types.Message, len(h.msgs), len(h.msgs)+1)
	copy(out, h.msgs)
	return append(out, extra)
}

func (h *historyManager) snapshotLocked() []types.Message {
	out := make([]types.Message, len(h.msgs))
	copy(out, h.msgs)
	return out
}
