package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/manasdhir/Voice-Bot/pkg/core"
	"github.com/manasdhir/Voice-Bot/pkg/core/llm"
	"github.com/manasdhir/Voice-Bot/pkg/core/types"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/stt"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/tts"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/protocol"
	"github.com/manasdhir/Voice-Bot/pkg/persona"
	"github.com/manasdhir/Voice-Bot/pkg/rag"
)

const (
	greetingInstruction = "Greet the user and briefly introduce yourself in one or two sentences, then ask how you can help."
	greetingFallback    = "Hello! How can I help you today?"
	summaryInstruction  = "Summarize this whole conversation in one short paragraph. Keep the user's needs, preferences and any facts they shared so the conversation can be picked up later."

	outboundPriorityQueueSize = 8
	maxQueuedFrames           = 32
)

var errBackpressure = errors.New("live outbound backpressure")

// Conn is the websocket surface a session needs. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// ConfigResolver resolves the runtime configuration of an identity.
type ConfigResolver interface {
	Resolve(ctx context.Context, identity string) (persona.RuntimeConfig, error)
}

// SummaryWriter persists the teardown summary of an identified session.
type SummaryWriter interface {
	Upsert(ctx context.Context, s persona.Summary) error
}

// SearchTools builds the retrieval tool bound to one scope. It may return
// nil when retrieval is not configured.
type SearchTools func(scope rag.Scope) llm.Tool

type Config struct {
	HandshakeTimeout  time.Duration
	TurnTimeout       time.Duration
	SummaryTimeout    time.Duration
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	ReadTimeout       time.Duration
	MaxAudioBytes     int
	MaxJSONBytes      int
	OutboundQueueSize int
	TTSFormat         string
}

type Dependencies struct {
	Conn         Conn
	Logger       *slog.Logger
	STT          stt.Provider
	Engine       llm.Engine
	TTS          tts.Provider
	Resolver     ConfigResolver
	Summaries    SummaryWriter
	SearchTools  SearchTools
	RequestID    string
	Config       Config
	NewSessionID func() string
}

// Controller owns one voice connection from handshake to close.
type Controller struct {
	conn        Conn
	logger      *slog.Logger
	stt         stt.Provider
	engine      llm.Engine
	tts         tts.Provider
	resolver    ConfigResolver
	summaries   SummaryWriter
	searchTools SearchTools
	requestID   string
	cfg         Config
	newID       func() string

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	state        atomic.Int32
	turnCounter  atomic.Int64
	canceledTurn atomic.Int64

	history *historyManager

	mu        sync.Mutex
	mode      Mode
	sessionID string
	fallback  FallbackReason
	runtime   persona.RuntimeConfig
	tools     []llm.Tool
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

// turnRun is one in-flight greeting or conversational turn.
type turnRun struct {
	id     int64
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func New(deps Dependencies) (*Controller, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	if deps.STT == nil {
		return nil, fmt.Errorf("stt provider is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("generation engine is required")
	}
	if deps.TTS == nil {
		return nil, fmt.Errorf("tts provider is required")
	}
	if deps.Resolver == nil {
		return nil, fmt.Errorf("config resolver is required")
	}
	if deps.Summaries == nil {
		return nil, fmt.Errorf("summary writer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.NewSessionID == nil {
		deps.NewSessionID = uuid.NewString
	}
	if deps.Config.HandshakeTimeout <= 0 {
		deps.Config.HandshakeTimeout = 10 * time.Second
	}
	if deps.Config.SummaryTimeout <= 0 {
		deps.Config.SummaryTimeout = 30 * time.Second
	}
	if deps.Config.WriteTimeout <= 0 {
		deps.Config.WriteTimeout = 5 * time.Second
	}
	if deps.Config.MaxAudioBytes <= 0 {
		deps.Config.MaxAudioBytes = 10 << 20
	}
	if deps.Config.MaxJSONBytes <= 0 {
		deps.Config.MaxJSONBytes = 64 << 10
	}
	if deps.Config.OutboundQueueSize <= 0 {
		deps.Config.OutboundQueueSize = 128
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		conn:             deps.Conn,
		logger:           deps.Logger,
		stt:              deps.STT,
		engine:           deps.Engine,
		tts:              deps.TTS,
		resolver:         deps.Resolver,
		summaries:        deps.Summaries,
		searchTools:      deps.SearchTools,
		requestID:        deps.RequestID,
		cfg:              deps.Config,
		newID:            deps.NewSessionID,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, outboundPriorityQueueSize),
		outboundNormal:   make(chan outboundFrame, deps.Config.OutboundQueueSize),
		history:          newHistoryManager(),
		mode:             ModeAnonymous,
	}
	c.state.Store(int32(StateHandshake))
	return c, nil
}

// Run drives the session until the client ends the call, the connection
// drops or Cancel is called. The summary of an identified session is
// written before Run returns.
func (c *Controller) Run() error {
	defer c.cancel()

	readLimit := c.cfg.MaxAudioBytes
	if c.cfg.MaxJSONBytes > readLimit {
		readLimit = c.cfg.MaxJSONBytes
	}
	c.conn.SetReadLimit(int64(readLimit))
	if c.cfg.ReadTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go c.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:         c.conn,
			ctx:        c.ctx,
			cfg:        c.cfg,
			priority:   c.outboundPriority,
			normal:     c.outboundNormal,
			isCanceled: c.isTurnCanceled,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	var writerErr error
	flushAndClose := func() {
		c.cancel()
		wait := 250 * time.Millisecond
		if c.cfg.WriteTimeout < wait {
			wait = c.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case err, ok := <-writerErrCh:
			if ok && writerErr == nil {
				writerErr = err
			}
		case <-timer.C:
		}
	}

	replay, ended := c.handshake(readCh)
	c.configure()

	if !ended {
		err := c.listen(readCh, writerErrCh, replay)
		if err != nil {
			writerErr = err
		}
	}

	c.teardown()
	flushAndClose()
	c.setState(StateClosed)
	c.log().Info("live session closed", "history_len", len(c.history.snapshot()))
	return writerErr
}

// handshake waits for the first frame. It returns frames that must be
// handled as regular turn input and whether the session already ended.
func (c *Controller) handshake(readCh <-chan inboundFrame) ([]inboundFrame, bool) {
	timer := time.NewTimer(c.cfg.HandshakeTimeout)
	defer timer.Stop()

	var f inboundFrame
	select {
	case frame, ok := <-readCh:
		if !ok {
			c.fallBack(FallbackMissingIdentity, "connection closed before handshake")
			return nil, true
		}
		f = frame
	case <-timer.C:
		c.fallBack(FallbackMissingIdentity, "handshake timeout")
		return nil, false
	case <-c.ctx.Done():
		c.fallBack(FallbackMissingIdentity, "session canceled before handshake")
		return nil, true
	}

	if f.err != nil {
		c.fallBack(FallbackMissingIdentity, "handshake read failed: "+f.err.Error())
		return nil, true
	}
	if f.messageType == websocket.BinaryMessage {
		c.fallBack(FallbackMissingIdentity, "binary first frame")
		return []inboundFrame{f}, false
	}

	msg, err := protocol.DecodeClientMessage(f.data)
	if err != nil {
		c.fallBack(FallbackMissingIdentity, "invalid handshake: "+err.Error())
		return nil, false
	}
	switch m := msg.(type) {
	case protocol.Handshake:
		if m.UserID == "" {
			c.fallBack(FallbackMissingIdentity, "handshake without user_id")
			return nil, false
		}
		c.mu.Lock()
		c.mode = ModeIdentified
		c.sessionID = m.UserID
		c.mu.Unlock()
		return nil, false
	case protocol.EndCall:
		c.fallBack(FallbackMissingIdentity, "end_call before handshake")
		return nil, true
	case protocol.TurnHeader:
		c.fallBack(FallbackMissingIdentity, "turn header before handshake")
		return []inboundFrame{f}, false
	}
	c.fallBack(FallbackMissingIdentity, "unrecognized handshake")
	return nil, false
}

// configure resolves the runtime configuration of an identified session and
// seeds the history. A resolution failure degrades to anonymous.
func (c *Controller) configure() {
	c.setState(StateConfiguring)

	if c.Mode() == ModeIdentified {
		identity := c.SessionID()
		rc, err := c.resolver.Resolve(c.ctx, identity)
		if err != nil {
			c.log().Warn("runtime config resolution failed", "op", "resolve", "error", err)
			c.mu.Lock()
			c.mode = ModeAnonymous
			c.sessionID = ""
			c.mu.Unlock()
			c.fallBack(FallbackConfigFetchFailed, "config fetch failed")
		} else {
			var tools []llm.Tool
			if rc.HasKnowledgeBase() && c.searchTools != nil {
				if t := c.searchTools(rag.Scope{Identity: rc.Identity, Collection: rc.KnowledgeBase}); t != nil {
					tools = append(tools, t)
				}
			}
			if len(tools) > 0 {
				rc.SystemPrompt = persona.WithRetrieval(rc.SystemPrompt)
			}
			c.mu.Lock()
			c.runtime = rc
			c.tools = tools
			c.mu.Unlock()
			c.history.reset(rc.SystemPrompt)
			c.log().Info("live session configured",
				"persona_id", rc.PersonaID,
				"persona_source", string(rc.Source),
				"language", rc.Language,
				"knowledge_base", rc.KnowledgeBase,
				"retrieval", len(tools) > 0,
			)
			return
		}
	}

	c.mu.Lock()
	if c.sessionID == "" {
		c.sessionID = c.newID()
	}
	c.mu.Unlock()
	c.history.reset(persona.DefaultSystemPrompt)
	c.log().Info("live session configured", "fallback_reason", string(c.FallbackReason()))
}

func (c *Controller) fallBack(reason FallbackReason, cause string) {
	c.mu.Lock()
	c.mode = ModeAnonymous
	c.fallback = reason
	c.mu.Unlock()
	c.log().Info("anonymous fallback", "reason", string(reason), "cause", cause)
}

// listen greets the user and then serves turns until the session ends.
func (c *Controller) listen(readCh <-chan inboundFrame, writerErrCh <-chan error, replay []inboundFrame) error {
	c.setState(StateGreeting)
	active := c.startTurn(c.greet)

	queue := append([]inboundFrame(nil), replay...)
	lang := ""

	for {
		if active == nil {
			c.setState(StateListening)
			for active == nil && len(queue) > 0 {
				f := queue[0]
				queue = queue[1:]
				var end bool
				active, end = c.handleFrame(f, &lang)
				if end {
					return nil
				}
			}
		}

		var done <-chan struct{}
		if active != nil {
			done = active.done
		}

		select {
		case <-c.ctx.Done():
			c.abortTurn(active)
			return nil

		case err, ok := <-writerErrCh:
			c.abortTurn(active)
			if ok && err != nil {
				c.log().Warn("live writer failed", "op", "write", "error", err)
				return core.Wrap(core.ErrTransport, "write", err)
			}
			return nil

		case <-done:
			err := active.err
			active = nil
			if err != nil && core.IsType(err, core.ErrTransport) {
				c.log().Warn("turn hit transport failure", "op", "send", "error", err)
				return nil
			}

		case f, ok := <-readCh:
			if !ok {
				c.abortTurn(active)
				return nil
			}
			if f.err != nil {
				c.abortTurn(active)
				c.logReadError(f.err)
				return nil
			}
			if isEndCall(f) {
				c.abortTurn(active)
				c.log().Info("end_call received")
				return nil
			}
			if active != nil {
				if len(queue) >= maxQueuedFrames {
					c.log().Warn("dropping inbound frame while turn is in flight", "queued", len(queue))
					continue
				}
				queue = append(queue, f)
				continue
			}
			var end bool
			active, end = c.handleFrame(f, &lang)
			if end {
				return nil
			}
		}
	}
}

// handleFrame processes one frame while no turn is in flight. It returns
// the turn it started, if any, and whether the session should end.
func (c *Controller) handleFrame(f inboundFrame, lang *string) (*turnRun, bool) {
	if f.messageType == websocket.BinaryMessage {
		if len(f.data) == 0 {
			_ = c.sendError(0, "empty audio frame")
			return nil, false
		}
		if len(f.data) > c.cfg.MaxAudioBytes {
			_ = c.sendError(0, fmt.Sprintf("audio frame exceeds %d bytes", c.cfg.MaxAudioBytes))
			return nil, false
		}
		audio := f.data
		hint := *lang
		*lang = ""
		c.setState(StateProcessing)
		return c.startTurn(func(ctx context.Context, turnID int64) error {
			return c.runTurn(ctx, turnID, audio, hint)
		}), false
	}

	if len(f.data) > c.cfg.MaxJSONBytes {
		_ = c.sendError(0, fmt.Sprintf("message exceeds %d bytes", c.cfg.MaxJSONBytes))
		return nil, false
	}
	msg, err := protocol.DecodeClientMessage(f.data)
	if err != nil {
		_ = c.sendError(0, "invalid message: "+err.Error())
		return nil, false
	}
	switch m := msg.(type) {
	case protocol.EndCall:
		return nil, true
	case protocol.TurnHeader:
		*lang = m.Lang
	case protocol.Handshake:
		c.log().Debug("ignoring repeated handshake")
	}
	return nil, false
}

func isEndCall(f inboundFrame) bool {
	if f.messageType != websocket.TextMessage {
		return false
	}
	msg, err := protocol.DecodeClientMessage(f.data)
	if err != nil {
		return false
	}
	_, ok := msg.(protocol.EndCall)
	return ok
}

func (c *Controller) logReadError(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		c.log().Info("client disconnected")
		return
	}
	c.log().Warn("live read failed", "op", "read", "error", core.Wrap(core.ErrTransport, "read", err))
}

func (c *Controller) startTurn(fn func(ctx context.Context, turnID int64) error) *turnRun {
	id := c.turnCounter.Add(1)
	ctx, cancel := c.newTurnContext()
	t := &turnRun{id: id, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.err = fn(ctx, id)
	}()
	return t
}

// abortTurn cancels t, drops its queued frames and waits for it to return.
func (c *Controller) abortTurn(t *turnRun) {
	if t == nil {
		return
	}
	c.canceledTurn.Store(t.id)
	t.cancel()
	<-t.done
}

func (c *Controller) isTurnCanceled(turnID int64) bool {
	return turnID != 0 && c.canceledTurn.Load() == turnID
}

func (c *Controller) newTurnContext() (context.Context, context.CancelFunc) {
	if c.cfg.TurnTimeout > 0 {
		return context.WithTimeout(c.ctx, c.cfg.TurnTimeout)
	}
	return context.WithCancel(c.ctx)
}

// teardown writes the summary of an identified session. It runs on its own
// context so a canceled session still gets its summary.
func (c *Controller) teardown() {
	c.setState(StateTeardown)
	if c.Mode() != ModeIdentified {
		return
	}

	c.mu.Lock()
	rc := c.runtime
	c.mu.Unlock()

	genCtx, cancel := context.WithTimeout(context.Background(), c.cfg.SummaryTimeout)
	defer cancel()
	text, err := c.engine.Generate(genCtx, c.history.with(types.HumanMessage(summaryInstruction)), nil)
	if err != nil {
		c.log().Warn("session summary generation failed", "op", "summary_generate", "error", core.Wrap(core.ErrSummary, "generate", err))
		return
	}

	err = c.summaries.Upsert(context.Background(), persona.Summary{
		Identity:  rc.Identity,
		PersonaID: rc.PersonaID,
		Source:    rc.Source,
		Text:      text,
	})
	if err != nil {
		c.log().Warn("session summary write failed", "op", "summary_upsert", "error", err)
		return
	}
	c.log().Info("session summary saved", "persona_id", rc.PersonaID)
}

func (c *Controller) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-c.ctx.Done():
			}
			return
		}
		if c.cfg.ReadTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) sendJSON(turnID int64, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueueNormal(outboundFrame{turnID: turnID, textPayload: payload})
}

func (c *Controller) sendBinary(turnID int64, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return c.enqueueNormal(outboundFrame{turnID: turnID, binaryPayload: buf})
}

func (c *Controller) sendError(turnID int64, detail string) error {
	return c.sendJSON(turnID, protocol.Error(detail))
}

func (c *Controller) sendWarning(code, message string) error {
	payload, err := json.Marshal(protocol.Warning(code, message))
	if err != nil {
		return err
	}
	return c.enqueuePriority(outboundFrame{textPayload: payload})
}

// enqueueNormal waits up to the write timeout for queue space.
func (c *Controller) enqueueNormal(frame outboundFrame) error {
	if c.isTurnCanceled(frame.turnID) {
		return nil
	}
	select {
	case c.outboundNormal <- frame:
		return nil
	default:
	}
	timer := time.NewTimer(c.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case c.outboundNormal <- frame:
		return nil
	case <-timer.C:
		return core.Wrap(core.ErrTransport, "enqueue", errBackpressure)
	case <-c.ctx.Done():
		return core.Wrap(core.ErrTransport, "enqueue", c.ctx.Err())
	}
}

func (c *Controller) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case c.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-c.outboundPriority:
		default:
		}
	}
	select {
	case c.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (c *Controller) setState(s State) {
	prev := State(c.state.Swap(int32(s)))
	if prev != s {
		c.log().Debug("live session state", "from", prev.String(), "to", s.String())
	}
}

func (c *Controller) log() *slog.Logger {
	return c.logger.With(
		"request_id", c.requestID,
		"session_id", c.SessionID(),
		"state", c.State().String(),
	)
}

// Cancel ends the session. Run still writes the summary before returning.
func (c *Controller) Cancel() {
	if c == nil || c.cancel == nil {
		return
	}
	c.cancel()
}

// SendWarning queues a warning ahead of regular frames.
func (c *Controller) SendWarning(code, message string) error {
	if c == nil {
		return nil
	}
	return c.sendWarning(code, message)
}

func (c *Controller) State() State {
	return State(c.state.Load())
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) FallbackReason() FallbackReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

// RuntimeConfig returns the configuration resolved at handshake. It is the
// zero value for anonymous sessions.
func (c *Controller) RuntimeConfig() persona.RuntimeConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runtime
}

// History returns a copy of the conversation so far.
func (c *Controller) History() []types.Message {
	return c.history.snapshot()
}
