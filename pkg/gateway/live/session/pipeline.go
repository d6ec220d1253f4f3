package session

import (
	"bytes"
	"context"
	"net/http"
	"strings"

	"github.com/manasdhir/Voice-Bot/pkg/core"
	"github.com/manasdhir/Voice-Bot/pkg/core/llm"
	"github.com/manasdhir/Voice-Bot/pkg/core/types"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/stt"
	"github.com/manasdhir/Voice-Bot/pkg/core/voice/tts"
	"github.com/manasdhir/Voice-Bot/pkg/gateway/live/protocol"
	"github.com/manasdhir/Voice-Bot/pkg/persona"
	"github.com/manasdhir/Voice-Bot/pkg/sanitize"
)

// greet speaks first: connection_successful followed by the greeting audio.
func (c *Controller) greet(ctx context.Context, turnID int64) error {
	c.mu.Lock()
	tools := c.tools
	c.mu.Unlock()

	text, err := c.engine.Generate(ctx, c.history.with(types.HumanMessage(greetingInstruction)), tools)
	if err != nil {
		if c.aborted(turnID) {
			return nil
		}
		c.log().Warn("greeting generation failed", "op", "greeting_generate", "error", err)
		text = greetingFallback
	}
	text = sanitize.Markdown(text)
	if text == "" {
		text = greetingFallback
	}

	stream, err := tts.Open(ctx, c.tts, text, c.synthesisOptions())
	if err == nil && ctx.Err() != nil {
		stream.Close()
		err = ctx.Err()
	}
	if err != nil {
		if c.aborted(turnID) {
			return nil
		}
		err = core.NewSynthesisError("greeting synthesis failed", err)
		c.log().Warn("greeting synthesis failed", "op", "greeting_synthesize", "error", err)
		if sendErr := c.sendJSON(turnID, protocol.ConnectionSuccessful(c.SessionID())); sendErr != nil {
			return sendErr
		}
		return c.sendError(turnID, "synthesis failed: "+err.Error())
	}
	defer stream.Close()

	if err := c.sendJSON(turnID, protocol.ConnectionSuccessful(c.SessionID())); err != nil {
		return err
	}
	if err := c.streamAudio(ctx, turnID, stream); err != nil {
		if c.aborted(turnID) || core.IsType(err, core.ErrTransport) {
			return err
		}
		c.log().Warn("greeting synthesis failed", "op", "greeting_stream", "error", err)
		return c.sendError(turnID, "synthesis failed: "+err.Error())
	}
	return nil
}

// runTurn answers one utterance: transcribe, generate, speak.
func (c *Controller) runTurn(ctx context.Context, turnID int64, audio []byte, langHint string) error {
	c.mu.Lock()
	tools := c.tools
	c.mu.Unlock()

	filename, mimeType := audioFile(audio)
	transcript, err := c.stt.Transcribe(ctx, bytes.NewReader(audio), stt.TranscribeOptions{
		Language: c.transcriptionLanguage(langHint),
		Filename: filename,
		MIMEType: mimeType,
	})
	if err == nil && strings.TrimSpace(transcript.Text) == "" {
		err = core.NewTranscriptionError("empty transcript", nil)
	}
	if err != nil {
		return c.turnFailed(ctx, turnID, "transcribe", "transcription failed", err)
	}
	text := strings.TrimSpace(transcript.Text)
	if err := c.sendJSON(turnID, protocol.Transcription(text)); err != nil {
		return err
	}

	history := c.history.appendHuman(text)
	reply, err := c.engine.Generate(ctx, history, tools)
	if err != nil {
		c.history.rollbackHuman()
		return c.turnFailed(ctx, turnID, "generate", "generation failed", err)
	}
	reply = sanitize.Markdown(reply)
	if reply == "" {
		c.history.rollbackHuman()
		return c.turnFailed(ctx, turnID, "generate", "generation failed", core.NewGenerationError("empty response", llm.ErrEmptyResponse))
	}
	c.history.appendAssistant(reply)
	if err := c.sendJSON(turnID, protocol.LLMResponse(reply)); err != nil {
		return err
	}

	stream, err := tts.Open(ctx, c.tts, reply, c.synthesisOptions())
	if err != nil {
		return c.turnFailed(ctx, turnID, "synthesize", "synthesis failed", core.NewSynthesisError("open synthesis", err))
	}
	defer stream.Close()

	if err := c.sendJSON(turnID, protocol.TTSStart()); err != nil {
		return err
	}
	streamErr := c.streamAudio(ctx, turnID, stream)
	if streamErr != nil && (c.aborted(turnID) || core.IsType(streamErr, core.ErrTransport)) {
		return streamErr
	}
	if err := c.sendJSON(turnID, protocol.TTSEnd()); err != nil {
		return err
	}
	if streamErr != nil {
		return c.turnFailed(ctx, turnID, "synthesize", "synthesis failed", streamErr)
	}
	return nil
}

// turnFailed reports a turn error to the client. Nothing is sent once the
// turn has been aborted; a turn that ran out of time is reported like any
// other failure.
func (c *Controller) turnFailed(ctx context.Context, turnID int64, op, prefix string, err error) error {
	if c.aborted(turnID) {
		c.log().Info("turn aborted", "op", op, "error", ctx.Err())
		return nil
	}
	c.log().Warn("turn failed", "op", op, "error_type", string(core.TypeOf(err)), "error", err)
	return c.sendError(turnID, prefix+": "+err.Error())
}

func (c *Controller) streamAudio(ctx context.Context, turnID int64, stream *tts.SynthesisStream) error {
	for {
		select {
		case <-ctx.Done():
			return core.NewSynthesisError("stream synthesis", ctx.Err())
		case chunk, ok := <-stream.Chunks():
			if !ok {
				if err := stream.Err(); err != nil {
					return core.NewSynthesisError("stream synthesis", err)
				}
				return nil
			}
			if len(chunk) == 0 {
				continue
			}
			if err := c.sendBinary(turnID, chunk); err != nil {
				return err
			}
		}
	}
}

// aborted reports whether the turn was ended by the client or the session
// rather than by its own deadline.
func (c *Controller) aborted(turnID int64) bool {
	return c.ctx.Err() != nil || c.isTurnCanceled(turnID)
}

// transcriptionLanguage prefers the configured language of an identified
// session over the per-turn hint.
func (c *Controller) transcriptionLanguage(hint string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == ModeIdentified && c.runtime.Language != "" {
		return c.runtime.Language
	}
	return protocol.NormalizeLang(hint)
}

func (c *Controller) synthesisOptions() tts.SynthesizeOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	opts := tts.SynthesizeOptions{
		Voice:    persona.DefaultVoice,
		Language: persona.DefaultLanguage,
		Format:   c.cfg.TTSFormat,
	}
	if c.mode == ModeIdentified {
		if c.runtime.Voice != "" {
			opts.Voice = c.runtime.Voice
		}
		if c.runtime.Language != "" {
			opts.Language = c.runtime.Language
		}
	}
	return opts
}

// audioFile picks an upload filename and content type from the payload.
// Browsers record webm/opus, which is also the fallback.
func audioFile(audio []byte) (string, string) {
	switch ct := http.DetectContentType(audio); {
	case strings.HasPrefix(ct, "audio/wave"):
		return "audio.wav", "audio/wav"
	case strings.HasPrefix(ct, "audio/mpeg"):
		return "audio.mp3", "audio/mpeg"
	case strings.HasPrefix(ct, "application/ogg"), strings.HasPrefix(ct, "audio/ogg"):
		return "audio.ogg", "audio/ogg"
	case strings.HasPrefix(ct, "audio/mp4"), strings.HasPrefix(ct, "video/mp4"):
		return "audio.mp4", "audio/mp4"
	default:
		return "audio.webm", "audio/webm"
	}
}
