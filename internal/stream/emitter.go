package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/drawgate/api/internal/openai"
)

// State tracks the emitter's position in the per-request protocol.
// Transitions are strictly forward:
// Announced → Generating → PartialResults* → Completed.
type State int

const (
	StateInitial State = iota
	StateAnnounced
	StateGenerating
	StatePartialResults
	StateCompleted
)

const fingerprint = "fp_default"

// Emitter converts progressive generation outcomes into an ordered sequence
// of OpenAI-compatible SSE chunks. Status chunks (announce, generating) are
// always emitted before any per-image chunk.
type Emitter struct {
	w       io.Writer
	flusher http.Flusher
	id      string
	model   string
	created int64
	state   State
}

// NewEmitter creates an emitter writing to w. If w implements http.Flusher
// every frame is flushed immediately so clients see progress in real time.
func NewEmitter(w io.Writer, id, model string, created time.Time) *Emitter {
	e := &Emitter{
		w:       w,
		id:      id,
		model:   model,
		created: created.Unix(),
		state:   StateInitial,
	}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// State returns the emitter's current protocol state.
func (e *Emitter) State() State {
	return e.state
}

// Announce emits the role chunk and the prompt-received announcement. It
// must be the first call on the emitter.
func (e *Emitter) Announce(prompt string, count int) error {
	if e.state != StateInitial {
		return fmt.Errorf("announce called in state %d", e.state)
	}
	if err := e.writeChunk(openai.Delta{Role: "assistant"}, nil); err != nil {
		return err
	}
	announcement := fmt.Sprintf("```\n{\n  \"prompt\":\"%s\",\n  \"count\":%d\n}\n```\n", prompt, count)
	if err := e.writeChunk(openai.Delta{Content: announcement}, nil); err != nil {
		return err
	}
	e.state = StateAnnounced
	return nil
}

// Generating emits the in-progress status chunk and moves to Generating.
func (e *Emitter) Generating(count int) error {
	if e.state != StateAnnounced {
		return fmt.Errorf("generating called in state %d", e.state)
	}
	if err := e.writeChunk(openai.Delta{Content: fmt.Sprintf("> 正在生成 %d 张图片...", count)}, nil); err != nil {
		return err
	}
	e.state = StateGenerating
	return nil
}

// Result emits one per-image result chunk (success or failure text).
func (e *Emitter) Result(content string) error {
	if e.state != StateGenerating && e.state != StatePartialResults {
		return fmt.Errorf("result called in state %d", e.state)
	}
	if err := e.writeChunk(openai.Delta{Content: content}, nil); err != nil {
		return err
	}
	e.state = StatePartialResults
	return nil
}

// Complete emits the summary chunk, the stop chunk and the [DONE] sentinel,
// then moves to Completed. No further frames may be written.
func (e *Emitter) Complete(count int) error {
	if e.state == StateCompleted {
		return fmt.Errorf("complete called twice")
	}
	if err := e.writeChunk(openai.Delta{Content: fmt.Sprintf("\n\n所有 %d 张图片处理完成。", count)}, nil); err != nil {
		return err
	}
	stop := "stop"
	if err := e.writeChunk(openai.Delta{}, &stop); err != nil {
		return err
	}
	if err := e.writeRaw("data: [DONE]\n\n"); err != nil {
		return err
	}
	e.state = StateCompleted
	return nil
}

// Text streams arbitrary assistant text (used for policy rejections, which
// bypass generation entirely): role chunk, content, stop chunk, [DONE].
func (e *Emitter) Text(content string) error {
	if e.state != StateInitial {
		return fmt.Errorf("text called in state %d", e.state)
	}
	if err := e.writeChunk(openai.Delta{Role: "assistant"}, nil); err != nil {
		return err
	}
	if err := e.writeChunk(openai.Delta{Content: content}, nil); err != nil {
		return err
	}
	stop := "stop"
	if err := e.writeChunk(openai.Delta{}, &stop); err != nil {
		return err
	}
	if err := e.writeRaw("data: [DONE]\n\n"); err != nil {
		return err
	}
	e.state = StateCompleted
	return nil
}

func (e *Emitter) writeChunk(delta openai.Delta, finishReason *string) error {
	chunk := openai.ChatCompletionChunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []openai.ChunkChoice{
			{Index: 0, Delta: delta, FinishReason: finishReason},
		},
		SystemFingerprint: fingerprint,
	}
	payload, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	return e.writeRaw("data: " + string(payload) + "\n\n")
}

func (e *Emitter) writeRaw(frame string) error {
	if _, err := io.WriteString(e.w, frame); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
