package cmdutils

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/crystaldolphin/genlayer/internal/schema"
	"github.com/crystaldolphin/genlayer/internal/shared/llmutils"
)

const logo = "🐬"

// PrintResponse writes a labelled block of text to w.
func PrintResponse(w io.Writer, label, text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(w, "\n%s %s\n%s\n\n", logo, label, text)
}

// PrintMessages renders the messages of a batch generation.
func PrintMessages(w io.Writer, label string, msgs []schema.Message, showThinking bool) {
	for _, m := range msgs {
		switch m.Type {
		case schema.MsgThinking:
			if showThinking {
				fmt.Fprintf(w, "  ↳ thinking: %s\n", llmutils.Truncate(m.Content, 200))
			}
		case schema.MsgSaying:
			text := m.Content
			if !showThinking {
				text = llmutils.StripThink(text)
			}
			PrintResponse(w, label, strings.TrimSpace(text))
		case schema.MsgFuncCall:
			fmt.Fprintf(w, "  ↳ tool call %s: %s\n", m.ID, llmutils.CallHint(m.Name, m.Arguments))
		}
	}
}

// ConsoleReceiver prints a streaming generation as it arrives and records
// the resulting messages. Output of concurrent receivers sharing one writer
// is serialized per chunk.
type ConsoleReceiver struct {
	Label        string
	Genseq       int
	ShowThinking bool

	out *lockedWriter

	thinking strings.Builder
	saying   strings.Builder
	messages []schema.Message
	anomaly  []string
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) printf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, format, args...)
}

// NewConsoleReceivers returns n receivers writing to w.
func NewConsoleReceivers(w io.Writer, n int, genseq int, showThinking bool) []*ConsoleReceiver {
	out := &lockedWriter{w: w}
	rs := make([]*ConsoleReceiver, n)
	for i := range rs {
		label := "genlayer"
		if n > 1 {
			label = fmt.Sprintf("genlayer #%d", i+1)
		}
		rs[i] = &ConsoleReceiver{Label: label, Genseq: genseq, ShowThinking: showThinking, out: out}
	}
	return rs
}

func (r *ConsoleReceiver) ThinkingStart() error {
	r.thinking.Reset()
	if r.ShowThinking {
		r.out.printf("  ↳ [%s] thinking...\n", r.Label)
	}
	return nil
}

func (r *ConsoleReceiver) ThinkingChunk(chunk string) error {
	r.thinking.WriteString(chunk)
	return nil
}

func (r *ConsoleReceiver) ThinkingFinish(data *schema.ProviderData) error {
	text := r.thinking.String()
	if r.ShowThinking && text != "" {
		r.out.printf("  ↳ [%s] thought: %s\n", r.Label, llmutils.Truncate(text, 200))
	}
	r.messages = append(r.messages, schema.NewThinkingMessage(r.Genseq, text, data))
	return nil
}

func (r *ConsoleReceiver) SayingStart() error {
	r.saying.Reset()
	return nil
}

func (r *ConsoleReceiver) SayingChunk(chunk string) error {
	r.saying.WriteString(chunk)
	return nil
}

func (r *ConsoleReceiver) SayingFinish() error {
	text := r.saying.String()
	shown := text
	if !r.ShowThinking {
		// Some compatible models inline their reasoning in the answer.
		shown = strings.TrimSpace(llmutils.StripThink(text))
	}
	if shown != "" {
		r.out.printf("\n%s %s\n%s\n\n", logo, r.Label, shown)
	}
	r.messages = append(r.messages, schema.NewSayingMessage(r.Genseq, text))
	return nil
}

func (r *ConsoleReceiver) FuncCall(id, name, arguments string) error {
	return r.FuncCallWithData(id, name, arguments, nil)
}

func (r *ConsoleReceiver) FuncCallWithData(id, name, arguments string, data *schema.ProviderData) error {
	r.out.printf("  ↳ [%s] tool call %s: %s\n", r.Label, id, llmutils.CallHint(name, arguments))
	msg := schema.NewFuncCallMessage(r.Genseq, id, name, arguments)
	msg.ProviderData = data
	r.messages = append(r.messages, msg)
	return nil
}

func (r *ConsoleReceiver) StreamError(detail string) {
	r.anomaly = append(r.anomaly, detail)
	r.out.printf("  ! [%s] stream anomaly: %s\n", r.Label, detail)
}

// Messages returns the messages reconstructed from the stream.
func (r *ConsoleReceiver) Messages() []schema.Message { return r.messages }

// Anomalies returns the stream anomalies reported during generation.
func (r *ConsoleReceiver) Anomalies() []string { return r.anomaly }
