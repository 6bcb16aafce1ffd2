package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/genlayer/internal/schema"
)

// channelState is the active-channel register of a stream consumer.
type channelState int

const (
	channelIdle channelState = iota
	channelThinking
	channelSaying
	channelTool
)

func (c channelState) String() string {
	switch c {
	case channelThinking:
		return "thinking"
	case channelSaying:
		return "saying"
	case channelTool:
		return "tool"
	}
	return "idle"
}

// toolSlot buffers one tool call while its pieces arrive.
type toolSlot struct {
	index   int
	id      string
	name    string
	args    string
	data    *schema.ProviderData
	emitted bool
}

// streamState is the per-call accumulator every vendor stream consumer
// drives. It enforces the receiver contract: thinking and saying never
// overlap, every Start gets one Finish, and each tool call is emitted once.
type streamState struct {
	ctx      context.Context
	recv     schema.Receiver
	provider string
	genseq   int

	active  channelState
	toolKey string
	slots   map[string]*toolSlot
	order   []string

	usage schema.UsageStats
	model string
}

func newStreamState(ctx context.Context, recv schema.Receiver, provider string, genseq int) *streamState {
	return &streamState{
		ctx:      ctx,
		recv:     recv,
		provider: provider,
		genseq:   genseq,
		slots:    map[string]*toolSlot{},
		usage:    schema.NoUsage(),
	}
}

// runStream drives one SSE body through handle. The state is cleaned up on
// every exit path, and finish runs only when the body ended normally.
func runStream(
	ctx context.Context,
	recv schema.Receiver,
	provider string,
	genseq int,
	body io.Reader,
	handle func(st *streamState, f sseFrame) error,
) (schema.GenResult, error) {
	st := newStreamState(ctx, recv, provider, genseq)
	defer st.cleanup()

	err := readSSE(ctx, body, func(f sseFrame) error {
		return handle(st, f)
	})
	if errors.Is(err, errStreamDone) {
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return st.result(), abortError(ctx)
		}
		return st.result(), err
	}
	if err := st.checkAbort(); err != nil {
		return st.result(), err
	}
	if err := st.finish(); err != nil {
		return st.result(), err
	}
	return st.result(), nil
}

// errStreamDone stops readSSE at a vendor's explicit end-of-stream marker.
var errStreamDone = errors.New("stream done")

// checkAbort returns the abort error once the call's context is done.
func (s *streamState) checkAbort() error {
	if s.ctx.Err() != nil {
		return abortError(s.ctx)
	}
	return nil
}

func abortError(ctx context.Context) error {
	return fmt.Errorf("%w: %w", schema.ErrAborted, context.Cause(ctx))
}

func (s *streamState) violation(detail string) {
	slog.Warn("stream channel ordering violation", "provider", s.provider, "detail", detail)
	if n, ok := s.recv.(schema.StreamErrorNotifier); ok {
		n.StreamError(detail)
	}
}

func (s *streamState) openThinking() error {
	switch s.active {
	case channelThinking:
		return nil
	case channelSaying:
		s.violation("thinking started while saying was open")
		if err := s.closeSaying(); err != nil {
			return err
		}
	}
	if err := s.recv.ThinkingStart(); err != nil {
		return err
	}
	s.active = channelThinking
	return nil
}

func (s *streamState) thinkingChunk(chunk string) error {
	if err := s.openThinking(); err != nil {
		return err
	}
	if chunk == "" {
		return nil
	}
	return s.recv.ThinkingChunk(chunk)
}

// closeThinking finishes the thinking channel if it is open.
func (s *streamState) closeThinking(data *schema.ProviderData) error {
	if s.active != channelThinking {
		return nil
	}
	s.active = channelIdle
	return s.recv.ThinkingFinish(data)
}

func (s *streamState) openSaying() error {
	switch s.active {
	case channelSaying:
		return nil
	case channelThinking:
		s.violation("saying started while thinking was open")
		if err := s.closeThinking(nil); err != nil {
			return err
		}
	}
	if err := s.recv.SayingStart(); err != nil {
		return err
	}
	s.active = channelSaying
	return nil
}

func (s *streamState) sayingChunk(chunk string) error {
	if err := s.openSaying(); err != nil {
		return err
	}
	if chunk == "" {
		return nil
	}
	return s.recv.SayingChunk(chunk)
}

func (s *streamState) closeSaying() error {
	if s.active != channelSaying {
		return nil
	}
	s.active = channelIdle
	return s.recv.SayingFinish()
}

// closeNarration finishes whichever narration channel is open.
func (s *streamState) closeNarration() error {
	if err := s.closeThinking(nil); err != nil {
		return err
	}
	return s.closeSaying()
}

func (s *streamState) slot(key string) *toolSlot {
	if sl, ok := s.slots[key]; ok {
		return sl
	}
	sl := &toolSlot{index: len(s.order)}
	s.slots[key] = sl
	s.order = append(s.order, key)
	return sl
}

// beginTool moves the register to tool accumulation for the slot at key.
// id and name may be empty and filled in by later events.
func (s *streamState) beginTool(key, id, name string) error {
	if err := s.closeNarration(); err != nil {
		return err
	}
	sl := s.slot(key)
	if id != "" {
		sl.id = id
	}
	if name != "" {
		sl.name = name
	}
	s.active = channelTool
	s.toolKey = key
	return nil
}

// appendToolArgs feeds an argument delta into the slot at key.
func (s *streamState) appendToolArgs(key, chunk string) {
	sl := s.slot(key)
	sl.args = mergeToolArgs(sl.args, chunk)
}

// setToolArgs replaces the buffered arguments with an authoritative value.
func (s *streamState) setToolArgs(key, args string) {
	if args == "" {
		return
	}
	s.slot(key).args = args
}

// setToolData attaches vendor continuation data to the slot at key.
func (s *streamState) setToolData(key string, data *schema.ProviderData) {
	if data != nil {
		s.slot(key).data = data
	}
}

// completeTool emits the slot at key and leaves the tool register.
func (s *streamState) completeTool(key string) error {
	if s.active == channelTool && s.toolKey == key {
		s.active = channelIdle
		s.toolKey = ""
	}
	sl, ok := s.slots[key]
	if !ok {
		return nil
	}
	return s.emit(sl)
}

func (s *streamState) emit(sl *toolSlot) error {
	if sl.emitted || sl.name == "" {
		return nil
	}
	if sl.id == "" {
		sl.id = fmt.Sprintf("call_%d_%d", s.genseq, sl.index)
	}
	args, err := normalizeToolArgs(sl.name, sl.args)
	if err != nil {
		return err
	}
	sl.args = args
	sl.emitted = true
	if dr, ok := s.recv.(schema.FuncCallDataReceiver); ok && sl.data != nil {
		return dr.FuncCallWithData(sl.id, sl.name, args, sl.data)
	}
	return s.recv.FuncCall(sl.id, sl.name, args)
}

// flushTools emits every named slot that has not been emitted yet, for
// vendors that never signal per-call completion.
func (s *streamState) flushTools() error {
	for _, key := range s.order {
		if err := s.emit(s.slots[key]); err != nil {
			return err
		}
	}
	if s.active == channelTool {
		s.active = channelIdle
		s.toolKey = ""
	}
	return nil
}

// finish runs at normal end of stream.
func (s *streamState) finish() error {
	if err := s.closeNarration(); err != nil {
		return err
	}
	return s.flushTools()
}

// cleanup closes any narration channel still open. It is deferred by every
// consumer so Start/Finish pairing holds on error and abort paths.
func (s *streamState) cleanup() {
	switch s.active {
	case channelThinking:
		s.active = channelIdle
		if err := s.recv.ThinkingFinish(nil); err != nil {
			slog.Warn("thinking finish failed during cleanup", "provider", s.provider, "err", err)
		}
	case channelSaying:
		s.active = channelIdle
		if err := s.recv.SayingFinish(); err != nil {
			slog.Warn("saying finish failed during cleanup", "provider", s.provider, "err", err)
		}
	}
}

// captureUsage records a usage report; an unavailable report never replaces
// an earlier available one.
func (s *streamState) captureUsage(u schema.UsageStats) {
	if u.Available() {
		s.usage = u
	}
}

func (s *streamState) captureModel(model string) {
	if model != "" {
		s.model = model
	}
}

func (s *streamState) result() schema.GenResult {
	return schema.GenResult{Usage: s.usage, Model: s.model}
}

// mergeToolArgs combines the argument buffer with a new delta. A delta that
// extends the buffer is cumulative and replaces it; a delta the buffer
// already starts with is stale and ignored; anything else is appended.
func mergeToolArgs(buf, chunk string) string {
	switch {
	case chunk == "":
		return buf
	case strings.HasPrefix(chunk, buf):
		return chunk
	case strings.HasPrefix(buf, chunk):
		return buf
	default:
		return buf + chunk
	}
}
