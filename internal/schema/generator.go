package schema

import "context"

// Receiver consumes the narrative of one streaming generation.
//
// Calls arrive on the generating goroutine in a total order. Thinking and
// saying are never open at the same time, and every Start is matched by
// exactly one Finish, including when the call fails or is aborted. A non-nil
// error from any callback aborts the generation.
type Receiver interface {
	ThinkingStart() error
	ThinkingChunk(chunk string) error
	ThinkingFinish(data *ProviderData) error
	SayingStart() error
	SayingChunk(chunk string) error
	SayingFinish() error
	FuncCall(id, name, arguments string) error
}

// FuncCallDataReceiver is implemented by receivers that keep vendor
// continuation data attached to a tool call. When a call carries such data it
// is delivered here instead of through FuncCall.
type FuncCallDataReceiver interface {
	FuncCallWithData(id, name, arguments string, data *ProviderData) error
}

// StreamErrorNotifier is implemented by receivers that want to hear about
// recoverable stream anomalies such as overlapping channels.
type StreamErrorNotifier interface {
	StreamError(detail string)
}

// GenRequest is the input of one generation call.
type GenRequest struct {
	Provider     *ProviderConfig
	Agent        *AgentSpec
	SystemPrompt string
	Tools        []FuncTool
	Context      []Message
	// Genseq tags every message produced by this call.
	Genseq int
}

// GenResult reports what a generation call consumed.
type GenResult struct {
	Usage UsageStats
	// Model is the vendor-reported model id, when the vendor reports one.
	Model string
}

// Generator is implemented by every vendor adapter.
type Generator interface {
	APIType() APIType
	GenerateStreaming(ctx context.Context, req GenRequest, recv Receiver) (GenResult, error)
	GenerateBatch(ctx context.Context, req GenRequest) ([]Message, GenResult, error)
}
