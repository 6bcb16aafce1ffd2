package schema

import "encoding/json"

// MessageType discriminates the variants of Message.
type MessageType string

const (
	MsgEnvironment    MessageType = "environment_msg"
	MsgTransientGuide MessageType = "transient_guide_msg"
	MsgPrompting      MessageType = "prompting_msg"
	MsgSaying         MessageType = "saying_msg"
	MsgThinking       MessageType = "thinking_msg"
	MsgFuncCall       MessageType = "func_call_msg"
	MsgFuncResult     MessageType = "func_result_msg"
	MsgTellaskResult  MessageType = "tellask_result_msg"
)

// Role is the conversational role a message is attributed to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// TellaskStatus is the outcome of a delegated task.
type TellaskStatus string

const (
	TellaskCompleted TellaskStatus = "completed"
	TellaskFailed    TellaskStatus = "failed"
)

// ContentItemType discriminates the parts of a multipart tool result.
type ContentItemType string

const (
	ItemText  ContentItemType = "text"
	ItemImage ContentItemType = "image"
)

// ArtifactRef locates a file produced by a dialog.
//
// RelPath is relative to the dialog directory and must live under artifacts/.
type ArtifactRef struct {
	RootID  string `json:"rootId" yaml:"rootId"`
	SelfID  string `json:"selfId" yaml:"selfId"`
	Status  string `json:"status" yaml:"status"`
	RelPath string `json:"relPath" yaml:"relPath"`
}

// ContentItem is one part of a multipart tool result.
type ContentItem struct {
	Type     ContentItemType `json:"type" yaml:"type"`
	Text     string          `json:"text,omitempty" yaml:"text,omitempty"`
	MimeType string          `json:"mimeType,omitempty" yaml:"mimeType,omitempty"`
	Artifact *ArtifactRef    `json:"artifact,omitempty" yaml:"artifact,omitempty"`
}

// ProviderData is vendor continuation data riding along on assistant
// messages. The shared layer never interprets Raw; only the adapter that
// produced it (matched by Provider) reads it back.
type ProviderData struct {
	Provider string          `json:"provider"`
	Raw      json.RawMessage `json:"raw"`
}

// For returns the raw payload if d was produced by provider, else nil.
func (d *ProviderData) For(provider string) json.RawMessage {
	if d == nil || d.Provider != provider {
		return nil
	}
	return d.Raw
}

// Message is one entry in a dialog's conversation.
//
// Type selects which fields are meaningful:
//   - environment_msg, transient_guide_msg: Content
//   - prompting_msg: Content, Genseq, MsgID
//   - saying_msg: Content, Genseq
//   - thinking_msg: Content, Genseq, ProviderData
//   - func_call_msg: ID, Name, Arguments (JSON text), Genseq, ProviderData
//   - func_result_msg: ID, Name, Content, Items, Genseq
//   - tellask_result_msg: CallID (optional), Status, Content, Genseq
type Message struct {
	Type         MessageType   `json:"type"`
	Genseq       int           `json:"genseq,omitempty"`
	Content      string        `json:"content,omitempty"`
	MsgID        string        `json:"msgId,omitempty"`
	ID           string        `json:"id,omitempty"`
	Name         string        `json:"name,omitempty"`
	Arguments    string        `json:"arguments,omitempty"`
	Items        []ContentItem `json:"items,omitempty"`
	CallID       string        `json:"callId,omitempty"`
	Status       TellaskStatus `json:"status,omitempty"`
	ProviderData *ProviderData `json:"providerData,omitempty"`
}

// Role reports which conversational role the message belongs to.
func (m Message) Role() Role {
	switch m.Type {
	case MsgEnvironment, MsgPrompting:
		return RoleUser
	case MsgFuncResult, MsgTellaskResult:
		return RoleTool
	default:
		return RoleAssistant
	}
}

// IsToolCall reports whether m invokes a tool.
func (m Message) IsToolCall() bool { return m.Type == MsgFuncCall }

// IsToolResult reports whether m carries a tool result.
func (m Message) IsToolResult() bool { return m.Type == MsgFuncResult }

func NewEnvironmentMessage(content string) Message {
	return Message{Type: MsgEnvironment, Content: content}
}

func NewTransientGuideMessage(content string) Message {
	return Message{Type: MsgTransientGuide, Content: content}
}

func NewPromptingMessage(genseq int, msgID, content string) Message {
	return Message{Type: MsgPrompting, Genseq: genseq, MsgID: msgID, Content: content}
}

func NewSayingMessage(genseq int, content string) Message {
	return Message{Type: MsgSaying, Genseq: genseq, Content: content}
}

func NewThinkingMessage(genseq int, content string, data *ProviderData) Message {
	return Message{Type: MsgThinking, Genseq: genseq, Content: content, ProviderData: data}
}

func NewFuncCallMessage(genseq int, id, name, arguments string) Message {
	return Message{Type: MsgFuncCall, Genseq: genseq, ID: id, Name: name, Arguments: arguments}
}

// NewFuncResultMessage builds a tool result. items may be nil for text-only results.
func NewFuncResultMessage(genseq int, id, name, content string, items []ContentItem) Message {
	return Message{Type: MsgFuncResult, Genseq: genseq, ID: id, Name: name, Content: content, Items: items}
}

func NewTellaskResultMessage(genseq int, callID string, status TellaskStatus, content string) Message {
	return Message{Type: MsgTellaskResult, Genseq: genseq, CallID: callID, Status: status, Content: content}
}
