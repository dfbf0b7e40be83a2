// Package acp implements the client side of the Agent Client Protocol:
// JSON-RPC 2.0 messages, one per line, exchanged with an agent adapter
// subprocess over its stdin/stdout.
//
// The subprocess's stdout is reserved exclusively for protocol traffic;
// adapter diagnostics arrive on stderr and are drained to the log.
package acp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// Protocol methods spoken on the wire.
const (
	MethodInitialize        = "initialize"
	MethodSessionNew        = "session/new"
	MethodSessionPrompt     = "session/prompt"
	MethodSessionCancel     = "session/cancel"
	MethodSessionUpdate     = "session/update"
	MethodRequestPermission = "session/request_permission"
)

// ProtocolVersion is the protocol revision this client speaks.
const ProtocolVersion = 1

// Message is a single JSON-RPC frame: request, response or notification.
// A request has Method and ID; a notification has Method only; a response
// has ID and one of Result/Error.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *RequestID      `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RequestID is a JSON-RPC request id. The protocol allows both numbers and
// strings; this client issues numbers but echoes whatever form the agent
// used on its own requests.
type RequestID struct {
	num      int64
	str      string
	isString bool
}

// NumericID builds a numeric request id.
func NumericID(n int64) *RequestID { return &RequestID{num: n} }

// StringID builds a string request id.
func StringID(s string) *RequestID { return &RequestID{str: s, isString: true} }

// Int returns the numeric value and whether the id is numeric.
func (id *RequestID) Int() (int64, bool) {
	if id == nil || id.isString {
		return 0, false
	}
	return id.num, true
}

func (id *RequestID) String() string {
	switch {
	case id == nil:
		return ""
	case id.isString:
		return id.str
	default:
		return strconv.FormatInt(id.num, 10)
	}
}

func (id RequestID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.str)
	}
	return json.Marshal(id.num)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		id.isString = true
		return json.Unmarshal(data, &id.str)
	}
	id.isString = false
	return json.Unmarshal(data, &id.num)
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsRequest reports whether the message expects a response.
func (m *Message) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsNotification reports whether the message is a fire-and-forget call.
func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

// IsResponse reports whether the message answers an earlier request.
func (m *Message) IsResponse() bool { return m.Method == "" && m.ID != nil }

// ─────────────────────────────────────────────────────────────────────────────
// Typed payloads
// ─────────────────────────────────────────────────────────────────────────────

// Implementation identifies one end of the connection.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Title   string `json:"title,omitempty"`
}

// FileSystemCapability advertises client-side file access.
type FileSystemCapability struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// ClientCapabilities advertises what the client can do for the agent.
type ClientCapabilities struct {
	FS       FileSystemCapability `json:"fs"`
	Terminal bool                 `json:"terminal"`
}

// InitializeParams is the payload of the first request on a connection.
type InitializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
	ClientInfo         *Implementation    `json:"clientInfo,omitempty"`
}

// InitializeResult carries the agent's identity and negotiated version.
type InitializeResult struct {
	ProtocolVersion   int             `json:"protocolVersion"`
	AgentInfo         *Implementation `json:"agentInfo,omitempty"`
	AgentCapabilities json.RawMessage `json:"agentCapabilities,omitempty"`
}

// NewSessionParams asks the agent for a fresh session rooted at Cwd.
type NewSessionParams struct {
	Cwd        string `json:"cwd"`
	MCPServers []any  `json:"mcpServers"`
}

// NewSessionResult carries the agent-assigned session id.
type NewSessionResult struct {
	SessionID string `json:"sessionId"`
}

// ContentBlock is one piece of prompt or response content.
// Only text blocks are produced and consumed here.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// PromptParams runs a turn on an existing session.
type PromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
}

// PromptResult terminates a prompt turn.
type PromptResult struct {
	StopReason string `json:"stopReason"`
}

// CancelParams aborts the in-flight turn on a session.
type CancelParams struct {
	SessionID string `json:"sessionId"`
}

// SessionUpdate is one streamed update inside a session/update notification.
type SessionUpdate struct {
	Kind    string       `json:"sessionUpdate"`
	Content ContentBlock `json:"content,omitempty"`
}

// Session update kinds the bridge cares about. Anything else is logged at
// debug level and ignored.
const (
	UpdateAgentMessageChunk = "agent_message_chunk"
	UpdateAgentThoughtChunk = "agent_thought_chunk"
	UpdateToolCall          = "tool_call"
	UpdateToolCallUpdate    = "tool_call_update"
	UpdatePlan              = "plan"
)

// SessionNotification is the params of a session/update notification.
type SessionNotification struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// ToolCallLocation names a filesystem path a tool call touches.
type ToolCallLocation struct {
	Path string `json:"path"`
}

// ToolCallRef describes the tool invocation a permission request is about.
type ToolCallRef struct {
	ToolCallID string             `json:"toolCallId"`
	Title      string             `json:"title,omitempty"`
	Kind       string             `json:"kind,omitempty"`
	Locations  []ToolCallLocation `json:"locations,omitempty"`
	RawInput   map[string]any     `json:"rawInput,omitempty"`
}

// PermissionOption is one choice the agent offers for a permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name"`
	Kind     string `json:"kind,omitempty"`
}

// RequestPermissionParams is the payload of a server-initiated
// session/request_permission request.
type RequestPermissionParams struct {
	SessionID string             `json:"sessionId"`
	ToolCall  ToolCallRef        `json:"toolCall"`
	Options   []PermissionOption `json:"options"`
}

// Permission outcomes on the wire.
const (
	OutcomeSelected  = "selected"
	OutcomeCancelled = "cancelled"
)

// PermissionOutcome is the decision sent back to the agent.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// RequestPermissionResult wraps the outcome.
type RequestPermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}

// Selected builds an approval outcome for the given option.
func Selected(optionID string) RequestPermissionResult {
	return RequestPermissionResult{Outcome: PermissionOutcome{
		Outcome:  OutcomeSelected,
		OptionID: optionID,
	}}
}

// Cancelled builds a rejection outcome.
func Cancelled() RequestPermissionResult {
	return RequestPermissionResult{Outcome: PermissionOutcome{
		Outcome: OutcomeCancelled,
	}}
}

// ─────────────────────────────────────────────────────────────────────────────
// Stop reasons
// ─────────────────────────────────────────────────────────────────────────────

// StopReason classifies how a prompt turn ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopCancelled    StopReason = "cancelled"
	StopError        StopReason = "error"
	StopLimitReached StopReason = "limit_reached"
)

// ParseStopReason maps a wire stop reason onto the bridge's classification.
// Token and turn limits collapse into StopLimitReached; a refusal or an
// unrecognized value is an error.
func ParseStopReason(wire string) StopReason {
	switch wire {
	case "end_turn":
		return StopEndTurn
	case "cancelled":
		return StopCancelled
	case "max_tokens", "max_turn_requests":
		return StopLimitReached
	default:
		return StopError
	}
}

// Terminal reports whether the reason ends a generation. All stop reasons
// are terminal; the method exists for call-site readability.
func (s StopReason) Terminal() bool { return true }

// ─────────────────────────────────────────────────────────────────────────────
// Encoder/Decoder for line-delimited JSON frames
// ─────────────────────────────────────────────────────────────────────────────

// Encoder writes messages as JSON lines. Safe for concurrent use: responses
// to server-initiated requests are written from handler goroutines while the
// caller writes its own requests.
type Encoder struct {
	w  io.Writer
	mu sync.Mutex
}

// NewEncoder creates an encoder for the given writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes a message as a single JSON line.
func (e *Encoder) Encode(m *Message) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	_, err = fmt.Fprintf(e.w, "%s\n", data)
	return err
}

// Decoder reads messages from JSON lines.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder creates a decoder for the given reader.
func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	// Allow large frames (up to 4MB); agent chunks can carry whole files.
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &Decoder{scanner: scanner}
}

// Decode reads the next message. A frame that is not valid JSON or not a
// valid JSON-RPC object is returned as ErrMalformedFrame: resynchronizing a
// framed stream is not reliable, so callers must treat this as fatal.
func (d *Decoder) Decode() (*Message, error) {
	for {
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var m Message
		if err := json.Unmarshal(line, &m); err != nil {
			return nil, &ProtocolError{Reason: "unparsable frame", Err: err}
		}
		if !m.IsRequest() && !m.IsNotification() && !m.IsResponse() {
			return nil, &ProtocolError{Reason: "frame is neither request, response nor notification", Err: ErrMalformedFrame}
		}
		return &m, nil
	}
}
